// Package nostrzap implements the NIP-57 Zap payment rail: it builds and
// signs a kind-9734 Zap Request event, attaches it to an LNURL-pay
// callback, and returns the resulting zap invoice.
package nostrzap

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/zappool/paycalc/internal/bech32"
	"github.com/zappool/paycalc/internal/ledger"
	"github.com/zappool/paycalc/internal/outcome"
	"github.com/zappool/paycalc/internal/rails/nostrprofile"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// zapEvent is a NIP-01 event carrying a NIP-57 kind-9734 Zap Request.
type zapEvent struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// NpubFromSecret derives the bech32 npub for a 32-byte secp256k1 secret
// key.
func NpubFromSecret(secret []byte) (string, error) {
	_, pub := btcec.PrivKeyFromBytes(secret)
	xOnly := schnorr.SerializePubKey(pub)
	return bech32.EncodeFromBytes("npub", xOnly)
}

// npubToRawPubkeyHex decodes a bech32 npub to its 32-byte x-only hex
// public key (mirrors nostrprofile.NpubToHex; duplicated here to keep
// this rail's signing path self-contained).
func npubToRawPubkeyHex(npub string) (string, error) {
	hrp, raw, err := bech32.DecodeToBytes(npub)
	if err != nil {
		return "", fmt.Errorf("decode npub: %w", err)
	}
	if hrp != "npub" {
		return "", fmt.Errorf("expected hrp 'npub', got %q", hrp)
	}
	return hex.EncodeToString(raw), nil
}

// buildZapRequest constructs and signs a kind-9734 Zap Request event.
func buildZapRequest(senderSecret []byte, recipientNpub string, relays []string, amountMsat uint64, lnurlBech32 string) (string, error) {
	recipientHex, err := npubToRawPubkeyHex(recipientNpub)
	if err != nil {
		return "", err
	}
	senderNpub, err := NpubFromSecret(senderSecret)
	if err != nil {
		return "", fmt.Errorf("derive sender npub: %w", err)
	}
	senderPubHex, err := npubToRawPubkeyHex(senderNpub)
	if err != nil {
		return "", err
	}

	relaysTag := append([]string{"relays"}, relays...)
	ev := zapEvent{
		PubKey:    senderPubHex,
		CreatedAt: time.Now().Unix(),
		Kind:      9734,
		Tags: [][]string{
			relaysTag,
			{"amount", fmt.Sprintf("%d", amountMsat)},
			{"lnurl", lnurlBech32},
			{"p", recipientHex},
		},
		Content: "",
	}

	serialized, err := serializeForID(ev)
	if err != nil {
		return "", err
	}
	idHash := sha256.Sum256(serialized)
	ev.ID = hex.EncodeToString(idHash[:])

	privKey, _ := btcec.PrivKeyFromBytes(senderSecret)
	sig, err := schnorr.Sign(privKey, idHash[:])
	if err != nil {
		return "", fmt.Errorf("sign zap request: %w", err)
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())

	out, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal zap request: %w", err)
	}
	return string(out), nil
}

// serializeForID produces the NIP-01 canonical array form used to
// compute an event's id: [0, pubkey, created_at, kind, tags, content].
func serializeForID(ev zapEvent) ([]byte, error) {
	arr := []any{0, ev.PubKey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content}
	return json.Marshal(arr)
}

type lnurlResponseData struct {
	Callback       string  `json:"callback"`
	MinSendable    *uint64 `json:"minSendable"`
	MaxSendable    *uint64 `json:"maxSendable"`
	AllowsNostr    bool    `json:"allowsNostr"`
	NostrPubkey    string  `json:"nostrPubkey"`
}

type zapCallbackResponse struct {
	PR string `json:"pr"`
}

// getZapInvoice resolves lnAddress and attaches the signed zap event to
// the LNURL-pay callback.
func getZapInvoice(lnAddress string, amountMsat uint64, zapEventJSON string) outcome.Outcome[string] {
	wellKnown, err := wellKnownURL(lnAddress)
	if err != nil {
		return outcome.Final[string](ledger.ErrNostrZapFinalFailure, err.Error())
	}

	resp, err := httpClient.Get(wellKnown)
	if err != nil {
		return outcome.NonFinal[string](ledger.ErrNostrZapNonfinalFailure, fmt.Sprintf("GET %s: %v", wellKnown, err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return outcome.NonFinal[string](ledger.ErrNostrZapNonfinalFailure, fmt.Sprintf("read body: %v", err))
	}
	var payResp lnurlResponseData
	if err := json.Unmarshal(body, &payResp); err != nil {
		return outcome.NonFinal[string](ledger.ErrNostrZapNonfinalFailure, fmt.Sprintf("parse lnurlp response: %v", err))
	}
	if payResp.Callback == "" {
		return outcome.NonFinal[string](ledger.ErrNostrZapNonfinalFailure, "lnurlp response missing callback")
	}

	minSendable := uint64(1)
	if payResp.MinSendable != nil {
		minSendable = *payResp.MinSendable
	}
	maxSendable := uint64(1<<63 - 1)
	if payResp.MaxSendable != nil {
		maxSendable = *payResp.MaxSendable
	}
	if amountMsat < minSendable || amountMsat > maxSendable {
		return outcome.Final[string](ledger.ErrNostrZapFinalFailure,
			fmt.Sprintf("amount %d msat outside [%d,%d]", amountMsat, minSendable, maxSendable))
	}

	lnurlBech, err := bech32.EncodeFromBytes("lnurl", []byte(wellKnown))
	if err != nil {
		return outcome.NonFinal[string](ledger.ErrNostrZapNonfinalFailure, fmt.Sprintf("bech32-encode lnurl: %v", err))
	}
	callbackURL := fmt.Sprintf("%s?amount=%d&lnurl=%s&nostr=%s",
		payResp.Callback, amountMsat, lnurlBech, url.QueryEscape(zapEventJSON))

	cbResp, err := httpClient.Get(callbackURL)
	if err != nil {
		return outcome.NonFinal[string](ledger.ErrNostrZapNonfinalFailure, fmt.Sprintf("GET callback: %v", err))
	}
	defer cbResp.Body.Close()
	cbBody, err := io.ReadAll(cbResp.Body)
	if err != nil {
		return outcome.NonFinal[string](ledger.ErrNostrZapNonfinalFailure, fmt.Sprintf("read callback body: %v", err))
	}
	var cb zapCallbackResponse
	if err := json.Unmarshal(cbBody, &cb); err != nil {
		return outcome.NonFinal[string](ledger.ErrNostrZapNonfinalFailure, fmt.Sprintf("parse callback response: %v", err))
	}
	if cb.PR == "" {
		return outcome.Final[string](ledger.ErrNostrZapFinalFailure, "zap callback missing pr")
	}
	return outcome.Success(cb.PR)
}

func wellKnownURL(lnAddress string) (string, error) {
	at := -1
	for i, c := range lnAddress {
		if c == '@' {
			at = i
			break
		}
	}
	if at < 0 {
		return "", fmt.Errorf("malformed lightning address %q", lnAddress)
	}
	return fmt.Sprintf("https://%s/.well-known/lnurlp/%s", lnAddress[at+1:], lnAddress[:at]), nil
}

// ZapResult carries the invoice plus the resolved recipient address,
// returned to the executor for recording as secondary/tertiary ids.
type ZapResult struct {
	LnAddress string
	Invoice   string
}

// Zap resolves recipientNpub's Lightning Address, builds and signs a Zap
// Request, and fetches the zap invoice. Paying the returned invoice via
// the node is the executor's responsibility.
func Zap(senderSecret []byte, recipientNpub string, amountMsat uint64, relays []string) outcome.Outcome[ZapResult] {
	lnAddr, err := nostrprofile.ResolveLnAddress(recipientNpub)
	if err != nil {
		return outcome.NonFinal[ZapResult](ledger.ErrNostrLnAddressNonfinalFailure, err.Error())
	}

	wellKnown, err := wellKnownURL(lnAddr)
	if err != nil {
		return outcome.Final[ZapResult](ledger.ErrNostrZapFinalFailure, err.Error())
	}
	lnurlBech, err := bech32.EncodeFromBytes("lnurl", []byte(wellKnown))
	if err != nil {
		return outcome.NonFinal[ZapResult](ledger.ErrNostrZapNonfinalFailure, fmt.Sprintf("bech32-encode lnurl: %v", err))
	}

	zapEventJSON, err := buildZapRequest(senderSecret, recipientNpub, relays, amountMsat, lnurlBech)
	if err != nil {
		return outcome.Final[ZapResult](ledger.ErrNostrZapFinalFailure, fmt.Sprintf("build zap request: %v", err))
	}

	invOut := getZapInvoice(lnAddr, amountMsat, zapEventJSON)
	if !invOut.IsSuccess() {
		return outcome.Rewrap[string, ZapResult](invOut)
	}
	return outcome.Success(ZapResult{LnAddress: lnAddr, Invoice: invOut.Value()})
}
