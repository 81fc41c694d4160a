// Package nostrprofile resolves a Nostr npub to a Lightning Address by
// querying kind-0 metadata events across a fixed set of well-known
// relays (NIP-01).
package nostrprofile

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zappool/paycalc/internal/bech32"
)

// Relays is the fixed relay list queried in order.
var Relays = []string{
	"relay.damus.io",
	"relay.primal.net",
	"nostr.wine",
	"nos.lol",
	"relay.snort.social",
	"nostr.land",
	"nostr.mom",
	"relay.nostr.band",
	"nostr.oxtr.dev",
}

// profileData mirrors the kind-0 content payload fields this codebase
// cares about.
type profileData struct {
	Name        *string `json:"name"`
	DisplayName *string `json:"display_name"`
	Lud16       *string `json:"lud16"`
}

// NpubToHex converts a bech32 "npub1..." string to its 32-byte hex
// public key.
func NpubToHex(npub string) (string, error) {
	hrp, raw, err := bech32.DecodeToBytes(npub)
	if err != nil {
		return "", fmt.Errorf("decode npub: %w", err)
	}
	if hrp != "npub" {
		return "", fmt.Errorf("expected hrp 'npub', got %q", hrp)
	}
	return hex.EncodeToString(raw), nil
}

// dialer is overridable in tests.
var dialer = websocket.DefaultDialer

// getProfile opens one relay connection, subscribes to kind-0 metadata
// for pubkeyHex, and returns the first matching profile (or nil on EOSE
// with no match).
func getProfile(relayURL, pubkeyHex string) (*profileData, error) {
	conn, _, err := dialer.Dial(relayURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to relay %s: %w", relayURL, err)
	}
	defer conn.Close()

	subID := uuid.NewString()[:8]
	req := []any{"REQ", subID, map[string]any{"kinds": []int{0}, "authors": []string{pubkeyHex}}}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("send REQ to %s: %w", relayURL, err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err) {
				return nil, fmt.Errorf("relay %s closed unexpectedly: %w", relayURL, err)
			}
			continue // read timeout, keep polling within the 10s budget
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 2 {
			continue
		}
		var frameType, frameSub string
		json.Unmarshal(frame[0], &frameType)
		json.Unmarshal(frame[1], &frameSub)
		if frameSub != subID {
			continue
		}

		switch frameType {
		case "EVENT":
			if len(frame) < 3 {
				continue
			}
			var ev struct {
				Kind    int    `json:"kind"`
				Content string `json:"content"`
			}
			if err := json.Unmarshal(frame[2], &ev); err != nil || ev.Kind != 0 {
				continue
			}
			var pd profileData
			if err := json.Unmarshal([]byte(ev.Content), &pd); err != nil {
				continue
			}
			conn.WriteJSON([]any{"CLOSE", subID})
			return &pd, nil
		case "EOSE":
			conn.WriteJSON([]any{"CLOSE", subID})
			return nil, nil
		}
	}
	return nil, nil
}

// ResolveLnAddress queries the fixed relay list in order and returns the
// first non-empty lud16 found.
func ResolveLnAddress(npub string) (string, error) {
	pubkeyHex, err := NpubToHex(npub)
	if err != nil {
		return "", err
	}
	for _, relay := range Relays {
		relayURL := "wss://" + relay
		profile, err := getProfile(relayURL, pubkeyHex)
		if err != nil {
			continue // try the next relay; transport errors are not fatal here
		}
		if profile != nil && profile.Lud16 != nil && *profile.Lud16 != "" {
			return *profile.Lud16, nil
		}
	}
	return "", fmt.Errorf("could not resolve lightning address for %s across %d relays", npub, len(Relays))
}
