// Package lnaddress resolves a Lightning Address (user@domain) to a
// BOLT11 invoice via the LNURL-pay protocol.
package lnaddress

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zappool/paycalc/internal/ledger"
	"github.com/zappool/paycalc/internal/outcome"
)

// httpClient is overridable in tests.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// lnurlPayResponse is the JSON served at the LNURL-pay well-known URL.
type lnurlPayResponse struct {
	Callback    string `json:"callback"`
	MinSendable *uint64 `json:"minSendable"`
	MaxSendable *uint64 `json:"maxSendable"`
	Tag         string `json:"tag"`
}

type callbackResponse struct {
	PR     string `json:"pr"`
	Reason string `json:"reason"`
}

// WellKnownURL builds the LNURL-pay discovery URL for a Lightning
// Address.
func WellKnownURL(lnAddress string) (string, error) {
	parts := strings.SplitN(lnAddress, "@", 2)
	if len(parts) < 2 {
		return "", fmt.Errorf("malformed lightning address %q", lnAddress)
	}
	user, domain := parts[0], parts[1]
	return fmt.Sprintf("https://%s/.well-known/lnurlp/%s", domain, user), nil
}

// GetInvoice resolves lnAddress to a BOLT11 invoice for amountMsat:
// amount policy violations are final failures, transport/parse
// failures are non-final.
func GetInvoice(lnAddress string, amountMsat uint64) outcome.Outcome[string] {
	wellKnown, err := WellKnownURL(lnAddress)
	if err != nil {
		return outcome.Final[string](ledger.ErrLnAddressFinalFailure, err.Error())
	}

	resp, err := httpClient.Get(wellKnown)
	if err != nil {
		return outcome.NonFinal[string](ledger.ErrLnAddressNonfinalFailure, fmt.Sprintf("GET %s: %v", wellKnown, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return outcome.NonFinal[string](ledger.ErrLnAddressNonfinalFailure,
			fmt.Sprintf("GET %s: status %d", wellKnown, resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return outcome.NonFinal[string](ledger.ErrLnAddressNonfinalFailure, fmt.Sprintf("read body: %v", err))
	}

	var payResp lnurlPayResponse
	if err := json.Unmarshal(body, &payResp); err != nil {
		return outcome.NonFinal[string](ledger.ErrLnAddressNonfinalFailure, fmt.Sprintf("parse lnurlp response: %v", err))
	}
	if payResp.Callback == "" {
		return outcome.NonFinal[string](ledger.ErrLnAddressNonfinalFailure, "lnurlp response missing callback")
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
		return outcome.Final[string](ledger.ErrLnAddressFinalFailure,
			fmt.Sprintf("amount %d msat outside [%d,%d]", amountMsat, minSendable, maxSendable))
	}

	callbackURL := fmt.Sprintf("%s?amount=%d", payResp.Callback, amountMsat)
	cbResp, err := httpClient.Get(callbackURL)
	if err != nil {
		return outcome.NonFinal[string](ledger.ErrLnAddressNonfinalFailure, fmt.Sprintf("GET %s: %v", callbackURL, err))
	}
	defer cbResp.Body.Close()
	cbBody, err := io.ReadAll(cbResp.Body)
	if err != nil {
		return outcome.NonFinal[string](ledger.ErrLnAddressNonfinalFailure, fmt.Sprintf("read callback body: %v", err))
	}

	var cb callbackResponse
	if err := json.Unmarshal(cbBody, &cb); err != nil {
		return outcome.NonFinal[string](ledger.ErrLnAddressNonfinalFailure, fmt.Sprintf("parse callback response: %v", err))
	}
	if cb.PR == "" {
		return outcome.Final[string](ledger.ErrLnAddressFinalFailure, "callback response missing pr")
	}
	return outcome.Success(cb.PR)
}
