// Package paymethod implements the closed payment-method taxonomy and
// the rules for determining and normalizing a recipient's primary id.
package paymethod

import "strings"

// Method is the closed tagged payment-method enum.
type Method int

const (
	Unknown Method = iota
	LnAddress
	NostrLightning
	NostrZap
)

// Tag is the persisted string form of a Method.
func (m Method) Tag() string {
	switch m {
	case LnAddress:
		return "LNAD"
	case NostrLightning:
		return "NOLN"
	case NostrZap:
		return "ZAP"
	default:
		return ""
	}
}

// ParseTag parses a persisted tag back into a Method. Unknown tags
// return (Unknown, false) — parsing rejects unknown tags.
func ParseTag(tag string) (Method, bool) {
	switch tag {
	case "LNAD":
		return LnAddress, true
	case "NOLN":
		return NostrLightning, true
	case "ZAP":
		return NostrZap, true
	default:
		return Unknown, false
	}
}

// allTags is the set of tags GuessPaymentMethod checks as a colon prefix,
// in a fixed order so multiple matching prefixes resolve deterministically.
var allTags = []Method{LnAddress, NostrLightning, NostrZap}

// ParseOverrideTable parses "id:PM,id:PM,..." (USER_METHOD_SETTING_OVERRIDE)
// into a userID string -> Method map. Entries with an unparseable PM tag
// are dropped (not an error): an invalid override entry simply fails to
// match and falls through to the default guess.
func ParseOverrideTable(envStr string) map[string]Method {
	out := map[string]Method{}
	if envStr == "" {
		return out
	}
	for _, entry := range strings.Split(envStr, ",") {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		userID, tag := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if m, ok := ParseTag(tag); ok {
			out[userID] = m
		}
	}
	return out
}

// GetUserOverride looks up userID in an already-parsed override table.
func GetUserOverride(overrides map[string]Method, userID string) (Method, bool) {
	m, ok := overrides[userID]
	return m, ok
}

// GuessPaymentMethod infers a payment method from the shape of the raw
// recipient id:
//  1. If it contains ":", the prefix before the first ":" is matched
//     against the known tags (LNAD/NOLN/ZAP); a match wins outright.
//  2. Else if the prefix is the legacy "LA" tag, that's LNAD.
//  3. Else if it contains "@", guess LNAD (a Lightning Address shape).
//  4. Else return def (an npub is assumed, so callers default to
//     NostrLightning unless a DEFAULT_PAYMENT_METHOD override applies).
func GuessPaymentMethod(origID string, def Method) Method {
	if idx := strings.Index(origID, ":"); idx >= 0 {
		prefix := origID[:idx]
		for _, m := range allTags {
			if prefix == m.Tag() {
				return m
			}
		}
		if prefix == "LA" {
			return LnAddress
		}
	}
	if strings.Contains(origID, "@") {
		return LnAddress
	}
	return def
}

// DeterminePaymentMethod resolves the effective method for userID,
// preferring a per-user override, then falling back to GuessPaymentMethod
// with def as the no-signal default (operator-configurable via
// DEFAULT_PAYMENT_METHOD).
func DeterminePaymentMethod(overrides map[string]Method, userID, origID string, def Method) Method {
	if m, ok := GetUserOverride(overrides, userID); ok {
		return m
	}
	return GuessPaymentMethod(origID, def)
}

// sanitizePrimaryID replaces "_" with "." — worker-separator compatibility
// for Lightning Address recipients.
func sanitizePrimaryID(id string) string {
	return strings.ReplaceAll(id, "_", ".")
}

// AdjustedPrimaryID strips a matching tag prefix (or the legacy "LA:"
// prefix when method is LnAddress), then sanitizes the remainder for
// LnAddress recipients. Applying it twice is a no-op, since the second
// pass finds no prefix to strip and sanitizePrimaryID is idempotent.
func AdjustedPrimaryID(method Method, origID string) string {
	id := origID
	if tag := method.Tag(); tag != "" && strings.HasPrefix(id, tag+":") {
		id = id[len(tag)+1:]
	} else if method == LnAddress && strings.HasPrefix(id, "LA:") {
		id = id[len("LA:"):]
	}
	if method == LnAddress {
		id = sanitizePrimaryID(id)
	}
	return id
}
