package paymethod

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTagRoundTrip(t *testing.T) {
	for _, m := range []Method{LnAddress, NostrLightning, NostrZap} {
		tag := m.Tag()
		got, ok := ParseTag(tag)
		assert.True(t, ok)
		assert.Equal(t, m, got)
	}
}

func TestParseTagRejectsUnknown(t *testing.T) {
	_, ok := ParseTag("BOGUS")
	assert.False(t, ok)
}

func TestGuessPaymentMethod(t *testing.T) {
	cases := []struct {
		in   string
		want Method
	}{
		{"LNAD:alice@getalby.com", LnAddress},
		{"NOLN:npub1abc", NostrLightning},
		{"ZAP:npub1abc", NostrZap},
		{"LA:alice@getalby.com", LnAddress},
		{"alice@getalby.com", LnAddress},
		{"npub1abcdefg", NostrLightning},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, GuessPaymentMethod(c.in, NostrLightning), "input %q", c.in)
	}
}

func TestGuessPaymentMethodUsesConfiguredDefault(t *testing.T) {
	assert.Equal(t, NostrZap, GuessPaymentMethod("npub1abcdefg", NostrZap))
}

func TestParseOverrideTable(t *testing.T) {
	table := ParseOverrideTable("42:LNAD,7:ZAP,9:BOGUS,malformed")
	assert.Equal(t, LnAddress, table["42"])
	assert.Equal(t, NostrZap, table["7"])
	_, ok := table["9"]
	assert.False(t, ok, "invalid tag entries must not be inserted")
	assert.Len(t, table, 2)
}

func TestDeterminePaymentMethodPrefersOverride(t *testing.T) {
	overrides := map[string]Method{"42": NostrZap}
	got := DeterminePaymentMethod(overrides, "42", "alice@getalby.com", NostrLightning)
	assert.Equal(t, NostrZap, got)

	got = DeterminePaymentMethod(overrides, "99", "alice@getalby.com", NostrLightning)
	assert.Equal(t, LnAddress, got)
}

func TestDeterminePaymentMethodFallsBackToConfiguredDefault(t *testing.T) {
	got := DeterminePaymentMethod(nil, "99", "npub1abc", NostrZap)
	assert.Equal(t, NostrZap, got)
}

func TestAdjustedPrimaryIDStripsTagAndSanitizes(t *testing.T) {
	assert.Equal(t, "alice.worker1@getalby.com", AdjustedPrimaryID(LnAddress, "LNAD:alice_worker1@getalby.com"))
	assert.Equal(t, "alice.worker1@getalby.com", AdjustedPrimaryID(LnAddress, "LA:alice_worker1@getalby.com"))
	assert.Equal(t, "npub1abc", AdjustedPrimaryID(NostrZap, "ZAP:npub1abc"))
}

func TestAdjustedPrimaryIDIdempotent(t *testing.T) {
	once := AdjustedPrimaryID(LnAddress, "LNAD:alice_worker1@getalby.com")
	twice := AdjustedPrimaryID(LnAddress, once)
	assert.Equal(t, once, twice)
}
