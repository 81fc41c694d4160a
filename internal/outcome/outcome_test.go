package outcome

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zappool/paycalc/internal/ledger"
)

func TestSuccessCarriesValue(t *testing.T) {
	o := Success(42)
	assert.True(t, o.IsSuccess())
	assert.False(t, o.IsNonFinal())
	assert.False(t, o.IsFinal())
	assert.Equal(t, 42, o.Value())
	assert.Equal(t, ledger.ErrOK, o.Code())
}

func TestNonFinalCarriesCodeAndReason(t *testing.T) {
	o := NonFinal[string](ledger.ErrLnAddressNonfinalFailure, "timeout")
	assert.False(t, o.IsSuccess())
	assert.True(t, o.IsNonFinal())
	assert.False(t, o.IsFinal())
	assert.Equal(t, ledger.ErrLnAddressNonfinalFailure, o.Code())
	assert.Equal(t, "timeout", o.Reason())
}

func TestFinalCarriesCodeAndReason(t *testing.T) {
	o := Final[string](ledger.ErrLnAddressFinalFailure, "unknown recipient")
	assert.True(t, o.IsFinal())
	assert.Equal(t, ledger.ErrLnAddressFinalFailure, o.Code())
	assert.Equal(t, "unknown recipient", o.Reason())
}

func TestRewrapPreservesFinalClassification(t *testing.T) {
	from := Final[int](ledger.ErrGenericFinalFailure, "boom")
	to := Rewrap[int, string](from)
	assert.True(t, to.IsFinal())
	assert.Equal(t, ledger.ErrGenericFinalFailure, to.Code())
	assert.Equal(t, "boom", to.Reason())
}

func TestRewrapPreservesNonFinalClassification(t *testing.T) {
	from := NonFinal[int](ledger.ErrNostrZapNonfinalFailure, "relay unreachable")
	to := Rewrap[int, string](from)
	assert.True(t, to.IsNonFinal())
	assert.Equal(t, ledger.ErrNostrZapNonfinalFailure, to.Code())
}
