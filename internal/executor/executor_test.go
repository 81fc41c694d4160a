package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zappool/paycalc/internal/ledger"
)

func TestFailMarksNonFinalBelowMaxRetries(t *testing.T) {
	e := &Executor{}
	payment := &ledger.Payment{RetryCnt: MaxRetries - 2}

	e.fail(payment, ledger.ErrLnAddressNonfinalFailure, "timeout", 100, false)

	assert.Equal(t, ledger.NonfinalFailure, payment.Status)
	assert.Equal(t, MaxRetries-1, payment.RetryCnt)
	assert.Equal(t, "timeout", payment.ErrorStr)
}

func TestFailEscalatesToFinalAtMaxRetries(t *testing.T) {
	e := &Executor{}
	payment := &ledger.Payment{RetryCnt: MaxRetries - 1}

	e.fail(payment, ledger.ErrLnAddressNonfinalFailure, "timeout", 100, false)

	assert.Equal(t, ledger.FinalFailure, payment.Status)
	assert.Equal(t, MaxRetries, payment.RetryCnt)
}

func TestFailEscalatesImmediatelyOnFinalRailError(t *testing.T) {
	e := &Executor{}
	payment := &ledger.Payment{RetryCnt: 0}

	e.fail(payment, ledger.ErrLnAddressFinalFailure, "unknown recipient", 100, true)

	assert.Equal(t, ledger.FinalFailure, payment.Status)
	assert.Equal(t, 1, payment.RetryCnt)
}
