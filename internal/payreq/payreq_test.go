package payreq

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zappool/paycalc/internal/config"
	"github.com/zappool/paycalc/internal/ledger"
	"github.com/zappool/paycalc/internal/store"
)

func TestGranularityHelpers(t *testing.T) {
	assert.Equal(t, int64(6000), ceilToGranularity(5001, 1000))
	assert.Equal(t, int64(5000), ceilToGranularity(5000, 1000))
	assert.Equal(t, int64(5000), floorToGranularity(5999, 1000))
	assert.Equal(t, int64(6000), roundToGranularity(5501, 1000))
	assert.Equal(t, int64(5000), roundToGranularity(5499, 1000))
	assert.Equal(t, int64(20), clamp(99, 10, 20))
	assert.Equal(t, int64(10), clamp(-5, 10, 20))
	assert.Equal(t, int64(15), clamp(15, 10, 20))
}

func TestGranularityRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := rapid.Int64Range(0, 1_000_000_000).Draw(rt, "v")
		g := rapid.Int64Range(1, 100_000).Draw(rt, "g")
		rounded := roundToGranularity(v, g)
		if rounded%g != 0 {
			rt.Fatalf("rounded value %d not a multiple of granularity %d", rounded, g)
		}
	})
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// TestRefreshSnapshotComputesConservativeUnpaid exercises the
// unpaid/unpaid_cons computation: unpaid = committed + estimate - paid,
// unpaid_cons floors the estimate portion by ConservativeEstimateRatio.
func TestRefreshSnapshotComputesConservativeUnpaid(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	const minerID = int64(7)
	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		w := &ledger.Work{UNameU: minerID, TDiff: 1000, TimeAdd: 1}
		w.Committed = 4000
		w.Estimate = 1000
		id, err := store.InsertWork(ctx, tx, w)
		if err != nil {
			return err
		}
		w.ID = id
		return store.CreditWork(ctx, tx, w)
	}))

	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return store.CreateMinerSnapshotIfNeeded(ctx, tx, minerID, "alice", 0)
	}))

	ss, err := store.GetMinerSnapshot(ctx, st.DB(), minerID)
	require.NoError(t, err)
	require.NotNil(t, ss)

	g := New(st, config.Default(), nil)
	require.NoError(t, g.refreshSnapshot(ctx, ss))

	assert.Equal(t, int64(4000), ss.TotCommit)
	assert.Equal(t, int64(1000), ss.TotEstimate)
	assert.Equal(t, int64(0), ss.TotPaid)
	// unpaid_cons = committed + floor(estimate * 0.67) - paid = 4000 + 670 - 0
	assert.Equal(t, int64(4670), ss.UnpaidCons)
	assert.Equal(t, int64(5000), ss.Unpaid)
}
