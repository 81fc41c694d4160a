package engine

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zappool/paycalc/internal/ledger"
	"github.com/zappool/paycalc/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// TestAccountOneBlockStreamingRemainder reproduces the documented
// apportionment scenario: two work records of difficulty 1000 and 3000
// sharing a 7000-msat block earning apportion to 1750/5250 msat exactly,
// with no rounding drift.
func TestAccountOneBlockStreamingRemainder(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	e := New(st, nil, nil, 0)

	var ids []int64
	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		for _, diff := range []int64{1000, 3000} {
			w := &ledger.Work{UNameU: 1, TDiff: diff, TimeAdd: 1}
			id, err := store.InsertWork(ctx, tx, w)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	}))

	block := &ledger.Block{Time: 100, BlockHash: "abc", EarningSats: 7}
	require.NoError(t, st.WithTx(ctx, func(tx *sql.Tx) error {
		return store.InsertBlock(ctx, tx, block, 0)
	}))

	affected := map[int64]struct{}{}
	require.NoError(t, e.accountOneBlock(ctx, block, affected))

	w0, err := store.GetWorkByID(ctx, st.DB(), ids[0])
	require.NoError(t, err)
	w1, err := store.GetWorkByID(ctx, st.DB(), ids[1])
	require.NoError(t, err)

	assert.Equal(t, int64(1750), w0.Committed)
	assert.Equal(t, int64(5250), w1.Committed)
	assert.Equal(t, 1, w0.CommitBlocks)
	assert.Equal(t, 1, w1.CommitBlocks)
}

// TestAccountOneBlockExactApportionmentProperty checks the streaming
// remainder's core invariant for arbitrary difficulty sets: the sum of
// apportioned amounts always equals the block's total earning exactly.
func TestAccountOneBlockExactApportionmentProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		st, err := store.Open(":memory:")
		require.NoError(rt, err)
		defer st.Close()
		e := New(st, nil, nil, 0)

		n := rapid.IntRange(1, 8).Draw(rt, "n")
		var ids []int64
		require.NoError(rt, st.WithTx(ctx, func(tx *sql.Tx) error {
			for i := 0; i < n; i++ {
				diff := rapid.Int64Range(1, 10_000).Draw(rt, "diff")
				w := &ledger.Work{UNameU: 1, TDiff: diff, TimeAdd: 1}
				id, err := store.InsertWork(ctx, tx, w)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return nil
		}))

		earnSats := rapid.Int64Range(0, 1_000_000).Draw(rt, "earn")
		block := &ledger.Block{Time: 100, BlockHash: "x", EarningSats: earnSats}
		require.NoError(rt, st.WithTx(ctx, func(tx *sql.Tx) error {
			return store.InsertBlock(ctx, tx, block, 0)
		}))

		affected := map[int64]struct{}{}
		require.NoError(rt, e.accountOneBlock(ctx, block, affected))

		var sum int64
		for _, id := range ids {
			w, err := store.GetWorkByID(ctx, st.DB(), id)
			require.NoError(rt, err)
			sum += w.Committed
		}
		if sum != earnSats*1000 {
			rt.Fatalf("apportioned sum %d != block earning %d msat", sum, earnSats*1000)
		}
	})
}
