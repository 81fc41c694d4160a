package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zappool/paycalc/internal/ledger"
)

// InsertBlock creates a new block row with AccTotalDiff=0.
func InsertBlock(ctx context.Context, tx *sql.Tx, b *ledger.Block, now int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO PC_BLOCK
		(Time, BlockHash, Earning, PoolFee, TimeAddedFirst, TimeUpdated, AccTotalDiff)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		b.Time, b.BlockHash, b.EarningSats, b.PoolFeeSats, now, now)
	if err != nil {
		return fmt.Errorf("insert block %d: %w", b.Time, err)
	}
	return nil
}

// UnprocessedBlocks returns blocks with Time > lastBlockProcd, ordered by
// time ascending.
func UnprocessedBlocks(ctx context.Context, tx *sql.Tx, lastBlockProcd uint64) ([]*ledger.Block, error) {
	rows, err := tx.QueryContext(ctx, `SELECT Time, BlockHash, Earning, PoolFee, TimeAddedFirst, TimeUpdated, AccTotalDiff
		FROM PC_BLOCK WHERE Time > ? ORDER BY Time ASC`, lastBlockProcd)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed blocks: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Block
	for rows.Next() {
		b := &ledger.Block{}
		if err := rows.Scan(&b.Time, &b.BlockHash, &b.EarningSats, &b.PoolFeeSats,
			&b.TimeAddedFirst, &b.TimeUpdated, &b.AccTotalDiff); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// MarkBlockProcessed writes the accumulated affected-work total
// difficulty onto a block once apportioned.
func MarkBlockProcessed(ctx context.Context, tx *sql.Tx, blockTime int64, accTotalDiff int64, now int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE PC_BLOCK SET AccTotalDiff = ?, TimeUpdated = ? WHERE Time = ?`, accTotalDiff, now, blockTime)
	if err != nil {
		return fmt.Errorf("mark block %d processed: %w", blockTime, err)
	}
	return nil
}

// CountNewBlocks reports how many rows in PC_BLOCK have Time > cutoff,
// without fetching them.
func CountNewBlocks(ctx context.Context, q querier, cutoff uint64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT count(*) FROM PC_BLOCK WHERE Time > ?`, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count new blocks: %w", err)
	}
	return n, nil
}

// LastAvgN computes the trailing average earn-per-difficulty over the
// most recent n processed blocks ("most recent" means most recently
// processed, i.e. AccTotalDiff > 0, ordered by Time descending; see
// DESIGN.md).
func LastAvgN(ctx context.Context, q querier, n int) (avg float64, err error) {
	rows, err := q.QueryContext(ctx,
		`SELECT Earning, AccTotalDiff FROM PC_BLOCK WHERE AccTotalDiff > 0 ORDER BY Time DESC LIMIT ?`, n)
	if err != nil {
		return 0, fmt.Errorf("query last %d processed blocks: %w", n, err)
	}
	defer rows.Close()

	var sumEarn, sumDiff int64
	for rows.Next() {
		var earn, diff int64
		if err := rows.Scan(&earn, &diff); err != nil {
			return 0, fmt.Errorf("scan block avg row: %w", err)
		}
		sumEarn += earn
		sumDiff += diff
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if sumDiff <= 0 {
		return 0, nil
	}
	return float64(sumEarn) / float64(sumDiff), nil
}
