package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zappool/paycalc/internal/ledger"
)

// InsertWork creates a new work row with all accounting fields zeroed.
func InsertWork(ctx context.Context, tx *sql.Tx, w *ledger.Work) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO WORK
		(UNameO, UNameOWrkr, UNameU, UNameUWrkr, TDiff, TimeAdd,
		 Payed, PayedTime, PayedRef, Committed, CommitBlocks, CommitFirstTime, CommitNextTime, Estimate)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, '', 0, 0, 0, 0, 0)`,
		w.UNameO, w.UNameOW, w.UNameU, w.UNameUW, w.TDiff, w.TimeAdd)
	if err != nil {
		return 0, fmt.Errorf("insert work: %w", err)
	}
	return res.LastInsertId()
}

// GetWorkByID returns a single work record by id, or nil if none exists.
func GetWorkByID(ctx context.Context, q querier, id int64) (*ledger.Work, error) {
	row := q.QueryRowContext(ctx, `SELECT
		Id, UNameO, UNameOWrkr, UNameU, UNameUWrkr, TDiff, TimeAdd,
		Payed, PayedTime, PayedRef, Committed, CommitBlocks, CommitFirstTime, CommitNextTime, Estimate
		FROM WORK WHERE Id = ?`, id)
	w := &ledger.Work{}
	err := row.Scan(&w.ID, &w.UNameO, &w.UNameOW, &w.UNameU, &w.UNameUW, &w.TDiff, &w.TimeAdd,
		&w.Payed, &w.PayedTime, &w.PayedRef, &w.Committed, &w.CommitBlocks,
		&w.CommitFirstTime, &w.CommitNextTime, &w.Estimate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work %d: %w", id, err)
	}
	return w, nil
}

// EligibleForBlock returns work records eligible to receive a share of
// blockTime's earnings: commit_blocks < W, time_add <= block_time, and
// commit_next_time < block_time. Ordered ascending by id so apportionment
// has a deterministic visitation order.
func EligibleForBlock(ctx context.Context, tx *sql.Tx, blockTime float64) ([]*ledger.Work, error) {
	rows, err := tx.QueryContext(ctx, `SELECT
		Id, UNameO, UNameOWrkr, UNameU, UNameUWrkr, TDiff, TimeAdd,
		Payed, PayedTime, PayedRef, Committed, CommitBlocks, CommitFirstTime, CommitNextTime, Estimate
		FROM WORK
		WHERE CommitBlocks < ? AND TimeAdd <= ? AND CommitNextTime < ?
		ORDER BY Id ASC`, ledger.BlocksWindow, blockTime, int64(blockTime))
	if err != nil {
		return nil, fmt.Errorf("query eligible work: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Work
	for rows.Next() {
		w := &ledger.Work{}
		if err := rows.Scan(&w.ID, &w.UNameO, &w.UNameOW, &w.UNameU, &w.UNameUW, &w.TDiff, &w.TimeAdd,
			&w.Payed, &w.PayedTime, &w.PayedRef, &w.Committed, &w.CommitBlocks,
			&w.CommitFirstTime, &w.CommitNextTime, &w.Estimate); err != nil {
			return nil, fmt.Errorf("scan eligible work: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CreditWork persists the result of apportioning one block's earnings to
// a single work record.
func CreditWork(ctx context.Context, tx *sql.Tx, w *ledger.Work) error {
	_, err := tx.ExecContext(ctx, `UPDATE WORK SET
		Committed = ?, CommitBlocks = ?, CommitFirstTime = ?, CommitNextTime = ?, Estimate = ?
		WHERE Id = ?`,
		w.Committed, w.CommitBlocks, w.CommitFirstTime, w.CommitNextTime, w.Estimate, w.ID)
	if err != nil {
		return fmt.Errorf("credit work %d: %w", w.ID, err)
	}
	return nil
}

// UpdateEstimate persists a new estimate for a work record if it
// changed. Returns whether a write occurred.
func UpdateEstimate(ctx context.Context, tx *sql.Tx, workID int64, newEstimate int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE WORK SET Estimate = ? WHERE Id = ? AND Estimate != ?`,
		newEstimate, workID, newEstimate)
	if err != nil {
		return false, fmt.Errorf("update estimate for work %d: %w", workID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// OpenForEstimateUpdate returns work records still within the commit
// window and added after birthTime, for estimate maintenance.
func OpenForEstimateUpdate(ctx context.Context, q querier, birthTime float64) ([]*ledger.Work, error) {
	rows, err := q.QueryContext(ctx, `SELECT Id, TDiff, CommitBlocks, Estimate
		FROM WORK WHERE CommitBlocks < ? AND TimeAdd > ?`, ledger.BlocksWindow, birthTime)
	if err != nil {
		return nil, fmt.Errorf("query open-for-estimate work: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Work
	for rows.Next() {
		w := &ledger.Work{}
		if err := rows.Scan(&w.ID, &w.TDiff, &w.CommitBlocks, &w.Estimate); err != nil {
			return nil, fmt.Errorf("scan open-for-estimate work: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// MinerWorkTotals sums Committed and Estimate for all work belonging to
// the given upstream miner id, and returns the latest CommitNextTime.
func MinerWorkTotals(ctx context.Context, q querier, minerID int64) (totCommit, totEstimate, commitLastTime int64, err error) {
	row := q.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(Committed), 0), COALESCE(SUM(Estimate), 0), COALESCE(MAX(CommitNextTime), 0)
		FROM WORK WHERE UNameU = ?`, minerID)
	if err = row.Scan(&totCommit, &totEstimate, &commitLastTime); err != nil {
		return 0, 0, 0, fmt.Errorf("sum work totals for miner %d: %w", minerID, err)
	}
	return
}

// AllMinerIDs returns the distinct set of upstream miner ids with any
// work on record (used by MinerSS creation/refresh).
func AllMinerIDs(ctx context.Context, q querier) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT UNameU FROM WORK`)
	if err != nil {
		return nil, fmt.Errorf("list all miner ids: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
