package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zappool/paycalc/internal/ledger"
)

// GetMinerSnapshot returns the snapshot row for a miner, or nil if none
// exists yet.
func GetMinerSnapshot(ctx context.Context, q querier, userID int64) (*ledger.MinerSnapshot, error) {
	row := q.QueryRowContext(ctx, `SELECT UserId, UserS, Time, TotCommit, TotEstimate, TotPaid, Unpaid, UnpaidCons, PayReqId
		FROM MINER_SS WHERE UserId = ?`, userID)
	ss := &ledger.MinerSnapshot{}
	err := row.Scan(&ss.UserID, &ss.UserS, &ss.Time, &ss.TotCommit, &ss.TotEstimate, &ss.TotPaid,
		&ss.Unpaid, &ss.UnpaidCons, &ss.PayReqID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get miner snapshot %d: %w", userID, err)
	}
	return ss, nil
}

// CreateMinerSnapshotIfNeeded inserts a zeroed snapshot row for userID if
// one does not already exist.
func CreateMinerSnapshotIfNeeded(ctx context.Context, tx *sql.Tx, userID int64, userS string, now int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO MINER_SS
		(UserId, UserS, Time, TotCommit, TotEstimate, TotPaid, Unpaid, UnpaidCons, PayReqId)
		SELECT ?, ?, ?, 0, 0, 0, 0, 0, -1 WHERE NOT EXISTS (SELECT 1 FROM MINER_SS WHERE UserId = ?)`,
		userID, userS, now, userID)
	if err != nil {
		return fmt.Errorf("create miner snapshot %d: %w", userID, err)
	}
	return nil
}

// AllMinerSnapshots lists every snapshot row (used by the request
// generator's refresh pass and the dashboard CLI).
func AllMinerSnapshots(ctx context.Context, q querier) ([]*ledger.MinerSnapshot, error) {
	rows, err := q.QueryContext(ctx, `SELECT UserId, UserS, Time, TotCommit, TotEstimate, TotPaid, Unpaid, UnpaidCons, PayReqId
		FROM MINER_SS`)
	if err != nil {
		return nil, fmt.Errorf("list miner snapshots: %w", err)
	}
	defer rows.Close()

	var out []*ledger.MinerSnapshot
	for rows.Next() {
		ss := &ledger.MinerSnapshot{}
		if err := rows.Scan(&ss.UserID, &ss.UserS, &ss.Time, &ss.TotCommit, &ss.TotEstimate, &ss.TotPaid,
			&ss.Unpaid, &ss.UnpaidCons, &ss.PayReqID); err != nil {
			return nil, fmt.Errorf("scan miner snapshot: %w", err)
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// UpdateMinerSnapshot persists ss's mutable fields, and appends a row to
// the historical sibling table. The caller is responsible for only
// invoking this when something actually changed.
func UpdateMinerSnapshot(ctx context.Context, tx *sql.Tx, ss *ledger.MinerSnapshot) error {
	_, err := tx.ExecContext(ctx, `UPDATE MINER_SS SET
		UserS = ?, Time = ?, TotCommit = ?, TotEstimate = ?, TotPaid = ?, Unpaid = ?, UnpaidCons = ?, PayReqId = ?
		WHERE UserId = ?`,
		ss.UserS, ss.Time, ss.TotCommit, ss.TotEstimate, ss.TotPaid, ss.Unpaid, ss.UnpaidCons, ss.PayReqID, ss.UserID)
	if err != nil {
		return fmt.Errorf("update miner snapshot %d: %w", ss.UserID, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO MINER_SS_HIST
		(UserId, Time, TotCommit, TotEstimate, TotPaid, Unpaid, UnpaidCons, PayReqId)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ss.UserID, ss.Time, ss.TotCommit, ss.TotEstimate, ss.TotPaid, ss.Unpaid, ss.UnpaidCons, ss.PayReqID)
	if err != nil {
		return fmt.Errorf("append miner snapshot history %d: %w", ss.UserID, err)
	}
	return nil
}

// SetSnapshotPayReqID links a newly created pay request to its snapshot.
func SetSnapshotPayReqID(ctx context.Context, tx *sql.Tx, userID, payReqID int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE MINER_SS SET PayReqId = ? WHERE UserId = ?`, payReqID, userID)
	if err != nil {
		return fmt.Errorf("link pay request %d to miner %d: %w", payReqID, userID, err)
	}
	return nil
}

// MinerTotalPaid sums PaidAmnt across this miner's payments, excluding
// FinalFailure.
func MinerTotalPaid(ctx context.Context, q querier, userID int64) (int64, error) {
	var tot sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT SUM(p.PaidAmnt)
		FROM PAYMENT p JOIN PAYREQ r ON p.ReqId = r.Id
		WHERE r.MinerId = ? AND p.Status != ?`, userID, int(ledger.FinalFailure)).Scan(&tot)
	if err != nil {
		return 0, fmt.Errorf("sum total paid for miner %d: %w", userID, err)
	}
	return tot.Int64, nil
}
