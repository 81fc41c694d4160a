package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zappool/paycalc/internal/ledger"
)

// GetStatus reads the singleton status cursor row.
func (s *Store) GetStatus(ctx context.Context) (ledger.Status, error) {
	return getStatusQ(ctx, s.db)
}

func getStatusQ(ctx context.Context, q querier) (ledger.Status, error) {
	var st ledger.Status
	row := q.QueryRowContext(ctx, `SELECT
		LastWorkItemRetrvd, LastWorkItemTimeRetrvd, LastBlockRetrvd, LastBlockProcd, LastPaymentProcd
		FROM STATUS LIMIT 1`)
	if err := row.Scan(&st.LastWorkItemRetrvd, &st.LastWorkItemTimeRetrvd, &st.LastBlockRetrvd,
		&st.LastBlockProcd, &st.LastPaymentProcd); err != nil {
		return ledger.Status{}, fmt.Errorf("get status: %w", err)
	}
	return st, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SetLastWorkItemRetrvd advances the work-ingestion watermark. Must be
// called inside the same transaction as the work rows it gates.
func SetLastWorkItemRetrvd(ctx context.Context, tx *sql.Tx, id int64, timeVal uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE STATUS SET LastWorkItemRetrvd = ?, LastWorkItemTimeRetrvd = ?`, id, timeVal)
	if err != nil {
		return fmt.Errorf("set last work item retrvd: %w", err)
	}
	return nil
}

// SetLastBlockRetrvd advances the block-ingestion watermark.
func SetLastBlockRetrvd(ctx context.Context, tx *sql.Tx, t uint64) error {
	_, err := tx.ExecContext(ctx, `UPDATE STATUS SET LastBlockRetrvd = ?`, t)
	if err != nil {
		return fmt.Errorf("set last block retrvd: %w", err)
	}
	return nil
}

// SetLastBlockProcd advances the block-processing watermark.
func SetLastBlockProcd(ctx context.Context, tx *sql.Tx, t uint64) error {
	_, err := tx.ExecContext(ctx, `UPDATE STATUS SET LastBlockProcd = ?`, t)
	if err != nil {
		return fmt.Errorf("set last block procd: %w", err)
	}
	return nil
}

// SetLastPaymentProcd advances the payment-detection watermark.
func SetLastPaymentProcd(ctx context.Context, tx *sql.Tx, t uint64) error {
	_, err := tx.ExecContext(ctx, `UPDATE STATUS SET LastPaymentProcd = ?`, t)
	if err != nil {
		return fmt.Errorf("set last payment procd: %w", err)
	}
	return nil
}

// GetStatusTx reads the status cursor within a transaction (for
// read-modify-write sequences that must observe their own prior writes).
func GetStatusTx(ctx context.Context, tx *sql.Tx) (ledger.Status, error) {
	return getStatusQ(ctx, tx)
}
