// Package source reads the two upstream, read-only relational data
// feeds the earnings engine ingests from: the work source and the
// block-earning source. Neither is owned or mutated by this codebase.
package source

import (
	"context"
	"database/sql"
	"fmt"
)

// Open opens a read-only connection to an upstream SQLite-compatible
// source database at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open source database %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping source database %q: %w", path, err)
	}
	return db, nil
}

// WorkRecord mirrors one row of the upstream work source, keyed by a
// monotonic id assigned upstream.
type WorkRecord struct {
	ID          int64
	UNameO      string
	UNameOWrkr  string
	UNameU      string
	UNameUWrkr  string
	TDiff       int64
	TimeAdd     float64
}

// FetchWorkSince returns work source rows with id > lastID and
// time_add >= minTime, ordered by id ascending.
func FetchWorkSince(ctx context.Context, db *sql.DB, lastID int64, minTime float64) ([]WorkRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, uname_o, uname_o_wrkr, uname_u, uname_u_wrkr, tdiff, time_add
		FROM work WHERE id > ? AND time_add >= ? ORDER BY id ASC`, lastID, minTime)
	if err != nil {
		return nil, fmt.Errorf("query work source since id %d: %w", lastID, err)
	}
	defer rows.Close()

	var out []WorkRecord
	for rows.Next() {
		var w WorkRecord
		if err := rows.Scan(&w.ID, &w.UNameO, &w.UNameOWrkr, &w.UNameU, &w.UNameUWrkr, &w.TDiff, &w.TimeAdd); err != nil {
			return nil, fmt.Errorf("scan work source row: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// BlockRecord mirrors one row of the upstream block-earning source,
// keyed by a monotonic time.
type BlockRecord struct {
	Time      int64
	BlockHash string
	Earning   int64
	PoolFee   int64
}

// CountBlocksSince counts block source rows with time > cutoff.
func CountBlocksSince(ctx context.Context, db *sql.DB, cutoff int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT count(*) FROM block WHERE time > ?`, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count block source rows since %d: %w", cutoff, err)
	}
	return n, nil
}

// FetchBlocksSince returns block source rows with time > cutoff,
// ordered by time ascending.
func FetchBlocksSince(ctx context.Context, db *sql.DB, cutoff int64) ([]BlockRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT time, block_hash, earning, pool_fee
		FROM block WHERE time > ? ORDER BY time ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query block source since %d: %w", cutoff, err)
	}
	defer rows.Close()

	var out []BlockRecord
	for rows.Next() {
		var b BlockRecord
		if err := rows.Scan(&b.Time, &b.BlockHash, &b.Earning, &b.PoolFee); err != nil {
			return nil, fmt.Errorf("scan block source row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
