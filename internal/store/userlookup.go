package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zappool/paycalc/internal/ledger"
)

// GetOrCreateUserID returns the stable id for a (kind, string) pair,
// creating the row on first observation. A zero-length string maps to id
// 0 (no worker suffix), matching work records that have no worker part.
func GetOrCreateUserID(ctx context.Context, tx *sql.Tx, kind ledger.UserKind, str string, now int64) (int64, error) {
	if str == "" {
		return 0, nil
	}
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT Id FROM USERLOOKUP WHERE String = ? AND Type = ?`, str, int(kind)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup user id: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO USERLOOKUP (String, Type, TimeAdd) VALUES (?, ?, ?)`, str, int(kind), now)
	if err != nil {
		return 0, fmt.Errorf("insert user lookup: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("user lookup last insert id: %w", err)
	}
	return id, nil
}

// UserString resolves an id back to its string (0 => "").
func UserString(ctx context.Context, q querier, id int64) (string, error) {
	if id == 0 {
		return "", nil
	}
	var str string
	err := q.QueryRowContext(ctx, `SELECT String FROM USERLOOKUP WHERE Id = ?`, id).Scan(&str)
	if err != nil {
		return "", fmt.Errorf("resolve user string for id %d: %w", id, err)
	}
	return str, nil
}
