// Package store is the local relational persistence layer shared by the
// three workers: a single SQLite file holding the status cursor, work
// ledger, block ledger, miner snapshots and the pay request/payment pair.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ethereum/go-ethereum/log"
)

// Store wraps the local database connection. cmd/paycalcd opens one Store
// and passes it to all three workers; each CLI opens its own.
type Store struct {
	db  *sql.DB
	log log.Logger
}

// Open opens (and if necessary migrates) the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %q: %w", path, err)
	}
	// The engine and executor share one file handle per process; SQLite
	// only supports one writer at a time, so we force single-connection
	// semantics rather than letting database/sql pool concurrent writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log.New("component", "store")}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly opens the database in read-only mode, for the
// dashboard/stats CLIs (the upstream data sources use source.Open).
func OpenReadOnly(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?mode=ro&_query_only=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db (ro) %q: %w", path, err)
	}
	return &Store{db: db, log: log.New("component", "store-ro")}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw *sql.DB for callers that query outside a
// transaction (e.g. the dashboard/stats CLIs and tests).
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. All multi-row mutations in this codebase go
// through WithTx so the cursor advance and the rows it gates commit
// together.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.log.Warn("rollback failed", "err", rerr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
