package store

import (
	"context"
	"database/sql"
	"fmt"
)

// LatestDBVersion is the schema version this codebase understands. A
// worker refuses to start against a database whose VERSION row holds
// any other value.
const LatestDBVersion = 3

type migration struct {
	toVersion int
	statements []string
}

// migrations are applied in order by runMigrations, which runs the steps
// whose toVersion lies in (vfrom, vto]; ensureSchema runs them only on a
// database that has no VERSION table yet.
var migrations = []migration{
	{
		toVersion: 3,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS VERSION (Version INTEGER)`,
			`CREATE TABLE IF NOT EXISTS STATUS (
				LastWorkItemRetrvd INTEGER,
				LastWorkItemTimeRetrvd INTEGER,
				LastBlockRetrvd INTEGER,
				LastBlockProcd INTEGER,
				LastPaymentProcd INTEGER
			)`,
			`CREATE TABLE IF NOT EXISTS USERLOOKUP (
				Id INTEGER PRIMARY KEY AUTOINCREMENT,
				String VARCHAR(100),
				Type INTEGER,
				TimeAdd INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS UserlookupId ON USERLOOKUP (Id)`,
			`CREATE INDEX IF NOT EXISTS UserlookupString ON USERLOOKUP (String)`,
			// UNameO/UNameOWrkr: original username/worker id.
			// UNameU/UNameUWrkr: upstream-rewritten username/worker id.
			// TDiff: target difficulty of the work request.
			// Committed: amount committed so far, msat.
			// CommitBlocks: number of blocks behind Committed, 0..BlocksWindow.
			// Estimate: forecast for unaccounted future blocks, msat.
			`CREATE TABLE IF NOT EXISTS WORK (
				Id INTEGER PRIMARY KEY AUTOINCREMENT,
				UNameO INTEGER,
				UNameOWrkr INTEGER,
				UNameU INTEGER,
				UNameUWrkr INTEGER,
				TDiff INTEGER,
				TimeAdd REAL,
				Payed INTEGER,
				PayedTime INTEGER,
				PayedRef VARCHAR(500),
				Committed INTEGER,
				CommitBlocks INTEGER,
				CommitFirstTime INTEGER,
				CommitNextTime INTEGER,
				Estimate INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS WorkTimeAdd ON WORK (TimeAdd)`,
			`CREATE TABLE IF NOT EXISTS PC_BLOCK (
				Time INTEGER,
				BlockHash VARCHAR(100),
				Earning INTEGER,
				PoolFee INTEGER,
				TimeAddedFirst INTEGER,
				TimeUpdated INTEGER,
				AccTotalDiff INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS PcBlockTime ON PC_BLOCK (Time)`,
			// At most one row per miner.
			`CREATE TABLE IF NOT EXISTS MINER_SS (
				UserId INTEGER PRIMARY KEY,
				UserS VARCHAR(100),
				Time INTEGER,
				TotCommit INTEGER,
				TotEstimate INTEGER,
				TotPaid INTEGER,
				Unpaid INTEGER,
				UnpaidCons INTEGER,
				PayReqId INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS MinerSSUserS ON MINER_SS (UserS)`,
			`CREATE TABLE IF NOT EXISTS MINER_SS_HIST (
				UserId VARCHAR(100),
				Time INTEGER,
				TotCommit INTEGER,
				TotEstimate INTEGER,
				TotPaid INTEGER,
				Unpaid INTEGER,
				UnpaidCons INTEGER,
				PayReqId INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS MinerHistUserId ON MINER_SS_HIST (UserId)`,
			`CREATE INDEX IF NOT EXISTS MinerHistTime ON MINER_SS_HIST (Time)`,
			// PayMethod tag: LNAD (Lightning Address), NOLN (Nostr Lightning),
			// ZAP (Nostr Zap). PriId: rail-specific recipient id, already
			// adjusted (prefix stripped, worker-separator sanitized for LNAD).
			`CREATE TABLE IF NOT EXISTS PAYREQ (
				Id INTEGER PRIMARY KEY AUTOINCREMENT,
				MinerId INTEGER,
				ReqAmnt INTEGER,
				PayMethod VARCHAR(10),
				PriId VARCHAR(200),
				ReqTime INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS PayreqTime ON PAYREQ (ReqTime)`,
			// Status: 0 NotTried 1 InProgress 2 SuccessFinal 3 NonfinalFailure 4 FinalFailure.
			// PaidAmnt includes fee; PaidFee is the fee component alone.
			`CREATE TABLE IF NOT EXISTS PAYMENT (
				Id INTEGER PRIMARY KEY AUTOINCREMENT,
				ReqId INTEGER,
				CreateTime INTEGER,
				Status INTEGER,
				StatusTime INTEGER,
				ErrorCode INTEGER,
				ErrorStr VARCHAR(200),
				RetryCnt INTEGER,
				FailTime INTEGER,
				PaidAmnt INTEGER,
				PaidFee INTEGER,
				PayTime INTEGER,
				PayRef VARCHAR(200),
				SeconId VARCHAR(1000),
				TertiId VARCHAR(1000),
				FOREIGN KEY (ReqId) REFERENCES PAYREQ(Id)
			)`,
			`CREATE INDEX IF NOT EXISTS PaymentReqId ON PAYMENT (ReqId)`,
			`CREATE INDEX IF NOT EXISTS PaymentStatusTime ON PAYMENT (StatusTime)`,
		},
	},
}

// ensureSchema creates the schema from scratch on a fresh database, or
// verifies an existing database is already at LatestDBVersion.
func (s *Store) ensureSchema(ctx context.Context) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='VERSION'`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check VERSION table: %w", err)
	}
	if exists == 0 {
		return s.runMigrations(ctx, 0, LatestDBVersion)
	}
	return s.CheckVersion(ctx)
}

// CheckVersion refuses startup when the on-disk schema version does not
// match LatestDBVersion.
func (s *Store) CheckVersion(ctx context.Context) error {
	v, err := s.currentVersion(ctx)
	if err != nil {
		return err
	}
	if v != LatestDBVersion {
		return fmt.Errorf("database schema at version %d, need %d: run paycalc-migrate", v, LatestDBVersion)
	}
	return nil
}

func (s *Store) currentVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT Version FROM VERSION LIMIT 1`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read current version: %w", err)
	}
	return v, nil
}

func (s *Store) runMigrations(ctx context.Context, vfrom, vto int) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, m := range migrations {
			if m.toVersion <= vfrom || m.toVersion > vto {
				continue
			}
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration to v%d: %w", m.toVersion, err)
				}
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM VERSION`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO VERSION (Version) VALUES (?)`, vto); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO STATUS (LastWorkItemRetrvd, LastWorkItemTimeRetrvd, LastBlockRetrvd, LastBlockProcd, LastPaymentProcd)
			 SELECT -1, 0, 0, 0, 0 WHERE NOT EXISTS (SELECT 1 FROM STATUS)`); err != nil {
			return err
		}
		return nil
	})
}

// Migrate runs the migration steps from vfrom to vto explicitly. No
// command in this module calls it; cmd/paycalc-migrate relies on Open.
func (s *Store) Migrate(ctx context.Context, vfrom, vto int) error {
	return s.runMigrations(ctx, vfrom, vto)
}
