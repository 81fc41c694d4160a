// Package engine implements the earnings accounting engine: it ingests
// new work records and blocks from the two upstream read-only sources,
// apportions each block's earnings across eligible work by a sliding
// commit-window rule, maintains a trailing estimate for work still
// inside its window, detects executor payment changes, and ensures a
// miner snapshot row exists for every miner touched in the tick.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/zappool/paycalc/internal/ledger"
	"github.com/zappool/paycalc/internal/metrics"
	"github.com/zappool/paycalc/internal/paylog"
	"github.com/zappool/paycalc/internal/source"
	"github.com/zappool/paycalc/internal/store"
)

// TickInterval is the engine's fixed polling cadence.
const TickInterval = 5 * time.Second

// Engine owns the local store and the two upstream source handles.
type Engine struct {
	st        *store.Store
	workSrc   *sql.DB
	blockSrc  *sql.DB
	birthTime float64
	log       log.Logger
	metrics   *metrics.WorkerMetrics
}

// New builds an Engine. workSrc and blockSrc are read-only connections
// opened with source.Open.
func New(st *store.Store, workSrc, blockSrc *sql.DB, birthTime float64) *Engine {
	return &Engine{
		st: st, workSrc: workSrc, blockSrc: blockSrc, birthTime: birthTime,
		log:     paylog.For(paylog.Engine),
		metrics: metrics.ForComponent(paylog.Engine),
	}
}

// Run loops until ctx is cancelled, running one iteration per tick and
// logging (without crashing) any iteration error.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopping")
			return
		case <-ticker.C:
			e.metrics.Ticks.Inc()
			if err := e.iteration(ctx); err != nil {
				e.metrics.Errors.Inc()
				e.log.Error("iteration failed", "err", err)
			}
		}
	}
}

// iteration runs one full pass: ingestion, block accounting, estimate
// maintenance, payment detection, and affected-miner snapshot creation.
func (e *Engine) iteration(ctx context.Context) error {
	affected := map[int64]struct{}{}

	newWork, err := e.ingestWork(ctx, affected)
	if err != nil {
		return fmt.Errorf("ingest work: %w", err)
	}

	newBlocks, err := e.ingestBlocks(ctx, newWork > 0)
	if err != nil {
		return fmt.Errorf("ingest blocks: %w", err)
	}
	_ = newBlocks

	if err := e.accountBlocks(ctx, affected); err != nil {
		return fmt.Errorf("account blocks: %w", err)
	}

	if err := e.maintainEstimates(ctx); err != nil {
		return fmt.Errorf("maintain estimates: %w", err)
	}

	if err := e.detectPayments(ctx, affected); err != nil {
		return fmt.Errorf("detect payments: %w", err)
	}

	if err := e.ensureSnapshots(ctx, affected); err != nil {
		return fmt.Errorf("ensure snapshots: %w", err)
	}

	return nil
}

// ingestWork reads new rows from the work source past the cursor,
// inserting them into the local work ledger within one transaction.
// Returns the number of rows ingested.
func (e *Engine) ingestWork(ctx context.Context, affected map[int64]struct{}) (int, error) {
	status, err := e.st.GetStatus(ctx)
	if err != nil {
		return 0, err
	}

	minTime := e.birthTime
	if float64(status.LastWorkItemTimeRetrvd) > minTime {
		minTime = float64(status.LastWorkItemTimeRetrvd)
	}

	rows, err := source.FetchWorkSince(ctx, e.workSrc, status.LastWorkItemRetrvd, minTime)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	now := time.Now().Unix()
	lastID := status.LastWorkItemRetrvd
	var lastTime uint64 = status.LastWorkItemTimeRetrvd

	err = e.st.WithTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			uo, err := store.GetOrCreateUserID(ctx, tx, ledger.UserOriginal, r.UNameO, now)
			if err != nil {
				return err
			}
			uow, err := store.GetOrCreateUserID(ctx, tx, ledger.UserOriginalWorker, r.UNameOWrkr, now)
			if err != nil {
				return err
			}
			uu, err := store.GetOrCreateUserID(ctx, tx, ledger.UserUpstream, r.UNameU, now)
			if err != nil {
				return err
			}
			uuw, err := store.GetOrCreateUserID(ctx, tx, ledger.UserUpstreamWorker, r.UNameUWrkr, now)
			if err != nil {
				return err
			}

			w := &ledger.Work{
				UNameO: uo, UNameOW: uow, UNameU: uu, UNameUW: uuw,
				TDiff: r.TDiff, TimeAdd: r.TimeAdd,
			}
			if _, err := store.InsertWork(ctx, tx, w); err != nil {
				return err
			}
			affected[uu] = struct{}{}

			if r.ID > lastID {
				lastID = r.ID
			}
			if uint64(r.TimeAdd) > lastTime {
				lastTime = uint64(r.TimeAdd)
			}
		}
		return store.SetLastWorkItemRetrvd(ctx, tx, lastID, lastTime)
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ingestBlocks counts new rows in the block source past the cursor; if
// any exist (or force is set because new work just arrived) it ingests
// them as new, unprocessed block records.
func (e *Engine) ingestBlocks(ctx context.Context, force bool) (int, error) {
	status, err := e.st.GetStatus(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := int64(status.LastBlockRetrvd)
	if int64(e.birthTime) > cutoff {
		cutoff = int64(e.birthTime)
	}

	n, err := source.CountBlocksSince(ctx, e.blockSrc, cutoff)
	if err != nil {
		return 0, err
	}
	if n == 0 && !force {
		return 0, nil
	}

	rows, err := source.FetchBlocksSince(ctx, e.blockSrc, cutoff)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	now := time.Now().Unix()
	lastRetrvd := status.LastBlockRetrvd

	err = e.st.WithTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			b := &ledger.Block{Time: r.Time, BlockHash: r.BlockHash, EarningSats: r.Earning, PoolFeeSats: r.PoolFee}
			if err := store.InsertBlock(ctx, tx, b, now); err != nil {
				return err
			}
			if uint64(r.Time) > lastRetrvd {
				lastRetrvd = uint64(r.Time)
			}
		}
		return store.SetLastBlockRetrvd(ctx, tx, lastRetrvd)
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// accountBlocks processes every unprocessed block in time order,
// apportioning its earnings across eligible work by a streaming
// remainder so the distributed total equals the block's earning exactly.
func (e *Engine) accountBlocks(ctx context.Context, affected map[int64]struct{}) error {
	var blocks []*ledger.Block
	err := e.st.WithTx(ctx, func(tx *sql.Tx) error {
		status, err := store.GetStatusTx(ctx, tx)
		if err != nil {
			return err
		}
		n, err := store.CountNewBlocks(ctx, tx, status.LastBlockProcd)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		b, err := store.UnprocessedBlocks(ctx, tx, status.LastBlockProcd)
		if err != nil {
			return err
		}
		blocks = b
		return nil
	})
	if err != nil {
		return err
	}

	for _, block := range blocks {
		if err := e.accountOneBlock(ctx, block, affected); err != nil {
			return fmt.Errorf("account block %d: %w", block.Time, err)
		}
	}
	return nil
}

func (e *Engine) accountOneBlock(ctx context.Context, block *ledger.Block, affected map[int64]struct{}) error {
	now := time.Now().Unix()
	earnMsat := block.EarningSats * 1000

	return e.st.WithTx(ctx, func(tx *sql.Tx) error {
		eligible, err := store.EligibleForBlock(ctx, tx, float64(block.Time))
		if err != nil {
			return err
		}

		var totalDiff int64
		for _, w := range eligible {
			totalDiff += w.TDiff
		}

		remainEarn, remainDiff := earnMsat, totalDiff
		var committedSum int64
		for _, w := range eligible {
			var earnI int64
			if remainDiff > 0 {
				earnI = int64(math.Round(float64(remainEarn) * float64(w.TDiff) / float64(remainDiff)))
			}
			remainEarn -= earnI
			remainDiff -= w.TDiff

			w.Committed += earnI
			committedSum += earnI
			if !w.FullyCommitted() {
				if w.CommitBlocks == 0 {
					w.CommitFirstTime = block.Time
				}
				w.CommitBlocks++
				if w.FullyCommitted() {
					w.Estimate = 0
				}
			}
			w.CommitNextTime = block.Time

			if err := store.CreditWork(ctx, tx, w); err != nil {
				return err
			}
			affected[w.UNameU] = struct{}{}
		}

		e.metrics.Apportioned.Add(float64(committedSum))
		if committedSum != earnMsat {
			e.log.Warn("block accounting mismatch", "block_time", block.Time,
				"committed_sum", committedSum, "earn_msat", earnMsat)
		}

		if err := store.MarkBlockProcessed(ctx, tx, block.Time, totalDiff, now); err != nil {
			return err
		}
		return store.SetLastBlockProcd(ctx, tx, uint64(block.Time))
	})
}

// estimateClampMin/Max bound N, the trailing-average window, per the
// accounting rule.
const (
	estimateClampMin = 3
	estimateClampMax = 100
)

// maintainEstimates recomputes the forecast estimate for every work
// record still inside its commit window, using the trailing average
// earn-per-difficulty over the last BlockAverageCount processed blocks.
func (e *Engine) maintainEstimates(ctx context.Context) error {
	n := ledger.BlockAverageCount
	if n < estimateClampMin {
		n = estimateClampMin
	}
	if n > estimateClampMax {
		n = estimateClampMax
	}

	var avg float64
	err := e.st.WithTx(ctx, func(tx *sql.Tx) error {
		a, err := store.LastAvgN(ctx, tx, n)
		if err != nil {
			return err
		}
		avg = a
		return nil
	})
	if err != nil {
		return err
	}

	return e.st.WithTx(ctx, func(tx *sql.Tx) error {
		open, err := store.OpenForEstimateUpdate(ctx, tx, e.birthTime)
		if err != nil {
			return err
		}
		for _, w := range open {
			remaining := ledger.BlocksWindow - w.CommitBlocks
			newEstimate := int64(math.Round(float64(remaining) * float64(w.TDiff) * avg * 1000))
			if _, err := store.UpdateEstimate(ctx, tx, w.ID, newEstimate); err != nil {
				return err
			}
		}
		return nil
	})
}

// detectPayments advances the payment-detection watermark and adds
// every miner touched by a recorded status change to the affected set.
func (e *Engine) detectPayments(ctx context.Context, affected map[int64]struct{}) error {
	return e.st.WithTx(ctx, func(tx *sql.Tx) error {
		status, err := store.GetStatusTx(ctx, tx)
		if err != nil {
			return err
		}
		cutoff := status.LastPaymentProcd
		if uint64(e.birthTime) > cutoff {
			cutoff = uint64(e.birthTime)
		}

		changes, maxTime, err := store.PaymentsSince(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		for _, c := range changes {
			affected[c.MinerID] = struct{}{}
		}
		if maxTime > status.LastPaymentProcd {
			return store.SetLastPaymentProcd(ctx, tx, maxTime)
		}
		return nil
	})
}

// ensureSnapshots creates a zeroed miner snapshot row for every affected
// miner id that does not already have one.
func (e *Engine) ensureSnapshots(ctx context.Context, affected map[int64]struct{}) error {
	if len(affected) == 0 {
		return nil
	}
	now := time.Now().Unix()
	return e.st.WithTx(ctx, func(tx *sql.Tx) error {
		for minerID := range affected {
			userS, err := store.UserString(ctx, tx, minerID)
			if err != nil {
				return err
			}
			if err := store.CreateMinerSnapshotIfNeeded(ctx, tx, minerID, userS, now); err != nil {
				return err
			}
		}
		return nil
	})
}
