// Package payreq implements the payout request generator: on a fixed
// period it refreshes every miner snapshot's totals from the live
// ledgers, then creates at most one open pay request per miner that has
// crossed its payout threshold.
package payreq

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/zappool/paycalc/internal/config"
	"github.com/zappool/paycalc/internal/ledger"
	"github.com/zappool/paycalc/internal/metrics"
	"github.com/zappool/paycalc/internal/paylog"
	"github.com/zappool/paycalc/internal/paymethod"
	"github.com/zappool/paycalc/internal/store"
)

// ConservativeEstimateRatio (R) is the fraction of a miner's outstanding
// estimate counted toward the conservative unpaid figure used to gate
// request creation.
const ConservativeEstimateRatio = 0.67

// Generator owns the store and configuration needed to run one period.
type Generator struct {
	st            *store.Store
	cfg           config.Config
	overrides     map[string]paymethod.Method
	defaultMethod paymethod.Method
	log           log.Logger
	metrics       *metrics.WorkerMetrics
}

// New builds a Generator. overrides is the parsed USER_METHOD_SETTING_OVERRIDE
// table. cfg.DefaultPaymentMethod (DEFAULT_PAYMENT_METHOD) picks the method
// assumed when a recipient id carries no explicit signal; an empty or
// unparseable value falls back to NostrLightning, matching the upstream
// payment_method guesser's own hardcoded default.
func New(st *store.Store, cfg config.Config, overrides map[string]paymethod.Method) *Generator {
	defaultMethod := paymethod.NostrLightning
	if m, ok := paymethod.ParseTag(cfg.DefaultPaymentMethod); ok {
		defaultMethod = m
	}
	return &Generator{
		st: st, cfg: cfg, overrides: overrides, defaultMethod: defaultMethod,
		log:     paylog.For(paylog.Payreq),
		metrics: metrics.ForComponent(paylog.Payreq),
	}
}

// Run loops until ctx is cancelled, waking once per PayoutPeriodSecs
// aligned to the period boundary.
func (g *Generator) Run(ctx context.Context) {
	for {
		wait := g.untilNextWake(time.Now().Unix())
		select {
		case <-ctx.Done():
			g.log.Info("payreq generator stopping")
			return
		case <-time.After(wait):
		}
		if ctx.Err() != nil {
			return
		}
		// Each wait covers only 0.9 of the time left, so a next wait no
		// longer than this one means the boundary has not been reached yet.
		if g.untilNextWake(time.Now().Unix()) <= wait {
			continue
		}
		g.metrics.Ticks.Inc()
		if err := g.RunOnce(ctx); err != nil {
			g.metrics.Errors.Inc()
			g.log.Error("payreq run failed", "err", err)
		}
	}
}

// untilNextWake computes the sleep duration until the next aligned
// period boundary, using short pre-wake sleeps to avoid busy-waiting
// while converging on it.
func (g *Generator) untilNextWake(now int64) time.Duration {
	period := g.cfg.PayoutPeriodSecs
	if period <= 0 {
		period = 86400
	}
	aligned := (now/period)*period + period/2
	if aligned <= now {
		aligned += period
	}
	remaining := time.Duration(aligned-now) * time.Second
	if remaining <= 0 {
		return 100 * time.Millisecond
	}
	wait := time.Duration(float64(remaining) * 0.9)
	if wait < 100*time.Millisecond {
		wait = 100 * time.Millisecond
	}
	return wait
}

// RunOnce refreshes every snapshot and creates requests for the ones
// that now qualify.
func (g *Generator) RunOnce(ctx context.Context) error {
	var snapshots []*ledger.MinerSnapshot
	err := g.st.WithTx(ctx, func(tx *sql.Tx) error {
		s, err := store.AllMinerSnapshots(ctx, tx)
		snapshots = s
		return err
	})
	if err != nil {
		return fmt.Errorf("list miner snapshots: %w", err)
	}

	var open float64
	for _, ss := range snapshots {
		if err := g.refreshSnapshot(ctx, ss); err != nil {
			g.log.Error("refresh snapshot failed", "miner_id", ss.UserID, "err", err)
			continue
		}
		if err := g.maybeCreateRequest(ctx, ss); err != nil {
			g.log.Error("create request failed", "miner_id", ss.UserID, "err", err)
		}
		if err := g.st.WithTx(ctx, func(tx *sql.Tx) error {
			hasOpen, err := store.HasOpenRequest(ctx, tx, ss.UserID)
			if err == nil && hasOpen {
				open++
			}
			return err
		}); err != nil {
			g.log.Error("count open request failed", "miner_id", ss.UserID, "err", err)
		}
	}
	g.metrics.OpenReqs.Set(open)
	return nil
}

// refreshSnapshot recomputes totals from the live ledgers and persists
// them (plus a historical row) only if something changed.
func (g *Generator) refreshSnapshot(ctx context.Context, ss *ledger.MinerSnapshot) error {
	return g.st.WithTx(ctx, func(tx *sql.Tx) error {
		totCommit, totEstimate, commitLastTime, err := store.MinerWorkTotals(ctx, tx, ss.UserID)
		if err != nil {
			return err
		}
		totPaid, err := store.MinerTotalPaid(ctx, tx, ss.UserID)
		if err != nil {
			return err
		}

		unpaid := totCommit + totEstimate - totPaid
		unpaidCons := totCommit + int64(math.Floor(float64(totEstimate)*ConservativeEstimateRatio)) - totPaid

		if totCommit == ss.TotCommit && totEstimate == ss.TotEstimate && totPaid == ss.TotPaid &&
			unpaid == ss.Unpaid && unpaidCons == ss.UnpaidCons && commitLastTime == ss.CommitLastTime {
			return nil
		}

		ss.TotCommit, ss.TotEstimate, ss.TotPaid = totCommit, totEstimate, totPaid
		ss.Unpaid, ss.UnpaidCons, ss.CommitLastTime = unpaid, unpaidCons, commitLastTime
		ss.Time = time.Now().Unix()

		return store.UpdateMinerSnapshot(ctx, tx, ss)
	})
}

// maybeCreateRequest creates a request for ss's miner if it lacks an
// open one and its conservative unpaid figure clears the threshold.
func (g *Generator) maybeCreateRequest(ctx context.Context, ss *ledger.MinerSnapshot) error {
	granularity := g.cfg.PayoutGranularityMsat
	if granularity <= 0 {
		granularity = 1000
	}
	threshold := ceilToGranularity(g.cfg.PayoutThresholdMsat, granularity)
	maximum := floorToGranularity(g.cfg.PayoutMaximumMsat, granularity)

	if ss.UnpaidCons < threshold {
		return nil
	}

	return g.st.WithTx(ctx, func(tx *sql.Tx) error {
		open, err := store.HasOpenRequest(ctx, tx, ss.UserID)
		if err != nil {
			return err
		}
		if open {
			return nil
		}

		clamped := clamp(ss.UnpaidCons, threshold, maximum)
		toPay := roundToGranularity(clamped, granularity)

		origID := ss.UserS
		method := paymethod.DeterminePaymentMethod(g.overrides, fmt.Sprintf("%d", ss.UserID), origID, g.defaultMethod)
		priID := paymethod.AdjustedPrimaryID(method, origID)

		req := &ledger.PayRequest{
			MinerID:     ss.UserID,
			ReqAmntMsat: toPay,
			PayMethod:   method.Tag(),
			PriID:       priID,
			ReqTime:     time.Now().Unix(),
		}
		id, err := store.InsertPayRequest(ctx, tx, req)
		if err != nil {
			return err
		}
		return store.SetSnapshotPayReqID(ctx, tx, ss.UserID, id)
	})
}

func ceilToGranularity(v, granularity int64) int64 {
	return int64(math.Ceil(float64(v)/float64(granularity))) * granularity
}

func floorToGranularity(v, granularity int64) int64 {
	return int64(math.Floor(float64(v)/float64(granularity))) * granularity
}

func roundToGranularity(v, granularity int64) int64 {
	return int64(math.Round(float64(v)/float64(granularity))) * granularity
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
