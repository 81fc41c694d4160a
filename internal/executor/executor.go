package executor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/zappool/paycalc/internal/ledger"
	"github.com/zappool/paycalc/internal/metrics"
	"github.com/zappool/paycalc/internal/outcome"
	"github.com/zappool/paycalc/internal/paylog"
	"github.com/zappool/paycalc/internal/paymethod"
	"github.com/zappool/paycalc/internal/rails/lnaddress"
	"github.com/zappool/paycalc/internal/rails/lnnode"
	"github.com/zappool/paycalc/internal/rails/nostrprofile"
	"github.com/zappool/paycalc/internal/rails/nostrzap"
	"github.com/zappool/paycalc/internal/store"
)

// TickInterval is the executor's fixed polling cadence.
const TickInterval = 5 * time.Second

// RetryDelay is the minimum time a NonfinalFailure payment waits before
// its next attempt.
const RetryDelay = 600 * time.Second

// MaxRetries is the retry count at which a non-final failure escalates
// to a terminal FinalFailure.
const MaxRetries = 10

// Executor drives open pay requests through the payment state machine.
type Executor struct {
	st          *store.Store
	node        *lnnode.Client
	relays      []string
	nostrSecret []byte // 32-byte secp256k1 key, loaded once at startup
	log         log.Logger
	metrics     *metrics.WorkerMetrics
}

// New builds an Executor. nostrSecret may be nil if no Zap rail
// payments are expected; it is required the first time a ZAP request
// is processed.
func New(st *store.Store, node *lnnode.Client, relays []string, nostrSecret []byte) *Executor {
	return &Executor{
		st: st, node: node, relays: relays, nostrSecret: nostrSecret,
		log:     paylog.For(paylog.Executor),
		metrics: metrics.ForComponent(paylog.Executor),
	}
}

// Run loops until ctx is cancelled, running one tick per interval.
func (e *Executor) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("executor stopping")
			return
		case <-ticker.C:
			e.metrics.Ticks.Inc()
			if err := e.Tick(ctx); err != nil {
				e.metrics.Errors.Inc()
				e.log.Error("tick failed", "err", err)
			}
		}
	}
}

// Tick lists every non-final request/payment pair and processes each
// once.
func (e *Executor) Tick(ctx context.Context) error {
	var pairs []*store.NonFinalPair
	err := e.st.WithTx(ctx, func(tx *sql.Tx) error {
		p, err := store.ListNonFinalPairs(ctx, tx)
		pairs = p
		return err
	})
	if err != nil {
		return fmt.Errorf("list non-final pairs: %w", err)
	}

	for _, pair := range pairs {
		if err := e.processPair(ctx, pair); err != nil {
			e.log.Error("process pair failed", "request_id", pair.Request.ID, "err", err)
		}
	}
	return nil
}

func (e *Executor) processPair(ctx context.Context, pair *store.NonFinalPair) error {
	now := time.Now().Unix()
	payment := pair.Payment

	if payment == nil {
		payment = &ledger.Payment{ReqID: pair.Request.ID, CreateTime: now, Status: ledger.NotTried}
	}

	switch payment.Status {
	case ledger.NotTried:
		payment.Status = ledger.InProgress
		payment.StatusTime = now
	case ledger.NonfinalFailure:
		if now-payment.FailTime < int64(RetryDelay.Seconds()) {
			return nil
		}
		payment.Status = ledger.InProgress
		payment.StatusTime = now
	case ledger.InProgress:
		e.log.Warn("payment already in progress, re-attempting", "request_id", pair.Request.ID)
	case ledger.SuccessFinal, ledger.FinalFailure:
		e.log.Warn("payment already terminal, skipping", "request_id", pair.Request.ID, "status", payment.Status)
		return nil
	}

	if err := e.st.WithTx(ctx, func(tx *sql.Tx) error { return store.SavePayment(ctx, tx, payment) }); err != nil {
		return fmt.Errorf("persist in-progress status: %w", err)
	}

	e.attempt(pair.Request, payment)

	if err := e.st.WithTx(ctx, func(tx *sql.Tx) error { return store.SavePayment(ctx, tx, payment) }); err != nil {
		return fmt.Errorf("persist final status: %w", err)
	}
	return nil
}

// attempt dispatches to the rail for the request's payment method and
// resolves payment's next state according to the state machine.
func (e *Executor) attempt(req *ledger.PayRequest, payment *ledger.Payment) {
	now := time.Now().Unix()
	method, ok := paymethod.ParseTag(req.PayMethod)
	if !ok {
		e.fail(payment, ledger.ErrGenericFinalFailure, fmt.Sprintf("unknown payment method tag %q", req.PayMethod), now, true)
		return
	}

	amountMsat := uint64(req.ReqAmntMsat)
	inv := e.resolveInvoice(method, req.PriID, amountMsat)
	if !inv.IsSuccess() {
		e.fail(payment, inv.Code(), inv.Reason(), now, inv.IsFinal())
		return
	}

	result := inv.Value()
	payment.SeconID = result.SecondID
	payment.TertiID = result.TertiID

	payResult := lnnode.Pay(e.node, result.Invoice, req.PriID)
	if !payResult.IsSuccess() {
		e.fail(payment, payResult.Code(), payResult.Reason(), now, payResult.IsFinal())
		return
	}

	pr := payResult.Value()
	payment.Status = ledger.SuccessFinal
	payment.StatusTime = now
	payment.PaidAmnt = pr.PaidAmountMsat
	payment.PaidFee = pr.PaidFeeMsat
	payment.PayTime = now
	payment.PayRef = pr.PayRef
}

// fail applies a non-success outcome to payment, escalating to
// FinalFailure once retry_cnt reaches MaxRetries or the rail reported a
// final (non-retryable) error.
func (e *Executor) fail(payment *ledger.Payment, code ledger.ErrorCode, reason string, now int64, final bool) {
	payment.ErrorCode = code
	payment.ErrorStr = reason
	payment.RetryCnt++
	payment.FailTime = now
	payment.StatusTime = now

	if final || payment.RetryCnt >= MaxRetries {
		payment.Status = ledger.FinalFailure
		return
	}
	payment.Status = ledger.NonfinalFailure
}

// invoiceResult carries the resolved invoice plus the rail-specific
// secondary/tertiary identifiers recorded on the payment.
type invoiceResult struct {
	Invoice  string
	SecondID string
	TertiID  string
}

// resolveInvoice dispatches to the rail matching method and returns an
// invoice ready to hand to the node, or a classified failure.
func (e *Executor) resolveInvoice(method paymethod.Method, priID string, amountMsat uint64) outcome.Outcome[invoiceResult] {
	switch method {
	case paymethod.LnAddress:
		out := lnaddress.GetInvoice(priID, amountMsat)
		if !out.IsSuccess() {
			return outcome.Rewrap[string, invoiceResult](out)
		}
		return outcome.Success(invoiceResult{Invoice: out.Value(), TertiID: out.Value()})

	case paymethod.NostrLightning:
		addr, err := nostrprofile.ResolveLnAddress(priID)
		if err != nil {
			return outcome.NonFinal[invoiceResult](ledger.ErrNostrLnAddressNonfinalFailure, err.Error())
		}
		out := lnaddress.GetInvoice(addr, amountMsat)
		if !out.IsSuccess() {
			return outcome.Rewrap[string, invoiceResult](out)
		}
		return outcome.Success(invoiceResult{Invoice: out.Value(), SecondID: addr, TertiID: out.Value()})

	case paymethod.NostrZap:
		if len(e.nostrSecret) != 32 {
			return outcome.Final[invoiceResult](ledger.ErrGenericFinalFailure, "nostr signing key not loaded")
		}
		out := nostrzap.Zap(e.nostrSecret, priID, amountMsat, e.relays)
		if !out.IsSuccess() {
			return outcome.Rewrap[nostrzap.ZapResult, invoiceResult](out)
		}
		zr := out.Value()
		return outcome.Success(invoiceResult{Invoice: zr.Invoice, SecondID: zr.LnAddress, TertiID: zr.Invoice})

	default:
		return outcome.Final[invoiceResult](ledger.ErrGenericFinalFailure, fmt.Sprintf("unhandled payment method %v", method))
	}
}
