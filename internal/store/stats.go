package store

import (
	"context"
	"fmt"

	"github.com/zappool/paycalc/internal/ledger"
)

// BlockStats summarizes the local block ledger for the stats CLI.
type BlockStats struct {
	Count          int64
	TotalEarnSats  int64
	TotalFeeSats   int64
	ProcessedCount int64
}

// ComputeBlockStats aggregates PC_BLOCK.
func ComputeBlockStats(ctx context.Context, q querier) (BlockStats, error) {
	var s BlockStats
	row := q.QueryRowContext(ctx, `SELECT count(*), COALESCE(SUM(Earning),0), COALESCE(SUM(PoolFee),0),
		COALESCE(SUM(CASE WHEN AccTotalDiff > 0 THEN 1 ELSE 0 END),0) FROM PC_BLOCK`)
	if err := row.Scan(&s.Count, &s.TotalEarnSats, &s.TotalFeeSats, &s.ProcessedCount); err != nil {
		return BlockStats{}, fmt.Errorf("compute block stats: %w", err)
	}
	return s, nil
}

// PayTotalStats summarizes the payment table by terminal status, for the
// stats CLI's "print_pay_total_stats" equivalent.
type PayTotalStats struct {
	SuccessCount     int64
	SuccessAmntMsat  int64
	FinalFailCount   int64
	NonFinalCount    int64
	InProgressCount  int64
}

// ComputePayTotalStats aggregates PAYMENT by status.
func ComputePayTotalStats(ctx context.Context, q querier) (PayTotalStats, error) {
	var s PayTotalStats
	row := q.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN Status = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN Status = ? THEN PaidAmnt ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN Status = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN Status = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN Status = ? THEN 1 ELSE 0 END), 0)
		FROM PAYMENT`,
		int(ledger.SuccessFinal), int(ledger.SuccessFinal), int(ledger.FinalFailure),
		int(ledger.NonfinalFailure), int(ledger.InProgress))
	if err := row.Scan(&s.SuccessCount, &s.SuccessAmntMsat, &s.FinalFailCount, &s.NonFinalCount, &s.InProgressCount); err != nil {
		return PayTotalStats{}, fmt.Errorf("compute pay total stats: %w", err)
	}
	return s, nil
}

// PayRequestRow is one row for the "print_pay_requests" listing: the
// request joined with its payment status, if any.
type PayRequestRow struct {
	ReqID      int64
	MinerS     string
	ReqAmnt    int64
	PayMethod  string
	Status     string // "no payment yet" if no payment row exists
	ReqTime    int64
}

// ListPayRequests lists every pay request joined with its miner's
// display string and payment status, most recent first.
func ListPayRequests(ctx context.Context, q querier) ([]PayRequestRow, error) {
	rows, err := q.QueryContext(ctx, `SELECT r.Id, u.String, r.ReqAmnt, r.PayMethod, p.Status, r.ReqTime
		FROM PAYREQ r
		JOIN USERLOOKUP u ON u.Id = r.MinerId
		LEFT JOIN PAYMENT p ON p.ReqId = r.Id
		ORDER BY r.ReqTime DESC`)
	if err != nil {
		return nil, fmt.Errorf("list pay requests: %w", err)
	}
	defer rows.Close()

	var out []PayRequestRow
	for rows.Next() {
		var row PayRequestRow
		var status *int
		if err := rows.Scan(&row.ReqID, &row.MinerS, &row.ReqAmnt, &row.PayMethod, &status, &row.ReqTime); err != nil {
			return nil, fmt.Errorf("scan pay request row: %w", err)
		}
		if status == nil {
			row.Status = "no payment yet"
		} else {
			row.Status = paymentStatusName(*status)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func paymentStatusName(v int) string {
	return ledger.PaymentStatus(v).String()
}
