package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zappool/paycalc/internal/ledger"
)

// SavePayment upserts a payment row within a single-row transaction. If
// p.ID is 0, a row is inserted and p.ID is set from the insert result.
func SavePayment(ctx context.Context, tx *sql.Tx, p *ledger.Payment) error {
	if p.ID == 0 {
		res, err := tx.ExecContext(ctx, `INSERT INTO PAYMENT
			(ReqId, CreateTime, Status, StatusTime, ErrorCode, ErrorStr, RetryCnt, FailTime,
			 PaidAmnt, PaidFee, PayTime, PayRef, SeconId, TertiId)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ReqID, p.CreateTime, int(p.Status), p.StatusTime, int(p.ErrorCode), p.ErrorStr,
			p.RetryCnt, p.FailTime, p.PaidAmnt, p.PaidFee, p.PayTime, p.PayRef, p.SeconID, p.TertiID)
		if err != nil {
			return fmt.Errorf("insert payment for request %d: %w", p.ReqID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("payment last insert id: %w", err)
		}
		p.ID = id
		return nil
	}
	_, err := tx.ExecContext(ctx, `UPDATE PAYMENT SET
		Status = ?, StatusTime = ?, ErrorCode = ?, ErrorStr = ?, RetryCnt = ?, FailTime = ?,
		PaidAmnt = ?, PaidFee = ?, PayTime = ?, PayRef = ?, SeconId = ?, TertiId = ?
		WHERE Id = ?`,
		int(p.Status), p.StatusTime, int(p.ErrorCode), p.ErrorStr, p.RetryCnt, p.FailTime,
		p.PaidAmnt, p.PaidFee, p.PayTime, p.PayRef, p.SeconID, p.TertiID, p.ID)
	if err != nil {
		return fmt.Errorf("update payment %d: %w", p.ID, err)
	}
	return nil
}

// GetPaymentByReqID returns the payment row for reqID, or nil if none.
func GetPaymentByReqID(ctx context.Context, q querier, reqID int64) (*ledger.Payment, error) {
	row := q.QueryRowContext(ctx, `SELECT
		Id, ReqId, CreateTime, Status, StatusTime, ErrorCode, ErrorStr, RetryCnt, FailTime,
		PaidAmnt, PaidFee, PayTime, PayRef, SeconId, TertiId
		FROM PAYMENT WHERE ReqId = ?`, reqID)
	p := &ledger.Payment{}
	var status, errCode int
	err := row.Scan(&p.ID, &p.ReqID, &p.CreateTime, &status, &p.StatusTime, &errCode, &p.ErrorStr,
		&p.RetryCnt, &p.FailTime, &p.PaidAmnt, &p.PaidFee, &p.PayTime, &p.PayRef, &p.SeconID, &p.TertiID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment for request %d: %w", reqID, err)
	}
	p.Status = ledger.PaymentStatus(status)
	p.ErrorCode = ledger.ErrorCode(errCode)
	return p, nil
}

// PaymentsSince returns payments with StatusTime > cutoff, used for
// payment detection. Also returns the PayRequest's miner id for each,
// and the max status time observed.
type PaymentStatusChange struct {
	MinerID    int64
	StatusTime int64
}

func PaymentsSince(ctx context.Context, q querier, cutoff uint64) ([]PaymentStatusChange, uint64, error) {
	rows, err := q.QueryContext(ctx, `SELECT r.MinerId, p.StatusTime
		FROM PAYMENT p JOIN PAYREQ r ON p.ReqId = r.Id
		WHERE p.StatusTime > ? ORDER BY p.StatusTime ASC`, cutoff)
	if err != nil {
		return nil, cutoff, fmt.Errorf("query payments since %d: %w", cutoff, err)
	}
	defer rows.Close()

	var out []PaymentStatusChange
	maxTime := cutoff
	for rows.Next() {
		var c PaymentStatusChange
		if err := rows.Scan(&c.MinerID, &c.StatusTime); err != nil {
			return nil, cutoff, fmt.Errorf("scan payment status change: %w", err)
		}
		out = append(out, c)
		if uint64(c.StatusTime) > maxTime {
			maxTime = uint64(c.StatusTime)
		}
	}
	return out, maxTime, rows.Err()
}
