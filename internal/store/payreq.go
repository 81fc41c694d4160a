package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zappool/paycalc/internal/ledger"
)

// HasOpenRequest reports whether a miner already has a non-final pay
// request (no payment row, or a payment whose status isn't terminal).
// Re-read inside the generator's transaction so uniqueness is enforced
// against the latest committed state.
func HasOpenRequest(ctx context.Context, tx *sql.Tx, minerID int64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM PAYREQ r
		WHERE r.MinerId = ? AND NOT EXISTS (
			SELECT 1 FROM PAYMENT p WHERE p.ReqId = r.Id AND p.Status IN (?, ?)
		)`, minerID, int(ledger.SuccessFinal), int(ledger.FinalFailure)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check open request for miner %d: %w", minerID, err)
	}
	return n > 0, nil
}

// InsertPayRequest creates a new pay request row.
func InsertPayRequest(ctx context.Context, tx *sql.Tx, r *ledger.PayRequest) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO PAYREQ
		(MinerId, ReqAmnt, PayMethod, PriId, ReqTime) VALUES (?, ?, ?, ?, ?)`,
		r.MinerID, r.ReqAmntMsat, r.PayMethod, r.PriID, r.ReqTime)
	if err != nil {
		return 0, fmt.Errorf("insert pay request for miner %d: %w", r.MinerID, err)
	}
	return res.LastInsertId()
}

// NonFinalPair is one open request paired with its payment row, if any.
type NonFinalPair struct {
	Request *ledger.PayRequest
	Payment *ledger.Payment // nil if no payment row exists yet
}

// ListNonFinalPairs lists every request without a terminal payment,
// ordered by request time ascending.
func ListNonFinalPairs(ctx context.Context, q querier) ([]*NonFinalPair, error) {
	rows, err := q.QueryContext(ctx, `SELECT
		r.Id, r.MinerId, r.ReqAmnt, r.PayMethod, r.PriId, r.ReqTime,
		p.Id, p.ReqId, p.CreateTime, p.Status, p.StatusTime, p.ErrorCode, p.ErrorStr,
		p.RetryCnt, p.FailTime, p.PaidAmnt, p.PaidFee, p.PayTime, p.PayRef, p.SeconId, p.TertiId
		FROM PAYREQ r
		LEFT JOIN PAYMENT p ON p.ReqId = r.Id
		WHERE p.Id IS NULL OR p.Status NOT IN (?, ?)
		ORDER BY r.ReqTime ASC`, int(ledger.SuccessFinal), int(ledger.FinalFailure))
	if err != nil {
		return nil, fmt.Errorf("list non-final pairs: %w", err)
	}
	defer rows.Close()

	var out []*NonFinalPair
	for rows.Next() {
		r := &ledger.PayRequest{}
		var (
			pID, pReqID, pCreate, pStatus, pStatusTime, pErrCode                      sql.NullInt64
			pErrStr, pPayRef, pSeconID, pTertiID                                      sql.NullString
			pRetry, pFail, pPaidAmnt, pPaidFee, pPayTime                              sql.NullInt64
		)
		if err := rows.Scan(
			&r.ID, &r.MinerID, &r.ReqAmntMsat, &r.PayMethod, &r.PriID, &r.ReqTime,
			&pID, &pReqID, &pCreate, &pStatus, &pStatusTime, &pErrCode, &pErrStr,
			&pRetry, &pFail, &pPaidAmnt, &pPaidFee, &pPayTime, &pPayRef, &pSeconID, &pTertiID,
		); err != nil {
			return nil, fmt.Errorf("scan non-final pair: %w", err)
		}
		pair := &NonFinalPair{Request: r}
		if pID.Valid {
			pair.Payment = &ledger.Payment{
				ID:         pID.Int64,
				ReqID:      pReqID.Int64,
				CreateTime: pCreate.Int64,
				Status:     ledger.PaymentStatus(pStatus.Int64),
				StatusTime: pStatusTime.Int64,
				ErrorCode:  ledger.ErrorCode(pErrCode.Int64),
				ErrorStr:   pErrStr.String,
				RetryCnt:   int(pRetry.Int64),
				FailTime:   pFail.Int64,
				PaidAmnt:   pPaidAmnt.Int64,
				PaidFee:    pPaidFee.Int64,
				PayTime:    pPayTime.Int64,
				PayRef:     pPayRef.String,
				SeconID:    pSeconID.String,
				TertiID:    pTertiID.String,
			}
		}
		out = append(out, pair)
	}
	return out, rows.Err()
}
