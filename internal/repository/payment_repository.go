package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/cinema-seat-availability/internal/model"
)

// PaymentRepo stores payments and their method-specific payloads.  The
// generic fields live in payments; VNPay fields live in vnpay_payments
// keyed by the same payment_id.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo constructs a PaymentRepo.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// CreateTx inserts the payment and, for VNPay, its payload row.  The
// generated ID is written back to p.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	const q = `INSERT INTO payments (order_id, user_id, amount, payment_method, payment_status, order_desc, client_ip)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, p.OrderID, nullableUint64(p.UserID), p.Amount, string(p.Method),
		string(p.Status), nullString(p.OrderDesc), nullString(p.ClientIP))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	if p.Method == model.MethodVNPay && p.VNPay != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vnpay_payments (payment_id, vnp_txn_ref) VALUES (?, ?)`,
			p.ID, p.VNPay.TxnRef); err != nil {
			return err
		}
	}
	return nil
}

const paymentSelect = `SELECT p.payment_id, p.order_id, p.user_id, p.amount, p.payment_method, p.payment_status,
       p.order_desc, p.transaction_id, p.created_at,
       v.vnp_txn_ref, v.vnp_transaction_no, v.vnp_bank_code, v.vnp_card_type, v.vnp_pay_date, v.vnp_response_code
FROM payments p
LEFT JOIN vnpay_payments v ON v.payment_id = p.payment_id
WHERE p.order_id = ?`

// GetByOrderID returns the payment correlated with an order id, or
// ErrPaymentNotFound.
func (r *PaymentRepo) GetByOrderID(ctx context.Context, orderID string) (model.Payment, error) {
	return paymentByOrderID(ctx, r.db, orderID, "")
}

// GetByOrderIDTx locks the payment row for the rest of the transaction.
func (r *PaymentRepo) GetByOrderIDTx(ctx context.Context, tx *sql.Tx, orderID string) (model.Payment, error) {
	return paymentByOrderID(ctx, tx, orderID, " FOR UPDATE")
}

func paymentByOrderID(ctx context.Context, q queryer, orderID, suffix string) (model.Payment, error) {
	var (
		p                                        model.Payment
		userID                                   sql.NullInt64
		method, status                           string
		desc, txnID                              sql.NullString
		ref, txnNo, bank, card, payDate, rspCode sql.NullString
	)
	err := q.QueryRowContext(ctx, paymentSelect+suffix, orderID).Scan(
		&p.ID, &p.OrderID, &userID, &p.Amount, &method, &status, &desc, &txnID, &p.CreatedAt,
		&ref, &txnNo, &bank, &card, &payDate, &rspCode,
	)
	if err == sql.ErrNoRows {
		return model.Payment{}, ErrPaymentNotFound
	}
	if err != nil {
		return model.Payment{}, err
	}
	p.UserID = uint64Ptr(userID)
	p.Method = model.PaymentMethod(method)
	p.Status = model.PaymentStatus(status)
	p.OrderDesc = desc.String
	p.TransactionID = txnID.String
	if ref.Valid {
		p.VNPay = &model.VNPayDetails{
			TxnRef:        ref.String,
			TransactionNo: txnNo.String,
			BankCode:      bank.String,
			CardType:      card.String,
			PayDate:       payDate.String,
			ResponseCode:  rspCode.String,
		}
	}
	return p, nil
}

// RecordResultTx stores the collaborator's verdict on the payment and,
// when present, the VNPay payload that came with it.
func (r *PaymentRepo) RecordResultTx(ctx context.Context, tx *sql.Tx, paymentID uint64, status model.PaymentStatus, transactionNo string, vnp *model.VNPayDetails) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE payments SET payment_status = ?, transaction_id = COALESCE(?, transaction_id) WHERE payment_id = ?`,
		string(status), nullString(transactionNo), paymentID); err != nil {
		return err
	}
	if vnp == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE vnpay_payments
         SET vnp_transaction_no = ?, vnp_bank_code = ?, vnp_card_type = ?, vnp_pay_date = ?, vnp_response_code = ?
         WHERE payment_id = ?`,
		nullString(vnp.TransactionNo), nullString(vnp.BankCode), nullString(vnp.CardType),
		nullString(vnp.PayDate), nullString(vnp.ResponseCode), paymentID)
	return err
}

// maxReconciliationNote is the width of payments.reconciliation_note.
const maxReconciliationNote = 255

// FlagReconciliation marks a payment whose money was taken but whose
// booking could not be completed.  It runs outside any transaction so the
// mark survives the rollback that caused it.
func (r *PaymentRepo) FlagReconciliation(ctx context.Context, paymentID uint64, note string) error {
	if len(note) > maxReconciliationNote {
		note = note[:maxReconciliationNote]
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET needs_reconciliation = 1, reconciliation_note = ? WHERE payment_id = ?`,
		note, paymentID)
	return err
}

// ReconciliationItem is one flagged payment.
type ReconciliationItem struct {
	PaymentID uint64              `json:"payment_id"`
	OrderID   string              `json:"order_id"`
	Amount    int64               `json:"amount"`
	Status    model.PaymentStatus `json:"payment_status"`
	Note      string              `json:"note"`
	FlaggedAt time.Time           `json:"flagged_at"`
}

// PendingReconciliation lists flagged payments, oldest first.
func (r *PaymentRepo) PendingReconciliation(ctx context.Context, limit int) ([]ReconciliationItem, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT payment_id, order_id, amount, payment_status, reconciliation_note, updated_at
               FROM payments WHERE needs_reconciliation = 1
               ORDER BY updated_at LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ReconciliationItem{}
	for rows.Next() {
		var (
			it     ReconciliationItem
			status string
			note   sql.NullString
		)
		if err := rows.Scan(&it.PaymentID, &it.OrderID, &it.Amount, &status, &note, &it.FlaggedAt); err != nil {
			return nil, err
		}
		it.Status = model.PaymentStatus(status)
		it.Note = note.String
		out = append(out, it)
	}
	return out, rows.Err()
}
