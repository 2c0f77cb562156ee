package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/cinema-seat-availability/internal/model"
)

// TransactionRepo stores the accounting record behind each payment.
type TransactionRepo struct {
	db *sql.DB
}

// NewTransactionRepo constructs a TransactionRepo.
func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

// CreateTx inserts a transaction and writes its ID back to t.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
	const q = `INSERT INTO transactions (user_id, payment_id, total_amount, payment_method, status, transaction_time)
               VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, nullableUint64(t.UserID), t.PaymentID, t.TotalAmount,
		string(t.PaymentMethod), string(t.Status), t.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// ByPaymentIDTx locks the transaction linked to a payment.
func (r *TransactionRepo) ByPaymentIDTx(ctx context.Context, tx *sql.Tx, paymentID uint64) (model.Transaction, error) {
	const q = `SELECT transaction_id, user_id, payment_id, total_amount, payment_method, status, payment_ref_code, transaction_time
               FROM transactions WHERE payment_id = ? FOR UPDATE`
	var (
		t              model.Transaction
		userID         sql.NullInt64
		method, status string
		ref            sql.NullString
	)
	err := tx.QueryRowContext(ctx, q, paymentID).Scan(&t.ID, &userID, &t.PaymentID, &t.TotalAmount, &method, &status, &ref, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return model.Transaction{}, ErrTransactionNotFound
	}
	if err != nil {
		return model.Transaction{}, err
	}
	t.UserID = uint64Ptr(userID)
	t.PaymentMethod = model.PaymentMethod(method)
	t.Status = model.TransactionStatus(status)
	t.PaymentRefCode = ref.String
	return t, nil
}

// UpdateStatusTx sets the transaction status and, if given, the gateway
// reference code.
func (r *TransactionRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.TransactionStatus, refCode string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE transactions SET status = ?, payment_ref_code = COALESCE(?, payment_ref_code) WHERE transaction_id = ?`,
		string(status), nullString(refCode), id)
	return err
}
