package model

import "time"

// PaymentMethod tags which gateway a payment goes through.
type PaymentMethod string

const (
	MethodVNPay        PaymentMethod = "VNPAY"
	MethodCash         PaymentMethod = "CASH"
	MethodMomo         PaymentMethod = "MOMO"
	MethodZaloPay      PaymentMethod = "ZALO_PAY"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// Valid reports whether m is a supported method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodVNPay, MethodCash, MethodMomo, MethodZaloPay, MethodBankTransfer:
		return true
	}
	return false
}

// PaymentStatus is the state reported by the payment collaborator.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSuccess   PaymentStatus = "SUCCESS"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// Payment holds the gateway-independent fields of a payment.  Method tags
// which payload, if any, is attached: VNPay is set only when Method is
// MethodVNPay.
type Payment struct {
	ID            uint64        `json:"payment_id"`
	OrderID       string        `json:"order_id"`
	UserID        *uint64       `json:"user_id"`
	Amount        int64         `json:"amount"`
	Method        PaymentMethod `json:"payment_method"`
	Status        PaymentStatus `json:"payment_status"`
	OrderDesc     string        `json:"order_desc,omitempty"`
	ClientIP      string        `json:"-"`
	TransactionID string        `json:"transaction_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`

	VNPay *VNPayDetails `json:"vnpay,omitempty"`
}

// VNPayDetails is the method-specific payload of a VNPay payment.
type VNPayDetails struct {
	TxnRef        string `json:"vnp_txn_ref"`
	TransactionNo string `json:"vnp_transaction_no,omitempty"`
	BankCode      string `json:"vnp_bank_code,omitempty"`
	CardType      string `json:"vnp_card_type,omitempty"`
	PayDate       string `json:"vnp_pay_date,omitempty"`
	ResponseCode  string `json:"vnp_response_code,omitempty"`
}

// PaymentResult is the outcome reported by the payment collaborator for
// one order.
type PaymentResult struct {
	OrderID       string
	Success       bool
	TransactionNo string
	VNPay         *VNPayDetails
}
