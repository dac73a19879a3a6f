package payment

import (
	"time"

	"github.com/acctportal/billingcore/internal/types"
)

// Payment is one append-only ledger row. Charges carry a positive amount,
// refunds a negative one.
type Payment struct {
	ID              string                `db:"id" json:"id" dynamodbav:"id"`
	OrderID         string                `db:"order_id" json:"order_id" dynamodbav:"order_id"`
	OrderName       string                `db:"order_name" json:"order_name" dynamodbav:"order_name"`
	PaymentKey      string                `db:"payment_key" json:"payment_key" dynamodbav:"payment_key"`
	Amount          int64                 `db:"amount" json:"amount" dynamodbav:"amount"`
	Currency        string                `db:"currency" json:"currency" dynamodbav:"currency"`
	TransactionType types.TransactionType `db:"transaction_type" json:"transaction_type" dynamodbav:"transaction_type"`
	Type            types.PaymentType     `db:"type" json:"type" dynamodbav:"type"`
	Status          types.PaymentStatus   `db:"status" json:"status" dynamodbav:"status"`
	Plan            types.Plan            `db:"plan" json:"plan,omitempty" dynamodbav:"plan"`

	// OriginalPaymentID links a refund to the charge it was taken from
	OriginalPaymentID string `db:"original_payment_id" json:"original_payment_id,omitempty" dynamodbav:"original_payment_id"`
	// RefundedAmount is the running total refunded against this charge
	RefundedAmount int64  `db:"refunded_amount" json:"refunded_amount" dynamodbav:"refunded_amount"`
	IdempotencyKey string `db:"idempotency_key" json:"idempotency_key,omitempty" dynamodbav:"idempotency_key"`

	Method         string         `db:"method" json:"method,omitempty" dynamodbav:"method"`
	ReceiptURL     string         `db:"receipt_url" json:"receipt_url,omitempty" dynamodbav:"receipt_url"`
	CardInfo       types.CardInfo `db:"card_info" json:"card_info" dynamodbav:"card_info"`
	FailureCode    string         `db:"failure_code" json:"failure_code,omitempty" dynamodbav:"failure_code"`
	FailureMessage string         `db:"failure_message" json:"failure_message,omitempty" dynamodbav:"failure_message"`
	ApprovedAt     *time.Time     `db:"approved_at" json:"approved_at,omitempty" dynamodbav:"approved_at,omitempty"`

	types.BaseModel
}

// IsRefundableCharge reports whether the row can be the source of a refund
func (p *Payment) IsRefundableCharge() bool {
	return p.TransactionType == types.TransactionTypeCharge &&
		p.Status == types.PaymentStatusDone &&
		p.PaymentKey != "" &&
		p.RefundableAmount() > 0
}

// RefundableAmount is what the ledger still considers refundable
func (p *Payment) RefundableAmount() int64 {
	remaining := p.Amount - p.RefundedAmount
	if remaining < 0 {
		return 0
	}
	return remaining
}
