package gateway

import (
	"context"
	"time"

	"github.com/acctportal/billingcore/internal/types"
)

// Gateway is the payment gateway the billing core moves money through.
// Errors are *ierr.GatewayError values marked ErrGateway.
type Gateway interface {
	// Charge bills a stored billing key. OrderID doubles as the gateway side
	// idempotency key: charging the same order twice returns the first result.
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
	// Refund cancels part or all of a captured payment
	Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error)
	// GetPayment reports what the gateway still holds for a payment
	GetPayment(ctx context.Context, paymentKey string) (*PaymentDetails, error)
	// IssueBillingKey exchanges a one time card authorization for a reusable billing key
	IssueBillingKey(ctx context.Context, req *IssueBillingKeyRequest) (*BillingKeyResult, error)
}

type ChargeRequest struct {
	BillingKey    string
	CustomerKey   string
	Amount        int64
	Currency      string
	OrderID       string
	OrderName     string
	CustomerEmail string
	CustomerName  string
}

type ChargeResult struct {
	PaymentKey  string
	OrderID     string
	Status      types.PaymentStatus
	Method      string
	TotalAmount int64
	CardInfo    types.CardInfo
	ReceiptURL  string
	ApprovedAt  time.Time
}

type RefundRequest struct {
	PaymentKey string
	Reason     string
	Amount     int64
	// IdempotencyKey lets a retried refund return the first result
	IdempotencyKey string
}

type RefundResult struct {
	PaymentKey     string
	Status         types.PaymentStatus
	CanceledAmount int64
	ReceiptURL     string
}

type Cancel struct {
	Amount     int64
	Reason     string
	CanceledAt time.Time
}

type PaymentDetails struct {
	PaymentKey  string
	TotalAmount int64
	Cancels     []Cancel
}

// RemainingAmount is what can still be refunded at the gateway
func (p *PaymentDetails) RemainingAmount() int64 {
	remaining := p.TotalAmount
	for _, c := range p.Cancels {
		remaining -= c.Amount
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

type IssueBillingKeyRequest struct {
	AuthKey     string
	CustomerKey string
}

type BillingKeyResult struct {
	BillingKey  string
	CustomerKey string
	CardInfo    types.CardInfo
}
