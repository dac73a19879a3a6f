package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/gateway"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/samber/lo"
)

var _ gateway.Gateway = (*MockGateway)(nil)

// MockGateway is an in-memory payment gateway. Like the real one it treats
// the order id as an idempotency key and tracks partial cancels per payment.
// Set the *Err fields to script failures.
type MockGateway struct {
	mu       sync.Mutex
	payments map[string]*gateway.PaymentDetails
	orders   map[string]*gateway.ChargeResult
	calls    map[string]int
	seq      int

	ChargeErr     error
	RefundErr     error
	GetPaymentErr error
	IssueErr      error

	Charges []*gateway.ChargeRequest
	Refunds []*gateway.RefundRequest
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		payments: make(map[string]*gateway.PaymentDetails),
		orders:   make(map[string]*gateway.ChargeResult),
		calls:    make(map[string]int),
	}
}

func (g *MockGateway) Charge(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls["charge"]++
	if g.ChargeErr != nil {
		return nil, g.ChargeErr
	}
	if res, ok := g.orders[req.OrderID]; ok {
		return res, nil
	}

	g.Charges = append(g.Charges, req)
	g.seq++
	res := &gateway.ChargeResult{
		PaymentKey:  fmt.Sprintf("tpk_%04d", g.seq),
		OrderID:     req.OrderID,
		Status:      types.PaymentStatusDone,
		Method:      "card",
		TotalAmount: req.Amount,
		CardInfo:    types.CardInfo{Number: "4330****1234", Company: "Hyundai", CardType: "credit"},
		ReceiptURL:  fmt.Sprintf("https://receipts.example.com/%d", g.seq),
		ApprovedAt:  time.Now(),
	}
	g.orders[req.OrderID] = res
	g.payments[res.PaymentKey] = &gateway.PaymentDetails{PaymentKey: res.PaymentKey, TotalAmount: req.Amount}
	return res, nil
}

func (g *MockGateway) Refund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls["refund"]++
	if g.RefundErr != nil {
		return nil, g.RefundErr
	}

	details, ok := g.payments[req.PaymentKey]
	if !ok {
		return nil, ierr.NewGatewayError(&ierr.GatewayError{
			Op:         "refund",
			Code:       "NOT_FOUND_PAYMENT",
			StatusCode: http.StatusNotFound,
		})
	}
	if req.Amount > details.RemainingAmount() {
		return nil, ierr.NewGatewayError(&ierr.GatewayError{
			Op:         "refund",
			Code:       "EXCEED_CANCEL_AMOUNT",
			StatusCode: http.StatusBadRequest,
		})
	}

	g.Refunds = append(g.Refunds, req)
	details.Cancels = append(details.Cancels, gateway.Cancel{
		Amount:     req.Amount,
		Reason:     req.Reason,
		CanceledAt: time.Now(),
	})
	return &gateway.RefundResult{
		PaymentKey:     req.PaymentKey,
		Status:         types.PaymentStatusDone,
		CanceledAmount: req.Amount,
		ReceiptURL:     "https://receipts.example.com/refund/" + req.PaymentKey,
	}, nil
}

func (g *MockGateway) GetPayment(ctx context.Context, paymentKey string) (*gateway.PaymentDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls["get_payment"]++
	if g.GetPaymentErr != nil {
		return nil, g.GetPaymentErr
	}
	details, ok := g.payments[paymentKey]
	if !ok {
		return nil, ierr.NewGatewayError(&ierr.GatewayError{
			Op:         "get_payment",
			Code:       "NOT_FOUND_PAYMENT",
			StatusCode: http.StatusNotFound,
		})
	}
	copied := *details
	copied.Cancels = append([]gateway.Cancel(nil), details.Cancels...)
	return &copied, nil
}

// IssueBillingKey derives the billing key and masked number from the auth
// key, so the same auth key always yields the same card
func (g *MockGateway) IssueBillingKey(ctx context.Context, req *gateway.IssueBillingKeyRequest) (*gateway.BillingKeyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls["issue_billing_key"]++
	if g.IssueErr != nil {
		return nil, g.IssueErr
	}
	return &gateway.BillingKeyResult{
		BillingKey:  "bk_" + req.AuthKey,
		CustomerKey: "cus_" + req.CustomerKey,
		CardInfo:    types.CardInfo{Number: "5365****" + req.AuthKey, Company: "Shinhan", CardType: "credit"},
	}, nil
}

// SeedPayment registers a captured payment as if it had been charged earlier
func (g *MockGateway) SeedPayment(paymentKey string, total int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[paymentKey] = &gateway.PaymentDetails{PaymentKey: paymentKey, TotalAmount: total}
}

// CancelOutside records a cancel made directly at the gateway, bypassing the ledger
func (g *MockGateway) CancelOutside(paymentKey string, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if details, ok := g.payments[paymentKey]; ok {
		details.Cancels = append(details.Cancels, gateway.Cancel{Amount: amount, Reason: "manual", CanceledAt: time.Now()})
	}
}

// Calls returns how often op was invoked
func (g *MockGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// TotalCalls returns the number of calls across all operations
func (g *MockGateway) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return lo.Sum(lo.Values(g.calls))
}
