package gateway

import (
	"context"
	"time"

	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/metrics"
	"github.com/acctportal/billingcore/internal/sentry"
)

// instrumented bounds every call by the configured timeout and records
// metrics and a Sentry span per call
type instrumented struct {
	next    Gateway
	timeout time.Duration
	sentry  *sentry.Service
	logger  *logger.Logger
}

// Instrument wraps a Gateway with per call timeouts, metrics and tracing
func Instrument(next Gateway, timeout time.Duration, sentry *sentry.Service, logger *logger.Logger) Gateway {
	return &instrumented{next: next, timeout: timeout, sentry: sentry, logger: logger}
}

func (g *instrumented) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	return call(g, ctx, "charge", map[string]interface{}{"order_id": req.OrderID, "amount": req.Amount},
		func(ctx context.Context) (*ChargeResult, error) { return g.next.Charge(ctx, req) })
}

func (g *instrumented) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	return call(g, ctx, "refund", map[string]interface{}{"payment_key": req.PaymentKey, "amount": req.Amount},
		func(ctx context.Context) (*RefundResult, error) { return g.next.Refund(ctx, req) })
}

func (g *instrumented) GetPayment(ctx context.Context, paymentKey string) (*PaymentDetails, error) {
	return call(g, ctx, "get_payment", map[string]interface{}{"payment_key": paymentKey},
		func(ctx context.Context) (*PaymentDetails, error) { return g.next.GetPayment(ctx, paymentKey) })
}

func (g *instrumented) IssueBillingKey(ctx context.Context, req *IssueBillingKeyRequest) (*BillingKeyResult, error) {
	return call(g, ctx, "issue_billing_key", nil,
		func(ctx context.Context) (*BillingKeyResult, error) { return g.next.IssueBillingKey(ctx, req) })
}

func call[T any](g *instrumented, ctx context.Context, op string, data map[string]interface{}, fn func(context.Context) (T, error)) (T, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	span, ctx := g.sentry.StartGatewaySpan(ctx, op, data)
	start := time.Now()
	result, err := fn(ctx)
	elapsed := time.Since(start)
	if span != nil {
		span.Finish()
	}

	if err != nil && !ierr.IsGateway(err) {
		// implementations should already return gateway errors; make sure
		// a deadline still surfaces as a retryable timeout
		err = ierr.NewGatewayError(&ierr.GatewayError{
			Op:      op,
			Timeout: ierr.Is(ctx.Err(), context.DeadlineExceeded),
			Err:     err,
		})
	}

	metrics.GatewayDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	metrics.GatewayCallsTotal.WithLabelValues(op, metrics.Outcome(err)).Inc()
	g.logger.Debugw("gateway call finished",
		"operation", op,
		"duration_ms", elapsed.Milliseconds(),
		"error", err,
	)
	return result, err
}
