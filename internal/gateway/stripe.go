package gateway

import (
	"context"
	"strings"
	"time"

	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/stripe/stripe-go/v82"
)

// StripeGateway maps the billing key flow onto Stripe: a billing key is a
// saved PaymentMethod, the customer key a Stripe customer, and the auth key
// of IssueBillingKey a confirmed SetupIntent.
type StripeGateway struct {
	client *stripe.Client
	logger *logger.Logger
}

func NewStripeGateway(secretKey string, logger *logger.Logger) *StripeGateway {
	return &StripeGateway{
		client: stripe.NewClient(secretKey, nil),
		logger: logger,
	}
}

func (g *StripeGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Customer:      stripe.String(req.CustomerKey),
		PaymentMethod: stripe.String(req.BillingKey),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(req.OrderName),
		Metadata: map[string]string{
			"order_id": req.OrderID,
		},
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	params.SetIdempotencyKey(req.OrderID)
	params.AddExpand("payment_method")
	params.AddExpand("latest_charge")

	pi, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, g.translate(ctx, "charge", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, ierr.NewGatewayError(&ierr.GatewayError{
			Op:      "charge",
			Code:    string(pi.Status),
			Message: "payment intent did not succeed",
		})
	}

	result := &ChargeResult{
		PaymentKey:  pi.ID,
		OrderID:     req.OrderID,
		Status:      types.PaymentStatusDone,
		Method:      "card",
		TotalAmount: pi.Amount,
		CardInfo:    cardInfo(pi.PaymentMethod),
		ApprovedAt:  time.Unix(pi.Created, 0).UTC(),
	}
	if pi.LatestCharge != nil {
		result.ReceiptURL = pi.LatestCharge.ReceiptURL
	}
	return result, nil
}

func (g *StripeGateway) Refund(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(req.PaymentKey),
		Amount:        stripe.Int64(req.Amount),
		Metadata: map[string]string{
			"reason": req.Reason,
		},
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	refund, err := g.client.V1Refunds.Create(ctx, params)
	if err != nil {
		return nil, g.translate(ctx, "refund", err)
	}

	status := types.PaymentStatusDone
	if refund.Status == stripe.RefundStatusFailed || refund.Status == stripe.RefundStatusCanceled {
		status = types.PaymentStatusFailed
	}
	return &RefundResult{
		PaymentKey:     req.PaymentKey,
		Status:         status,
		CanceledAmount: refund.Amount,
	}, nil
}

func (g *StripeGateway) GetPayment(ctx context.Context, paymentKey string) (*PaymentDetails, error) {
	params := &stripe.PaymentIntentRetrieveParams{}
	params.AddExpand("latest_charge")

	pi, err := g.client.V1PaymentIntents.Retrieve(ctx, paymentKey, params)
	if err != nil {
		return nil, g.translate(ctx, "get_payment", err)
	}

	details := &PaymentDetails{PaymentKey: pi.ID, TotalAmount: pi.Amount}
	if pi.LatestCharge != nil && pi.LatestCharge.AmountRefunded > 0 {
		details.Cancels = append(details.Cancels, Cancel{Amount: pi.LatestCharge.AmountRefunded})
	}
	return details, nil
}

func (g *StripeGateway) IssueBillingKey(ctx context.Context, req *IssueBillingKeyRequest) (*BillingKeyResult, error) {
	params := &stripe.SetupIntentRetrieveParams{}
	params.AddExpand("payment_method")

	si, err := g.client.V1SetupIntents.Retrieve(ctx, req.AuthKey, params)
	if err != nil {
		return nil, g.translate(ctx, "issue_billing_key", err)
	}
	if si.Status != stripe.SetupIntentStatusSucceeded || si.PaymentMethod == nil {
		return nil, ierr.NewGatewayError(&ierr.GatewayError{
			Op:      "issue_billing_key",
			Code:    string(si.Status),
			Message: "setup intent is not complete",
		})
	}

	customerKey := req.CustomerKey
	if si.Customer != nil {
		customerKey = si.Customer.ID
	}
	return &BillingKeyResult{
		BillingKey:  si.PaymentMethod.ID,
		CustomerKey: customerKey,
		CardInfo:    cardInfo(si.PaymentMethod),
	}, nil
}

func (g *StripeGateway) translate(ctx context.Context, op string, err error) error {
	gwErr := &ierr.GatewayError{Op: op, Err: err}

	var stripeErr *stripe.Error
	if ierr.As(err, &stripeErr) {
		gwErr.Code = string(stripeErr.Code)
		gwErr.Message = stripeErr.Msg
		gwErr.StatusCode = stripeErr.HTTPStatusCode
	}
	if ierr.Is(ctx.Err(), context.DeadlineExceeded) {
		gwErr.Timeout = true
	}

	g.logger.Warnw("stripe call failed",
		"operation", op,
		"code", gwErr.Code,
		"status_code", gwErr.StatusCode,
	)
	return ierr.NewGatewayError(gwErr)
}

func cardInfo(pm *stripe.PaymentMethod) types.CardInfo {
	if pm == nil || pm.Card == nil {
		return types.CardInfo{}
	}
	return types.CardInfo{
		Number:   "****" + pm.Card.Last4,
		Company:  string(pm.Card.Brand),
		CardType: string(pm.Card.Funding),
	}
}
