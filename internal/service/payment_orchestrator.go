package service

import (
	"context"

	"github.com/acctportal/billingcore/internal/domain/payment"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/gateway"
	"github.com/acctportal/billingcore/internal/idempotency"
	"github.com/acctportal/billingcore/internal/metrics"
	"github.com/acctportal/billingcore/internal/types"
	webhookDto "github.com/acctportal/billingcore/internal/webhook/dto"
	"github.com/samber/lo"
)

// SagaRequest describes the money movement of one lifecycle operation: an
// optional refund against the latest charge followed by an optional charge.
type SagaRequest struct {
	TenantID       string
	Scope          idempotency.Scope
	IdempotencyKey string
	PaymentType    types.PaymentType
	Plan           types.Plan
	OrderName      string
	Currency       string

	BillingKey string
	// CustomerKey is the gateway customer owning BillingKey. Empty falls
	// back to the tenant ID.
	CustomerKey   string
	CustomerEmail string
	CustomerName  string

	// RefundCredit is the most the refund leg may return. Zero skips it.
	RefundCredit int64
	RefundReason string
	// ChargeAmount is what the charge leg takes. Zero skips it.
	ChargeAmount int64

	// Apply writes the resulting state change in the same transaction as
	// the ledger rows
	Apply func(ctx context.Context, outcome *SagaOutcome) error
}

// SagaOutcome is what a saga did, or what an earlier run recorded
type SagaOutcome struct {
	Replayed bool
	OrderID  string
	Refund   *payment.Payment
	Charge   *payment.Payment
}

func (o *SagaOutcome) ChargedAmount() int64 {
	if o == nil || o.Charge == nil || o.Charge.Status != types.PaymentStatusDone {
		return 0
	}
	return o.Charge.Amount
}

func (o *SagaOutcome) RefundedAmount() int64 {
	if o == nil || o.Refund == nil {
		return 0
	}
	return -o.Refund.Amount
}

// PaymentOrchestrator runs refund and charge calls against the gateway and
// records them in the ledger. Gateway calls never happen inside a store
// transaction.
type PaymentOrchestrator interface {
	// Replay returns what was recorded under the idempotency key, or nil when
	// nothing was. A recorded partial failure is returned as the same error.
	Replay(ctx context.Context, tenantID, key string) (*SagaOutcome, error)
	Run(ctx context.Context, req *SagaRequest) (*SagaOutcome, error)
}

type paymentOrchestrator struct {
	ServiceParams
	notifier *Notifier
	idempGen *idempotency.Generator
}

func NewPaymentOrchestrator(params ServiceParams, notifier *Notifier) PaymentOrchestrator {
	return &paymentOrchestrator{
		ServiceParams: params,
		notifier:      notifier,
		idempGen:      idempotency.NewGenerator(),
	}
}

func (o *paymentOrchestrator) Replay(ctx context.Context, tenantID, key string) (*SagaOutcome, error) {
	if key == "" {
		return nil, nil
	}

	rows, err := o.PaymentRepo.ListByIdempotencyKey(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	outcome := &SagaOutcome{Replayed: true}
	for _, row := range rows {
		outcome.OrderID = row.OrderID
		switch row.TransactionType {
		case types.TransactionTypeRefund:
			outcome.Refund = row
		case types.TransactionTypeCharge:
			outcome.Charge = row
		}
	}

	metrics.IdempotentReplaysTotal.WithLabelValues(string(rows[0].Type)).Inc()
	o.Logger.Infow("replaying recorded payment",
		"tenant_id", tenantID,
		"idempotency_key", key,
		"order_id", outcome.OrderID,
	)

	if outcome.Refund != nil && outcome.Charge != nil && outcome.Charge.Status == types.PaymentStatusFailed {
		return outcome, partialFailureError(outcome.RefundedAmount(), &ierr.GatewayError{
			Op:      "charge",
			Code:    outcome.Charge.FailureCode,
			Message: outcome.Charge.FailureMessage,
		})
	}
	return outcome, nil
}

func (o *paymentOrchestrator) Run(ctx context.Context, req *SagaRequest) (*SagaOutcome, error) {
	// once money starts moving the caller can no longer abort the saga
	ctx = context.WithoutCancel(ctx)

	if req.ChargeAmount > 0 && req.BillingKey == "" {
		return nil, noBillingKey(req.TenantID)
	}

	outcome := &SagaOutcome{
		OrderID: o.idempGen.OrderID(req.Scope, req.TenantID, req.IdempotencyKey, types.GenerateUUID()),
	}

	var source *payment.Payment
	if req.RefundCredit > 0 {
		var err error
		source, outcome.Refund, err = o.refund(ctx, req, outcome.OrderID)
		if err != nil {
			return nil, err
		}
	}

	if req.ChargeAmount > 0 {
		res, err := o.Gateway.Charge(ctx, &gateway.ChargeRequest{
			BillingKey:    req.BillingKey,
			CustomerKey:   lo.CoalesceOrEmpty(req.CustomerKey, req.TenantID),
			Amount:        req.ChargeAmount,
			Currency:      req.Currency,
			OrderID:       outcome.OrderID,
			OrderName:     req.OrderName,
			CustomerEmail: req.CustomerEmail,
			CustomerName:  req.CustomerName,
		})
		if err != nil {
			if outcome.Refund != nil {
				return nil, o.partialFailure(ctx, req, outcome, source, err)
			}
			return nil, err
		}
		outcome.Charge = o.chargeRow(ctx, req, outcome.OrderID, res)
	}

	err := o.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := o.recordRefund(ctx, outcome.Refund, source); err != nil {
			return err
		}
		if outcome.Charge != nil {
			if err := o.PaymentRepo.Create(ctx, outcome.Charge); err != nil {
				return err
			}
		}
		if req.Apply != nil {
			return req.Apply(ctx, outcome)
		}
		return nil
	})
	if err != nil {
		if outcome.Refund != nil || outcome.Charge != nil {
			o.Logger.Errorw("gateway moved money but the ledger write failed",
				"error", err,
				"tenant_id", req.TenantID,
				"order_id", outcome.OrderID,
				"charged_amount", outcome.ChargedAmount(),
				"refunded_amount", outcome.RefundedAmount(),
			)
			o.Sentry.CaptureTenantException(ctx, err, map[string]string{"order_id": outcome.OrderID})
		}
		return nil, err
	}

	o.recordMetrics(req, outcome)
	return outcome, nil
}

// refund returns money from the latest done charge, capped by the credit, by
// what the ledger still considers refundable and by what the gateway reports
// as remaining. No eligible charge means nothing to refund.
func (o *paymentOrchestrator) refund(ctx context.Context, req *SagaRequest, orderID string) (source *payment.Payment, row *payment.Payment, err error) {
	source, err = o.PaymentRepo.GetLatestCharge(ctx, req.TenantID)
	if err != nil {
		if ierr.IsNotFound(err) {
			o.Logger.Debugw("no charge to refund", "tenant_id", req.TenantID)
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if !source.IsRefundableCharge() {
		return nil, nil, nil
	}

	details, err := o.Gateway.GetPayment(ctx, source.PaymentKey)
	if err != nil {
		return nil, nil, err
	}

	amount := min(req.RefundCredit, source.RefundableAmount(), details.RemainingAmount())
	if amount <= 0 {
		o.Logger.Infow("refund skipped, nothing left to refund",
			"tenant_id", req.TenantID,
			"payment_key", source.PaymentKey,
			"credit", req.RefundCredit,
			"gateway_remaining", details.RemainingAmount(),
		)
		return nil, nil, nil
	}

	res, err := o.Gateway.Refund(ctx, &gateway.RefundRequest{
		PaymentKey:     source.PaymentKey,
		Reason:         req.RefundReason,
		Amount:         amount,
		IdempotencyKey: orderID + "-refund",
	})
	if err != nil {
		return nil, nil, err
	}
	if res.Status != types.PaymentStatusDone {
		return nil, nil, ierr.NewGatewayError(&ierr.GatewayError{
			Op:      "refund",
			Code:    "REFUND_NOT_COMPLETED",
			Message: "refund finished with status " + string(res.Status),
		})
	}

	row = o.newPayment(ctx, req, orderID)
	row.TransactionType = types.TransactionTypeRefund
	row.Amount = -amount
	row.Status = types.PaymentStatusDone
	row.PaymentKey = res.PaymentKey
	row.OriginalPaymentID = source.ID
	row.ReceiptURL = res.ReceiptURL
	row.Method = source.Method
	row.CardInfo = source.CardInfo
	return source, row, nil
}

// partialFailure commits the refund that already happened together with a
// failed charge row so the ledger matches the gateway. The subscription is
// left as it was.
func (o *paymentOrchestrator) partialFailure(ctx context.Context, req *SagaRequest, outcome *SagaOutcome, source *payment.Payment, chargeErr error) error {
	gwErr, _ := ierr.AsGatewayError(chargeErr)
	if gwErr == nil {
		gwErr = &ierr.GatewayError{Op: "charge", Err: chargeErr}
	}

	failed := o.newPayment(ctx, req, outcome.OrderID)
	failed.TransactionType = types.TransactionTypeCharge
	failed.Amount = req.ChargeAmount
	failed.Status = types.PaymentStatusFailed
	failed.FailureCode = gwErr.Code
	failed.FailureMessage = gwErr.Message

	if err := o.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := o.recordRefund(ctx, outcome.Refund, source); err != nil {
			return err
		}
		return o.PaymentRepo.Create(ctx, failed)
	}); err != nil {
		o.Logger.Errorw("failed to record partial failure",
			"error", err,
			"tenant_id", req.TenantID,
			"order_id", outcome.OrderID,
		)
	}

	final := partialFailureError(outcome.RefundedAmount(), gwErr)
	metrics.PartialFailuresTotal.Inc()
	metrics.MoneyMovedTotal.WithLabelValues(string(types.TransactionTypeRefund), req.Currency).Add(float64(outcome.RefundedAmount()))
	o.Logger.Errorw("refund succeeded but charge failed",
		"error", chargeErr,
		"tenant_id", req.TenantID,
		"order_id", outcome.OrderID,
		"refunded_amount", outcome.RefundedAmount(),
		"charge_amount", req.ChargeAmount,
	)
	o.Sentry.CaptureTenantException(ctx, final, map[string]string{
		"order_id":     outcome.OrderID,
		"payment_type": string(req.PaymentType),
	})
	o.notifier.Notify(ctx, types.WebhookEventPaymentPartialFailure, req.TenantID, &webhookDto.PaymentFailureWebhookPayload{
		TenantID:       req.TenantID,
		OrderID:        outcome.OrderID,
		RefundedAmount: outcome.RefundedAmount(),
		ChargeAmount:   req.ChargeAmount,
		FailureCode:    gwErr.Code,
		FailureMessage: gwErr.Message,
	})
	return final
}

func (o *paymentOrchestrator) recordRefund(ctx context.Context, refund, source *payment.Payment) error {
	if refund == nil {
		return nil
	}
	if err := o.PaymentRepo.Create(ctx, refund); err != nil {
		return err
	}
	return o.PaymentRepo.AddRefundedAmount(ctx, source.TenantID, source.ID, -refund.Amount)
}

func (o *paymentOrchestrator) chargeRow(ctx context.Context, req *SagaRequest, orderID string, res *gateway.ChargeResult) *payment.Payment {
	row := o.newPayment(ctx, req, orderID)
	row.TransactionType = types.TransactionTypeCharge
	row.Amount = req.ChargeAmount
	row.Status = res.Status
	row.PaymentKey = res.PaymentKey
	row.Method = res.Method
	row.ReceiptURL = res.ReceiptURL
	row.CardInfo = res.CardInfo
	if !res.ApprovedAt.IsZero() {
		approved := res.ApprovedAt.UTC()
		row.ApprovedAt = &approved
	}
	return row
}

func (o *paymentOrchestrator) newPayment(ctx context.Context, req *SagaRequest, orderID string) *payment.Payment {
	base := types.GetDefaultBaseModel(ctx)
	base.TenantID = req.TenantID
	base.CreatedAt = o.now().UTC()
	base.UpdatedAt = base.CreatedAt
	return &payment.Payment{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		OrderID:        orderID,
		OrderName:      req.OrderName,
		Currency:       req.Currency,
		Type:           req.PaymentType,
		Plan:           req.Plan,
		IdempotencyKey: req.IdempotencyKey,
		BaseModel:      base,
	}
}

func (o *paymentOrchestrator) recordMetrics(req *SagaRequest, outcome *SagaOutcome) {
	if amount := outcome.ChargedAmount(); amount > 0 {
		metrics.MoneyMovedTotal.WithLabelValues(string(types.TransactionTypeCharge), req.Currency).Add(float64(amount))
	}
	if amount := outcome.RefundedAmount(); amount > 0 {
		metrics.MoneyMovedTotal.WithLabelValues(string(types.TransactionTypeRefund), req.Currency).Add(float64(amount))
	}
}

func partialFailureError(refunded int64, cause *ierr.GatewayError) error {
	return ierr.NewGatewayError(&ierr.GatewayError{
		Op:              "charge",
		Code:            cause.Code,
		Message:         cause.Message,
		StatusCode:      cause.StatusCode,
		Timeout:         cause.Timeout,
		RefundProcessed: true,
		RefundedAmount:  refunded,
		Err:             cause,
	})
}
