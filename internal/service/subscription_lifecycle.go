package service

import (
	"context"
	"fmt"
	"time"

	"github.com/acctportal/billingcore/internal/api/dto"
	"github.com/acctportal/billingcore/internal/domain/card"
	"github.com/acctportal/billingcore/internal/domain/payment"
	"github.com/acctportal/billingcore/internal/domain/proration"
	"github.com/acctportal/billingcore/internal/domain/subscription"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/gateway"
	"github.com/acctportal/billingcore/internal/idempotency"
	"github.com/acctportal/billingcore/internal/metrics"
	"github.com/acctportal/billingcore/internal/types"
	webhookDto "github.com/acctportal/billingcore/internal/webhook/dto"
	"github.com/samber/lo"
)

// SubscriptionService is the lifecycle state machine. Every entry point
// takes the tenant lock, reads everything it needs, moves money through the
// payment orchestrator and commits the result in a single transaction.
type SubscriptionService interface {
	CreateTrial(ctx context.Context, req dto.CreateTrialRequest) (*dto.LifecycleResult, error)
	Checkout(ctx context.Context, req dto.CheckoutRequest) (*dto.LifecycleResult, error)
	ConvertTrial(ctx context.Context, req dto.ConvertTrialRequest) (*dto.LifecycleResult, error)
	ChangePlan(ctx context.Context, req dto.ChangePlanRequest) (*dto.LifecycleResult, error)
	PreviewPlanChange(ctx context.Context, tenantID string, plan types.Plan, requester dto.Requester) (*dto.PlanChangePreviewResponse, error)
	CancelScheduledChange(ctx context.Context, req dto.CancelScheduledChangeRequest) (*dto.LifecycleResult, error)
	Cancel(ctx context.Context, req dto.CancelRequest) (*dto.LifecycleResult, error)
	Reactivate(ctx context.Context, req dto.ReactivateRequest) (*dto.LifecycleResult, error)
	Resubscribe(ctx context.Context, req dto.ResubscribeRequest) (*dto.LifecycleResult, error)
	AdminEdit(ctx context.Context, req dto.AdminEditRequest) (*dto.LifecycleResult, error)
	// ProcessPeriodEnd applies whatever time based transition is due for the
	// tenant at req.Now. It is what a scheduler calls.
	ProcessPeriodEnd(ctx context.Context, req dto.ProcessPeriodEndRequest) (*dto.LifecycleResult, error)
	GetSubscription(ctx context.Context, req dto.GetSubscriptionRequest) (*dto.SubscriptionResponse, error)
}

type subscriptionService struct {
	ServiceParams
	notifier     *Notifier
	orchestrator PaymentOrchestrator
	cards        *cardService
	calc         *proration.Calculator
	idempGen     *idempotency.Generator
}

func NewSubscriptionService(params ServiceParams, notifier *Notifier, orchestrator PaymentOrchestrator) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
		notifier:      notifier,
		orchestrator:  orchestrator,
		cards:         &cardService{ServiceParams: params, notifier: notifier},
		calc:          proration.NewCalculator(params.Config.Billing.Location()),
		idempGen:      idempotency.NewGenerator(),
	}
}

func (s *subscriptionService) CreateTrial(ctx context.Context, req dto.CreateTrialRequest) (res *dto.LifecycleResult, err error) {
	defer func() { s.observe("create_trial", res, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	release, err := s.Locker.Lock(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.ensureNoSubscription(ctx, req.TenantID); err != nil {
		return nil, err
	}

	now := s.now()
	start := s.calc.StartOfDay(now)
	end := start.AddDate(0, 0, s.Config.Billing.TrialDays)

	sub := s.newSubscription(ctx, req.TenantID, req.OwnerUserID, req.Email, req.DisplayName)
	sub.Plan = types.PlanTrial
	sub.Status = types.SubscriptionStatusTrial
	sub.AmountPeriodDays = s.Config.Billing.TrialDays
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.SubRepo.Create(ctx, sub); err != nil {
			return err
		}
		_, err := recordTransition(ctx, s.HistoryRepo, sub, types.ChangeTypeNew, now.UTC(), "")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("trial started",
		"tenant_id", sub.TenantID,
		"owner_user_id", sub.OwnerUserID,
		"trial_end", end,
	)
	s.notify(ctx, types.WebhookEventSubscriptionCreated, sub, nil)
	return newLifecycleResult(sub, nil, nil), nil
}

func (s *subscriptionService) Checkout(ctx context.Context, req dto.CheckoutRequest) (res *dto.LifecycleResult, err error) {
	defer func() { s.observe("checkout", res, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	price, err := s.planPrice(req.Plan)
	if err != nil {
		return nil, err
	}

	release, err := s.Locker.Lock(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	if res, err := s.replay(ctx, req.TenantID, req.IdempotencyKey); res != nil || err != nil {
		return res, err
	}
	if err := s.ensureNoSubscription(ctx, req.TenantID); err != nil {
		return nil, err
	}

	existing, err := s.CardRepo.ListByTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if err := card.NewSet(existing, s.Config.Billing.MaxCards).CheckCapacity(); err != nil {
		return nil, err
	}

	issued, err := s.Gateway.IssueBillingKey(ctx, &gateway.IssueBillingKeyRequest{
		AuthKey:     req.AuthKey,
		CustomerKey: req.TenantID,
	})
	if err != nil {
		return nil, err
	}

	// duplicates are only known once the gateway reports the card number
	newCard := s.cards.newCard(ctx, req.TenantID, issued.BillingKey, issued.CustomerKey, issued.CardInfo, req.CardAlias)
	candidate := *newCard
	if _, err := card.NewSet(existing, s.Config.Billing.MaxCards).Add(&candidate, true); err != nil {
		return nil, err
	}

	now := s.now()
	sub := s.newSubscription(ctx, req.TenantID, req.OwnerUserID, req.Email, req.DisplayName)
	s.startCycle(sub, req.Plan, price, s.calc.StartOfDay(now))
	sub.SetPrimaryCard(newCard.BillingKey, newCard.CustomerKey, newCard.CardInfo)

	outcome, err := s.orchestrator.Run(ctx, &SagaRequest{
		TenantID:       req.TenantID,
		Scope:          idempotency.ScopeCheckout,
		IdempotencyKey: req.IdempotencyKey,
		PaymentType:    types.PaymentTypeSubscription,
		Plan:           req.Plan,
		OrderName:      orderName(req.Plan, "subscription"),
		Currency:       sub.Currency,
		BillingKey:     issued.BillingKey,
		CustomerKey:    newCard.CustomerKey,
		CustomerEmail:  req.Email,
		CustomerName:   req.DisplayName,
		ChargeAmount:   price,
		Apply: func(ctx context.Context, _ *SagaOutcome) error {
			if _, err := s.cards.addCard(ctx, nil, newCard, true); err != nil {
				return err
			}
			if err := s.SubRepo.Create(ctx, sub); err != nil {
				return err
			}
			_, err := recordTransition(ctx, s.HistoryRepo, sub, types.ChangeTypeNew, now.UTC(), "")
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("checkout completed",
		"tenant_id", sub.TenantID,
		"plan", sub.Plan,
		"charged_amount", outcome.ChargedAmount(),
		"order_id", outcome.OrderID,
	)
	s.notify(ctx, types.WebhookEventSubscriptionActivated, sub, outcome)
	return newLifecycleResult(sub, outcome, nil), nil
}

func (s *subscriptionService) ConvertTrial(ctx context.Context, req dto.ConvertTrialRequest) (res *dto.LifecycleResult, err error) {
	defer func() { s.observe("convert_trial", res, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	price, err := s.planPrice(req.Plan)
	if err != nil {
		return nil, err
	}

	sub, release, err := s.lockSubscription(ctx, req.TenantID, req.Requester)
	if err != nil {
		return nil, err
	}
	defer release()

	if res, err := s.replay(ctx, req.TenantID, req.IdempotencyKey); res != nil || err != nil {
		return res, err
	}

	if req.Mode == types.PlanChangeModeScheduled {
		if _, err := subscription.CanTransition(subscription.OpReserveTrialConvert, sub.Status); err != nil {
			return nil, err
		}
		if !sub.HasBillingKey() {
			return nil, noBillingKey(sub.TenantID)
		}

		next := sub.Clone()
		next.PendingPlan = req.Plan
		next.PendingAmount = price
		trialEnd := next.CurrentPeriodEnd
		next.NextBillingDate = &trialEnd
		if err := s.commit(ctx, next, "", ""); err != nil {
			return nil, err
		}
		s.notify(ctx, types.WebhookEventSubscriptionChangeQueued, next, nil)
		return newLifecycleResult(next, nil, nil), nil
	}

	if _, err := subscription.CanTransition(subscription.OpConvertTrial, sub.Status); err != nil {
		return nil, err
	}

	next, outcome, err := s.chargeNewCycle(ctx, sub, &cycleCharge{
		plan:           req.Plan,
		price:          price,
		start:          s.calc.StartOfDay(s.now()),
		scope:          idempotency.ScopeTrialConversion,
		idempotencyKey: req.IdempotencyKey,
		paymentType:    types.PaymentTypeTrialConversion,
		changeType:     types.ChangeTypeForPlans(sub.Plan, req.Plan),
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, types.WebhookEventSubscriptionActivated, next, outcome)
	return newLifecycleResult(next, outcome, nil), nil
}

func (s *subscriptionService) ChangePlan(ctx context.Context, req dto.ChangePlanRequest) (res *dto.LifecycleResult, err error) {
	defer func() { s.observe("change_plan", res, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	price, err := s.planPrice(req.Plan)
	if err != nil {
		return nil, err
	}

	sub, release, err := s.lockSubscription(ctx, req.TenantID, req.Requester)
	if err != nil {
		return nil, err
	}
	defer release()

	if res, err := s.replay(ctx, req.TenantID, req.IdempotencyKey); res != nil || err != nil {
		return res, err
	}

	op := subscription.OpChangePlan
	if req.Mode == types.PlanChangeModeScheduled {
		op = subscription.OpSchedulePlanChange
	}
	if _, err := subscription.CanTransition(op, sub.Status); err != nil {
		return nil, err
	}
	if req.Plan == sub.Plan {
		return noopResult(sub), nil
	}

	if op == subscription.OpSchedulePlanChange {
		next := sub.Clone()
		next.PendingPlan = req.Plan
		next.PendingAmount = price
		if err := s.commit(ctx, next, "", ""); err != nil {
			return nil, err
		}
		s.Logger.Infow("plan change scheduled",
			"tenant_id", next.TenantID,
			"plan", next.Plan,
			"pending_plan", next.PendingPlan,
		)
		s.notify(ctx, types.WebhookEventSubscriptionChangeQueued, next, nil)
		return newLifecycleResult(next, nil, nil), nil
	}

	now := s.now()
	prorated, err := s.prorate(sub, price, now)
	if err != nil {
		return nil, err
	}

	changeType := types.ChangeTypeForPlans(sub.Plan, req.Plan)
	next := sub.Clone()
	outcome, err := s.orchestrator.Run(ctx, &SagaRequest{
		TenantID:       sub.TenantID,
		Scope:          idempotency.ScopePlanChange,
		IdempotencyKey: req.IdempotencyKey,
		PaymentType:    types.PaymentTypeForChange(changeType),
		Plan:           req.Plan,
		OrderName:      orderName(req.Plan, string(changeType)),
		Currency:       sub.Currency,
		BillingKey:     sub.BillingKey,
		CustomerKey:    sub.CustomerKey,
		CustomerEmail:  sub.Email,
		CustomerName:   sub.DisplayName,
		RefundCredit:   prorated.CreditAmount,
		RefundReason:   fmt.Sprintf("plan change from %s to %s", sub.Plan, req.Plan),
		ChargeAmount:   prorated.ProratedNewAmount,
		Apply: func(ctx context.Context, _ *SagaOutcome) error {
			next.PreviousPlan = sub.Plan
			next.PreviousAmount = sub.Amount
			next.Plan = req.Plan
			next.BaseAmount = price
			if prorated.NewPlanDays > 0 {
				next.Amount = prorated.ProratedNewAmount
				next.AmountPeriodDays = prorated.NewPlanDays
				next.CurrentPeriodStart = s.calc.StartOfDay(now)
			}
			next.ClearPendingChange()
			return s.apply(ctx, next, changeType, now, "")
		},
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("plan changed",
		"tenant_id", next.TenantID,
		"from", sub.Plan,
		"to", next.Plan,
		"credit", prorated.CreditAmount,
		"prorated_amount", prorated.ProratedNewAmount,
		"net", prorated.Net,
	)
	s.notify(ctx, types.WebhookEventSubscriptionPlanChanged, next, outcome)
	return newLifecycleResult(next, outcome, prorated), nil
}

func (s *subscriptionService) CancelScheduledChange(ctx context.Context, req dto.CancelScheduledChangeRequest) (res *dto.LifecycleResult, err error) {
	defer func() { s.observe("cancel_scheduled_change", res, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, release, err := s.lockSubscription(ctx, req.TenantID, req.Requester)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := subscription.CanTransition(subscription.OpCancelScheduledChange, sub.Status); err != nil {
		return nil, err
	}
	if !sub.HasPendingChange() {
		return noopResult(sub), nil
	}

	next := sub.Clone()
	next.ClearPendingChange()
	if next.Status == types.SubscriptionStatusTrial {
		next.NextBillingDate = nil
	}
	if err := s.commit(ctx, next, "", ""); err != nil {
		return nil, err
	}

	s.Logger.Infow("scheduled change dropped",
		"tenant_id", next.TenantID,
		"pending_plan", sub.PendingPlan,
	)
	s.notify(ctx, types.WebhookEventSubscriptionChangeDropped, next, nil)
	return newLifecycleResult(next, nil, nil), nil
}

func (s *subscriptionService) Cancel(ctx context.Context, req dto.CancelRequest) (res *dto.LifecycleResult, err error) {
	defer func() { s.observe("cancel", res, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, release, err := s.lockSubscription(ctx, req.TenantID, req.Requester)
	if err != nil {
		return nil, err
	}
	defer release()

	if res, err := s.replay(ctx, req.TenantID, req.IdempotencyKey); res != nil || err != nil {
		return res, err
	}

	// asking again for a cancellation that already happened is not an error
	if sub.Status.IsTerminal() {
		return noopResult(sub), nil
	}
	if sub.Status == types.SubscriptionStatusPendingCancel && req.Mode == types.CancelModeScheduled {
		return noopResult(sub), nil
	}

	op := subscription.CancelOperation(sub.Status, req.Mode)
	status, err := subscription.CanTransition(op, sub.Status)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next := sub.Clone()
	next.Status = status
	next.CancelReason = req.Reason
	next.CanceledAt = lo.ToPtr(now.UTC())
	next.ClearPendingChange()

	switch op {
	case subscription.OpCancelTrial:
		next.CancelMode = req.Mode
		next.CurrentPeriodEnd = now.UTC()
		next.NextBillingDate = nil
		if err := s.commit(ctx, next, types.ChangeTypeCancel, req.Reason); err != nil {
			return nil, err
		}
		s.notify(ctx, types.WebhookEventSubscriptionCanceled, next, nil)
		return newLifecycleResult(next, nil, nil), nil

	case subscription.OpScheduleCancel:
		next.CancelMode = types.CancelModeScheduled
		next.PreviousNextBillingDate = next.NextBillingDate
		next.NextBillingDate = nil
		if err := s.commit(ctx, next, types.ChangeTypeCancel, req.Reason); err != nil {
			return nil, err
		}
		s.Logger.Infow("cancellation scheduled",
			"tenant_id", next.TenantID,
			"period_end", next.CurrentPeriodEnd,
		)
		s.notify(ctx, types.WebhookEventSubscriptionCancelQueued, next, nil)
		return newLifecycleResult(next, nil, nil), nil
	}

	refund, err := s.calc.Refund(sub.Amount, sub.AmountPeriodDays, sub.CurrentPeriodStart, billingAnchor(sub), now)
	if err != nil {
		return nil, err
	}

	outcome, err := s.orchestrator.Run(ctx, &SagaRequest{
		TenantID:       sub.TenantID,
		Scope:          idempotency.ScopeCancel,
		IdempotencyKey: req.IdempotencyKey,
		PaymentType:    types.PaymentTypeCancelRefund,
		Plan:           sub.Plan,
		OrderName:      orderName(sub.Plan, "cancellation"),
		Currency:       sub.Currency,
		RefundCredit:   refund.CreditAmount,
		RefundReason:   lo.Ternary(req.Reason != "", req.Reason, "subscription canceled"),
		Apply: func(ctx context.Context, _ *SagaOutcome) error {
			next.CancelMode = types.CancelModeImmediate
			next.CurrentPeriodEnd = now.UTC()
			next.NextBillingDate = nil
			next.PreviousNextBillingDate = nil
			return s.apply(ctx, next, types.ChangeTypeCancel, now, req.Reason)
		},
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription canceled",
		"tenant_id", next.TenantID,
		"credit", refund.CreditAmount,
		"refunded_amount", outcome.RefundedAmount(),
	)
	s.notify(ctx, types.WebhookEventSubscriptionCanceled, next, outcome)
	return newLifecycleResult(next, outcome, refund), nil
}

func (s *subscriptionService) Reactivate(ctx context.Context, req dto.ReactivateRequest) (res *dto.LifecycleResult, err error) {
	defer func() { s.observe("reactivate", res, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, release, err := s.lockSubscription(ctx, req.TenantID, req.Requester)
	if err != nil {
		return nil, err
	}
	defer release()

	if sub.Status == types.SubscriptionStatusActive {
		return noopResult(sub), nil
	}
	status, err := subscription.CanTransition(subscription.OpReactivate, sub.Status)
	if err != nil {
		return nil, err
	}

	next := sub.Clone()
	next.Status = status
	next.NextBillingDate = next.PreviousNextBillingDate
	if next.NextBillingDate == nil {
		end := next.CurrentPeriodEnd
		next.NextBillingDate = &end
	}
	next.PreviousNextBillingDate = nil
	next.CancelMode = ""
	next.CancelReason = ""
	next.CanceledAt = nil
	if err := s.commit(ctx, next, types.ChangeTypeReactivate, ""); err != nil {
		return nil, err
	}

	s.notify(ctx, types.WebhookEventSubscriptionReactivated, next, nil)
	return newLifecycleResult(next, nil, nil), nil
}

func (s *subscriptionService) Resubscribe(ctx context.Context, req dto.ResubscribeRequest) (res *dto.LifecycleResult, err error) {
	defer func() { s.observe("resubscribe", res, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	price, err := s.planPrice(req.Plan)
	if err != nil {
		return nil, err
	}

	sub, release, err := s.lockSubscription(ctx, req.TenantID, req.Requester)
	if err != nil {
		return nil, err
	}
	defer release()

	// a retried request finds the subscription already active, so the ledger
	// is consulted before any status guard
	if res, err := s.replay(ctx, req.TenantID, req.IdempotencyKey); res != nil || err != nil {
		return res, err
	}

	if sub.Status == types.SubscriptionStatusActive || sub.Status == types.SubscriptionStatusPendingCancel {
		if sub.Plan == req.Plan {
			return noopResult(sub), nil
		}
		return nil, ierr.NewError("subscription is already running").
			WithHintf("Subscription is already active on the %s plan", sub.Plan).
			WithReportableDetails(map[string]any{
				"current_plan":   sub.Plan,
				"requested_plan": req.Plan,
			}).
			Mark(ierr.ErrConflict)
	}
	if _, err := subscription.CanTransition(subscription.OpResubscribe, sub.Status); err != nil {
		return nil, err
	}

	next, outcome, err := s.chargeNewCycle(ctx, sub, &cycleCharge{
		plan:           req.Plan,
		price:          price,
		start:          s.calc.StartOfDay(s.now()),
		scope:          idempotency.ScopeResubscribe,
		idempotencyKey: req.IdempotencyKey,
		paymentType:    types.PaymentTypeResubscribe,
		changeType:     types.ChangeTypeNew,
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, types.WebhookEventSubscriptionResubscribed, next, outcome)
	return newLifecycleResult(next, outcome, nil), nil
}

func (s *subscriptionService) AdminEdit(ctx context.Context, req dto.AdminEditRequest) (res *dto.LifecycleResult, err error) {
	defer func() { s.observe("admin_edit", res, err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !req.IsAdmin {
		return nil, ierr.NewError("admin edit requires an administrator").
			WithHint("Only administrators can edit subscriptions").
			WithReportableDetails(map[string]any{
				"tenant_id": req.TenantID,
			}).
			Mark(ierr.ErrPermissionDenied)
	}

	sub, release, err := s.lockSubscription(ctx, req.TenantID, req.Requester)
	if err != nil {
		return nil, err
	}
	defer release()

	if req.IsDescriptiveOnly() {
		return s.adminRename(ctx, sub, req)
	}

	if req.ManualPayment != nil {
		if res, err := s.replay(ctx, req.TenantID, req.ManualPayment.IdempotencyKey); res != nil || err != nil {
			return res, err
		}
	}

	next := sub.Clone()
	if req.Plan != nil {
		next.Plan = *req.Plan
	}
	if req.Status != nil {
		next.Status = *req.Status
	}
	if req.Amount != nil {
		next.Amount = *req.Amount
	}
	if req.BaseAmount != nil {
		next.BaseAmount = *req.BaseAmount
	}
	if req.AmountPeriodDays != nil {
		next.AmountPeriodDays = *req.AmountPeriodDays
	}
	if req.CurrentPeriodStart != nil {
		next.CurrentPeriodStart = req.CurrentPeriodStart.UTC()
	}
	if req.CurrentPeriodEnd != nil {
		next.CurrentPeriodEnd = req.CurrentPeriodEnd.UTC()
	}
	if req.NextBillingDate != nil {
		next.NextBillingDate = lo.ToPtr(req.NextBillingDate.UTC())
	}
	if req.DisplayName != nil {
		next.DisplayName = *req.DisplayName
	}
	if !next.CurrentPeriodEnd.After(next.CurrentPeriodStart) {
		return nil, ierr.NewError("current_period_end must be after current_period_start").
			WithHint("Billing period end must be after its start").
			Mark(ierr.ErrValidation)
	}

	billingChanged := next.Plan != sub.Plan || next.Status != sub.Status || next.Amount != sub.Amount
	if next.Plan != sub.Plan {
		next.PreviousPlan = sub.Plan
	}
	if next.Amount != sub.Amount {
		next.PreviousAmount = sub.Amount
	}

	now := s.now()
	var manual *payment.Payment
	if req.ManualPayment != nil {
		manual = s.manualPayment(ctx, next, req.ManualPayment, now)
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		changeType := types.ChangeType("")
		if billingChanged {
			changeType = types.ChangeTypeAdminEdit
		}
		if err := s.apply(ctx, next, changeType, now, req.Note); err != nil {
			return err
		}
		if manual != nil {
			return s.PaymentRepo.Create(ctx, manual)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription edited by admin",
		"tenant_id", next.TenantID,
		"admin_user_id", req.RequesterUserID,
		"billing_changed", billingChanged,
		"manual_payment", manual != nil,
	)
	s.notify(ctx, types.WebhookEventSubscriptionAdminEdited, next, nil)

	result := newLifecycleResult(next, nil, nil)
	if manual != nil {
		result.Charge = manual
		result.ChargedAmount = manual.Amount
	}
	return result, nil
}

// adminRename applies an edit that touches descriptive fields only.
// No segment is rolled and an unchanged name writes nothing.
func (s *subscriptionService) adminRename(ctx context.Context, sub *subscription.Subscription, req dto.AdminEditRequest) (*dto.LifecycleResult, error) {
	if req.DisplayName == nil || *req.DisplayName == sub.DisplayName {
		return noopResult(sub), nil
	}

	next := sub.Clone()
	next.DisplayName = *req.DisplayName
	if err := s.commit(ctx, next, "", ""); err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription renamed by admin",
		"tenant_id", next.TenantID,
		"admin_user_id", req.RequesterUserID,
	)
	s.notify(ctx, types.WebhookEventSubscriptionAdminEdited, next, nil)
	return newLifecycleResult(next, nil, nil), nil
}

func (s *subscriptionService) ProcessPeriodEnd(ctx context.Context, req dto.ProcessPeriodEndRequest) (res *dto.LifecycleResult, err error) {
	defer func() { s.observe("process_period_end", res, err) }()

	if err := validateTenant(req.TenantID); err != nil {
		return nil, err
	}
	now := req.Now
	if now.IsZero() {
		now = s.now()
	}

	release, err := s.Locker.Lock(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	defer release()

	sub, err := s.SubRepo.Get(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	switch sub.Status {
	case types.SubscriptionStatusTrial:
		if now.Before(sub.CurrentPeriodEnd) {
			return noopResult(sub), nil
		}
		if sub.HasPendingChange() && sub.HasBillingKey() {
			return s.chargeDue(ctx, sub, sub.CurrentPeriodEnd, &cycleCharge{
				plan:        sub.PendingPlan,
				scope:       idempotency.ScopeTrialConversion,
				paymentType: types.PaymentTypeTrialConversion,
				changeType:  types.ChangeTypeForPlans(sub.Plan, sub.PendingPlan),
			}, types.WebhookEventSubscriptionActivated)
		}
		return s.expire(ctx, sub, subscription.OpExpireTrial, now)

	case types.SubscriptionStatusPendingCancel:
		if now.Before(sub.CurrentPeriodEnd) {
			return noopResult(sub), nil
		}
		return s.expire(ctx, sub, subscription.OpExpirePendingCancel, now)

	case types.SubscriptionStatusActive:
		if sub.NextBillingDate == nil || now.Before(*sub.NextBillingDate) {
			return noopResult(sub), nil
		}
		if _, err := subscription.CanTransition(subscription.OpRenew, sub.Status); err != nil {
			return nil, err
		}
		plan := lo.Ternary(sub.HasPendingChange(), sub.PendingPlan, sub.Plan)
		changeType := types.ChangeTypeRenew
		if plan != sub.Plan {
			changeType = types.ChangeTypeForPlans(sub.Plan, plan)
		}
		return s.chargeDue(ctx, sub, *sub.NextBillingDate, &cycleCharge{
			plan:        plan,
			scope:       idempotency.ScopeRenewal,
			paymentType: types.PaymentTypeRenewal,
			changeType:  changeType,
		}, types.WebhookEventSubscriptionRenewed)
	}

	return noopResult(sub), nil
}

func (s *subscriptionService) GetSubscription(ctx context.Context, req dto.GetSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := validateTenant(req.TenantID); err != nil {
		return nil, err
	}
	sub, err := s.SubRepo.Get(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if err := authorize(sub, req.Requester); err != nil {
		return nil, err
	}
	return dto.NewSubscriptionResponse(sub), nil
}

// cycleCharge describes a full price charge that starts a new monthly cycle
type cycleCharge struct {
	plan           types.Plan
	price          int64
	start          time.Time
	scope          idempotency.Scope
	idempotencyKey string
	paymentType    types.PaymentType
	changeType     types.ChangeType
}

// chargeNewCycle charges the full plan price and moves the subscription onto
// a fresh active cycle in the same transaction
func (s *subscriptionService) chargeNewCycle(ctx context.Context, sub *subscription.Subscription, cc *cycleCharge) (*subscription.Subscription, *SagaOutcome, error) {
	now := s.now()
	next := sub.Clone()

	outcome, err := s.orchestrator.Run(ctx, &SagaRequest{
		TenantID:       sub.TenantID,
		Scope:          cc.scope,
		IdempotencyKey: cc.idempotencyKey,
		PaymentType:    cc.paymentType,
		Plan:           cc.plan,
		OrderName:      orderName(cc.plan, "subscription"),
		Currency:       sub.Currency,
		BillingKey:     sub.BillingKey,
		CustomerKey:    sub.CustomerKey,
		CustomerEmail:  sub.Email,
		CustomerName:   sub.DisplayName,
		ChargeAmount:   cc.price,
		Apply: func(ctx context.Context, _ *SagaOutcome) error {
			if sub.Plan != cc.plan {
				next.PreviousPlan = sub.Plan
				next.PreviousAmount = sub.Amount
			}
			s.startCycle(next, cc.plan, cc.price, cc.start)
			return s.apply(ctx, next, cc.changeType, now, "")
		},
	})
	if err != nil {
		return nil, nil, err
	}

	s.Logger.Infow("new billing cycle charged",
		"tenant_id", next.TenantID,
		"plan", next.Plan,
		"change_type", cc.changeType,
		"charged_amount", outcome.ChargedAmount(),
		"period_end", next.CurrentPeriodEnd,
	)
	return next, outcome, nil
}

// chargeDue runs a scheduler triggered charge. The idempotency key is derived
// from the tenant and the due date so repeated runs for the same period
// never charge twice. A failed charge leaves the subscription untouched.
func (s *subscriptionService) chargeDue(ctx context.Context, sub *subscription.Subscription, due time.Time, cc *cycleCharge, eventName string) (*dto.LifecycleResult, error) {
	price, err := s.planPrice(cc.plan)
	if err != nil {
		return nil, err
	}
	cc.price = price
	cc.start = s.calc.StartOfDay(due)
	cc.idempotencyKey = s.idempGen.GenerateKey(cc.scope, map[string]interface{}{
		"tenant_id": sub.TenantID,
		"due":       s.calc.StartOfDay(due).Format(time.DateOnly),
	})

	if res, err := s.replay(ctx, sub.TenantID, cc.idempotencyKey); res != nil || err != nil {
		return res, err
	}

	next, outcome, err := s.chargeNewCycle(ctx, sub, cc)
	if err != nil {
		s.Logger.Warnw("period end charge failed",
			"error", err,
			"tenant_id", sub.TenantID,
			"plan", cc.plan,
			"due", due,
		)
		return nil, err
	}

	s.notify(ctx, eventName, next, outcome)
	return newLifecycleResult(next, outcome, nil), nil
}

func (s *subscriptionService) expire(ctx context.Context, sub *subscription.Subscription, op subscription.Operation, now time.Time) (*dto.LifecycleResult, error) {
	status, err := subscription.CanTransition(op, sub.Status)
	if err != nil {
		return nil, err
	}

	next := sub.Clone()
	next.Status = status
	next.NextBillingDate = nil
	next.PreviousNextBillingDate = nil
	next.ClearPendingChange()
	if err := s.commit(ctx, next, types.ChangeTypeExpire, ""); err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription expired",
		"tenant_id", next.TenantID,
		"operation", op,
		"period_end", next.CurrentPeriodEnd,
	)
	s.notify(ctx, types.WebhookEventSubscriptionExpired, next, nil)
	return newLifecycleResult(next, nil, nil), nil
}

// lockSubscription takes the tenant lock and loads the subscription for a
// requester allowed to act on it. The caller must invoke release.
func (s *subscriptionService) lockSubscription(ctx context.Context, tenantID string, requester dto.Requester) (*subscription.Subscription, func(), error) {
	release, err := s.Locker.Lock(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}

	sub, err := s.SubRepo.Get(ctx, tenantID)
	if err != nil {
		release()
		return nil, nil, err
	}
	if err := authorize(sub, requester); err != nil {
		release()
		return nil, nil, err
	}
	return sub, release, nil
}

func (s *subscriptionService) ensureNoSubscription(ctx context.Context, tenantID string) error {
	existing, err := s.SubRepo.Get(ctx, tenantID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}
	return ierr.NewError("tenant already has a subscription").
		WithHintf("Subscription already exists with status %s", existing.Status).
		WithReportableDetails(map[string]any{
			"tenant_id": tenantID,
			"status":    existing.Status,
		}).
		Mark(ierr.ErrAlreadyExists)
}

// replay answers a request whose idempotency key already has ledger rows
func (s *subscriptionService) replay(ctx context.Context, tenantID, key string) (*dto.LifecycleResult, error) {
	outcome, err := s.orchestrator.Replay(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		return nil, nil
	}

	sub, err := s.SubRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return newLifecycleResult(sub, outcome, nil), nil
}

// commit persists a transition that moves no money
func (s *subscriptionService) commit(ctx context.Context, next *subscription.Subscription, changeType types.ChangeType, note string) error {
	now := s.now()
	return s.DB.WithTx(ctx, func(ctx context.Context) error {
		return s.apply(ctx, next, changeType, now, note)
	})
}

// apply writes next and, when changeType is set, rolls the history segment.
// It runs inside the caller's transaction.
func (s *subscriptionService) apply(ctx context.Context, next *subscription.Subscription, changeType types.ChangeType, at time.Time, note string) error {
	next.UpdatedAt = at.UTC()
	next.UpdatedBy = types.GetUserID(ctx)
	if err := s.SubRepo.Update(ctx, next); err != nil {
		return err
	}
	if changeType == "" {
		return nil
	}
	_, err := recordTransition(ctx, s.HistoryRepo, next, changeType, at.UTC(), note)
	return err
}

// startCycle puts sub on a full month of plan beginning at start
func (s *subscriptionService) startCycle(sub *subscription.Subscription, plan types.Plan, price int64, start time.Time) {
	end := s.calc.AddMonths(start, 1)
	sub.Plan = plan
	sub.Status = types.SubscriptionStatusActive
	sub.Amount = price
	sub.BaseAmount = price
	sub.AmountPeriodDays = s.calc.Days(start, end)
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end
	sub.NextBillingDate = &end
	sub.PreviousNextBillingDate = nil
	sub.CancelMode = ""
	sub.CancelReason = ""
	sub.CanceledAt = nil
	sub.ClearPendingChange()
}

func (s *subscriptionService) newSubscription(ctx context.Context, tenantID, ownerUserID, email, displayName string) *subscription.Subscription {
	base := types.GetDefaultBaseModel(ctx)
	base.TenantID = tenantID
	base.CreatedAt = s.now().UTC()
	base.UpdatedAt = base.CreatedAt
	return &subscription.Subscription{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		OwnerUserID: ownerUserID,
		Email:       email,
		DisplayName: displayName,
		Currency:    s.Config.Billing.Currency,
		BaseModel:   base,
	}
}

func (s *subscriptionService) manualPayment(ctx context.Context, sub *subscription.Subscription, req *dto.ManualPaymentRequest, now time.Time) *payment.Payment {
	base := types.GetDefaultBaseModel(ctx)
	base.TenantID = sub.TenantID
	base.CreatedAt = now.UTC()
	base.UpdatedAt = base.CreatedAt
	approved := now.UTC()
	return &payment.Payment{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		OrderID:         types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_ADMIN_ORDER),
		OrderName:       lo.Ternary(req.OrderName != "", req.OrderName, orderName(sub.Plan, "manual payment")),
		Amount:          req.Amount,
		Currency:        sub.Currency,
		TransactionType: types.TransactionTypeCharge,
		Type:            types.PaymentTypeAdminManual,
		Status:          types.PaymentStatusDone,
		Plan:            sub.Plan,
		IdempotencyKey:  req.IdempotencyKey,
		Method:          lo.Ternary(req.Method != "", req.Method, "manual"),
		ApprovedAt:      &approved,
		BaseModel:       base,
	}
}

func (s *subscriptionService) planPrice(plan types.Plan) (int64, error) {
	price, ok := s.Config.Billing.PlanPrice(plan)
	if !ok {
		return 0, ierr.NewErrorf("no price configured for plan %s", plan).
			WithHint("Choose a paid plan").
			WithReportableDetails(map[string]any{
				"plan": plan,
			}).
			Mark(ierr.ErrValidation)
	}
	return price, nil
}

func (s *subscriptionService) notify(ctx context.Context, eventName string, sub *subscription.Subscription, outcome *SagaOutcome) {
	payload := &webhookDto.SubscriptionWebhookPayload{
		TenantID:        sub.TenantID,
		Plan:            sub.Plan,
		Status:          sub.Status,
		PreviousPlan:    sub.PreviousPlan,
		Amount:          sub.Amount,
		Currency:        sub.Currency,
		PeriodStart:     sub.CurrentPeriodStart,
		PeriodEnd:       sub.CurrentPeriodEnd,
		NextBillingDate: sub.NextBillingDate,
		PendingPlan:     sub.PendingPlan,
		CancelMode:      sub.CancelMode,
		ChargedAmount:   outcome.ChargedAmount(),
		RefundedAmount:  outcome.RefundedAmount(),
	}
	if outcome != nil && outcome.Charge != nil {
		payload.ChargePaymentKey = outcome.Charge.PaymentKey
	}
	if outcome != nil && outcome.Refund != nil {
		payload.RefundPaymentKey = outcome.Refund.PaymentKey
	}
	s.notifier.Notify(ctx, eventName, sub.TenantID, payload)
}

func (s *subscriptionService) observe(operation string, res *dto.LifecycleResult, err error) {
	outcome := metrics.Outcome(err)
	switch {
	case err != nil:
	case res != nil && res.Replayed:
		outcome = metrics.OutcomeReplay
	case res != nil && res.Noop:
		outcome = metrics.OutcomeNoop
	}
	metrics.TransitionsTotal.WithLabelValues(operation, outcome).Inc()
}

// billingAnchor is the date the current cycle is billed up to. A scheduled
// cancellation moves it into PreviousNextBillingDate.
func billingAnchor(sub *subscription.Subscription) time.Time {
	switch {
	case sub.NextBillingDate != nil:
		return *sub.NextBillingDate
	case sub.PreviousNextBillingDate != nil:
		return *sub.PreviousNextBillingDate
	}
	return sub.CurrentPeriodEnd
}

func newLifecycleResult(sub *subscription.Subscription, outcome *SagaOutcome, prorated *proration.Result) *dto.LifecycleResult {
	res := &dto.LifecycleResult{
		Success:      true,
		Proration:    prorated,
		Subscription: sub,
	}
	if outcome != nil {
		res.Replayed = outcome.Replayed
		res.Charge = outcome.Charge
		res.Refund = outcome.Refund
		res.ChargedAmount = outcome.ChargedAmount()
		res.RefundedAmount = outcome.RefundedAmount()
	}
	return res
}

func noopResult(sub *subscription.Subscription) *dto.LifecycleResult {
	return &dto.LifecycleResult{Success: true, Noop: true, Subscription: sub}
}

func noBillingKey(tenantID string) error {
	return ierr.NewError("no billing key on file").
		WithHint("Register a card before paying").
		WithReportableDetails(map[string]any{
			"tenant_id": tenantID,
		}).
		Mark(ierr.ErrValidation)
}

func validateTenant(tenantID string) error {
	if tenantID == "" {
		return ierr.NewError("tenant_id is required").
			WithHint("Tenant ID is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func orderName(plan types.Plan, what string) string {
	return fmt.Sprintf("%s plan %s", lo.Capitalize(string(plan)), what)
}
