package dto

import (
	"time"

	"github.com/acctportal/billingcore/internal/domain/payment"
	"github.com/acctportal/billingcore/internal/domain/proration"
	"github.com/acctportal/billingcore/internal/domain/subscription"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/acctportal/billingcore/internal/validator"
)

// CreateTrialRequest starts a free trial for a tenant that has no subscription yet
type CreateTrialRequest struct {
	TenantID    string `json:"-" validate:"required"`
	OwnerUserID string `json:"owner_user_id" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name,omitempty" validate:"omitempty,max=255"`
}

func (r *CreateTrialRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// CheckoutRequest is the first paid purchase. AuthKey is the one-time card
// authorization the gateway exchanges for a billing key.
type CheckoutRequest struct {
	TenantID       string     `json:"-" validate:"required"`
	OwnerUserID    string     `json:"owner_user_id" validate:"required"`
	Email          string     `json:"email" validate:"required,email"`
	DisplayName    string     `json:"display_name,omitempty" validate:"omitempty,max=255"`
	Plan           types.Plan `json:"plan" validate:"required"`
	AuthKey        string     `json:"auth_key" validate:"required"`
	CardAlias      string     `json:"card_alias,omitempty" validate:"omitempty,max=50"`
	IdempotencyKey string     `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

func (r *CheckoutRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return validatePaidPlan(r.Plan)
}

// ConvertTrialRequest moves a trial onto a paid plan, now or at trial end
type ConvertTrialRequest struct {
	TenantID       string               `json:"-" validate:"required"`
	Plan           types.Plan           `json:"plan" validate:"required"`
	Mode           types.PlanChangeMode `json:"mode" validate:"required"`
	IdempotencyKey string               `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
	Requester      `json:"-"`
}

func (r *ConvertTrialRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Mode.Validate(); err != nil {
		return err
	}
	return validatePaidPlan(r.Plan)
}

// ChangePlanRequest switches an active subscription to another paid plan
type ChangePlanRequest struct {
	TenantID       string               `json:"-" validate:"required"`
	Plan           types.Plan           `json:"plan" validate:"required"`
	Mode           types.PlanChangeMode `json:"mode" validate:"required"`
	IdempotencyKey string               `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
	Requester      `json:"-"`
}

func (r *ChangePlanRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.Mode.Validate(); err != nil {
		return err
	}
	return validatePaidPlan(r.Plan)
}

type CancelRequest struct {
	TenantID       string           `json:"-" validate:"required"`
	Mode           types.CancelMode `json:"mode" validate:"required"`
	Reason         string           `json:"reason,omitempty" validate:"omitempty,max=500"`
	IdempotencyKey string           `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
	Requester      `json:"-"`
}

func (r *CancelRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.Mode.Validate()
}

type ReactivateRequest struct {
	TenantID  string `json:"-" validate:"required"`
	Requester `json:"-"`
}

func (r *ReactivateRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// ResubscribeRequest restarts a canceled or expired subscription with the stored card
type ResubscribeRequest struct {
	TenantID       string     `json:"-" validate:"required"`
	Plan           types.Plan `json:"plan" validate:"required"`
	IdempotencyKey string     `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
	Requester      `json:"-"`
}

func (r *ResubscribeRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return validatePaidPlan(r.Plan)
}

type CancelScheduledChangeRequest struct {
	TenantID  string `json:"-" validate:"required"`
	Requester `json:"-"`
}

func (r *CancelScheduledChangeRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type GetSubscriptionRequest struct {
	TenantID  string `json:"-" validate:"required"`
	Requester `json:"-"`
}

// AdminEditRequest overrides billing fields by hand. Nil fields are left alone.
type AdminEditRequest struct {
	TenantID           string                    `json:"-" validate:"required"`
	Plan               *types.Plan               `json:"plan,omitempty"`
	Status             *types.SubscriptionStatus `json:"status,omitempty"`
	Amount             *int64                    `json:"amount,omitempty" validate:"omitempty,min=0"`
	BaseAmount         *int64                    `json:"base_amount,omitempty" validate:"omitempty,min=0"`
	AmountPeriodDays   *int                      `json:"amount_period_days,omitempty"`
	CurrentPeriodStart *time.Time                `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time                `json:"current_period_end,omitempty"`
	NextBillingDate    *time.Time                `json:"next_billing_date,omitempty"`
	DisplayName        *string                   `json:"display_name,omitempty" validate:"omitempty,max=255"`
	ManualPayment      *ManualPaymentRequest     `json:"manual_payment,omitempty"`
	Note               string                    `json:"note,omitempty" validate:"omitempty,max=500"`
	Requester          `json:"-"`
}

// ManualPaymentRequest records money collected outside the gateway
type ManualPaymentRequest struct {
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	OrderName      string `json:"order_name,omitempty" validate:"omitempty,max=255"`
	Method         string `json:"method,omitempty" validate:"omitempty,max=50"`
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

func (r *AdminEditRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Plan != nil {
		if err := r.Plan.Validate(); err != nil {
			return err
		}
	}
	if r.Status != nil {
		if err := r.Status.Validate(); err != nil {
			return err
		}
	}
	if r.AmountPeriodDays != nil && *r.AmountPeriodDays <= 0 {
		return ierr.NewError("amount_period_days must be positive").
			WithHint("Amount period days must be greater than zero").
			WithReportableDetails(map[string]any{
				"amount_period_days": *r.AmountPeriodDays,
			}).
			Mark(ierr.ErrValidation)
	}
	if r.CurrentPeriodStart != nil && r.CurrentPeriodEnd != nil && !r.CurrentPeriodEnd.After(*r.CurrentPeriodStart) {
		return ierr.NewError("current_period_end must be after current_period_start").
			WithHint("Billing period end must be after its start").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsDescriptiveOnly reports whether the edit leaves billing state untouched
func (r *AdminEditRequest) IsDescriptiveOnly() bool {
	return r.Plan == nil && r.Status == nil && r.Amount == nil && r.BaseAmount == nil &&
		r.AmountPeriodDays == nil && r.CurrentPeriodStart == nil && r.CurrentPeriodEnd == nil &&
		r.NextBillingDate == nil && r.ManualPayment == nil
}

// ProcessPeriodEndRequest is what a scheduler sends for one tenant
type ProcessPeriodEndRequest struct {
	TenantID string    `json:"tenant_id" validate:"required"`
	Now      time.Time `json:"now"`
}

// LifecycleResult is returned by every lifecycle entry point
type LifecycleResult struct {
	Success bool `json:"success"`
	// Noop is set when the request found the subscription already in the asked-for state
	Noop bool `json:"noop"`
	// Replayed is set when the result was read back from the ledger without calling the gateway
	Replayed       bool                       `json:"replayed"`
	ChargedAmount  int64                      `json:"charged_amount"`
	RefundedAmount int64                      `json:"refunded_amount"`
	Charge         *payment.Payment           `json:"charge,omitempty"`
	Refund         *payment.Payment           `json:"refund,omitempty"`
	Proration      *proration.Result          `json:"proration,omitempty"`
	Subscription   *subscription.Subscription `json:"subscription,omitempty"`
}

// PlanChangePreviewResponse shows what an immediate plan change would move
type PlanChangePreviewResponse struct {
	CurrentPlan types.Plan        `json:"current_plan"`
	NewPlan     types.Plan        `json:"new_plan"`
	ChangeType  types.ChangeType  `json:"change_type"`
	Proration   *proration.Result `json:"proration"`
}

// SubscriptionResponse is the read model for a single subscription
type SubscriptionResponse struct {
	*subscription.Subscription
	HasBillingKey bool `json:"has_billing_key"`
}

func NewSubscriptionResponse(sub *subscription.Subscription) *SubscriptionResponse {
	return &SubscriptionResponse{
		Subscription:  sub,
		HasBillingKey: sub.HasBillingKey(),
	}
}

func validatePaidPlan(plan types.Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	if !plan.IsPaid() {
		return ierr.NewError("plan is not billable").
			WithHint("Choose a paid plan").
			WithReportableDetails(map[string]any{
				"plan":       plan,
				"paid_plans": types.PaidPlans,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
