package types

import (
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/samber/lo"
)

// Plan is the product tier a tenant subscribes to
type Plan string

const (
	PlanTrial      Plan = "trial"
	PlanBasic      Plan = "basic"
	PlanBusiness   Plan = "business"
	PlanEnterprise Plan = "enterprise"
)

// PaidPlans are the plans that can be charged for
var PaidPlans = []Plan{PlanBasic, PlanBusiness, PlanEnterprise}

func (p Plan) String() string {
	return string(p)
}

func (p Plan) Validate() error {
	allowed := []Plan{PlanTrial, PlanBasic, PlanBusiness, PlanEnterprise}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid plan").
			WithHint("Invalid plan").
			WithReportableDetails(map[string]any{
				"plan":          p,
				"allowed_plans": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsPaid reports whether the plan is billable
func (p Plan) IsPaid() bool {
	return lo.Contains(PaidPlans, p)
}

// Rank orders plans by tier so a change can be classified as an upgrade or downgrade
func (p Plan) Rank() int {
	switch p {
	case PlanBasic:
		return 1
	case PlanBusiness:
		return 2
	case PlanEnterprise:
		return 3
	default:
		return 0
	}
}

// SubscriptionStatus is the lifecycle state of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusTrial         SubscriptionStatus = "trial"
	SubscriptionStatusActive        SubscriptionStatus = "active"
	SubscriptionStatusPendingCancel SubscriptionStatus = "pending_cancel"
	SubscriptionStatusCanceled      SubscriptionStatus = "canceled"
	SubscriptionStatusExpired       SubscriptionStatus = "expired"

	// SubscriptionStatusPastDue is reserved. Nothing produces or consumes it
	// and it is not part of the transition table.
	SubscriptionStatusPastDue SubscriptionStatus = "past_due"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusTrial,
		SubscriptionStatusActive,
		SubscriptionStatusPendingCancel,
		SubscriptionStatusCanceled,
		SubscriptionStatusExpired,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsTerminal reports whether the subscription no longer entitles the tenant to service
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusExpired
}

// CancelMode decides whether a cancellation takes effect now or at period end
type CancelMode string

const (
	CancelModeScheduled CancelMode = "scheduled"
	CancelModeImmediate CancelMode = "immediate"
)

func (m CancelMode) Validate() error {
	allowed := []CancelMode{CancelModeScheduled, CancelModeImmediate}
	if !lo.Contains(allowed, m) {
		return ierr.NewError("invalid cancel mode").
			WithHint("Cancel mode must be scheduled or immediate").
			WithReportableDetails(map[string]any{
				"cancel_mode": m,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PlanChangeMode decides whether a plan change is prorated now or applied at renewal
type PlanChangeMode string

const (
	PlanChangeModeImmediate PlanChangeMode = "immediate"
	PlanChangeModeScheduled PlanChangeMode = "scheduled"
)

func (m PlanChangeMode) Validate() error {
	allowed := []PlanChangeMode{PlanChangeModeImmediate, PlanChangeModeScheduled}
	if !lo.Contains(allowed, m) {
		return ierr.NewError("invalid plan change mode").
			WithHint("Plan change mode must be immediate or scheduled").
			WithReportableDetails(map[string]any{
				"mode": m,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ChangeType labels why a history segment was opened
type ChangeType string

const (
	ChangeTypeNew        ChangeType = "new"
	ChangeTypeUpgrade    ChangeType = "upgrade"
	ChangeTypeDowngrade  ChangeType = "downgrade"
	ChangeTypeRenew      ChangeType = "renew"
	ChangeTypeCancel     ChangeType = "cancel"
	ChangeTypeExpire     ChangeType = "expire"
	ChangeTypeReactivate ChangeType = "reactivate"
	ChangeTypeAdminEdit  ChangeType = "admin_edit"
)

// ChangeTypeForPlans classifies a move between two plans
func ChangeTypeForPlans(from, to Plan) ChangeType {
	if to.Rank() >= from.Rank() {
		return ChangeTypeUpgrade
	}
	return ChangeTypeDowngrade
}
