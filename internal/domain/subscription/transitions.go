package subscription

import (
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/samber/lo"
)

// Operation names a lifecycle entry point that may move a subscription
// between statuses.
type Operation string

const (
	OpConvertTrial          Operation = "convert_trial"
	OpReserveTrialConvert   Operation = "reserve_trial_conversion"
	OpChangePlan            Operation = "change_plan"
	OpSchedulePlanChange    Operation = "schedule_plan_change"
	OpCancelScheduledChange Operation = "cancel_scheduled_change"
	OpScheduleCancel        Operation = "schedule_cancel"
	OpCancelImmediate       Operation = "cancel_immediate"
	OpCancelTrial           Operation = "cancel_trial"
	OpReactivate            Operation = "reactivate"
	OpResubscribe           Operation = "resubscribe"
	OpRenew                 Operation = "renew"
	OpExpireTrial           Operation = "expire_trial"
	OpExpirePendingCancel   Operation = "expire_pending_cancel"
)

// Transition is one row of the lifecycle table
type Transition struct {
	From []types.SubscriptionStatus
	To   types.SubscriptionStatus
}

// Transitions is the complete lifecycle table. Anything not listed is refused.
var Transitions = map[Operation]Transition{
	OpConvertTrial: {
		From: []types.SubscriptionStatus{types.SubscriptionStatusTrial},
		To:   types.SubscriptionStatusActive,
	},
	OpReserveTrialConvert: {
		From: []types.SubscriptionStatus{types.SubscriptionStatusTrial},
		To:   types.SubscriptionStatusTrial,
	},
	OpChangePlan: {
		From: []types.SubscriptionStatus{types.SubscriptionStatusActive},
		To:   types.SubscriptionStatusActive,
	},
	OpSchedulePlanChange: {
		From: []types.SubscriptionStatus{types.SubscriptionStatusActive},
		To:   types.SubscriptionStatusActive,
	},
	OpCancelScheduledChange: {
		From: []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusTrial},
		To:   "",
	},
	OpScheduleCancel: {
		From: []types.SubscriptionStatus{types.SubscriptionStatusActive},
		To:   types.SubscriptionStatusPendingCancel,
	},
	OpCancelImmediate: {
		From: []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusPendingCancel},
		To:   types.SubscriptionStatusCanceled,
	},
	OpCancelTrial: {
		From: []types.SubscriptionStatus{types.SubscriptionStatusTrial},
		To:   types.SubscriptionStatusCanceled,
	},
	OpReactivate: {
		From: []types.SubscriptionStatus{types.SubscriptionStatusPendingCancel},
		To:   types.SubscriptionStatusActive,
	},
	OpResubscribe: {
		From: []types.SubscriptionStatus{types.SubscriptionStatusCanceled, types.SubscriptionStatusExpired},
		To:   types.SubscriptionStatusActive,
	},
	OpRenew: {
		From: []types.SubscriptionStatus{types.SubscriptionStatusActive},
		To:   types.SubscriptionStatusActive,
	},
	OpExpireTrial: {
		From: []types.SubscriptionStatus{types.SubscriptionStatusTrial},
		To:   types.SubscriptionStatusExpired,
	},
	OpExpirePendingCancel: {
		From: []types.SubscriptionStatus{types.SubscriptionStatusPendingCancel},
		To:   types.SubscriptionStatusExpired,
	},
}

// CanTransition returns the status op leads to from the given status, or a
// conflict error when the table does not allow it. An empty target means the
// status is left unchanged.
func CanTransition(op Operation, from types.SubscriptionStatus) (types.SubscriptionStatus, error) {
	t, ok := Transitions[op]
	if !ok {
		return "", ierr.NewErrorf("unknown lifecycle operation %s", op).
			Mark(ierr.ErrSystem)
	}
	if !lo.Contains(t.From, from) {
		return "", ierr.NewErrorf("%s not allowed from %s", op, from).
			WithHintf("Subscription in status %s cannot perform %s", from, op).
			WithReportableDetails(map[string]any{
				"operation":      op,
				"current_status": from,
				"allowed_from":   t.From,
			}).
			Mark(ierr.ErrConflict)
	}
	if t.To == "" {
		return from, nil
	}
	return t.To, nil
}

// CancelOperation picks the cancel row matching the current status and mode
func CancelOperation(from types.SubscriptionStatus, mode types.CancelMode) Operation {
	if from == types.SubscriptionStatusTrial {
		return OpCancelTrial
	}
	if mode == types.CancelModeImmediate {
		return OpCancelImmediate
	}
	return OpScheduleCancel
}
