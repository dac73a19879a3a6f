package subscription

import (
	"testing"

	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []types.SubscriptionStatus{
	types.SubscriptionStatusTrial,
	types.SubscriptionStatusActive,
	types.SubscriptionStatusPendingCancel,
	types.SubscriptionStatusCanceled,
	types.SubscriptionStatusExpired,
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		op   Operation
		from types.SubscriptionStatus
		to   types.SubscriptionStatus
	}{
		{OpConvertTrial, types.SubscriptionStatusTrial, types.SubscriptionStatusActive},
		{OpScheduleCancel, types.SubscriptionStatusActive, types.SubscriptionStatusPendingCancel},
		{OpCancelImmediate, types.SubscriptionStatusActive, types.SubscriptionStatusCanceled},
		{OpCancelImmediate, types.SubscriptionStatusPendingCancel, types.SubscriptionStatusCanceled},
		{OpCancelTrial, types.SubscriptionStatusTrial, types.SubscriptionStatusCanceled},
		{OpResubscribe, types.SubscriptionStatusCanceled, types.SubscriptionStatusActive},
		{OpResubscribe, types.SubscriptionStatusExpired, types.SubscriptionStatusActive},
		{OpChangePlan, types.SubscriptionStatusActive, types.SubscriptionStatusActive},
		{OpReactivate, types.SubscriptionStatusPendingCancel, types.SubscriptionStatusActive},
		{OpCancelScheduledChange, types.SubscriptionStatusTrial, types.SubscriptionStatusTrial},
		{OpExpirePendingCancel, types.SubscriptionStatusPendingCancel, types.SubscriptionStatusExpired},
	}

	for _, tt := range tests {
		t.Run(string(tt.op)+"_from_"+string(tt.from), func(t *testing.T) {
			to, err := CanTransition(tt.op, tt.from)
			require.NoError(t, err)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestPlanChangeOnlyFromActive(t *testing.T) {
	for _, status := range allStatuses {
		_, err := CanTransition(OpChangePlan, status)
		if status == types.SubscriptionStatusActive {
			assert.NoError(t, err)
			continue
		}
		assert.True(t, ierr.IsConflict(err), "status %s", status)
	}
}

func TestTerminalStatusesOnlyResubscribe(t *testing.T) {
	for op := range Transitions {
		for _, status := range []types.SubscriptionStatus{types.SubscriptionStatusCanceled, types.SubscriptionStatusExpired} {
			_, err := CanTransition(op, status)
			if op == OpResubscribe {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err, "%s from %s", op, status)
			}
		}
	}
}

func TestPastDueIsNotWired(t *testing.T) {
	for op, tr := range Transitions {
		assert.NotContains(t, tr.From, types.SubscriptionStatusPastDue, op)
		assert.NotEqual(t, types.SubscriptionStatusPastDue, tr.To, op)
	}
	assert.Error(t, types.SubscriptionStatusPastDue.Validate())
}

func TestCancelOperation(t *testing.T) {
	assert.Equal(t, OpCancelTrial, CancelOperation(types.SubscriptionStatusTrial, types.CancelModeImmediate))
	assert.Equal(t, OpCancelTrial, CancelOperation(types.SubscriptionStatusTrial, types.CancelModeScheduled))
	assert.Equal(t, OpCancelImmediate, CancelOperation(types.SubscriptionStatusActive, types.CancelModeImmediate))
	assert.Equal(t, OpScheduleCancel, CancelOperation(types.SubscriptionStatusActive, types.CancelModeScheduled))
}
