package service

import (
	"context"
	"time"

	"github.com/acctportal/billingcore/internal/api/dto"
	"github.com/acctportal/billingcore/internal/domain/proration"
	"github.com/acctportal/billingcore/internal/domain/subscription"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/types"
)

func (s *subscriptionService) PreviewPlanChange(ctx context.Context, tenantID string, plan types.Plan, requester dto.Requester) (*dto.PlanChangePreviewResponse, error) {
	if err := validateTenant(tenantID); err != nil {
		return nil, err
	}
	price, err := s.planPrice(plan)
	if err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := authorize(sub, requester); err != nil {
		return nil, err
	}
	if _, err := subscription.CanTransition(subscription.OpChangePlan, sub.Status); err != nil {
		return nil, err
	}

	prorated, err := s.prorate(sub, price, s.now())
	if err != nil {
		return nil, err
	}

	return &dto.PlanChangePreviewResponse{
		CurrentPlan: sub.Plan,
		NewPlan:     plan,
		ChangeType:  types.ChangeTypeForPlans(sub.Plan, plan),
		Proration:   prorated,
	}, nil
}

// prorate prices an immediate switch of sub to a plan costing price. When
// the current amount already covers a partial cycle, the new price is spread
// over the approximated full cycle instead of the partial one.
func (s *subscriptionService) prorate(sub *subscription.Subscription, price int64, now time.Time) (*proration.Result, error) {
	if sub.NextBillingDate == nil {
		return nil, ierr.NewError("subscription has no next billing date").
			WithHint("The current billing period cannot be prorated").
			WithReportableDetails(map[string]any{
				"tenant_id": sub.TenantID,
				"status":    sub.Status,
			}).
			Mark(ierr.ErrConflict)
	}

	in := proration.Input{
		CurrentAmount:           sub.Amount,
		CurrentAmountPeriodDays: sub.AmountPeriodDays,
		NewPlanPrice:            price,
		PeriodStart:             sub.CurrentPeriodStart,
		NextBillingDate:         *sub.NextBillingDate,
		Today:                   now,
	}
	if sub.IsProrated() {
		in.NewPlanBasisDays = s.calc.CycleDays(*sub.NextBillingDate)
	}
	return s.calc.Calculate(in)
}
