package service

import (
	"context"
	"time"

	"github.com/acctportal/billingcore/internal/api/dto"
	"github.com/acctportal/billingcore/internal/domain/history"
	"github.com/acctportal/billingcore/internal/domain/subscription"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/types"
)

// HistoryService reads the subscription history ledger
type HistoryService interface {
	ListByTenant(ctx context.Context, tenantID string, requester dto.Requester, filter types.PageFilter) (*dto.ListHistoryResponse, error)
	// ListByOwner aggregates every tenant the user owns, newest first
	ListByOwner(ctx context.Context, ownerUserID string, requester dto.Requester, filter types.PageFilter) (*dto.ListHistoryResponse, error)
}

type historyService struct {
	ServiceParams
}

func NewHistoryService(params ServiceParams) HistoryService {
	return &historyService{ServiceParams: params}
}

func (s *historyService) ListByTenant(ctx context.Context, tenantID string, requester dto.Requester, filter types.PageFilter) (*dto.ListHistoryResponse, error) {
	sub, err := s.SubRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := authorize(sub, requester); err != nil {
		return nil, err
	}

	records, err := s.HistoryRepo.ListByTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.HistoryRepo.CountByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	resp := types.NewListResponse(records, total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}

func (s *historyService) ListByOwner(ctx context.Context, ownerUserID string, requester dto.Requester, filter types.PageFilter) (*dto.ListHistoryResponse, error) {
	if !requester.IsAdmin && requester.RequesterUserID != ownerUserID {
		return nil, permissionDenied(ownerUserID)
	}

	records, err := s.HistoryRepo.ListByOwner(ctx, ownerUserID, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.HistoryRepo.CountByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	resp := types.NewListResponse(records, total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}

// recordTransition closes the tenant's open segment at `at` and opens the
// next one at the same instant with sub's plan, status and amount. It must
// run inside the transaction that writes sub.
func recordTransition(ctx context.Context, repo history.Repository, sub *subscription.Subscription, changeType types.ChangeType, at time.Time, note string) (*history.Record, error) {
	open, err := repo.GetOpen(ctx, sub.TenantID)
	switch {
	case err == nil:
		if err := repo.Close(ctx, sub.TenantID, open.ID, at); err != nil {
			return nil, err
		}
	case ierr.IsNotFound(err):
		// first segment of the tenant
	default:
		return nil, err
	}

	record := &history.Record{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_HISTORY),
		TenantID:    sub.TenantID,
		OwnerUserID: sub.OwnerUserID,
		Plan:        sub.Plan,
		Status:      sub.Status,
		Amount:      sub.Amount,
		PeriodStart: at,
		ChangeType:  changeType,
		ChangedAt:   at,
		ChangedBy:   types.GetUserID(ctx),
		Note:        note,
	}
	if err := repo.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// authorize lets admins through and otherwise requires the owning user
func authorize(sub *subscription.Subscription, requester dto.Requester) error {
	if requester.IsAdmin || requester.RequesterUserID == sub.OwnerUserID {
		return nil
	}
	return permissionDenied(sub.TenantID)
}

func permissionDenied(resource string) error {
	return ierr.NewError("requester does not own this subscription").
		WithHint("You do not have access to this subscription").
		WithReportableDetails(map[string]any{
			"resource": resource,
		}).
		Mark(ierr.ErrPermissionDenied)
}
