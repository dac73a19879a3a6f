package testutil

import (
	"context"
	"time"

	"github.com/acctportal/billingcore/internal/domain/history"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/samber/lo"
)

// InMemoryHistoryStore implements history.Repository including the single
// open segment rule the Postgres partial index enforces
type InMemoryHistoryStore struct {
	*InMemoryStore[*history.Record]
}

var _ history.Repository = (*InMemoryHistoryStore)(nil)

func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{
		InMemoryStore: NewInMemoryStore(copyHistoryRecord),
	}
}

func copyHistoryRecord(r *history.Record) *history.Record {
	if r == nil {
		return nil
	}
	copied := *r
	if r.PeriodEnd != nil {
		end := *r.PeriodEnd
		copied.PeriodEnd = &end
	}
	return &copied
}

func (s *InMemoryHistoryStore) Create(ctx context.Context, r *history.Record) error {
	if r.IsOpen() {
		if _, err := s.GetOpen(ctx, r.TenantID); err == nil {
			return ierr.NewError("tenant already has an open history segment").
				WithHint("Close the current segment before opening a new one").
				WithReportableDetails(map[string]any{
					"tenant_id": r.TenantID,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
	}
	return s.InMemoryStore.Create(ctx, r.ID, r)
}

func (s *InMemoryHistoryStore) GetOpen(ctx context.Context, tenantID string) (*history.Record, error) {
	open := s.List(ctx, func(_ context.Context, r *history.Record) bool {
		return r.TenantID == tenantID && r.IsOpen()
	}, nil)
	if len(open) == 0 {
		return nil, ierr.NewError("no open history segment").
			WithHint("No open history segment").
			Mark(ierr.ErrNotFound)
	}
	return open[0], nil
}

func (s *InMemoryHistoryStore) Close(ctx context.Context, tenantID, id string, periodEnd time.Time) error {
	return s.Mutate(ctx, id, func(r *history.Record) (*history.Record, error) {
		if r.TenantID != tenantID || !r.IsOpen() {
			return nil, ierr.NewError("history segment already closed").
				WithHint("The history segment was closed concurrently").
				WithReportableDetails(map[string]any{
					"record_id": id,
				}).
				Mark(ierr.ErrVersionConflict)
		}
		r.PeriodEnd = lo.ToPtr(periodEnd)
		return r, nil
	})
}

func (s *InMemoryHistoryStore) ListByTenant(ctx context.Context, tenantID string, filter types.PageFilter) ([]*history.Record, error) {
	records := s.List(ctx, func(_ context.Context, r *history.Record) bool { return r.TenantID == tenantID }, newestSegmentFirst)
	return types.Page(records, filter), nil
}

func (s *InMemoryHistoryStore) ListByOwner(ctx context.Context, ownerUserID string, filter types.PageFilter) ([]*history.Record, error) {
	records := s.List(ctx, func(_ context.Context, r *history.Record) bool { return r.OwnerUserID == ownerUserID }, newestSegmentFirst)
	return types.Page(records, filter), nil
}

func (s *InMemoryHistoryStore) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	return len(s.List(ctx, func(_ context.Context, r *history.Record) bool { return r.TenantID == tenantID }, nil)), nil
}

func (s *InMemoryHistoryStore) CountByOwner(ctx context.Context, ownerUserID string) (int, error) {
	return len(s.List(ctx, func(_ context.Context, r *history.Record) bool { return r.OwnerUserID == ownerUserID }, nil)), nil
}

// newestSegmentFirst puts the open segment ahead of closed ones that share its start
func newestSegmentFirst(i, j *history.Record) bool {
	if !i.PeriodStart.Equal(j.PeriodStart) {
		return i.PeriodStart.After(j.PeriodStart)
	}
	if i.IsOpen() != j.IsOpen() {
		return i.IsOpen()
	}
	if i.PeriodEnd != nil && j.PeriodEnd != nil && !i.PeriodEnd.Equal(*j.PeriodEnd) {
		return i.PeriodEnd.After(*j.PeriodEnd)
	}
	return i.ChangedAt.After(j.ChangedAt)
}
