package testutil

import (
	"context"

	"github.com/acctportal/billingcore/internal/domain/subscription"
	ierr "github.com/acctportal/billingcore/internal/errors"
)

// InMemorySubscriptionStore implements subscription.Repository, keyed by tenant
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
}

var _ subscription.Repository = (*InMemorySubscriptionStore)(nil)

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore(func(sub *subscription.Subscription) *subscription.Subscription {
			return sub.Clone()
		}),
	}
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").
			WithHint("Subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if sub.Version == 0 {
		sub.Version = 1
	}
	return s.InMemoryStore.Create(ctx, sub.TenantID, sub)
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, tenantID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Subscription for tenant %s not found", tenantID).
			Mark(ierr.ErrNotFound)
	}
	return sub, nil
}

// Update enforces the same optimistic version check as the real stores
func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	err := s.Mutate(ctx, sub.TenantID, func(stored *subscription.Subscription) (*subscription.Subscription, error) {
		if stored.Version != sub.Version {
			return nil, ierr.NewError("subscription was modified concurrently").
				WithHint("The subscription changed while the request was processed. Please retry").
				WithReportableDetails(map[string]any{
					"tenant_id":      sub.TenantID,
					"version":        sub.Version,
					"stored_version": stored.Version,
				}).
				Mark(ierr.ErrVersionConflict)
		}
		next := sub.Clone()
		next.Version++
		return next, nil
	})
	if err != nil {
		return err
	}
	sub.Version++
	return nil
}

func (s *InMemorySubscriptionStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*subscription.Subscription, error) {
	return s.List(ctx,
		func(_ context.Context, sub *subscription.Subscription) bool { return sub.OwnerUserID == ownerUserID },
		func(i, j *subscription.Subscription) bool { return i.CreatedAt.After(j.CreatedAt) },
	), nil
}
