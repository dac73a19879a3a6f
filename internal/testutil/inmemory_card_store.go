package testutil

import (
	"context"

	"github.com/acctportal/billingcore/internal/domain/card"
	ierr "github.com/acctportal/billingcore/internal/errors"
)

// InMemoryCardStore implements card.Repository
type InMemoryCardStore struct {
	*InMemoryStore[*card.Card]
}

var _ card.Repository = (*InMemoryCardStore)(nil)

func NewInMemoryCardStore() *InMemoryCardStore {
	return &InMemoryCardStore{
		InMemoryStore: NewInMemoryStore(func(c *card.Card) *card.Card {
			copied := *c
			return &copied
		}),
	}
}

func (s *InMemoryCardStore) Create(ctx context.Context, c *card.Card) error {
	return s.InMemoryStore.Create(ctx, c.ID, c)
}

func (s *InMemoryCardStore) Get(ctx context.Context, tenantID, id string) (*card.Card, error) {
	c, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || c.TenantID != tenantID {
		return nil, cardNotFound(id)
	}
	return c, nil
}

func (s *InMemoryCardStore) ListByTenant(ctx context.Context, tenantID string) ([]*card.Card, error) {
	return s.List(ctx,
		func(_ context.Context, c *card.Card) bool { return c.TenantID == tenantID },
		func(i, j *card.Card) bool {
			if i.CreatedAt.Equal(j.CreatedAt) {
				return i.ID < j.ID
			}
			return i.CreatedAt.Before(j.CreatedAt)
		},
	), nil
}

func (s *InMemoryCardStore) Update(ctx context.Context, c *card.Card) error {
	return s.Mutate(ctx, c.ID, func(stored *card.Card) (*card.Card, error) {
		if stored.TenantID != c.TenantID {
			return nil, cardNotFound(c.ID)
		}
		return c, nil
	})
}

func (s *InMemoryCardStore) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return err
	}
	return s.InMemoryStore.Delete(ctx, id)
}

// Primaries counts primary cards of the tenant
func (s *InMemoryCardStore) Primaries(ctx context.Context, tenantID string) int {
	cards, _ := s.ListByTenant(ctx, tenantID)
	n := 0
	for _, c := range cards {
		if c.IsPrimary {
			n++
		}
	}
	return n
}

func cardNotFound(id string) error {
	return ierr.NewError("card not found").
		WithHint("Card not found").
		WithReportableDetails(map[string]any{
			"card_id": id,
		}).
		Mark(ierr.ErrNotFound)
}
