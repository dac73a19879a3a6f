package card

import (
	"context"
)

type Repository interface {
	Create(ctx context.Context, c *Card) error
	Get(ctx context.Context, tenantID, id string) (*Card, error)
	// ListByTenant returns cards oldest first
	ListByTenant(ctx context.Context, tenantID string) ([]*Card, error)
	Update(ctx context.Context, c *Card) error
	Delete(ctx context.Context, tenantID, id string) error
}
