package subscription

import (
	"context"
)

// Repository persists subscriptions. Reads and writes join the transaction
// carried by ctx when there is one.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	// Get returns the tenant's subscription or ErrNotFound
	Get(ctx context.Context, tenantID string) (*Subscription, error)
	// Update writes sub only if the stored version still equals sub.Version,
	// returning ErrVersionConflict otherwise. On success sub.Version is bumped.
	Update(ctx context.Context, sub *Subscription) error
	// ListByOwner returns every subscription owned by the user across tenants
	ListByOwner(ctx context.Context, ownerUserID string) ([]*Subscription, error)
}
