package history

import (
	"context"
	"time"

	"github.com/acctportal/billingcore/internal/types"
)

type Repository interface {
	// Create appends a segment. Opening a second open segment for a tenant
	// fails with ErrAlreadyExists.
	Create(ctx context.Context, r *Record) error
	// GetOpen returns the tenant's open segment or ErrNotFound
	GetOpen(ctx context.Context, tenantID string) (*Record, error)
	// Close stamps PeriodEnd on an open segment. Closing an already closed
	// segment fails with ErrVersionConflict.
	Close(ctx context.Context, tenantID, id string, periodEnd time.Time) error
	// ListByTenant returns segments newest first
	ListByTenant(ctx context.Context, tenantID string, filter types.PageFilter) ([]*Record, error)
	// ListByOwner aggregates segments of every tenant owned by the user, newest first
	ListByOwner(ctx context.Context, ownerUserID string, filter types.PageFilter) ([]*Record, error)
	CountByTenant(ctx context.Context, tenantID string) (int, error)
	CountByOwner(ctx context.Context, ownerUserID string) (int, error)
}
