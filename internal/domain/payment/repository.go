package payment

import (
	"context"

	"github.com/acctportal/billingcore/internal/types"
)

// Repository persists ledger rows. Rows are never updated except for the
// refunded amount of a charge.
type Repository interface {
	// Create inserts a row. A second row with the same tenant, idempotency
	// key and transaction type fails with ErrAlreadyExists.
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, tenantID, id string) (*Payment, error)
	// ListByIdempotencyKey returns every row written under the key
	ListByIdempotencyKey(ctx context.Context, tenantID, key string) ([]*Payment, error)
	// GetLatestCharge returns the most recent done charge or ErrNotFound
	GetLatestCharge(ctx context.Context, tenantID string) (*Payment, error)
	// AddRefundedAmount bumps the refunded total of a charge. It fails with
	// ErrVersionConflict when the bump would exceed the charge amount.
	AddRefundedAmount(ctx context.Context, tenantID, id string, delta int64) error
	List(ctx context.Context, tenantID string, filter types.PageFilter) ([]*Payment, error)
}
