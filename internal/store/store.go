package store

import (
	"context"
)

// Transactor runs fn as one atomic unit of work. Repositories called with
// the ctx handed to fn take part in the same unit; if fn returns an error
// nothing it wrote is kept.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
