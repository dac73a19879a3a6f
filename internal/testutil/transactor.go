package testutil

import (
	"context"
	"sync"

	"github.com/acctportal/billingcore/internal/store"
)

type snapshotter interface {
	snapshot() func()
}

type txKey struct{}

var _ store.Transactor = (*InMemoryTransactor)(nil)

// InMemoryTransactor gives the in-memory stores transaction semantics: a
// snapshot is taken when the outermost WithTx starts and restored if fn
// fails. Transactions are serialized.
type InMemoryTransactor struct {
	mu     sync.Mutex
	stores []snapshotter

	// FailNext, when set, is returned by the next outermost WithTx after fn
	// ran, forcing a rollback
	FailNext error

	commits   int
	rollbacks int
}

func NewInMemoryTransactor(stores ...snapshotter) *InMemoryTransactor {
	return &InMemoryTransactor{stores: stores}
}

func (t *InMemoryTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	restores := make([]func(), 0, len(t.stores))
	for _, s := range t.stores {
		restores = append(restores, s.snapshot())
	}

	err := fn(context.WithValue(ctx, txKey{}, true))
	if err == nil && t.FailNext != nil {
		err, t.FailNext = t.FailNext, nil
	}
	if err != nil {
		for _, restore := range restores {
			restore()
		}
		t.rollbacks++
		return err
	}
	t.commits++
	return nil
}

func (t *InMemoryTransactor) Commits() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commits
}

func (t *InMemoryTransactor) Rollbacks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollbacks
}
