package testutil

import (
	"context"
	"sync"

	"github.com/acctportal/billingcore/internal/domain/payment"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/samber/lo"
)

// InMemoryPaymentStore implements payment.Repository
type InMemoryPaymentStore struct {
	*InMemoryStore[*payment.Payment]

	// rows written at the same pinned clock still come back in insert order
	seqMu sync.Mutex
	seq   map[string]int
}

var _ payment.Repository = (*InMemoryPaymentStore)(nil)

func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		InMemoryStore: NewInMemoryStore(copyPayment),
		seq:           make(map[string]int),
	}
}

func copyPayment(p *payment.Payment) *payment.Payment {
	if p == nil {
		return nil
	}
	copied := *p
	if p.ApprovedAt != nil {
		approved := *p.ApprovedAt
		copied.ApprovedAt = &approved
	}
	return &copied
}

func (s *InMemoryPaymentStore) Create(ctx context.Context, p *payment.Payment) error {
	if p.IdempotencyKey != "" {
		_, dup := lo.Find(s.forTenant(ctx, p.TenantID), func(existing *payment.Payment) bool {
			return existing.IdempotencyKey == p.IdempotencyKey && existing.TransactionType == p.TransactionType
		})
		if dup {
			return ierr.NewError("payment with this idempotency key already exists").
				WithHint("This payment was already recorded").
				WithReportableDetails(map[string]any{
					"idempotency_key":  p.IdempotencyKey,
					"transaction_type": p.TransactionType,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
	}
	if err := s.InMemoryStore.Create(ctx, p.ID, p); err != nil {
		return err
	}
	s.seqMu.Lock()
	s.seq[p.ID] = len(s.seq) + 1
	s.seqMu.Unlock()
	return nil
}

func (s *InMemoryPaymentStore) Get(ctx context.Context, tenantID, id string) (*payment.Payment, error) {
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || p.TenantID != tenantID {
		return nil, ierr.NewError("payment not found").
			WithHintf("Payment %s not found", id).
			Mark(ierr.ErrNotFound)
	}
	return p, nil
}

func (s *InMemoryPaymentStore) ListByIdempotencyKey(ctx context.Context, tenantID, key string) ([]*payment.Payment, error) {
	return lo.Filter(s.forTenant(ctx, tenantID), func(p *payment.Payment, _ int) bool {
		return p.IdempotencyKey == key
	}), nil
}

func (s *InMemoryPaymentStore) GetLatestCharge(ctx context.Context, tenantID string) (*payment.Payment, error) {
	charges := lo.Filter(s.forTenant(ctx, tenantID), func(p *payment.Payment, _ int) bool {
		return p.TransactionType == types.TransactionTypeCharge && p.Status == types.PaymentStatusDone
	})
	if len(charges) == 0 {
		return nil, ierr.NewError("no charge found").
			WithHint("No completed charge found").
			Mark(ierr.ErrNotFound)
	}
	return charges[0], nil
}

func (s *InMemoryPaymentStore) AddRefundedAmount(ctx context.Context, tenantID, id string, delta int64) error {
	return s.Mutate(ctx, id, func(p *payment.Payment) (*payment.Payment, error) {
		if p.TenantID != tenantID || p.RefundedAmount+delta > p.Amount {
			return nil, ierr.NewError("refund exceeds the charge").
				WithHint("The charge was refunded concurrently. Please retry").
				WithReportableDetails(map[string]any{
					"payment_id":      id,
					"refunded_amount": p.RefundedAmount,
					"delta":           delta,
				}).
				Mark(ierr.ErrVersionConflict)
		}
		p.RefundedAmount += delta
		return p, nil
	})
}

func (s *InMemoryPaymentStore) List(ctx context.Context, tenantID string, filter types.PageFilter) ([]*payment.Payment, error) {
	return types.Page(s.forTenant(ctx, tenantID), filter), nil
}

// forTenant returns the tenant's rows newest first
func (s *InMemoryPaymentStore) forTenant(ctx context.Context, tenantID string) []*payment.Payment {
	return s.InMemoryStore.List(ctx,
		func(_ context.Context, p *payment.Payment) bool { return p.TenantID == tenantID },
		func(i, j *payment.Payment) bool {
			if i.CreatedAt.Equal(j.CreatedAt) {
				return s.order(i.ID) > s.order(j.ID)
			}
			return i.CreatedAt.After(j.CreatedAt)
		},
	)
}

func (s *InMemoryPaymentStore) order(id string) int {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	return s.seq[id]
}
