package postgres

import (
	"context"

	"github.com/acctportal/billingcore/internal/cache"
	"github.com/acctportal/billingcore/internal/domain/payment"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/postgres"
	"github.com/acctportal/billingcore/internal/types"
)

type paymentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
	cache  cache.Cache
}

func NewPaymentRepository(db *postgres.DB, logger *logger.Logger, cache cache.Cache) payment.Repository {
	return &paymentRepository{db: db, logger: logger, cache: cache}
}

const paymentColumns = `
	id, tenant_id, order_id, order_name, payment_key, amount, currency,
	transaction_type, type, status, plan, original_payment_id, refunded_amount,
	idempotency_key, method, receipt_url, card_info, failure_code, failure_message,
	approved_at, created_at, updated_at, created_by, updated_by`

func (r *paymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `
		) VALUES (
			:id, :tenant_id, :order_id, :order_name, :payment_key, :amount, :currency,
			:transaction_type, :type, :status, :plan, :original_payment_id, :refunded_amount,
			:idempotency_key, :method, :receipt_url, :card_info, :failure_code, :failure_message,
			:approved_at, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("creating payment",
		"payment_id", p.ID,
		"tenant_id", p.TenantID,
		"order_id", p.OrderID,
		"transaction_type", p.TransactionType,
		"amount", p.Amount,
	)

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, p); err != nil {
		return postgres.WrapError(err, "payment")
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, tenantID, id string) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tenant_id = $1 AND id = $2`

	var p payment.Payment
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &p, query, tenantID, id); err != nil {
		return nil, postgres.WrapError(err, "payment")
	}
	return &p, nil
}

// ListByIdempotencyKey serves replays. Committed non-empty results are
// cached since rows under a key are only ever added by the one saga.
func (r *paymentRepository) ListByIdempotencyKey(ctx context.Context, tenantID, key string) ([]*payment.Payment, error) {
	_, inTx := postgres.GetTx(ctx)
	cacheKey := cache.GenerateKey(cache.PrefixPaymentByIdempotencyKey, tenantID, key)
	if !inTx {
		if v, ok := r.cache.Get(ctx, cacheKey); ok {
			if rows, ok := v.([]*payment.Payment); ok {
				return rows, nil
			}
		}
	}

	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE tenant_id = $1 AND idempotency_key = $2
		ORDER BY created_at, id`

	var rows []*payment.Payment
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, tenantID, key); err != nil {
		return nil, postgres.WrapError(err, "payment")
	}

	if !inTx && len(rows) > 0 {
		r.cache.Set(ctx, cacheKey, rows, 0)
	}
	return rows, nil
}

func (r *paymentRepository) GetLatestCharge(ctx context.Context, tenantID string) (*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE tenant_id = $1 AND transaction_type = $2 AND status = $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var p payment.Payment
	err := r.db.GetQuerier(ctx).GetContext(ctx, &p, query,
		tenantID, types.TransactionTypeCharge, types.PaymentStatusDone)
	if err != nil {
		return nil, postgres.WrapError(err, "charge")
	}
	return &p, nil
}

func (r *paymentRepository) AddRefundedAmount(ctx context.Context, tenantID, id string, delta int64) error {
	query := `
		UPDATE payments
		SET refunded_amount = refunded_amount + $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND refunded_amount + $3 <= amount`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, tenantID, id, delta)
	if err != nil {
		return postgres.WrapError(err, "payment")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return postgres.WrapError(err, "payment")
	}
	if affected == 0 {
		return ierr.NewError("refund exceeds the charge's refundable amount").
			WithHint("The charge was refunded concurrently. Please retry.").
			WithReportableDetails(map[string]any{
				"payment_id": id,
				"delta":      delta,
			}).
			Mark(ierr.ErrVersionConflict)
	}

	r.cache.DeleteByPrefix(ctx, cache.GenerateKey(cache.PrefixPaymentByIdempotencyKey, tenantID)+":")
	return nil
}

func (r *paymentRepository) List(ctx context.Context, tenantID string, filter types.PageFilter) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	var rows []*payment.Payment
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, tenantID, filter.GetLimit(), filter.GetOffset())
	if err != nil {
		return nil, postgres.WrapError(err, "payment")
	}
	return rows, nil
}
