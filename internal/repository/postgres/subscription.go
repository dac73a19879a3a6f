package postgres

import (
	"context"
	"time"

	"github.com/acctportal/billingcore/internal/domain/subscription"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/postgres"
	"github.com/acctportal/billingcore/internal/security"
)

type subscriptionRepository struct {
	db         *postgres.DB
	encryption security.EncryptionService
	logger     *logger.Logger
}

func NewSubscriptionRepository(db *postgres.DB, encryption security.EncryptionService, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, encryption: encryption, logger: logger}
}

const subscriptionColumns = `
	id, tenant_id, owner_user_id, email, display_name, plan, status,
	amount, base_amount, amount_period_days, currency,
	current_period_start, current_period_end, next_billing_date, previous_next_billing_date,
	billing_key, customer_key, card_info, pending_plan, pending_amount,
	cancel_mode, cancel_reason, canceled_at, previous_plan, previous_amount,
	version, created_at, updated_at, created_by, updated_by`

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `
		) VALUES (
			:id, :tenant_id, :owner_user_id, :email, :display_name, :plan, :status,
			:amount, :base_amount, :amount_period_days, :currency,
			:current_period_start, :current_period_end, :next_billing_date, :previous_next_billing_date,
			:billing_key, :customer_key, :card_info, :pending_plan, :pending_amount,
			:cancel_mode, :cancel_reason, :canceled_at, :previous_plan, :previous_amount,
			:version, :created_at, :updated_at, :created_by, :updated_by
		)`

	if sub.Version == 0 {
		sub.Version = 1
	}
	row, err := r.sealed(sub)
	if err != nil {
		return err
	}

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, row); err != nil {
		return postgres.WrapError(err, "subscription")
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE tenant_id = $1`

	var sub subscription.Subscription
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &sub, query, tenantID); err != nil {
		return nil, postgres.WrapError(err, "subscription")
	}
	if err := r.open(&sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		UPDATE subscriptions SET
			owner_user_id = :owner_user_id,
			email = :email,
			display_name = :display_name,
			plan = :plan,
			status = :status,
			amount = :amount,
			base_amount = :base_amount,
			amount_period_days = :amount_period_days,
			currency = :currency,
			current_period_start = :current_period_start,
			current_period_end = :current_period_end,
			next_billing_date = :next_billing_date,
			previous_next_billing_date = :previous_next_billing_date,
			billing_key = :billing_key,
			customer_key = :customer_key,
			card_info = :card_info,
			pending_plan = :pending_plan,
			pending_amount = :pending_amount,
			cancel_mode = :cancel_mode,
			cancel_reason = :cancel_reason,
			canceled_at = :canceled_at,
			previous_plan = :previous_plan,
			previous_amount = :previous_amount,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE tenant_id = :tenant_id AND version = :version`

	sub.UpdatedAt = time.Now().UTC()
	row, err := r.sealed(sub)
	if err != nil {
		return err
	}

	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, row)
	if err != nil {
		return postgres.WrapError(err, "subscription")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return postgres.WrapError(err, "subscription")
	}
	if affected == 0 {
		return ierr.NewError("subscription was modified concurrently").
			WithHint("The subscription changed while this request was running. Please retry.").
			WithReportableDetails(map[string]any{
				"tenant_id": sub.TenantID,
				"version":   sub.Version,
			}).
			Mark(ierr.ErrVersionConflict)
	}

	sub.Version++
	return nil
}

func (r *subscriptionRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE owner_user_id = $1 ORDER BY created_at`

	var subs []*subscription.Subscription
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &subs, query, ownerUserID); err != nil {
		return nil, postgres.WrapError(err, "subscription")
	}
	for _, sub := range subs {
		if err := r.open(sub); err != nil {
			return nil, err
		}
	}
	return subs, nil
}

// sealed returns a copy with the billing key encrypted
func (r *subscriptionRepository) sealed(sub *subscription.Subscription) (*subscription.Subscription, error) {
	row := sub.Clone()
	if row.BillingKey == "" {
		return row, nil
	}
	enc, err := r.encryption.Encrypt(row.BillingKey)
	if err != nil {
		return nil, err
	}
	row.BillingKey = enc
	return row, nil
}

func (r *subscriptionRepository) open(sub *subscription.Subscription) error {
	if sub.BillingKey == "" {
		return nil
	}
	plain, err := r.encryption.Decrypt(sub.BillingKey)
	if err != nil {
		return err
	}
	sub.BillingKey = plain
	return nil
}
