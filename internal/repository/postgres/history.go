package postgres

import (
	"context"
	"time"

	"github.com/acctportal/billingcore/internal/domain/history"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/postgres"
	"github.com/acctportal/billingcore/internal/types"
)

type historyRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewHistoryRepository(db *postgres.DB, logger *logger.Logger) history.Repository {
	return &historyRepository{db: db, logger: logger}
}

const historyColumns = `
	id, tenant_id, owner_user_id, plan, status, amount, period_start, period_end,
	change_type, changed_at, changed_by, note`

// Create relies on idx_subscription_history_open to reject a second open segment
func (r *historyRepository) Create(ctx context.Context, rec *history.Record) error {
	query := `
		INSERT INTO subscription_history (` + historyColumns + `
		) VALUES (
			:id, :tenant_id, :owner_user_id, :plan, :status, :amount, :period_start, :period_end,
			:change_type, :changed_at, :changed_by, :note
		)`

	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, rec); err != nil {
		if postgres.IsUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("An open history segment already exists for this tenant").
				WithReportableDetails(map[string]any{"tenant_id": rec.TenantID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return postgres.WrapError(err, "history record")
	}
	return nil
}

func (r *historyRepository) GetOpen(ctx context.Context, tenantID string) (*history.Record, error) {
	query := `SELECT ` + historyColumns + ` FROM subscription_history
		WHERE tenant_id = $1 AND period_end IS NULL`

	var rec history.Record
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &rec, query, tenantID); err != nil {
		return nil, postgres.WrapError(err, "open history segment")
	}
	return &rec, nil
}

func (r *historyRepository) Close(ctx context.Context, tenantID, id string, periodEnd time.Time) error {
	query := `
		UPDATE subscription_history SET period_end = $3
		WHERE tenant_id = $1 AND id = $2 AND period_end IS NULL`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, tenantID, id, periodEnd)
	if err != nil {
		return postgres.WrapError(err, "history record")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return postgres.WrapError(err, "history record")
	}
	if affected == 0 {
		return ierr.NewError("history segment is not open").
			WithReportableDetails(map[string]any{"history_id": id}).
			Mark(ierr.ErrVersionConflict)
	}
	return nil
}

func (r *historyRepository) ListByTenant(ctx context.Context, tenantID string, filter types.PageFilter) ([]*history.Record, error) {
	query := `SELECT ` + historyColumns + ` FROM subscription_history
		WHERE tenant_id = $1
		ORDER BY period_start DESC, changed_at DESC
		LIMIT $2 OFFSET $3`

	var recs []*history.Record
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &recs, query, tenantID, filter.GetLimit(), filter.GetOffset())
	if err != nil {
		return nil, postgres.WrapError(err, "history record")
	}
	return recs, nil
}

func (r *historyRepository) ListByOwner(ctx context.Context, ownerUserID string, filter types.PageFilter) ([]*history.Record, error) {
	query := `SELECT ` + historyColumns + ` FROM subscription_history
		WHERE owner_user_id = $1
		ORDER BY period_start DESC, changed_at DESC
		LIMIT $2 OFFSET $3`

	var recs []*history.Record
	err := r.db.GetQuerier(ctx).SelectContext(ctx, &recs, query, ownerUserID, filter.GetLimit(), filter.GetOffset())
	if err != nil {
		return nil, postgres.WrapError(err, "history record")
	}
	return recs, nil
}

func (r *historyRepository) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM subscription_history WHERE tenant_id = $1`, tenantID)
}

func (r *historyRepository) CountByOwner(ctx context.Context, ownerUserID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM subscription_history WHERE owner_user_id = $1`, ownerUserID)
}

func (r *historyRepository) count(ctx context.Context, query string, arg string) (int, error) {
	var total int
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &total, query, arg); err != nil {
		return 0, postgres.WrapError(err, "history record")
	}
	return total, nil
}
