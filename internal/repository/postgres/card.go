package postgres

import (
	"context"
	"time"

	"github.com/acctportal/billingcore/internal/domain/card"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/postgres"
	"github.com/acctportal/billingcore/internal/security"
)

type cardRepository struct {
	db         *postgres.DB
	encryption security.EncryptionService
	logger     *logger.Logger
}

func NewCardRepository(db *postgres.DB, encryption security.EncryptionService, logger *logger.Logger) card.Repository {
	return &cardRepository{db: db, encryption: encryption, logger: logger}
}

const cardColumns = `
	id, tenant_id, billing_key, customer_key, card_info, alias, is_primary,
	created_at, updated_at, created_by, updated_by`

func (r *cardRepository) Create(ctx context.Context, c *card.Card) error {
	query := `
		INSERT INTO cards (` + cardColumns + `
		) VALUES (
			:id, :tenant_id, :billing_key, :customer_key, :card_info, :alias, :is_primary,
			:created_at, :updated_at, :created_by, :updated_by
		)`

	row, err := r.sealed(c)
	if err != nil {
		return err
	}
	if _, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, row); err != nil {
		return postgres.WrapError(err, "card")
	}
	return nil
}

func (r *cardRepository) Get(ctx context.Context, tenantID, id string) (*card.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE tenant_id = $1 AND id = $2`

	var c card.Card
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &c, query, tenantID, id); err != nil {
		return nil, postgres.WrapError(err, "card")
	}
	if err := r.open(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cardRepository) ListByTenant(ctx context.Context, tenantID string) ([]*card.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE tenant_id = $1 ORDER BY created_at, id`

	var cards []*card.Card
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &cards, query, tenantID); err != nil {
		return nil, postgres.WrapError(err, "card")
	}
	for _, c := range cards {
		if err := r.open(c); err != nil {
			return nil, err
		}
	}
	return cards, nil
}

// Update writes alias and primary flag; the billing key of a card never changes
func (r *cardRepository) Update(ctx context.Context, c *card.Card) error {
	query := `
		UPDATE cards SET
			alias = :alias,
			is_primary = :is_primary,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE tenant_id = :tenant_id AND id = :id`

	c.UpdatedAt = time.Now().UTC()
	result, err := r.db.GetQuerier(ctx).NamedExecContext(ctx, query, c)
	if err != nil {
		return postgres.WrapError(err, "card")
	}
	return expectOne(result, "card", c.ID)
}

func (r *cardRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.GetQuerier(ctx).ExecContext(ctx,
		`DELETE FROM cards WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return postgres.WrapError(err, "card")
	}
	return expectOne(result, "card", id)
}

func (r *cardRepository) sealed(c *card.Card) (*card.Card, error) {
	row := *c
	enc, err := r.encryption.Encrypt(row.BillingKey)
	if err != nil {
		return nil, err
	}
	row.BillingKey = enc
	return &row, nil
}

func (r *cardRepository) open(c *card.Card) error {
	plain, err := r.encryption.Decrypt(c.BillingKey)
	if err != nil {
		return err
	}
	c.BillingKey = plain
	return nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func expectOne(result rowsAffecter, entity, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return postgres.WrapError(err, entity)
	}
	if affected == 0 {
		return ierr.NewErrorf("%s %s not found", entity, id).
			WithHintf("%s not found", entity).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
