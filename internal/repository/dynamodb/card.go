package dynamodb

import (
	"context"
	"time"

	"github.com/acctportal/billingcore/internal/domain/card"
	ddb "github.com/acctportal/billingcore/internal/dynamodb"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/security"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
)

type cardItem struct {
	ddb.Keys
	card.Card
}

type cardRepository struct {
	client     *ddb.Client
	encryption security.EncryptionService
	logger     *logger.Logger
}

func NewCardRepository(client *ddb.Client, encryption security.EncryptionService, logger *logger.Logger) card.Repository {
	return &cardRepository{client: client, encryption: encryption, logger: logger}
}

func (r *cardRepository) Create(ctx context.Context, c *card.Card) error {
	row := *c
	enc, err := r.encryption.Encrypt(row.BillingKey)
	if err != nil {
		return err
	}
	row.BillingKey = enc

	write, err := r.client.Put(&cardItem{
		Keys: ddb.Keys{PK: ddb.TenantPK(c.TenantID), SK: ddb.CardSK(c.ID)},
		Card: row,
	}, "attribute_not_exists(pk)", nil)
	if err != nil {
		return err
	}
	return r.client.Write(ctx, write, ierr.NewError("card already exists").
		WithHint("card already exists").
		Mark(ierr.ErrAlreadyExists))
}

func (r *cardRepository) Get(ctx context.Context, tenantID, id string) (*card.Card, error) {
	var item cardItem
	if err := r.client.Get(ctx, ddb.TenantPK(tenantID), ddb.CardSK(id), "card", &item); err != nil {
		return nil, err
	}
	return r.open(&item)
}

func (r *cardRepository) ListByTenant(ctx context.Context, tenantID string) ([]*card.Card, error) {
	raw, err := r.client.QueryAll(ctx, ddb.PartitionQuery(ddb.TenantPK(tenantID), ddb.PrefixCard, false))
	if err != nil {
		return nil, err
	}
	var items []cardItem
	if err := attributevalue.UnmarshalListOfMaps(raw, &items); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}

	cards := make([]*card.Card, 0, len(items))
	for i := range items {
		c, err := r.open(&items[i])
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

func (r *cardRepository) Update(ctx context.Context, c *card.Card) error {
	c.UpdatedAt = time.Now().UTC()
	write, err := r.client.Update(ddb.TenantPK(c.TenantID), ddb.CardSK(c.ID),
		"SET #alias = :alias, is_primary = :primary, updated_at = :now, updated_by = :by",
		"attribute_exists(pk)",
		map[string]string{"#alias": "alias"},
		map[string]any{
			":alias":   c.Alias,
			":primary": c.IsPrimary,
			":now":     c.UpdatedAt,
			":by":      c.UpdatedBy,
		})
	if err != nil {
		return err
	}
	return r.client.Write(ctx, write, notFound(c.ID))
}

func (r *cardRepository) Delete(ctx context.Context, tenantID, id string) error {
	write, err := r.client.Delete(ddb.TenantPK(tenantID), ddb.CardSK(id), "attribute_exists(pk)", nil)
	if err != nil {
		return err
	}
	return r.client.Write(ctx, write, notFound(id))
}

func (r *cardRepository) open(item *cardItem) (*card.Card, error) {
	c := item.Card
	plain, err := r.encryption.Decrypt(c.BillingKey)
	if err != nil {
		return nil, err
	}
	c.BillingKey = plain
	return &c, nil
}

func notFound(id string) error {
	return ierr.NewErrorf("card %s not found", id).
		WithHint("card not found").
		Mark(ierr.ErrNotFound)
}
