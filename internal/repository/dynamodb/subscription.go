package dynamodb

import (
	"context"
	"time"

	"github.com/acctportal/billingcore/internal/domain/subscription"
	ddb "github.com/acctportal/billingcore/internal/dynamodb"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/security"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
)

type subscriptionItem struct {
	ddb.Keys
	subscription.Subscription
}

type subscriptionRepository struct {
	client     *ddb.Client
	encryption security.EncryptionService
	logger     *logger.Logger
}

func NewSubscriptionRepository(client *ddb.Client, encryption security.EncryptionService, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{client: client, encryption: encryption, logger: logger}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub.Version == 0 {
		sub.Version = 1
	}
	item, err := r.item(sub)
	if err != nil {
		return err
	}
	write, err := r.client.Put(item, "attribute_not_exists(pk)", nil)
	if err != nil {
		return err
	}
	return r.client.Write(ctx, write, ierr.NewError("subscription already exists").
		WithHint("subscription already exists").
		WithReportableDetails(map[string]any{"tenant_id": sub.TenantID}).
		Mark(ierr.ErrAlreadyExists))
}

func (r *subscriptionRepository) Get(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	var item subscriptionItem
	if err := r.client.Get(ctx, ddb.TenantPK(tenantID), ddb.SKSubscription, "subscription", &item); err != nil {
		return nil, err
	}
	return r.open(&item)
}

// Update replaces the item only while the stored version is unchanged
func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	expected := sub.Version
	next := sub.Clone()
	next.Version = expected + 1
	next.UpdatedAt = time.Now().UTC()

	item, err := r.item(next)
	if err != nil {
		return err
	}
	write, err := r.client.Put(item, "attribute_exists(pk) AND #version = :expected", map[string]any{
		":expected": expected,
	})
	if err != nil {
		return err
	}
	write.Put.ExpressionAttributeNames = map[string]string{"#version": "version"}

	err = r.client.Write(ctx, write, ierr.NewError("subscription was modified concurrently").
		WithHint("The subscription changed while this request was running. Please retry.").
		WithReportableDetails(map[string]any{
			"tenant_id": sub.TenantID,
			"version":   expected,
		}).
		Mark(ierr.ErrVersionConflict))
	if err != nil {
		return err
	}

	sub.Version = next.Version
	sub.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *subscriptionRepository) ListByOwner(ctx context.Context, ownerUserID string) ([]*subscription.Subscription, error) {
	raw, err := r.client.QueryAll(ctx, r.client.OwnerQuery(ownerUserID, ddb.SKSubscription, false))
	if err != nil {
		return nil, err
	}

	var items []subscriptionItem
	if err := attributevalue.UnmarshalListOfMaps(raw, &items); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}

	subs := make([]*subscription.Subscription, 0, len(items))
	for i := range items {
		sub, err := r.open(&items[i])
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (r *subscriptionRepository) item(sub *subscription.Subscription) (*subscriptionItem, error) {
	row := sub.Clone()
	if row.BillingKey != "" {
		enc, err := r.encryption.Encrypt(row.BillingKey)
		if err != nil {
			return nil, err
		}
		row.BillingKey = enc
	}
	return &subscriptionItem{
		Keys: ddb.Keys{
			PK:     ddb.TenantPK(sub.TenantID),
			SK:     ddb.SKSubscription,
			GSI1PK: ddb.OwnerPK(sub.OwnerUserID),
			GSI1SK: ddb.SKSubscription + "#" + sub.TenantID,
		},
		Subscription: *row,
	}, nil
}

func (r *subscriptionRepository) open(item *subscriptionItem) (*subscription.Subscription, error) {
	sub := item.Subscription
	if sub.BillingKey != "" {
		plain, err := r.encryption.Decrypt(sub.BillingKey)
		if err != nil {
			return nil, err
		}
		sub.BillingKey = plain
	}
	return &sub, nil
}
