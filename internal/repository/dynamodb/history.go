package dynamodb

import (
	"context"
	"time"

	"github.com/acctportal/billingcore/internal/domain/history"
	ddb "github.com/acctportal/billingcore/internal/dynamodb"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/samber/lo"
)

type historyItem struct {
	ddb.Keys
	history.Record
}

// openPointer is the single per-tenant item naming the open segment. Its
// conditional put is what keeps a tenant at one open segment.
type openPointer struct {
	ddb.Keys
	RecordID string `dynamodbav:"record_id"`
	RecordSK string `dynamodbav:"record_sk"`
}

type historyRepository struct {
	client *ddb.Client
	logger *logger.Logger
}

func NewHistoryRepository(client *ddb.Client, logger *logger.Logger) history.Repository {
	return &historyRepository{client: client, logger: logger}
}

func (r *historyRepository) Create(ctx context.Context, rec *history.Record) error {
	sk := ddb.HistorySK(rec.PeriodStart, rec.ID)
	write, err := r.client.Put(&historyItem{
		Keys: ddb.Keys{
			PK:     ddb.TenantPK(rec.TenantID),
			SK:     sk,
			GSI1PK: ddb.OwnerPK(rec.OwnerUserID),
			GSI1SK: sk,
		},
		Record: *rec,
	}, "attribute_not_exists(pk)", nil)
	if err != nil {
		return err
	}

	dup := ierr.NewError("an open history segment already exists").
		WithHint("An open history segment already exists for this tenant").
		WithReportableDetails(map[string]any{"tenant_id": rec.TenantID}).
		Mark(ierr.ErrAlreadyExists)

	if !rec.IsOpen() {
		return r.client.Write(ctx, write, dup)
	}

	pointer, err := r.client.Put(&openPointer{
		Keys:     ddb.Keys{PK: ddb.TenantPK(rec.TenantID), SK: ddb.SKOpenHistory},
		RecordID: rec.ID,
		RecordSK: sk,
	}, "attribute_not_exists(pk)", nil)
	if err != nil {
		return err
	}

	return r.client.WithTx(ctx, func(ctx context.Context) error {
		if err := r.client.Write(ctx, pointer, dup); err != nil {
			return err
		}
		return r.client.Write(ctx, write, dup)
	})
}

func (r *historyRepository) GetOpen(ctx context.Context, tenantID string) (*history.Record, error) {
	ptr, err := r.pointer(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var item historyItem
	if err := r.client.Get(ctx, ddb.TenantPK(tenantID), ptr.RecordSK, "open history segment", &item); err != nil {
		return nil, err
	}
	return &item.Record, nil
}

func (r *historyRepository) Close(ctx context.Context, tenantID, id string, periodEnd time.Time) error {
	notOpen := ierr.NewError("history segment is not open").
		WithReportableDetails(map[string]any{"history_id": id}).
		Mark(ierr.ErrVersionConflict)

	ptr, err := r.pointer(ctx, tenantID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return notOpen
		}
		return err
	}
	if ptr.RecordID != id {
		return notOpen
	}

	end, err := r.client.Update(ddb.TenantPK(tenantID), ptr.RecordSK,
		"SET period_end = :end",
		"attribute_not_exists(period_end)",
		nil,
		map[string]any{":end": periodEnd})
	if err != nil {
		return err
	}
	release, err := r.client.Delete(ddb.TenantPK(tenantID), ddb.SKOpenHistory,
		"record_id = :id", map[string]any{":id": id})
	if err != nil {
		return err
	}

	return r.client.WithTx(ctx, func(ctx context.Context) error {
		if err := r.client.Write(ctx, end, notOpen); err != nil {
			return err
		}
		return r.client.Write(ctx, release, notOpen)
	})
}

func (r *historyRepository) ListByTenant(ctx context.Context, tenantID string, filter types.PageFilter) ([]*history.Record, error) {
	raw, err := r.client.QueryAll(ctx, ddb.PartitionQuery(ddb.TenantPK(tenantID), ddb.PrefixHistory, true))
	if err != nil {
		return nil, err
	}
	return r.decode(raw, filter)
}

func (r *historyRepository) ListByOwner(ctx context.Context, ownerUserID string, filter types.PageFilter) ([]*history.Record, error) {
	raw, err := r.client.QueryAll(ctx, r.client.OwnerQuery(ownerUserID, ddb.PrefixHistory, true))
	if err != nil {
		return nil, err
	}
	return r.decode(raw, filter)
}

func (r *historyRepository) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	return r.client.Count(ctx, ddb.PartitionQuery(ddb.TenantPK(tenantID), ddb.PrefixHistory, true))
}

func (r *historyRepository) CountByOwner(ctx context.Context, ownerUserID string) (int, error) {
	return r.client.Count(ctx, r.client.OwnerQuery(ownerUserID, ddb.PrefixHistory, true))
}

func (r *historyRepository) pointer(ctx context.Context, tenantID string) (*openPointer, error) {
	var ptr openPointer
	if err := r.client.Get(ctx, ddb.TenantPK(tenantID), ddb.SKOpenHistory, "open history segment", &ptr); err != nil {
		return nil, err
	}
	return &ptr, nil
}

func (r *historyRepository) decode(raw []map[string]ddbtypes.AttributeValue, filter types.PageFilter) ([]*history.Record, error) {
	var items []historyItem
	if err := attributevalue.UnmarshalListOfMaps(raw, &items); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	recs := lo.Map(items, func(item historyItem, _ int) *history.Record {
		rec := item.Record
		return &rec
	})
	return types.Page(recs, filter), nil
}
