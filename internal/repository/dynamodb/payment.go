package dynamodb

import (
	"context"
	"time"

	"github.com/acctportal/billingcore/internal/domain/payment"
	ddb "github.com/acctportal/billingcore/internal/dynamodb"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/samber/lo"
)

type paymentItem struct {
	ddb.Keys
	payment.Payment
}

// idempotencyGuard reserves (tenant, key, transaction type)
type idempotencyGuard struct {
	ddb.Keys
	PaymentID string `dynamodbav:"payment_id"`
}

type paymentRepository struct {
	client *ddb.Client
	logger *logger.Logger
}

func NewPaymentRepository(client *ddb.Client, logger *logger.Logger) payment.Repository {
	return &paymentRepository{client: client, logger: logger}
}

func (r *paymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	dup := ierr.NewError("payment already recorded for this idempotency key").
		WithHint("payment already exists").
		WithReportableDetails(map[string]any{
			"idempotency_key":  p.IdempotencyKey,
			"transaction_type": p.TransactionType,
		}).
		Mark(ierr.ErrAlreadyExists)

	write, err := r.client.Put(&paymentItem{
		Keys:    ddb.Keys{PK: ddb.TenantPK(p.TenantID), SK: ddb.PaymentSK(p.ID)},
		Payment: *p,
	}, "attribute_not_exists(pk)", nil)
	if err != nil {
		return err
	}

	if p.IdempotencyKey == "" {
		return r.client.Write(ctx, write, dup)
	}

	guard, err := r.client.Put(&idempotencyGuard{
		Keys:      ddb.Keys{PK: ddb.TenantPK(p.TenantID), SK: ddb.IdempotencySK(p.IdempotencyKey, string(p.TransactionType))},
		PaymentID: p.ID,
	}, "attribute_not_exists(pk)", nil)
	if err != nil {
		return err
	}

	// both items must land together even outside a caller transaction
	return r.client.WithTx(ctx, func(ctx context.Context) error {
		if err := r.client.Write(ctx, guard, dup); err != nil {
			return err
		}
		return r.client.Write(ctx, write, dup)
	})
}

func (r *paymentRepository) Get(ctx context.Context, tenantID, id string) (*payment.Payment, error) {
	var item paymentItem
	if err := r.client.Get(ctx, ddb.TenantPK(tenantID), ddb.PaymentSK(id), "payment", &item); err != nil {
		return nil, err
	}
	return &item.Payment, nil
}

func (r *paymentRepository) ListByIdempotencyKey(ctx context.Context, tenantID, key string) ([]*payment.Payment, error) {
	input := ddb.PartitionQuery(ddb.TenantPK(tenantID), ddb.PrefixPayment, false)
	input.FilterExpression = aws.String("idempotency_key = :key")
	input.ExpressionAttributeValues[":key"] = &ddbtypes.AttributeValueMemberS{Value: key}
	return r.query(ctx, input)
}

func (r *paymentRepository) GetLatestCharge(ctx context.Context, tenantID string) (*payment.Payment, error) {
	input := ddb.PartitionQuery(ddb.TenantPK(tenantID), ddb.PrefixPayment, true)
	input.FilterExpression = aws.String("transaction_type = :type AND #status = :status")
	input.ExpressionAttributeNames["#status"] = "status"
	input.ExpressionAttributeValues[":type"] = &ddbtypes.AttributeValueMemberS{Value: string(types.TransactionTypeCharge)}
	input.ExpressionAttributeValues[":status"] = &ddbtypes.AttributeValueMemberS{Value: string(types.PaymentStatusDone)}

	rows, err := r.query(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ierr.NewError("no completed charge").
			WithHint("charge not found").
			Mark(ierr.ErrNotFound)
	}
	return rows[0], nil
}

// AddRefundedAmount reads the charge and writes the new total guarded by the
// value it read, since condition expressions cannot do arithmetic
func (r *paymentRepository) AddRefundedAmount(ctx context.Context, tenantID, id string, delta int64) error {
	current, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	conflict := ierr.NewError("refund exceeds the charge's refundable amount").
		WithHint("The charge was refunded concurrently. Please retry.").
		WithReportableDetails(map[string]any{
			"payment_id": id,
			"delta":      delta,
		}).
		Mark(ierr.ErrVersionConflict)

	if current.RefundedAmount+delta > current.Amount {
		return conflict
	}

	write, err := r.client.Update(ddb.TenantPK(tenantID), ddb.PaymentSK(id),
		"SET refunded_amount = :next, updated_at = :now",
		"refunded_amount = :current",
		nil,
		map[string]any{
			":next":    current.RefundedAmount + delta,
			":current": current.RefundedAmount,
			":now":     time.Now().UTC(),
		})
	if err != nil {
		return err
	}
	return r.client.Write(ctx, write, conflict)
}

func (r *paymentRepository) List(ctx context.Context, tenantID string, filter types.PageFilter) ([]*payment.Payment, error) {
	rows, err := r.query(ctx, ddb.PartitionQuery(ddb.TenantPK(tenantID), ddb.PrefixPayment, true))
	if err != nil {
		return nil, err
	}
	return types.Page(rows, filter), nil
}

func (r *paymentRepository) query(ctx context.Context, input *awsddb.QueryInput) ([]*payment.Payment, error) {
	raw, err := r.client.QueryAll(ctx, input)
	if err != nil {
		return nil, err
	}
	var items []paymentItem
	if err := attributevalue.UnmarshalListOfMaps(raw, &items); err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return lo.Map(items, func(item paymentItem, _ int) *payment.Payment {
		p := item.Payment
		return &p
	}), nil
}
