package dynamodb

import (
	"context"

	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key builds the primary key of an item
func Key(pk, sk string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		AttrPK: &ddbtypes.AttributeValueMemberS{Value: pk},
		AttrSK: &ddbtypes.AttributeValueMemberS{Value: sk},
	}
}

// Get loads one item into out with a strongly consistent read. A missing
// item is reported as ErrNotFound with the entity in the hint.
func (c *Client) Get(ctx context.Context, pk, sk, entity string, out any) error {
	res, err := c.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            Key(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return ierr.WithError(err).
			WithHintf("failed to get %s", entity).
			Mark(ierr.ErrDatabase)
	}
	if len(res.Item) == 0 {
		return ierr.NewErrorf("%s not found", entity).
			WithHintf("%s not found", entity).
			Mark(ierr.ErrNotFound)
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to decode %s", entity).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

// QueryAll pages through a query and returns every raw item
func (c *Client) QueryAll(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]ddbtypes.AttributeValue, error) {
	input.TableName = aws.String(c.tableName)

	var items []map[string]ddbtypes.AttributeValue
	paginator := dynamodb.NewQueryPaginator(c.db, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("failed to query items").
				Mark(ierr.ErrDatabase)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// Count runs input with SELECT COUNT and sums the matches across pages
func (c *Client) Count(ctx context.Context, input *dynamodb.QueryInput) (int, error) {
	input.TableName = aws.String(c.tableName)
	input.Select = ddbtypes.SelectCount

	total := 0
	paginator := dynamodb.NewQueryPaginator(c.db, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, ierr.WithError(err).
				WithHint("failed to count items").
				Mark(ierr.ErrDatabase)
		}
		total += int(page.Count)
	}
	return total, nil
}

// PartitionQuery selects items of one partition whose sort key has prefix
func PartitionQuery(pk, skPrefix string, newestFirst bool) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		KeyConditionExpression: aws.String("#pk = :pk AND begins_with(#sk, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": AttrPK,
			"#sk": AttrSK,
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: pk},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: skPrefix},
		},
		ScanIndexForward: aws.Bool(!newestFirst),
		ConsistentRead:   aws.Bool(true),
	}
}

// OwnerQuery selects items on the owner index whose sort key has prefix
func (c *Client) OwnerQuery(ownerUserID, skPrefix string, newestFirst bool) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		IndexName:              aws.String(c.ownerIndex),
		KeyConditionExpression: aws.String("#pk = :pk AND begins_with(#sk, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": AttrGSI1PK,
			"#sk": AttrGSI1SK,
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: OwnerPK(ownerUserID)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: skPrefix},
		},
		ScanIndexForward: aws.Bool(!newestFirst),
	}
}

// Put builds a put of the marshalled item, optionally guarded by condition
func (c *Client) Put(item any, condition string, values map[string]any) (ddbtypes.TransactWriteItem, error) {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return ddbtypes.TransactWriteItem{}, ierr.WithError(err).
			WithHint("failed to encode item").
			Mark(ierr.ErrDatabase)
	}
	put := &ddbtypes.Put{
		TableName: aws.String(c.tableName),
		Item:      av,
	}
	if condition != "" {
		put.ConditionExpression = aws.String(condition)
	}
	if len(values) > 0 {
		if put.ExpressionAttributeValues, err = MarshalValues(values); err != nil {
			return ddbtypes.TransactWriteItem{}, err
		}
	}
	return ddbtypes.TransactWriteItem{Put: put}, nil
}

// Delete builds a delete of one item, optionally guarded by condition
func (c *Client) Delete(pk, sk, condition string, values map[string]any) (ddbtypes.TransactWriteItem, error) {
	del := &ddbtypes.Delete{
		TableName: aws.String(c.tableName),
		Key:       Key(pk, sk),
	}
	if condition != "" {
		del.ConditionExpression = aws.String(condition)
	}
	if len(values) > 0 {
		var err error
		if del.ExpressionAttributeValues, err = MarshalValues(values); err != nil {
			return ddbtypes.TransactWriteItem{}, err
		}
	}
	return ddbtypes.TransactWriteItem{Delete: del}, nil
}

// Update builds an update expression against one item
func (c *Client) Update(pk, sk, expression, condition string, names map[string]string, values map[string]any) (ddbtypes.TransactWriteItem, error) {
	upd := &ddbtypes.Update{
		TableName:        aws.String(c.tableName),
		Key:              Key(pk, sk),
		UpdateExpression: aws.String(expression),
	}
	if condition != "" {
		upd.ConditionExpression = aws.String(condition)
	}
	if len(names) > 0 {
		upd.ExpressionAttributeNames = names
	}
	if len(values) > 0 {
		var err error
		if upd.ExpressionAttributeValues, err = MarshalValues(values); err != nil {
			return ddbtypes.TransactWriteItem{}, err
		}
	}
	return ddbtypes.TransactWriteItem{Update: upd}, nil
}

// MarshalValues encodes expression attribute values
func MarshalValues(values map[string]any) (map[string]ddbtypes.AttributeValue, error) {
	out := make(map[string]ddbtypes.AttributeValue, len(values))
	for k, v := range values {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("failed to encode value").
				Mark(ierr.ErrDatabase)
		}
		out[k] = av
	}
	return out, nil
}
