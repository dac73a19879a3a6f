package dynamodb

import (
	"context"

	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/store"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"
)

// maxTransactItems is the service limit for one TransactWriteItems call
const maxTransactItems = 100

var _ store.Transactor = (*Client)(nil)

type txKey struct{}

// Tx buffers writes until the outermost WithTx returns. Reads are not
// buffered; callers read everything before their first write.
type Tx struct {
	items    []ddbtypes.TransactWriteItem
	failures []error
}

func getTx(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok
}

// WithTx runs fn and commits its buffered writes atomically. Nested calls
// join the outer transaction.
func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := getTx(ctx); ok {
		return fn(ctx)
	}

	tx := &Tx{}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if len(tx.items) == 0 {
		return nil
	}
	if len(tx.items) > maxTransactItems {
		return ierr.NewErrorf("transaction has %d writes, limit is %d", len(tx.items), maxTransactItems).
			Mark(ierr.ErrSystem)
	}

	_, err := c.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:      tx.items,
		ClientRequestToken: aws.String(ulid.Make().String()),
	})
	if err == nil {
		c.logger.Debugw("committed dynamodb transaction", "items", len(tx.items))
		return nil
	}

	var canceled *ddbtypes.TransactionCanceledException
	if ierr.As(err, &canceled) {
		for i, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" && i < len(tx.failures) && tx.failures[i] != nil {
				return tx.failures[i]
			}
		}
	}
	return ierr.WithError(err).
		WithHint("failed to commit transaction").
		Mark(ierr.ErrDatabase)
}

// Write executes item now, or buffers it when ctx carries a transaction.
// onConditionFailed is returned when the item's condition does not hold.
func (c *Client) Write(ctx context.Context, item ddbtypes.TransactWriteItem, onConditionFailed error) error {
	if tx, ok := getTx(ctx); ok {
		return tx.add(item, onConditionFailed)
	}

	var err error
	switch {
	case item.Put != nil:
		_, err = c.db.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 item.Put.TableName,
			Item:                      item.Put.Item,
			ConditionExpression:       item.Put.ConditionExpression,
			ExpressionAttributeNames:  item.Put.ExpressionAttributeNames,
			ExpressionAttributeValues: item.Put.ExpressionAttributeValues,
		})
	case item.Update != nil:
		_, err = c.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 item.Update.TableName,
			Key:                       item.Update.Key,
			UpdateExpression:          item.Update.UpdateExpression,
			ConditionExpression:       item.Update.ConditionExpression,
			ExpressionAttributeNames:  item.Update.ExpressionAttributeNames,
			ExpressionAttributeValues: item.Update.ExpressionAttributeValues,
		})
	case item.Delete != nil:
		_, err = c.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 item.Delete.TableName,
			Key:                       item.Delete.Key,
			ConditionExpression:       item.Delete.ConditionExpression,
			ExpressionAttributeNames:  item.Delete.ExpressionAttributeNames,
			ExpressionAttributeValues: item.Delete.ExpressionAttributeValues,
		})
	default:
		return ierr.NewError("unsupported write outside a transaction").Mark(ierr.ErrSystem)
	}
	if err == nil {
		return nil
	}

	var condFailed *ddbtypes.ConditionalCheckFailedException
	if ierr.As(err, &condFailed) && onConditionFailed != nil {
		return onConditionFailed
	}
	return ierr.WithError(err).
		WithHint("failed to write item").
		Mark(ierr.ErrDatabase)
}

// add appends item to the buffer. A transaction may touch an item only
// once, so a put following a delete of the same key replaces the delete and
// inherits its condition: the item must have matched before it is replaced.
func (tx *Tx) add(item ddbtypes.TransactWriteItem, onConditionFailed error) error {
	key := itemKey(item)
	for i, prev := range tx.items {
		if itemKey(prev) != key {
			continue
		}
		if prev.Delete == nil || item.Put == nil {
			return ierr.NewErrorf("item %s written twice in one transaction", key).
				Mark(ierr.ErrSystem)
		}
		item.Put.ConditionExpression = prev.Delete.ConditionExpression
		item.Put.ExpressionAttributeNames = prev.Delete.ExpressionAttributeNames
		item.Put.ExpressionAttributeValues = prev.Delete.ExpressionAttributeValues
		tx.items[i] = item
		return nil
	}
	tx.items = append(tx.items, item)
	tx.failures = append(tx.failures, onConditionFailed)
	return nil
}

func itemKey(item ddbtypes.TransactWriteItem) string {
	var key map[string]ddbtypes.AttributeValue
	switch {
	case item.Put != nil:
		key = item.Put.Item
	case item.Update != nil:
		key = item.Update.Key
	case item.Delete != nil:
		key = item.Delete.Key
	case item.ConditionCheck != nil:
		key = item.ConditionCheck.Key
	}
	return stringAttr(key[AttrPK]) + "|" + stringAttr(key[AttrSK])
}

func stringAttr(av ddbtypes.AttributeValue) string {
	if s, ok := av.(*ddbtypes.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}
