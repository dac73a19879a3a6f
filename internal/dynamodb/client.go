package dynamodb

import (
	"context"

	"github.com/acctportal/billingcore/internal/config"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// API is the subset of the DynamoDB client used by the repositories
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

type Client struct {
	db         API
	tableName  string
	ownerIndex string
	logger     *logger.Logger
}

func NewClient(cfg *config.Configuration, logger *logger.Logger) (*Client, error) {
	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(cfg.DynamoDB.Region),
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("unable to load AWS SDK config").
			Mark(ierr.ErrSystem)
	}

	db := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDB.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		}
	})
	return NewFromAPI(db, cfg.DynamoDB.Table(), cfg.DynamoDB.OwnerIndex(), logger), nil
}

// NewFromAPI wraps any API implementation, such as a fake in tests
func NewFromAPI(db API, tableName, ownerIndex string, logger *logger.Logger) *Client {
	return &Client{
		db:         db,
		tableName:  tableName,
		ownerIndex: ownerIndex,
		logger:     logger,
	}
}

func (c *Client) DB() API {
	return c.db
}

func (c *Client) TableName() string {
	return c.tableName
}

func (c *Client) OwnerIndex() string {
	return c.ownerIndex
}
