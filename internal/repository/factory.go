package repository

import (
	"github.com/acctportal/billingcore/internal/cache"
	"github.com/acctportal/billingcore/internal/config"
	"github.com/acctportal/billingcore/internal/domain/card"
	"github.com/acctportal/billingcore/internal/domain/history"
	"github.com/acctportal/billingcore/internal/domain/payment"
	"github.com/acctportal/billingcore/internal/domain/subscription"
	ddb "github.com/acctportal/billingcore/internal/dynamodb"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/postgres"
	dynamodbRepo "github.com/acctportal/billingcore/internal/repository/dynamodb"
	postgresRepo "github.com/acctportal/billingcore/internal/repository/postgres"
	"github.com/acctportal/billingcore/internal/security"
	"github.com/acctportal/billingcore/internal/sentry"
	"github.com/acctportal/billingcore/internal/store"
	"github.com/acctportal/billingcore/internal/types"
	"go.uber.org/fx"
)

// RepositoryParams selects between the postgres and dynamodb backends.
// Only the backend named by store.type needs to be provided.
type RepositoryParams struct {
	fx.In

	Config     *config.Configuration
	Logger     *logger.Logger
	Encryption security.EncryptionService
	Cache      cache.Cache
	Postgres   *postgres.DB `optional:"true"`
	DynamoDB   *ddb.Client  `optional:"true"`
}

func (p RepositoryParams) dynamo() bool {
	return p.Config.Store.Type == types.StoreTypeDynamoDB
}

func NewSubscriptionRepository(p RepositoryParams) subscription.Repository {
	if p.dynamo() {
		return dynamodbRepo.NewSubscriptionRepository(p.DynamoDB, p.Encryption, p.Logger)
	}
	return postgresRepo.NewSubscriptionRepository(p.Postgres, p.Encryption, p.Logger)
}

func NewPaymentRepository(p RepositoryParams) payment.Repository {
	if p.dynamo() {
		return dynamodbRepo.NewPaymentRepository(p.DynamoDB, p.Logger)
	}
	return postgresRepo.NewPaymentRepository(p.Postgres, p.Logger, p.Cache)
}

func NewHistoryRepository(p RepositoryParams) history.Repository {
	if p.dynamo() {
		return dynamodbRepo.NewHistoryRepository(p.DynamoDB, p.Logger)
	}
	return postgresRepo.NewHistoryRepository(p.Postgres, p.Logger)
}

func NewCardRepository(p RepositoryParams) card.Repository {
	if p.dynamo() {
		return dynamodbRepo.NewCardRepository(p.DynamoDB, p.Encryption, p.Logger)
	}
	return postgresRepo.NewCardRepository(p.Postgres, p.Encryption, p.Logger)
}

// NewTransactor returns the unit of work of the configured store, traced in Sentry
func NewTransactor(p RepositoryParams, sentry *sentry.Service) store.Transactor {
	var tx store.Transactor = p.Postgres
	if p.dynamo() {
		tx = p.DynamoDB
	}
	return store.NewMonitoredTransactor(tx, sentry)
}
