package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/acctportal/billingcore/internal/api"
	v1 "github.com/acctportal/billingcore/internal/api/v1"
	"github.com/acctportal/billingcore/internal/cache"
	"github.com/acctportal/billingcore/internal/config"
	"github.com/acctportal/billingcore/internal/dynamodb"
	"github.com/acctportal/billingcore/internal/gateway"
	"github.com/acctportal/billingcore/internal/lock"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/postgres"
	"github.com/acctportal/billingcore/internal/repository"
	"github.com/acctportal/billingcore/internal/security"
	"github.com/acctportal/billingcore/internal/sentry"
	"github.com/acctportal/billingcore/internal/service"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/acctportal/billingcore/internal/webhook"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			cache.NewInMemoryCache,
			security.NewEncryptionService,

			// Stores, only the configured one is opened
			providePostgres,
			provideDynamoDB,
			provideRedis,

			// Repositories
			repository.NewSubscriptionRepository,
			repository.NewPaymentRepository,
			repository.NewHistoryRepository,
			repository.NewCardRepository,
			repository.NewTransactor,

			// Per tenant lock
			lock.NewLocker,
			provideTenantLocker,

			// Payment gateway
			gateway.NewGateway,
		),
		sentry.Module(),
	)

	// Webhook module (must be initialised before services)
	opts = append(opts, webhook.Module)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,
			service.NewNotifier,
			service.NewPaymentOrchestrator,
			service.NewSubscriptionService,
			service.NewCardService,
			service.NewHistoryService,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			api.NewRouter,
		),
		fx.Invoke(
			migrateOnStart,
			startAPIServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func providePostgres(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (*postgres.DB, error) {
	if cfg.Store.Type != types.StoreTypePostgres && cfg.Lock.Type != types.LockTypePostgres {
		return nil, nil
	}

	db, err := postgres.NewDB(cfg, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			db.Close()
			return nil
		},
	})
	return db, nil
}

func provideDynamoDB(cfg *config.Configuration, log *logger.Logger) (*dynamodb.Client, error) {
	if cfg.Store.Type != types.StoreTypeDynamoDB {
		return nil, nil
	}
	return dynamodb.NewClient(cfg, log)
}

func provideRedis(lc fx.Lifecycle, cfg *config.Configuration) *redis.Client {
	if cfg.Lock.Type != types.LockTypeRedis {
		return nil
	}

	client := lock.NewRedisClient(cfg.Redis)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func provideTenantLocker(locker lock.Locker, cfg *config.Configuration, log *logger.Logger) *lock.TenantLocker {
	return lock.NewTenantLocker(locker, cfg.Lock, log)
}

func provideHandlers(
	log *logger.Logger,
	subscriptionService service.SubscriptionService,
	cardService service.CardService,
	historyService service.HistoryService,
) api.Handlers {
	return api.Handlers{
		Health:       v1.NewHealthHandler(log),
		Subscription: v1.NewSubscriptionHandler(subscriptionService, log),
		Card:         v1.NewCardHandler(cardService, log),
		History:      v1.NewHistoryHandler(historyService, log),
	}
}

func migrateOnStart(lc fx.Lifecycle, cfg *config.Configuration, db *postgres.DB, log *logger.Logger) {
	if db == nil || cfg.Store.Type != types.StoreTypePostgres || !cfg.Postgres.AutoMigrate {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("applying database migrations")
			return db.Migrate(ctx)
		},
	})
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	notifier *service.Notifier,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down API server")
			err := srv.Shutdown(ctx)
			// let queued webhook notifications reach the publisher
			notifier.Wait()
			return err
		},
	})
}
