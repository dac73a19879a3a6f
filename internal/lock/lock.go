package lock

import (
	"context"
	"time"

	"github.com/acctportal/billingcore/internal/config"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/postgres"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL         = 2 * time.Minute
	defaultWaitTimeout = 30 * time.Second
)

// Locker provides mutual exclusion across goroutines or processes for a key.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx is done. The
	// returned release func is safe to call more than once. ttl bounds how
	// long a crashed holder can keep the lock where the backend supports it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// TenantLocker serializes every mutation of one tenant's billing state
type TenantLocker struct {
	locker      Locker
	ttl         time.Duration
	waitTimeout time.Duration
	logger      *logger.Logger
}

func NewTenantLocker(locker Locker, cfg config.LockConfig, logger *logger.Logger) *TenantLocker {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	wait := cfg.WaitTimeout
	if wait <= 0 {
		wait = defaultWaitTimeout
	}
	return &TenantLocker{
		locker:      locker,
		ttl:         ttl,
		waitTimeout: wait,
		logger:      logger,
	}
}

// Lock acquires the tenant's lock, waiting at most the configured wait timeout.
// A timeout is reported as a retryable version conflict.
func (l *TenantLocker) Lock(ctx context.Context, tenantID string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.waitTimeout)
	defer cancel()

	start := time.Now()
	release, err := l.locker.Acquire(waitCtx, TenantKey(tenantID), l.ttl)
	if err != nil {
		if ierr.Is(err, context.DeadlineExceeded) || ierr.Is(err, context.Canceled) {
			return nil, ierr.WithError(err).
				WithHint("Another change to this subscription is in progress. Please retry.").
				WithReportableDetails(map[string]any{
					"tenant_id": tenantID,
				}).
				Mark(ierr.ErrVersionConflict)
		}
		return nil, ierr.WithError(err).
			WithHint("failed to acquire tenant lock").
			Mark(ierr.ErrSystem)
	}

	l.logger.Debugw("acquired tenant lock",
		"tenant_id", tenantID,
		"wait_ms", time.Since(start).Milliseconds(),
	)
	return release, nil
}

// TenantKey is the lock key guarding a tenant's subscription, payments and cards
func TenantKey(tenantID string) string {
	return "billing:tenant:" + tenantID
}

// NewLocker builds the Locker selected by lock.type
func NewLocker(cfg *config.Configuration, db *postgres.DB, rdb *redis.Client) (Locker, error) {
	switch cfg.Lock.Type {
	case types.LockTypeMemory, "":
		return NewMemoryLocker(), nil
	case types.LockTypePostgres:
		if db == nil {
			return nil, ierr.NewError("postgres lock requires a postgres store").
				Mark(ierr.ErrValidation)
		}
		return NewPostgresLocker(db), nil
	case types.LockTypeRedis:
		if rdb == nil {
			return nil, ierr.NewError("redis lock requires a redis client").
				Mark(ierr.ErrValidation)
		}
		return NewRedisLocker(rdb, cfg.Redis.Prefix), nil
	default:
		return nil, ierr.NewErrorf("unsupported lock type %s", cfg.Lock.Type).
			Mark(ierr.ErrValidation)
	}
}
