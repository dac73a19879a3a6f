package lock

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/acctportal/billingcore/internal/postgres"
)

// PostgresLocker uses session level advisory locks. The lock lives on a
// dedicated connection and is dropped by the server if that session dies,
// so ttl is not needed.
type PostgresLocker struct {
	db *postgres.DB
}

func NewPostgresLocker(db *postgres.DB) *PostgresLocker {
	return &PostgresLocker{db: db}
}

func (l *PostgresLocker) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	lockID := advisoryKey(key)

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	// pg_advisory_lock blocks server side; cancelling ctx cancels the statement
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", lockID)
			conn.Close()
		})
	}, nil
}

func advisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}
