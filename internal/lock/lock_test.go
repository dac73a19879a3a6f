package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/acctportal/billingcore/internal/config"
	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var (
		inside  int64
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				release, err := l.Acquire(context.Background(), "tenant-a", time.Minute)
				if !assert.NoError(t, err) {
					return
				}
				if atomic.AddInt64(&inside, 1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(100 * time.Microsecond)
				atomic.AddInt64(&inside, -1)
				release()
			}
		}()
	}
	wg.Wait()
	assert.False(t, overlap.Load(), "two holders were inside the critical section")
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, NewMemoryLocker())
}

func TestMemoryLocker_WaitRespectsContext(t *testing.T) {
	l := NewMemoryLocker()
	release, err := l.Acquire(context.Background(), "k", 0)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// other keys are independent
	r2, err := l.Acquire(context.Background(), "other", 0)
	require.NoError(t, err)
	r2()
}

func TestMemoryLocker_ReleaseIsIdempotent(t *testing.T) {
	l := NewMemoryLocker()
	release, err := l.Acquire(context.Background(), "k", 0)
	require.NoError(t, err)
	release()
	release()

	r2, err := l.Acquire(context.Background(), "k", 0)
	require.NoError(t, err)
	r2()
	assert.Empty(t, l.slots)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	_, client := newTestRedis(t)
	exerciseMutualExclusion(t, NewRedisLocker(client, "test:"))
}

func TestRedisLocker_SetsTTLAndReleases(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, "test:")

	release, err := l.Acquire(context.Background(), "k", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:k"))
	assert.Equal(t, 5*time.Second, mr.TTL("test:k"))

	release()
	assert.False(t, mr.Exists("test:k"))
}

func TestRedisLocker_ReleaseDoesNotFreeForeignLock(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, "")

	release, err := l.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	// the ttl lapses and another holder takes over
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("k", "someone-else"))

	release()
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_WaitRespectsContext(t *testing.T) {
	mr, client := newTestRedis(t)
	require.NoError(t, mr.Set("k", "held"))
	l := NewRedisLocker(client, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := l.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTenantLocker_TimeoutIsRetryableConflict(t *testing.T) {
	mem := NewMemoryLocker()
	tl := NewTenantLocker(mem, config.LockConfig{WaitTimeout: 20 * time.Millisecond}, logger.NewNoopLogger())

	release, err := tl.Lock(context.Background(), "tenant-1")
	require.NoError(t, err)
	defer release()

	_, err = tl.Lock(context.Background(), "tenant-1")
	require.Error(t, err)
	assert.True(t, ierr.IsVersionConflict(err))
	assert.True(t, ierr.IsRetryable(err))

	// a different tenant is not blocked
	r2, err := tl.Lock(context.Background(), "tenant-2")
	require.NoError(t, err)
	r2()
}

func TestAdvisoryKeyIsStableAndNonNegative(t *testing.T) {
	a := advisoryKey(TenantKey("tenant-1"))
	assert.Equal(t, a, advisoryKey(TenantKey("tenant-1")))
	assert.NotEqual(t, a, advisoryKey(TenantKey("tenant-2")))
	assert.GreaterOrEqual(t, a, int64(0))
}
