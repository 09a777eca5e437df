package treasury

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisLocker needs a running Redis (REDIS_ADDR, default
// localhost:6379) and skips otherwise.
func newTestRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *redis.Client) {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	l := NewRedisLocker(client, "treasury-test-"+uuid.NewString(), ttl)
	l.retry = 5 * time.Millisecond
	return l, client
}

func TestRedisLockerExclusive(t *testing.T) {
	l, _ := newTestRedisLocker(t, 10*time.Second)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, 1)
	require.NoError(t, err)

	acquired := make(chan func())
	go func() {
		u, err := l.Lock(ctx, 1)
		if err != nil {
			close(acquired)
			return
		}
		acquired <- u
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first is held")
	case <-time.After(100 * time.Millisecond):
	}

	// other proposals are not blocked
	other, err := l.Lock(ctx, 2)
	require.NoError(t, err)
	other()

	unlock()
	unlock()

	select {
	case u, ok := <-acquired:
		require.True(t, ok)
		u()
	case <-time.After(2 * time.Second):
		t.Fatal("second lock not acquired after unlock")
	}
}

func TestRedisLockerStaleUnlock(t *testing.T) {
	l, client := newTestRedisLocker(t, 500*time.Millisecond)
	ctx := context.Background()

	stale, err := l.Lock(ctx, 7)
	require.NoError(t, err)

	// the first holder's ttl runs out and someone else takes over
	time.Sleep(600 * time.Millisecond)
	unlock, err := l.Lock(ctx, 7)
	require.NoError(t, err)
	defer unlock()

	stale()

	key := l.prefix + ":lock:proposal:7"
	n, err := client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "stale unlock must not release the new holder")
}

func TestRedisLockerContextCancel(t *testing.T) {
	l, _ := newTestRedisLocker(t, 10*time.Second)

	unlock, err := l.Lock(context.Background(), 3)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
