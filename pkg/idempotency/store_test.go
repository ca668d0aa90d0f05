package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryStore_ClaimOnce(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	ok, err := s.Claim(ctx, "100")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, "100")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := s.Claim(ctx, "a")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err := s.Claim(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok, "expired key should be claimable again")
}

func TestMemoryStore_SweepsExpired(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for _, k := range []string{"1", "2", "3"} {
		_, _ = s.Claim(ctx, k)
	}
	require.Equal(t, 3, s.Len())

	now = now.Add(2 * time.Minute)
	_, _ = s.Claim(ctx, "4")
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_ConcurrentClaims(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Claim(context.Background(), "same"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestRedisStore_ClaimAndRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, time.Hour)
	ctx := context.Background()

	ok, err := s.Claim(ctx, "77")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists(defaultKeyPrefix+"77"))
	assert.Equal(t, time.Hour, mr.TTL(defaultKeyPrefix+"77"))

	ok, err = s.Claim(ctx, "77")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Release(ctx, "77"))
	ok, err = s.Claim(ctx, "77")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_Expiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	ok, _ := s.Claim(ctx, "1")
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err := s.Claim(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_ClaimError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisStore(client, time.Minute).Claim(context.Background(), "x")
	assert.Error(t, err)
}

type failingStore struct{}

func (failingStore) Claim(context.Context, string) (bool, error) { return false, errors.New("down") }
func (failingStore) Release(context.Context, string) error       { return nil }

func TestGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("first call runs, duplicate skipped", func(t *testing.T) {
		s := NewMemoryStore(time.Minute)
		calls := 0
		fn := func(context.Context) error { calls++; return nil }

		require.NoError(t, Guard(ctx, s, "k", testLogger(), fn))
		require.NoError(t, Guard(ctx, s, "k", testLogger(), fn))
		assert.Equal(t, 1, calls)
	})

	t.Run("failure releases the claim", func(t *testing.T) {
		s := NewMemoryStore(time.Minute)
		boom := errors.New("boom")

		err := Guard(ctx, s, "k", testLogger(), func(context.Context) error { return boom })
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 0, s.Len())
	})

	t.Run("empty key always runs", func(t *testing.T) {
		s := NewMemoryStore(time.Minute)
		calls := 0
		fn := func(context.Context) error { calls++; return nil }

		require.NoError(t, Guard(ctx, s, "", testLogger(), fn))
		require.NoError(t, Guard(ctx, s, "", testLogger(), fn))
		assert.Equal(t, 2, calls)
	})

	t.Run("store error still runs", func(t *testing.T) {
		calls := 0
		require.NoError(t, Guard(ctx, failingStore{}, "k", testLogger(), func(context.Context) error { calls++; return nil }))
		assert.Equal(t, 1, calls)
	})
}
