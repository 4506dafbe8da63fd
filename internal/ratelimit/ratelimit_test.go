package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/gymledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLockerSingleHolder(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "recompute_vat", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "recompute_vat", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "recompute_vat", "someone-else"))
	assert.True(t, mr.Exists(lockKeyPrefix+"recompute_vat"))

	require.NoError(t, locker.Release(ctx, "recompute_vat", token))
	assert.False(t, mr.Exists(lockKeyPrefix+"recompute_vat"))
}

func TestLockerLeaseExpires(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "purge", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	_, ok, err = locker.TryLock(ctx, "purge", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWithLockSkipsWhenHeld(t *testing.T) {
	_, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ran := false
	acquired, err := locker.WithLock(ctx, "job", time.Minute, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.False(t, ran)
}

func TestWithLockReleasesAfterError(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	boom := errors.New("boom")

	acquired, err := locker.WithLock(context.Background(), "job", time.Minute, func(context.Context) error {
		return boom
	})
	assert.True(t, acquired)
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(lockKeyPrefix+"job"))
}

func TestNilLockerReportsNotConfigured(t *testing.T) {
	var locker *Locker
	_, _, err := locker.TryLock(context.Background(), "job", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, locker.Release(context.Background(), "job", "token"))
}

func TestRegistrationLimiterExhaustsBurst(t *testing.T) {
	_, client := newRedis(t)
	cfg := config.Config{RateLimit: config.RateLimitConfig{
		Enabled:           true,
		RegistrationRate:  0.01,
		RegistrationBurst: 2,
	}}
	limiter := NewRegistrationLimiter(cfg, NewTokenBucket(client))
	require.True(t, limiter.Enabled())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "203.0.113.9")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}

	res, err := limiter.Allow(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)

	other, err := limiter.Allow(ctx, "198.51.100.4")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestRegistrationLimiterDisabledAllows(t *testing.T) {
	limiter := NewRegistrationLimiter(config.Config{}, nil)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
