package lock

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mailer/internal/config"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return now }

	lease, err := l.Acquire(ctx, "queue", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "queue", time.Minute)
	assert.True(t, errors.Is(err, ErrNotAcquired))

	other, err := l.Acquire(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	again, err := l.Acquire(ctx, "queue", time.Minute)
	require.NoError(t, err)

	t.Run("Expiry", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		taken, err := l.Acquire(ctx, "queue", time.Minute)
		require.NoError(t, err)

		// The stale lease must not release the new holder's lock.
		require.NoError(t, again.Release(ctx))
		_, err = l.Acquire(ctx, "queue", time.Minute)
		assert.True(t, errors.Is(err, ErrNotAcquired))
		require.NoError(t, taken.Release(ctx))
	})
}

func TestNopLocker(t *testing.T) {
	lease, err := NopLocker{}.Acquire(context.Background(), "queue", time.Second)
	require.NoError(t, err)
	assert.NoError(t, lease.Release(context.Background()))
}

func TestNewRedisLockerUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = NewRedisLocker(ctx, config.RedisConfig{Addr: addr}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
