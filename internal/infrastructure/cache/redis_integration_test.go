//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/nest-haus/backend/internal/domain/session"
)

func newRedisContainer(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedis_LockAndLiveSessions(t *testing.T) {
	client := newRedisContainer(t)
	ctx := context.Background()

	t.Run("lock is exclusive until released", func(t *testing.T) {
		l := NewLocker(client, nil)
		release, ok, err := l.Acquire(ctx, "imagesync:lock", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = l.Acquire(ctx, "imagesync:lock", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		release()
		_, ok, err = l.Acquire(ctx, "imagesync:lock", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("live session round trip", func(t *testing.T) {
		store := NewLiveSessionStore(client)
		ls := session.NewLiveSession("sess-int", session.ClientInfo{IP: "203.0.113.9"}, time.Now())
		require.NoError(t, store.Save(ctx, ls))

		got, err := store.Get(ctx, "sess-int")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "sess-int", got.SessionID)

		require.NoError(t, store.Finalize(ctx, got))
		final, err := store.GetFinal(ctx, "sess-int")
		require.NoError(t, err)
		require.NotNil(t, final)

		_, err = store.Get(ctx, "sess-int")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})
}
