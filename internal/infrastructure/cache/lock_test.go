package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniRedis(t)
	l := NewLocker(client, nil)

	release, ok, err := l.Acquire(ctx, "imagesync:lock", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "imagesync:lock", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists("imagesync:lock"))

	release2, ok, err := l.Acquire(ctx, "imagesync:lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestLocker_ExpiredReleaseKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniRedis(t)
	l := NewLocker(client, nil)

	stale, ok, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	stale()
	assert.True(t, mr.Exists("k"), "stale holder must not release the new lease")
}

func TestLocker_RedisDown(t *testing.T) {
	mr, client := newMiniRedis(t)
	mr.Close()
	l := NewLocker(client, nil)

	_, ok, err := l.Acquire(context.Background(), "k", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}
