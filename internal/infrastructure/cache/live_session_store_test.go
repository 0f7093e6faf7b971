package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nest-haus/backend/internal/domain/session"
)

func newTestLiveStore(t *testing.T, now time.Time) (*LiveSessionStore, func(time.Duration)) {
	mr, client := newMiniRedis(t)
	s := NewLiveSessionStore(client)
	s.now = func() time.Time { return now }
	advance := func(d time.Duration) {
		now = now.Add(d)
		mr.SetTime(now)
		mr.FastForward(d)
	}
	mr.SetTime(now)
	return s, advance
}

func TestLiveSessionStore_SaveGet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	s, advance := newTestLiveStore(t, now)

	_, err := s.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	ls := session.NewLiveSession("sess-1", session.ClientInfo{IP: "1.2.3.4", UserAgent: "ua"}, now)
	ls.ApplySelection(session.Selection{Category: "nest", Selection: "nest80"}, now)
	require.NoError(t, s.Save(ctx, ls))

	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "nest80", got.Selections["nest"])
	assert.Equal(t, "1.2.3.4", got.IPAddress)

	advance(session.LiveTTL + time.Minute)
	_, err = s.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestLiveSessionStore_RecordClick(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	s, _ := newTestLiveStore(t, now)

	for i := 0; i < session.MaxClickHistory+5; i++ {
		require.NoError(t, s.RecordClick(ctx, "sess-2", session.ClickEvent{
			Timestamp: now.UnixMilli() + int64(i),
			Category:  "gebaeudehuelle",
			Selection: "holz",
		}))
	}

	got, err := s.Get(ctx, "sess-2")
	require.NoError(t, err)
	assert.Len(t, got.ClickHistory, session.MaxClickHistory)
	assert.Equal(t, now.UnixMilli()+5, got.ClickHistory[0].Timestamp)

	keys, err := s.client.Keys(ctx, clickPrefix+"sess-2:*").Result()
	require.NoError(t, err)
	assert.Len(t, keys, session.MaxClickHistory+5)
}

func TestLiveSessionStore_Finalize(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	s, _ := newTestLiveStore(t, now)

	ls := session.NewLiveSession("sess-3", session.ClientInfo{}, now)
	require.NoError(t, s.Save(ctx, ls))
	require.NoError(t, s.Finalize(ctx, ls))

	_, err := s.Get(ctx, "sess-3")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	final, err := s.GetFinal(ctx, "sess-3")
	require.NoError(t, err)
	assert.Equal(t, "sess-3", final.SessionID)
	assert.Equal(t, session.FinalTTL, s.client.TTL(ctx, finalSessionPrefix+"sess-3").Val())
}

func TestLiveSessionStore_List(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)
	s, _ := newTestLiveStore(t, now)

	empty, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, session.NewLiveSession(id, session.ClientInfo{}, now)))
	}
	require.NoError(t, s.client.Set(ctx, finalSessionPrefix+"old", "{}", 0).Err())

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 3, session.Summarize(all, now).ActiveSessions)
}

func TestLiveSessionStore_Counters(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 9, 30, 0, 0, time.UTC)
	s, _ := newTestLiveStore(t, now)

	for i := 1; i <= 3; i++ {
		n, err := s.IncrementCounter(ctx, "page_views", session.WindowHour)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}
	n, err := s.Counter(ctx, "page_views", session.WindowHour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	key, ttl := session.CounterKey("page_views", session.WindowHour, now)
	assert.Equal(t, ttl, s.client.TTL(ctx, key).Val())

	_, err = s.IncrementCounter(ctx, "page_views", session.WindowTotal)
	require.NoError(t, err)
	total, _ := session.CounterKey("page_views", session.WindowTotal, now)
	assert.Equal(t, time.Duration(-1), s.client.TTL(ctx, total).Val())

	n, err = s.Counter(ctx, "never", session.WindowDay)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLiveSessionStore_Traffic(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 9, 30, 0, 0, time.UTC)
	s, _ := newTestLiveStore(t, now)

	require.NoError(t, s.RecordTraffic(ctx, now, session.ParseReferrer("https://www.google.com/search")))
	require.NoError(t, s.RecordTraffic(ctx, now, session.Direct))
	require.NoError(t, s.RecordTraffic(ctx, now, session.Direct))

	got, err := s.TrafficSources(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"google": 1, "direct": 2}, got)
	assert.Equal(t, trafficTTL, s.client.TTL(ctx, "traffic:2025-10-01").Val())
}
