package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nest-haus/backend/internal/domain/session"
)

var client = session.ClientInfo{IP: "203.0.113.7", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"}

func TestGormSessionRepository_SaveAndFind(t *testing.T) {
	repo := NewGormSessionRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC)

	s := session.NewUserSession("sess-1", client, now)
	require.NoError(t, repo.Save(ctx, s))

	t.Run("finds by session id", func(t *testing.T) {
		found, err := repo.FindBySessionID(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, s.UserIdentifier, found.UserIdentifier)
		assert.Equal(t, session.StatusActive, found.Status)
		assert.Equal(t, 1, found.VisitCount)
	})

	t.Run("second save updates the same row", func(t *testing.T) {
		again := session.NewUserSession("sess-1", client, now.Add(time.Minute))
		again.VisitCount = 3
		require.NoError(t, repo.Save(ctx, again))

		found, err := repo.FindBySessionID(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, 3, found.VisitCount)
		assert.Equal(t, s.ID, found.ID)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := repo.FindBySessionID(ctx, "nope")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})
}

func TestGormSessionRepository_FindLatestForVisitor(t *testing.T) {
	repo := NewGormSessionRepository(newTestDB(t))
	ctx := context.Background()
	day := time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC)

	latest, err := repo.FindLatestForVisitor(ctx, client.UserIdentifier())
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, repo.Save(ctx, session.NewUserSession("old", client, day.AddDate(0, 0, -2))))
	require.NoError(t, repo.Save(ctx, session.NewUserSession("new", client, day)))
	other := session.ClientInfo{IP: "198.51.100.1", UserAgent: "curl/8"}
	require.NoError(t, repo.Save(ctx, session.NewUserSession("other", other, day.Add(time.Hour))))

	latest, err = repo.FindLatestForVisitor(ctx, client.UserIdentifier())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "new", latest.SessionID)
}

func TestGormSessionRepository_TouchAndSnapshot(t *testing.T) {
	repo := NewGormSessionRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC)

	err := repo.Touch(ctx, "missing", now, nil)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	t.Run("snapshot creates missing session", func(t *testing.T) {
		require.NoError(t, repo.SaveSnapshot(ctx, "snap", `{"nest":{"value":"nest80"}}`, 228139, client, now))
		s, err := repo.FindBySessionID(ctx, "snap")
		require.NoError(t, err)
		require.NotNil(t, s.TotalPrice)
		assert.Equal(t, int64(228139), *s.TotalPrice)
		assert.JSONEq(t, `{"nest":{"value":"nest80"}}`, s.ConfigurationData)
	})

	t.Run("snapshot updates existing session", func(t *testing.T) {
		require.NoError(t, repo.SaveSnapshot(ctx, "snap", `{"nest":{"value":"nest100"}}`, 270000, client, now.Add(time.Minute)))
		s, err := repo.FindBySessionID(ctx, "snap")
		require.NoError(t, err)
		assert.Equal(t, int64(270000), *s.TotalPrice)
		assert.True(t, s.LastActivity.Equal(now.Add(time.Minute)))
	})

	t.Run("touch keeps price when nil", func(t *testing.T) {
		require.NoError(t, repo.Touch(ctx, "snap", now.Add(2*time.Minute), nil))
		s, err := repo.FindBySessionID(ctx, "snap")
		require.NoError(t, err)
		assert.Equal(t, int64(270000), *s.TotalPrice)
	})
}

func TestGormSessionRepository_Events(t *testing.T) {
	repo := NewGormSessionRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC)

	events := session.SnapshotEvents("sess-1", map[string]*session.ConfigurationItem{
		"nest":           {Value: "nest80"},
		"gebaeudehuelle": {Value: "holzlattung"},
		"unknown":        {Value: "ignored"},
	}, 228139, now)
	require.NoError(t, repo.CreateSelectionEvents(ctx, events...))
	require.NoError(t, repo.CreateSelectionEvents(ctx))

	for i := 0; i < 3; i++ {
		ev := session.Interaction{EventType: "click", Category: "nest", ElementID: "btn"}.
			Event("sess-1", client, "", now.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.CreateInteractionEvent(ctx, ev))
	}

	list, err := repo.ListInteractions(ctx, "sess-1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Timestamp.After(list[1].Timestamp))
	assert.Equal(t, session.DeviceDesktop, list[0].DeviceType)
}

func TestGormSessionRepository_Finalize(t *testing.T) {
	repo := NewGormSessionRepository(newTestDB(t))
	ctx := context.Background()
	start := time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, session.NewUserSession("done", client, start)))
	require.NoError(t, repo.Save(ctx, session.NewUserSession("left", client, start)))

	price := int64(300000)
	require.NoError(t, repo.MarkCompleted(ctx, "done", `{"nest":"nest120"}`, &price, start.Add(90*time.Second)))
	require.NoError(t, repo.Finalize(ctx, "left", session.ReasonPageExit, start.Add(time.Minute)))

	done, err := repo.FindBySessionID(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, done.Status)
	require.NotNil(t, done.DurationMs)
	assert.Equal(t, int64(90000), *done.DurationMs)
	assert.Equal(t, `{"nest":"nest120"}`, done.ConfigurationData)

	left, err := repo.FindBySessionID(ctx, "left")
	require.NoError(t, err)
	assert.Equal(t, session.StatusAbandoned, left.Status)

	assert.ErrorIs(t, repo.Finalize(ctx, "ghost", session.ReasonTimeout, start), session.ErrSessionNotFound)
}
