package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/nest-haus/backend/internal/domain/session"
	"github.com/nest-haus/backend/internal/domain/shared"
	"github.com/nest-haus/backend/internal/infrastructure/cache"
	"github.com/nest-haus/backend/internal/infrastructure/persistence"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var visitor = session.ClientInfo{IP: "203.0.113.7", UserAgent: chromeUA, Referer: "https://www.google.com/search?q=nest"}

type failures struct {
	mu  sync.Mutex
	ops []string
}

func (f *failures) IncPersistFailure(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *failures) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

type fixedLocator struct{ calls int }

func (l *fixedLocator) Locate(context.Context, string) (*session.Location, error) {
	l.calls++
	return &session.Location{Country: "AT", City: "Graz", Latitude: 47.07, Longitude: 15.44}, nil
}

type harness struct {
	tracker  *Tracker
	mr       *miniredis.Miniredis
	live     *cache.LiveSessionStore
	repo     *persistence.GormSessionRepository
	db       *gorm.DB
	failures *failures
	locator  *fixedLocator
}

func newHarness(t *testing.T, repo session.Repository) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, err := persistence.NewSQLiteDatabase(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		mr:       mr,
		live:     cache.NewLiveSessionStore(client),
		repo:     persistence.NewGormSessionRepository(db.DB),
		db:       db.DB,
		failures: &failures{},
		locator:  &fixedLocator{},
	}
	if repo == nil {
		repo = h.repo
	}
	h.tracker = NewTracker(TrackerConfig{
		Live:     h.live,
		Repo:     repo,
		Locator:  h.locator,
		Recorder: h.failures,
		Logger:   zaptest.NewLogger(t),
	})
	return h
}

func (h *harness) at(ts time.Time) {
	h.tracker.now = func() time.Time { return ts }
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.tracker.Wait(ctx))
}

func price(v int64) *int64 { return &v }

func TestTrack_WritesBothStores(t *testing.T) {
	h := newHarness(t, nil)
	now := time.Date(2025, 10, 3, 9, 0, 0, 0, time.UTC)
	h.at(now)
	ctx := context.Background()

	ls, err := h.tracker.Track(ctx, session.Selection{
		SessionID: "s1", Category: "nest", Selection: "nest80", TotalPrice: price(213032),
	}, visitor)
	require.NoError(t, err)
	assert.Equal(t, "nest80", ls.Selections["nest"])

	stored, err := h.live.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(213032), *stored.TotalPrice)
	ttl := h.mr.TTL("session:s1")
	assert.Equal(t, session.LiveTTL, ttl)

	h.wait(t)
	row, err := h.repo.FindBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(213032), *row.TotalPrice)

	_, err = h.tracker.Track(ctx, session.Selection{
		SessionID: "s1", Category: "gebaeudehuelle", Selection: "holzlattung", PreviousSelection: "trapezblech",
		PriceChange: price(24413), TotalPrice: price(237445),
	}, visitor)
	require.NoError(t, err)
	h.wait(t)

	var events int64
	require.NoError(t, h.db.Model(&session.SelectionEvent{}).Where("session_id = ?", "s1").Count(&events).Error)
	assert.Equal(t, int64(2), events)
	assert.Empty(t, h.failures.list())

	n, err := h.live.Counter(ctx, MetricSelections, session.WindowTotal)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestTrack_Validation(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.tracker.Track(context.Background(), session.Selection{SessionID: "s1"}, visitor)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.ErrorContains(t, err, "category, selection")
}

func TestTrack_RedisDownFailsRequest(t *testing.T) {
	h := newHarness(t, nil)
	h.mr.Close()

	_, err := h.tracker.Track(context.Background(), session.Selection{SessionID: "s1", Category: "nest", Selection: "nest80"}, visitor)
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrStoreUnavailable)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)

	h.wait(t)
	_, err = h.repo.FindBySessionID(context.Background(), "s1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound, "nothing is persisted when the hot write fails")
}

type brokenRepo struct {
	session.Repository
}

var errDBDown = errors.New("connection refused")

func (brokenRepo) Touch(context.Context, string, time.Time, *int64) error { return errDBDown }

func (brokenRepo) SaveSnapshot(context.Context, string, string, int64, session.ClientInfo, time.Time) error {
	return errDBDown
}

func (brokenRepo) FindLatestForVisitor(context.Context, string) (*session.UserSession, error) {
	return nil, errDBDown
}

func TestPostgresFailuresNeverSurface(t *testing.T) {
	h := newHarness(t, brokenRepo{})
	ctx := context.Background()

	_, err := h.tracker.Track(ctx, session.Selection{SessionID: "s1", Category: "nest", Selection: "nest80"}, visitor)
	require.NoError(t, err)
	require.NoError(t, h.tracker.Sync(ctx, SyncRequest{SessionID: "s1", TotalPrice: 1}, visitor))
	_, err = h.tracker.TrackInteraction(ctx, "s1", session.Interaction{EventType: "click", Category: "nav"}, visitor, "")
	require.NoError(t, err)

	h.wait(t)
	assert.ElementsMatch(t, []string{"track", "sync", "interaction"}, h.failures.list())

	_, err = h.live.Get(ctx, "s1")
	assert.NoError(t, err, "redis copy is still written")
}

func TestSync_StoresSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	now := time.Date(2025, 10, 3, 9, 0, 0, 0, time.UTC)
	h.at(now)
	ctx := context.Background()

	err := h.tracker.Sync(ctx, SyncRequest{
		SessionID: "s1",
		Configuration: map[string]*session.ConfigurationItem{
			"nest":           {Value: "nest80", Name: "Nest 80"},
			"gebaeudehuelle": {Value: "trapezblech"},
			"unknown":        {Value: "ignored"},
			"fenster":        nil,
		},
		TotalPrice: 228139,
	}, visitor)
	require.NoError(t, err)
	h.wait(t)

	ls, err := h.live.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "trapezblech", ls.Selections["gebaeudehuelle"])
	assert.Contains(t, ls.Configuration, "nest")

	row, err := h.repo.FindBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Contains(t, row.ConfigurationData, "nest80")

	var events int64
	require.NoError(t, h.db.Model(&session.SelectionEvent{}).Count(&events).Error)
	assert.Equal(t, int64(2), events)

	err = h.tracker.Sync(ctx, SyncRequest{}, visitor)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestTrackInteraction_VisitDeduplication(t *testing.T) {
	h := newHarness(t, nil)
	day := time.Date(2025, 10, 3, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	click := session.Interaction{EventType: "click", Category: "configurator", ElementID: "nest80"}

	h.at(day)
	res, err := h.tracker.TrackInteraction(ctx, "a", click, visitor, "")
	require.NoError(t, err)
	assert.Equal(t, session.DeviceDesktop, res.DeviceType)
	assert.Equal(t, "google", res.Traffic.Source)
	assert.Equal(t, visitor.UserIdentifier(), res.UserIdentifier)
	h.wait(t)

	first, err := h.repo.FindBySessionID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, first.VisitCount)
	assert.Equal(t, "organic", first.TrafficMedium)
	assert.Equal(t, "AT", first.Country)

	h.at(day.Add(2 * time.Hour))
	_, err = h.tracker.TrackInteraction(ctx, "b", click, visitor, "")
	require.NoError(t, err)
	h.wait(t)
	second, err := h.repo.FindBySessionID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, second.VisitCount, "same day shares the visit")

	h.at(day.AddDate(0, 0, 1))
	_, err = h.tracker.TrackInteraction(ctx, "c", click, visitor, "https://nest-haus.at/?utm_source=newsletter&utm_medium=email")
	require.NoError(t, err)
	h.wait(t)
	third, err := h.repo.FindBySessionID(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 2, third.VisitCount)
	assert.Equal(t, "utm", third.TrafficSource)
	assert.Equal(t, "newsletter", third.ReferralDomain)

	traffic, err := h.live.TrafficSources(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"google": 1}, traffic)

	events, err := h.repo.ListInteractions(ctx, "a", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	ls, err := h.live.Get(ctx, "a")
	require.NoError(t, err)
	require.Len(t, ls.ClickHistory, 1)
	assert.Equal(t, "nest80", ls.ClickHistory[0].ElementID)
}

func TestTrackInteraction_FillsTrafficForSelectionOnlySession(t *testing.T) {
	h := newHarness(t, nil)
	h.at(time.Date(2025, 10, 3, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := h.tracker.Track(ctx, session.Selection{SessionID: "s1", Category: "nest", Selection: "nest80"}, visitor)
	require.NoError(t, err)
	h.wait(t)

	_, err = h.tracker.TrackInteraction(ctx, "s1", session.Interaction{EventType: "page_view", Category: "landing"}, visitor, "")
	require.NoError(t, err)
	h.wait(t)

	row, err := h.repo.FindBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "google", row.TrafficSource)
	assert.Equal(t, 1, row.VisitCount)
}

func TestFinalize(t *testing.T) {
	h := newHarness(t, nil)
	start := time.Date(2025, 10, 3, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	h.at(start)
	_, err := h.tracker.Track(ctx, session.Selection{SessionID: "done", Category: "nest", Selection: "nest80", TotalPrice: price(213032)}, visitor)
	require.NoError(t, err)
	_, err = h.tracker.Track(ctx, session.Selection{SessionID: "left", Category: "nest", Selection: "nest100"}, visitor)
	require.NoError(t, err)
	h.wait(t)

	h.at(start.Add(10 * time.Minute))
	require.NoError(t, h.tracker.Finalize(ctx, "done", session.ReasonCompleted))
	require.NoError(t, h.tracker.Finalize(ctx, "left", ""))
	h.wait(t)

	_, err = h.live.Get(ctx, "done")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
	final, err := h.live.GetFinal(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, "nest80", final.Selections["nest"])
	assert.Equal(t, session.FinalTTL, h.mr.TTL("final:done"))

	done, err := h.repo.FindBySessionID(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, done.Status)
	require.NotNil(t, done.DurationMs)
	assert.Equal(t, (10 * time.Minute).Milliseconds(), *done.DurationMs)

	left, err := h.repo.FindBySessionID(ctx, "left")
	require.NoError(t, err)
	assert.Equal(t, session.StatusAbandoned, left.Status)

	assert.Error(t, h.tracker.Finalize(ctx, "", session.ReasonTimeout))
}

func TestLiveStats(t *testing.T) {
	h := newHarness(t, nil)
	now := time.Now()
	h.at(now)
	ctx := context.Background()

	for _, id := range []string{"x", "y"} {
		_, err := h.tracker.Track(ctx, session.Selection{SessionID: id, Category: "nest", Selection: "nest80"}, visitor)
		require.NoError(t, err)
	}
	stats, err := h.tracker.LiveStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 2, stats.ActiveSessions)
	h.wait(t)
}
