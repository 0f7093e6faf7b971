// Package session tracks configurator sessions. Every request writes the hot
// copy in Redis first and fails when that write fails; the durable Postgres
// copy is written in the background and never fails a request.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nest-haus/backend/internal/domain/session"
	"github.com/nest-haus/backend/internal/infrastructure/telemetry"
)

// DefaultPersistTimeout bounds one background Postgres write.
const DefaultPersistTimeout = 5 * time.Second

// Counter metrics kept in the live store.
const (
	MetricSelections   = "selections"
	MetricInteractions = "interactions"
	MetricSessions     = "sessions"
)

// FailureRecorder counts background persistence failures.
type FailureRecorder interface {
	IncPersistFailure(operation string)
}

// TrackerConfig contains configuration for Tracker
type TrackerConfig struct {
	Live           session.LiveStore
	Repo           session.Repository
	Locator        session.Locator
	Recorder       FailureRecorder
	Logger         *zap.Logger
	PersistTimeout time.Duration
}

// Tracker records selections, interactions and session lifecycle.
type Tracker struct {
	live     session.LiveStore
	repo     session.Repository
	locator  session.Locator
	recorder FailureRecorder
	logger   *zap.Logger
	timeout  time.Duration
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewTracker creates a Tracker. Live is required; Repo and Locator are optional.
func NewTracker(cfg TrackerConfig) *Tracker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.PersistTimeout
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}
	return &Tracker{
		live:     cfg.Live,
		repo:     cfg.Repo,
		locator:  cfg.Locator,
		recorder: cfg.Recorder,
		logger:   logger.Named("session"),
		timeout:  timeout,
		now:      time.Now,
	}
}

func unavailable(err error) error {
	if errors.Is(err, session.ErrStoreUnavailable) {
		return err
	}
	return session.ErrStoreUnavailable.Wrap(err)
}

// loadLive returns the hot session, starting one when none exists.
func (t *Tracker) loadLive(ctx context.Context, sessionID string, client session.ClientInfo, now time.Time) (*session.LiveSession, error) {
	ls, err := t.live.Get(ctx, sessionID)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return session.NewLiveSession(sessionID, client, now), nil
	case err != nil:
		return nil, unavailable(err)
	}
	return ls, nil
}

// persist runs fn in the background against its own deadline. The request
// context's values (trace, request id) are kept, its cancellation is not.
func (t *Tracker) persist(ctx context.Context, op, sessionID string, fn func(ctx context.Context) error) {
	if t.repo == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		pctx, cancel := context.WithTimeout(base, t.timeout)
		defer cancel()
		if err := fn(pctx); err != nil {
			t.logger.Warn("Session persistence failed",
				zap.String("operation", op),
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			if t.recorder != nil {
				t.recorder.IncPersistFailure(op)
			}
		}
	}()
}

// Wait blocks until background writes finish or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) count(ctx context.Context, metric string, windows ...session.CounterWindow) {
	for _, w := range windows {
		if _, err := t.live.IncrementCounter(ctx, metric, w); err != nil {
			t.logger.Debug("Counter increment failed", zap.String("metric", metric), zap.Error(err))
			return
		}
	}
}

// ensureSession makes sure a durable row exists before events are attached.
func (t *Tracker) ensureSession(ctx context.Context, sessionID string, client session.ClientInfo, now time.Time, totalPrice *int64) error {
	err := t.repo.Touch(ctx, sessionID, now, totalPrice)
	if !errors.Is(err, session.ErrSessionNotFound) {
		return err
	}
	s := session.NewUserSession(sessionID, client, now)
	s.TotalPrice = totalPrice
	return t.repo.Save(ctx, s)
}

// Track records one configurator selection.
func (t *Tracker) Track(ctx context.Context, sel session.Selection, client session.ClientInfo) (*session.LiveSession, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	now := t.now()

	var ls *session.LiveSession
	err := telemetry.Trace(ctx, "session", "track", func(ctx context.Context) error {
		var err error
		ls, err = t.loadLive(ctx, sel.SessionID, client, now)
		if err != nil {
			return err
		}
		ls.ApplySelection(sel, now)
		if err := t.live.Save(ctx, ls); err != nil {
			return unavailable(err)
		}
		return nil
	}, telemetry.WithAttribute(telemetry.SpanAttrSessionID, sel.SessionID))
	if err != nil {
		return nil, err
	}

	t.count(ctx, MetricSelections, session.WindowMinute, session.WindowHour, session.WindowDay, session.WindowTotal)
	t.persist(ctx, "track", sel.SessionID, func(ctx context.Context) error {
		if err := t.ensureSession(ctx, sel.SessionID, client, now, sel.TotalPrice); err != nil {
			return err
		}
		return t.repo.CreateSelectionEvents(ctx, sel.Event(now))
	})
	return ls, nil
}

// SyncRequest is a full configuration snapshot.
type SyncRequest struct {
	SessionID     string                                `json:"sessionId"`
	Configuration map[string]*session.ConfigurationItem `json:"configuration"`
	TotalPrice    int64                                 `json:"totalPrice"`
}

// Sync stores a full configuration snapshot.
func (t *Tracker) Sync(ctx context.Context, req SyncRequest, client session.ClientInfo) error {
	if req.SessionID == "" {
		return session.ErrMissingFields.WithMessage("Missing required fields: sessionId")
	}
	now := t.now()
	raw, err := json.Marshal(req.Configuration)
	if err != nil {
		return session.ErrMissingFields.WithMessage("Invalid configuration")
	}

	ls, err := t.loadLive(ctx, req.SessionID, client, now)
	if err != nil {
		return err
	}
	for category, item := range req.Configuration {
		if item != nil && item.Value != "" {
			ls.Selections[category] = item.Value
		}
	}
	total := req.TotalPrice
	ls.TotalPrice = &total
	ls.LastActivity = now.UnixMilli()
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err == nil {
		ls.Configuration = asMap
	}
	if err := t.live.Save(ctx, ls); err != nil {
		return unavailable(err)
	}

	t.persist(ctx, "sync", req.SessionID, func(ctx context.Context) error {
		if err := t.repo.SaveSnapshot(ctx, req.SessionID, string(raw), req.TotalPrice, client, now); err != nil {
			return err
		}
		return t.repo.CreateSelectionEvents(ctx, session.SnapshotEvents(req.SessionID, req.Configuration, req.TotalPrice, now)...)
	})
	return nil
}

// InteractionResult is what the caller learns synchronously about a visit.
type InteractionResult struct {
	UserIdentifier string                `json:"userIdentifier"`
	DeviceType     session.DeviceType    `json:"deviceType"`
	Traffic        session.TrafficSource `json:"trafficSource"`
}

// TrackInteraction records a UI interaction. LandingURL is used for UTM
// classification of new visits.
func (t *Tracker) TrackInteraction(ctx context.Context, sessionID string, in session.Interaction, client session.ClientInfo, landingURL string) (*InteractionResult, error) {
	if sessionID == "" {
		return nil, session.ErrMissingFields.WithMessage("Missing required fields: sessionId")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := t.now()

	click := session.ClickEvent{
		Timestamp:         now.UnixMilli(),
		Category:          in.Category,
		Selection:         in.SelectionValue,
		PreviousSelection: in.PreviousValue,
		EventType:         in.EventType,
		ElementID:         in.ElementID,
	}
	if in.TimeSpent != nil {
		click.TimeSpent = *in.TimeSpent
	}
	if err := t.live.RecordClick(ctx, sessionID, click); err != nil {
		return nil, unavailable(err)
	}
	t.count(ctx, MetricInteractions, session.WindowMinute, session.WindowHour, session.WindowDay, session.WindowTotal)

	res := &InteractionResult{
		UserIdentifier: client.UserIdentifier(),
		DeviceType:     session.DetectDevice(client.UserAgent),
		Traffic:        session.ClassifyTraffic(landingURL, client.Referer),
	}

	t.persist(ctx, "interaction", sessionID, func(ctx context.Context) error {
		if err := t.recordVisit(ctx, sessionID, client, res, now); err != nil {
			return err
		}
		var extra string
		if in.DeviceInfo != nil {
			if raw, err := json.Marshal(in.DeviceInfo); err == nil {
				extra = string(raw)
			}
		}
		return t.repo.CreateInteractionEvent(ctx, in.Event(sessionID, client, extra, now))
	})
	return res, nil
}

// recordVisit applies the same-day visitor rules to the durable sessions.
func (t *Tracker) recordVisit(ctx context.Context, sessionID string, client session.ClientInfo, res *InteractionResult, now time.Time) error {
	latest, err := t.repo.FindLatestForVisitor(ctx, res.UserIdentifier)
	if err != nil {
		return err
	}
	visit := session.ResolveVisit(latest, sessionID, now)
	switch visit.Action {
	case session.VisitTouch:
		if latest.TrafficSource != "" {
			return t.repo.Touch(ctx, sessionID, now, nil)
		}
		// first interaction of a session that so far only had selections
		latest.SetTraffic(res.Traffic)
		latest.Touch(now)
		t.locate(ctx, latest, client.IP)
		return t.repo.Save(ctx, latest)
	case session.VisitJoin:
		if err := t.repo.Touch(ctx, latest.SessionID, now, nil); err != nil {
			return err
		}
	}

	existing, err := t.repo.FindBySessionID(ctx, sessionID)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return err
	}
	if existing != nil {
		// the row came from an earlier selection; only the visit fields are new
		existing.VisitCount = visit.VisitCount
		existing.LastVisitDate = now
		existing.UserIdentifier = res.UserIdentifier
		existing.Touch(now)
		if existing.TrafficSource == "" {
			existing.SetTraffic(res.Traffic)
		}
		t.locate(ctx, existing, client.IP)
		return t.repo.Save(ctx, existing)
	}

	s := session.NewUserSession(sessionID, client, now)
	s.VisitCount = visit.VisitCount
	s.SetTraffic(res.Traffic)
	t.locate(ctx, s, client.IP)
	if err := t.repo.Save(ctx, s); err != nil {
		return err
	}
	if visit.Action == session.VisitCreate {
		t.count(ctx, MetricSessions, session.WindowHour, session.WindowDay, session.WindowTotal)
		if err := t.live.RecordTraffic(ctx, now, res.Traffic); err != nil {
			t.logger.Debug("Traffic counter failed", zap.Error(err))
		}
	}
	return nil
}

func (t *Tracker) locate(ctx context.Context, s *session.UserSession, ip string) {
	if t.locator == nil || s.Country != "" || !session.Locatable(ip) {
		return
	}
	loc, err := t.locator.Locate(ctx, ip)
	if err != nil {
		t.logger.Debug("Geolocation failed", zap.Error(err))
		return
	}
	s.SetLocation(loc)
}

// Finalize ends a session: the hot copy moves to the final key and the
// durable row is closed as COMPLETED or ABANDONED.
func (t *Tracker) Finalize(ctx context.Context, sessionID string, reason session.FinalizeReason) error {
	if sessionID == "" {
		return session.ErrMissingFields.WithMessage("Missing required fields: sessionId")
	}
	if reason == "" {
		reason = session.ReasonPageExit
	}
	now := t.now()

	ls, err := t.live.Get(ctx, sessionID)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		ls = nil
	case err != nil:
		return unavailable(err)
	default:
		ls.LastActivity = now.UnixMilli()
		if err := t.live.Finalize(ctx, ls); err != nil {
			return unavailable(err)
		}
	}

	t.persist(ctx, "finalize", sessionID, func(ctx context.Context) error {
		if ls != nil && (reason == session.ReasonCompleted || reason == session.ReasonConversion) {
			var config string
			if len(ls.Configuration) > 0 {
				if raw, err := json.Marshal(ls.Configuration); err == nil {
					config = string(raw)
				}
			}
			return t.repo.MarkCompleted(ctx, sessionID, config, ls.TotalPrice, now)
		}
		return t.repo.Finalize(ctx, sessionID, reason, now)
	})
	return nil
}

// LiveStats summarizes the sessions currently in the hot store.
func (t *Tracker) LiveStats(ctx context.Context) (session.LiveStats, error) {
	sessions, err := t.live.List(ctx)
	if err != nil {
		return session.LiveStats{}, unavailable(err)
	}
	return session.Summarize(sessions, t.now()), nil
}
