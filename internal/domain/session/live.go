package session

import (
	"context"
	"time"
)

const (
	// LiveTTL is how long an idle live session stays in the hot store.
	LiveTTL = 2 * time.Hour
	// FinalTTL is how long a finalized snapshot waits for the durable sync.
	FinalTTL = 7 * 24 * time.Hour
	// MaxClickHistory bounds the click history kept on a live session.
	MaxClickHistory = 100
	// ActiveWindow is how recent the last activity must be to count as active.
	ActiveWindow = 5 * time.Minute
)

// ClickEvent is one entry of the live click history.
type ClickEvent struct {
	Timestamp         int64  `json:"timestamp"`
	Category          string `json:"category"`
	Selection         string `json:"selection"`
	PreviousSelection string `json:"previousSelection,omitempty"`
	TimeSpent         int64  `json:"timeSpent"`
	PriceChange       *int64 `json:"priceChange,omitempty"`
	TotalPrice        *int64 `json:"totalPrice,omitempty"`
	EventType         string `json:"eventType,omitempty"`
	ElementID         string `json:"elementId,omitempty"`
}

// LiveSession is the hot copy of a session kept in the key-value store.
// Timestamps are unix milliseconds to keep the stored JSON compact.
type LiveSession struct {
	SessionID     string            `json:"sessionId"`
	IPAddress     string            `json:"ipAddress"`
	UserAgent     string            `json:"userAgent"`
	Referrer      string            `json:"referrer,omitempty"`
	StartTime     int64             `json:"startTime"`
	LastActivity  int64             `json:"lastActivity"`
	Selections    map[string]string `json:"selections"`
	TotalPrice    *int64            `json:"totalPrice,omitempty"`
	ClickHistory  []ClickEvent      `json:"clickHistory"`
	Configuration map[string]any    `json:"currentConfiguration,omitempty"`
}

// NewLiveSession starts a hot session.
func NewLiveSession(sessionID string, client ClientInfo, now time.Time) *LiveSession {
	client = client.normalized()
	ms := now.UnixMilli()
	return &LiveSession{
		SessionID:    sessionID,
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
		Referrer:     client.Referer,
		StartTime:    ms,
		LastActivity: ms,
		Selections:   map[string]string{},
		ClickHistory: []ClickEvent{},
	}
}

// ApplySelection records a configurator choice.
func (l *LiveSession) ApplySelection(sel Selection, now time.Time) {
	if l.Selections == nil {
		l.Selections = map[string]string{}
	}
	l.Selections[sel.Category] = sel.Selection
	l.TotalPrice = sel.TotalPrice
	l.LastActivity = now.UnixMilli()
}

// AppendClick adds ev to the history, keeping the newest MaxClickHistory entries.
func (l *LiveSession) AppendClick(ev ClickEvent, now time.Time) {
	l.ClickHistory = append(l.ClickHistory, ev)
	if n := len(l.ClickHistory); n > MaxClickHistory {
		l.ClickHistory = append([]ClickEvent(nil), l.ClickHistory[n-MaxClickHistory:]...)
	}
	l.LastActivity = now.UnixMilli()
}

// Active reports whether the session saw activity within ActiveWindow of now.
func (l *LiveSession) Active(now time.Time) bool {
	return now.UnixMilli()-l.LastActivity < ActiveWindow.Milliseconds()
}

// Duration is the time between start and last activity.
func (l *LiveSession) Duration() time.Duration {
	return time.Duration(l.LastActivity-l.StartTime) * time.Millisecond
}

// LiveStats summarizes the hot store for the admin dashboard.
type LiveStats struct {
	TotalSessions          int     `json:"totalSessions"`
	ActiveSessions         int     `json:"activeSessions"`
	AverageSessionDuration float64 `json:"averageSessionDuration"`
}

// Summarize computes LiveStats over sessions.
func Summarize(sessions []*LiveSession, now time.Time) LiveStats {
	stats := LiveStats{TotalSessions: len(sessions)}
	if len(sessions) == 0 {
		return stats
	}
	var total int64
	for _, s := range sessions {
		if s.Active(now) {
			stats.ActiveSessions++
		}
		total += s.LastActivity - s.StartTime
	}
	stats.AverageSessionDuration = float64(total) / float64(len(sessions))
	return stats
}

// LiveStore is the hot session store. Every method must fail loudly: callers
// treat its errors as request failures.
type LiveStore interface {
	Get(ctx context.Context, sessionID string) (*LiveSession, error)
	Save(ctx context.Context, s *LiveSession) error
	RecordClick(ctx context.Context, sessionID string, ev ClickEvent) error
	Finalize(ctx context.Context, s *LiveSession) error
	List(ctx context.Context) ([]*LiveSession, error)
	IncrementCounter(ctx context.Context, metric string, window CounterWindow) (int64, error)
	RecordTraffic(ctx context.Context, day time.Time, source TrafficSource) error
}

// CounterWindow buckets a real-time counter.
type CounterWindow string

const (
	WindowMinute CounterWindow = "minute"
	WindowHour   CounterWindow = "hour"
	WindowDay    CounterWindow = "day"
	WindowTotal  CounterWindow = "total"
)

// CounterKey returns the store key and expiry for metric in window at now.
// Total counters never expire.
func CounterKey(metric string, window CounterWindow, now time.Time) (string, time.Duration) {
	now = now.UTC()
	switch window {
	case WindowMinute:
		return "counter:" + metric + ":" + now.Format("2006-01-02-15:04"), time.Hour
	case WindowDay:
		return "counter:" + metric + ":" + now.Format("2006-01-02"), 7 * 24 * time.Hour
	case WindowTotal:
		return "counter:" + metric + ":total", 0
	default:
		return "counter:" + metric + ":" + now.Format("2006-01-02-15"), 24 * time.Hour
	}
}

// Repository persists sessions and their events durably.
type Repository interface {
	FindBySessionID(ctx context.Context, sessionID string) (*UserSession, error)
	// FindLatestForVisitor returns the visitor's most recently visited session, or nil.
	FindLatestForVisitor(ctx context.Context, userIdentifier string) (*UserSession, error)
	Save(ctx context.Context, s *UserSession) error
	Touch(ctx context.Context, sessionID string, at time.Time, totalPrice *int64) error
	SaveSnapshot(ctx context.Context, sessionID string, configuration string, totalPrice int64, client ClientInfo, at time.Time) error
	CreateSelectionEvents(ctx context.Context, events ...*SelectionEvent) error
	CreateInteractionEvent(ctx context.Context, ev *InteractionEvent) error
	ListInteractions(ctx context.Context, sessionID string, limit int) ([]InteractionEvent, error)
	MarkCompleted(ctx context.Context, sessionID string, configuration string, totalPrice *int64, at time.Time) error
	Finalize(ctx context.Context, sessionID string, reason FinalizeReason, at time.Time) error
}
