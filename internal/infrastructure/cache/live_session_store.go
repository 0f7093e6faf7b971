package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nest-haus/backend/internal/domain/session"
)

const (
	liveSessionPrefix  = "session:"
	finalSessionPrefix = "final:"
	clickPrefix        = "click:"
	trafficPrefix      = "traffic:"
	trafficTTL         = 7 * 24 * time.Hour
	scanBatch          = 100
)

// LiveSessionStore keeps hot sessions in Redis.
type LiveSessionStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewLiveSessionStore creates a LiveSessionStore
func NewLiveSessionStore(client *redis.Client) *LiveSessionStore {
	return &LiveSessionStore{client: client, now: time.Now}
}

// Get returns the live session or session.ErrSessionNotFound.
func (s *LiveSessionStore) Get(ctx context.Context, sessionID string) (*session.LiveSession, error) {
	raw, err := s.client.Get(ctx, liveSessionPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read live session %s: %w", sessionID, err)
	}
	var ls session.LiveSession
	if err := json.Unmarshal(raw, &ls); err != nil {
		return nil, fmt.Errorf("failed to decode live session %s: %w", sessionID, err)
	}
	return &ls, nil
}

// Save writes the session and refreshes its TTL.
func (s *LiveSessionStore) Save(ctx context.Context, ls *session.LiveSession) error {
	raw, err := json.Marshal(ls)
	if err != nil {
		return fmt.Errorf("failed to encode live session: %w", err)
	}
	if err := s.client.Set(ctx, liveSessionPrefix+ls.SessionID, raw, session.LiveTTL).Err(); err != nil {
		return fmt.Errorf("failed to write live session %s: %w", ls.SessionID, err)
	}
	return nil
}

// RecordClick stores the click under its own key and appends it to the
// session history. A missing session is started from the click.
func (s *LiveSessionStore) RecordClick(ctx context.Context, sessionID string, ev session.ClickEvent) error {
	now := s.now()
	if ev.Timestamp == 0 {
		ev.Timestamp = now.UnixMilli()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode click: %w", err)
	}
	key := clickPrefix + sessionID + ":" + strconv.FormatInt(ev.Timestamp, 10)
	if err := s.client.Set(ctx, key, raw, session.LiveTTL).Err(); err != nil {
		return fmt.Errorf("failed to write click: %w", err)
	}

	ls, err := s.Get(ctx, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		ls = session.NewLiveSession(sessionID, session.ClientInfo{}, now)
	} else if err != nil {
		return err
	}
	ls.AppendClick(ev, now)
	return s.Save(ctx, ls)
}

// Finalize moves the session to final:{id} for the durable sync and drops the hot copy.
func (s *LiveSessionStore) Finalize(ctx context.Context, ls *session.LiveSession) error {
	raw, err := json.Marshal(ls)
	if err != nil {
		return fmt.Errorf("failed to encode live session: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, finalSessionPrefix+ls.SessionID, raw, session.FinalTTL)
		pipe.Del(ctx, liveSessionPrefix+ls.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to finalize live session %s: %w", ls.SessionID, err)
	}
	return nil
}

// GetFinal returns a finalized snapshot or session.ErrSessionNotFound.
func (s *LiveSessionStore) GetFinal(ctx context.Context, sessionID string) (*session.LiveSession, error) {
	raw, err := s.client.Get(ctx, finalSessionPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read final session %s: %w", sessionID, err)
	}
	var ls session.LiveSession
	if err := json.Unmarshal(raw, &ls); err != nil {
		return nil, fmt.Errorf("failed to decode final session %s: %w", sessionID, err)
	}
	return &ls, nil
}

// List returns every live session. Keys that expire mid-scan are skipped.
func (s *LiveSessionStore) List(ctx context.Context) ([]*session.LiveSession, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, liveSessionPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan live sessions: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read live sessions: %w", err)
	}
	out := make([]*session.LiveSession, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var ls session.LiveSession
		if err := json.Unmarshal([]byte(str), &ls); err != nil {
			continue
		}
		out = append(out, &ls)
	}
	return out, nil
}

// IncrementCounter bumps metric in window and returns the new value.
func (s *LiveSessionStore) IncrementCounter(ctx context.Context, metric string, window session.CounterWindow) (int64, error) {
	key, ttl := session.CounterKey(metric, window, s.now())
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Counter reads metric in window. Missing counters are zero.
func (s *LiveSessionStore) Counter(ctx context.Context, metric string, window session.CounterWindow) (int64, error) {
	key, _ := session.CounterKey(metric, window, s.now())
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return n, nil
}

// RecordTraffic counts a visit from source on day.
func (s *LiveSessionStore) RecordTraffic(ctx context.Context, day time.Time, source session.TrafficSource) error {
	key := trafficKey(day)
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, source.Source, 1)
	pipe.Expire(ctx, key, trafficTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record traffic: %w", err)
	}
	return nil
}

// TrafficSources returns visit counts per source for day.
func (s *LiveSessionStore) TrafficSources(ctx context.Context, day time.Time) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, trafficKey(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read traffic: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for source, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[source] = n
	}
	return out, nil
}

func trafficKey(day time.Time) string {
	return trafficPrefix + day.UTC().Format("2006-01-02")
}

var _ session.LiveStore = (*LiveSessionStore)(nil)
