// Package analytics computes the admin dashboard figures and the nightly
// aggregates.
package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nest-haus/backend/internal/domain/analytics"
	"github.com/nest-haus/backend/internal/domain/inquiry"
	"github.com/nest-haus/backend/internal/domain/session"
	"github.com/nest-haus/backend/internal/domain/shared"
)

// DefaultTopConfigurations is how many configurations the overview shows.
const DefaultTopConfigurations = 5

// Service reads and aggregates analytics.
type Service struct {
	repo      analytics.Repository
	inquiries inquiry.Repository
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates an analytics service.
func NewService(repo analytics.Repository, inquiries inquiry.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, inquiries: inquiries, logger: logger.Named("analytics"), now: time.Now}
}

// Overview returns the dashboard headline for r.
func (s *Service) Overview(ctx context.Context, r analytics.Range) (*analytics.Overview, error) {
	ov := &analytics.Overview{From: r.From, To: r.To}
	var stats analytics.SessionStats

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.repo.SessionStats(gctx, r, s.now().Add(-session.ActiveWindow))
		return err
	})
	g.Go(func() error {
		var err error
		ov.Inquiries, err = s.inquiries.CountCreated(gctx, r.From, r.To)
		return err
	})
	g.Go(func() error {
		var err error
		ov.Conversions, err = s.inquiries.CountConverted(gctx, r.From, r.To)
		return err
	})
	g.Go(func() error {
		var err error
		ov.Revenue, err = s.inquiries.SumPaid(gctx, r.From, r.To)
		return err
	})
	g.Go(func() error {
		var err error
		ov.TopConfigurations, err = s.repo.TopConfigurations(gctx, DefaultTopConfigurations)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ov.TotalSessions = stats.Total
	ov.ActiveSessions = stats.Active
	ov.AverageSessionDuration = stats.AvgDurationMs
	ov.ConversionRate = analytics.ConversionRate(ov.Conversions, ov.TotalSessions)
	if ov.TopConfigurations == nil {
		ov.TopConfigurations = []analytics.PopularConfiguration{}
	}
	return ov, nil
}

// Popular returns the most selected configurations.
func (s *Service) Popular(ctx context.Context, limit int) ([]analytics.PopularConfiguration, error) {
	items, err := s.repo.TopConfigurations(ctx, limit)
	if err != nil {
		return nil, err
	}
	analytics.RankPopular(items)
	return items, nil
}

// Daily returns the stored daily aggregates within r.
func (s *Service) Daily(ctx context.Context, r analytics.Range) ([]analytics.DailyAnalytics, error) {
	return s.repo.ListDaily(ctx, r)
}

// AggregateDaily writes the aggregate for the UTC day containing day and
// folds that day's completed configurations into the popularity ranking.
// The daily row is replaced on re-runs; popularity counts are not, so the
// scheduler runs this once per day.
func (s *Service) AggregateDaily(ctx context.Context, day time.Time) (*analytics.DailyAnalytics, error) {
	r := analytics.DayRange(day)
	stats, err := s.repo.SessionStats(ctx, r, r.To)
	if err != nil {
		return nil, err
	}
	inquiries, err := s.inquiries.CountCreated(ctx, r.From, r.To)
	if err != nil {
		return nil, err
	}
	conversions, err := s.inquiries.CountConverted(ctx, r.From, r.To)
	if err != nil {
		return nil, err
	}
	revenue, err := s.inquiries.SumPaid(ctx, r.From, r.To)
	if err != nil {
		return nil, err
	}

	now := s.now()
	d := &analytics.DailyAnalytics{
		BaseEntity:        shared.NewBaseEntityAt(now),
		Date:              r.From,
		TotalSessions:     stats.Total,
		UniqueUsers:       stats.UniqueUsers,
		TotalInteractions: stats.Interactions,
		Inquiries:         inquiries,
		Conversions:       conversions,
		Revenue:           revenue,
		AvgSessionMs:      stats.AvgDurationMs,
	}
	if err := s.repo.SaveDaily(ctx, d); err != nil {
		return nil, err
	}

	counted, err := s.foldPopular(ctx, r, now)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Daily analytics aggregated",
		zap.Time("date", r.From),
		zap.Int64("sessions", d.TotalSessions),
		zap.Int64("inquiries", d.Inquiries),
		zap.Int("configurations", counted),
	)
	return d, nil
}

func (s *Service) foldPopular(ctx context.Context, r analytics.Range, now time.Time) (int, error) {
	completed, err := s.repo.CompletedConfigurations(ctx, r)
	if err != nil {
		return 0, err
	}
	counted := 0
	for _, c := range completed {
		key, ok := analytics.KeyFromConfiguration(c.ConfigurationData)
		if !ok {
			continue
		}
		hash := key.Hash()
		p, err := s.repo.FindPopular(ctx, hash)
		if err != nil {
			return counted, err
		}
		if p == nil {
			p = &analytics.PopularConfiguration{
				BaseEntity:        shared.NewBaseEntityAt(now),
				ConfigurationHash: hash,
				NestType:          key.Nest,
				Gebaeudehuelle:    key.Gebaeudehuelle,
				Innenverkleidung:  key.Innenverkleidung,
				Fussboden:         key.Fussboden,
			}
		}
		p.Record(c.TotalPrice, c.EndTime)
		if err := s.repo.UpsertPopular(ctx, p); err != nil {
			return counted, err
		}
		counted++
	}
	return counted, nil
}

// MetricInput is a client-reported timing.
type MetricInput struct {
	SessionID  string  `json:"sessionId"`
	MetricName string  `json:"metricName"`
	Value      float64 `json:"value"`
	Path       string  `json:"path"`
}

// RecordPerformanceMetric stores a client timing.
func (s *Service) RecordPerformanceMetric(ctx context.Context, in MetricInput, userAgent string) error {
	name := strings.TrimSpace(in.MetricName)
	if name == "" {
		return shared.ErrInvalidInput.WithMessage("Missing required fields: metricName")
	}
	if in.Value < 0 {
		return shared.ErrInvalidInput.WithMessage("Metric value must not be negative")
	}
	return s.repo.SavePerformanceMetric(ctx, &analytics.PerformanceMetric{
		ID:         uuid.New(),
		SessionID:  in.SessionID,
		MetricName: name,
		Value:      in.Value,
		Path:       in.Path,
		UserAgent:  userAgent,
		Timestamp:  s.now(),
	})
}
