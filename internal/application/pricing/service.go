// Package pricing serves the configurator price table and keeps the
// persisted price items in step with the Google Sheet.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nest-haus/backend/internal/domain/pricing"
	"github.com/nest-haus/backend/internal/infrastructure/cache"
	"github.com/nest-haus/backend/internal/infrastructure/telemetry"
)

// TableCacheKey is where the parsed table is cached.
const TableCacheKey = "pricing:table"

// DefaultCacheTTL is how long a fetched table is served before the sheet is read again.
const DefaultCacheTTL = 5 * time.Minute

// DefaultGrundstueckscheckPrice is the flat plot check price in euros.
const DefaultGrundstueckscheckPrice = 1500

// ErrNotConfigured is returned when no sheet source is available.
var ErrNotConfigured = errors.New("pricing: sheet source not configured")

// ServiceConfig contains configuration for Service
type ServiceConfig struct {
	Source            pricing.Source
	Repo              pricing.Repository
	Cache             cache.Store
	CacheTTL          time.Duration
	Grundstueckscheck decimal.Decimal
	Logger            *zap.Logger
}

// Service loads, caches and prices the table.
type Service struct {
	source            pricing.Source
	repo              pricing.Repository
	cache             cache.Store
	ttl               time.Duration
	grundstueckscheck decimal.Decimal
	logger            *zap.Logger
	group             singleflight.Group
	now               func() time.Time
}

// NewService creates a pricing service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	check := cfg.Grundstueckscheck
	if check.IsZero() {
		check = decimal.NewFromInt(DefaultGrundstueckscheckPrice)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:            cfg.Source,
		repo:              cfg.Repo,
		cache:             cfg.Cache,
		ttl:               ttl,
		grundstueckscheck: check,
		logger:            logger.Named("pricing"),
		now:               time.Now,
	}
}

// Table returns the cached price table, reading the sheet on a miss.
// Concurrent misses share one sheet read.
func (s *Service) Table(ctx context.Context) (*pricing.PriceTable, error) {
	if t, ok := s.cached(ctx); ok {
		return t, nil
	}
	v, err, _ := s.group.Do(TableCacheKey, func() (any, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*pricing.PriceTable), nil
}

// ForceRefresh drops the cached table and reads the sheet again.
func (s *Service) ForceRefresh(ctx context.Context) (*pricing.PriceTable, error) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, TableCacheKey); err != nil {
			s.logger.Warn("Failed to drop cached price table", zap.Error(err))
		}
	}
	return s.fetch(ctx)
}

func (s *Service) cached(ctx context.Context) (*pricing.PriceTable, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, TableCacheKey)
	if err != nil {
		s.logger.Warn("Price table cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	t := pricing.NewPriceTable()
	if err := json.Unmarshal(raw, t); err != nil {
		s.logger.Warn("Discarding unreadable cached price table", zap.Error(err))
		return nil, false
	}
	return t, true
}

func (s *Service) fetch(ctx context.Context) (*pricing.PriceTable, error) {
	if s.source == nil {
		return nil, ErrNotConfigured
	}
	var table *pricing.PriceTable
	err := telemetry.Trace(ctx, "pricing", "fetch", func(ctx context.Context) error {
		var err error
		table, err = s.source.Fetch(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load price sheet: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if s.cache != nil {
		raw, err := json.Marshal(table)
		if err != nil {
			return nil, fmt.Errorf("failed to encode price table: %w", err)
		}
		if err := s.cache.Set(ctx, TableCacheKey, raw, s.ttl); err != nil {
			s.logger.Warn("Failed to cache price table", zap.Error(err))
		}
	}
	s.logger.Info("Price table loaded", zap.Int("items", len(table.Items())))
	return table, nil
}

// Calculator returns a calculator over the current table.
func (s *Service) Calculator(ctx context.Context) (*pricing.Calculator, error) {
	t, err := s.Table(ctx)
	if err != nil {
		return nil, err
	}
	return pricing.NewCalculator(t, s.grundstueckscheck), nil
}

// Quote is a priced configuration.
type Quote struct {
	pricing.Breakdown
	Formatted      string          `json:"formatted"`
	Complete       bool            `json:"complete"`
	MonthlyPayment decimal.Decimal `json:"monthlyPayment"`
	Nutzflaeche    decimal.Decimal `json:"nutzflaeche,omitempty"`
	PricePerSqm    decimal.Decimal `json:"pricePerSqm,omitempty"`
}

// Calculate prices sel.
func (s *Service) Calculate(ctx context.Context, sel pricing.Selections) (*Quote, error) {
	calc, err := s.Calculator(ctx)
	if err != nil {
		return nil, err
	}
	b, err := calc.Breakdown(sel)
	if err != nil {
		return nil, err
	}
	q := &Quote{
		Breakdown:      b,
		Formatted:      pricing.FormatEUR(b.TotalPrice),
		Complete:       sel.Complete(),
		MonthlyPayment: pricing.MonthlyPayment(b.TotalPrice, 0),
	}
	if sel.Nest.Valid() {
		q.Nutzflaeche = pricing.Nutzflaeche(sel.Nest, sel.Geschossdecke)
		q.PricePerSqm = pricing.PricePerSqm(b.TotalPrice, sel.Nest, sel.Geschossdecke)
	}
	return q, nil
}

// RelativeQuote is the price change of one option switch.
type RelativeQuote struct {
	Category  string          `json:"category"`
	Option    string          `json:"option"`
	Delta     decimal.Decimal `json:"delta"`
	Formatted string          `json:"formatted"`
}

// Relative returns the price difference of switching category to option.
func (s *Service) Relative(ctx context.Context, sel pricing.Selections, category, option string) (*RelativeQuote, error) {
	calc, err := s.Calculator(ctx)
	if err != nil {
		return nil, err
	}
	delta, err := calc.RelativePrice(sel, category, option)
	if err != nil {
		return nil, err
	}
	formatted := pricing.FormatEUR(delta.Abs())
	switch {
	case delta.IsPositive():
		formatted = "+" + formatted
	case delta.IsNegative():
		formatted = "-" + formatted
	}
	return &RelativeQuote{Category: category, Option: option, Delta: delta, Formatted: formatted}, nil
}

// Sync reads the sheet, applies the item diff and records the outcome.
// The cached table is replaced by the freshly read one.
func (s *Service) Sync(ctx context.Context, trigger string) (*pricing.SyncLog, error) {
	if s.repo == nil {
		return nil, errors.New("pricing: no repository configured")
	}
	started := s.now()
	log := s.logger.With(zap.String("trigger", trigger))

	table, err := s.ForceRefresh(ctx)
	if err != nil {
		entry := pricing.NewSyncLog(trigger, pricing.SyncDiff{}, []string{err.Error()}, started, s.now())
		s.saveLog(ctx, log, entry)
		return entry, err
	}

	stored, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list price items: %w", err)
	}
	diff := pricing.DiffItems(table.Items(), stored)

	var errs []string
	if diff.Changed() {
		if err := s.repo.ApplyDiff(ctx, diff, started); err != nil {
			errs = append(errs, err.Error())
			diff = pricing.SyncDiff{Unchanged: diff.Unchanged}
		}
	}
	if err := s.repo.SaveSnapshot(ctx, table, started); err != nil {
		errs = append(errs, fmt.Sprintf("snapshot: %v", err))
	}

	entry := pricing.NewSyncLog(trigger, diff, errs, started, s.now())
	s.saveLog(ctx, log, entry)
	log.Info("Pricing sync finished",
		zap.String("status", string(entry.Status)),
		zap.Int("added", entry.Added),
		zap.Int("updated", entry.Updated),
		zap.Int("removed", entry.Removed),
		zap.Int("unchanged", entry.Unchanged),
		zap.Strings("errors", entry.Errors),
	)
	return entry, nil
}

func (s *Service) saveLog(ctx context.Context, log *zap.Logger, entry *pricing.SyncLog) {
	if err := s.repo.SaveLog(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn("Failed to record pricing sync", zap.Error(err))
	}
}

// LastSync returns the most recent sync log, or nil.
func (s *Service) LastSync(ctx context.Context) (*pricing.SyncLog, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.LatestLog(ctx)
}
