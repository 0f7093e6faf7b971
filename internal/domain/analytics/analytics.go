// Package analytics holds the aggregated reporting records computed from
// sessions and inquiries.
package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nest-haus/backend/internal/domain/shared"
)

// DailyAnalytics is one day of aggregated traffic
type DailyAnalytics struct {
	shared.BaseEntity
	Date              time.Time `gorm:"type:date;not null;uniqueIndex" json:"date"`
	TotalSessions     int64     `gorm:"not null;default:0" json:"totalSessions"`
	UniqueUsers       int64     `gorm:"not null;default:0" json:"uniqueUsers"`
	TotalInteractions int64     `gorm:"not null;default:0" json:"totalInteractions"`
	Inquiries         int64     `gorm:"not null;default:0" json:"inquiries"`
	Conversions       int64     `gorm:"not null;default:0" json:"conversions"`
	Revenue           int64     `gorm:"not null;default:0" json:"revenue"`
	AvgSessionMs      int64     `gorm:"not null;default:0" json:"avgSessionMs"`
}

// TableName returns the table name for GORM
func (DailyAnalytics) TableName() string {
	return "daily_analytics"
}

// PopularConfiguration counts how often a full configuration was completed
type PopularConfiguration struct {
	shared.BaseEntity
	ConfigurationHash string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"configurationHash"`
	NestType          string    `gorm:"type:varchar(32);index" json:"nestType"`
	Gebaeudehuelle    string    `gorm:"type:varchar(64)" json:"gebaeudehuelle"`
	Innenverkleidung  string    `gorm:"type:varchar(64)" json:"innenverkleidung"`
	Fussboden         string    `gorm:"type:varchar(64)" json:"fussboden"`
	SelectionCount    int64     `gorm:"not null;default:0" json:"selectionCount"`
	TotalPriceSum     int64     `gorm:"not null;default:0" json:"-"`
	AveragePrice      int64     `gorm:"not null;default:0" json:"averagePrice"`
	LastSelected      time.Time `gorm:"not null" json:"lastSelected"`
}

// TableName returns the table name for GORM
func (PopularConfiguration) TableName() string {
	return "popular_configurations"
}

// Record adds one completion at price.
func (p *PopularConfiguration) Record(price int64, at time.Time) {
	p.SelectionCount++
	p.TotalPriceSum += price
	p.AveragePrice = int64(math.Round(float64(p.TotalPriceSum) / float64(p.SelectionCount)))
	if at.After(p.LastSelected) {
		p.LastSelected = at
	}
	p.Touch(at)
}

// PerformanceMetric is a client-reported timing
type PerformanceMetric struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID  string    `gorm:"type:varchar(128);index" json:"sessionId,omitempty"`
	MetricName string    `gorm:"type:varchar(64);not null;index" json:"metricName"`
	Value      float64   `gorm:"not null" json:"value"`
	Path       string    `gorm:"type:varchar(512)" json:"path,omitempty"`
	UserAgent  string    `gorm:"type:text" json:"userAgent,omitempty"`
	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
}

// TableName returns the table name for GORM
func (PerformanceMetric) TableName() string {
	return "performance_metrics"
}

// ConfigurationKey is the part of a configuration that identifies it for popularity ranking.
type ConfigurationKey struct {
	Nest             string `json:"nest"`
	Gebaeudehuelle   string `json:"gebaeudehuelle"`
	Innenverkleidung string `json:"innenverkleidung"`
	Fussboden        string `json:"fussboden"`
}

// Complete reports whether every part is set.
func (k ConfigurationKey) Complete() bool {
	return k.Nest != "" && k.Gebaeudehuelle != "" && k.Innenverkleidung != "" && k.Fussboden != ""
}

// Hash is a stable identifier for k.
func (k ConfigurationKey) Hash() string {
	b, _ := json.Marshal(k)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// KeyFromConfiguration extracts a key from a stored configuration snapshot.
// Category entries may be plain strings or objects carrying a "value".
func KeyFromConfiguration(raw string) (ConfigurationKey, bool) {
	if raw == "" {
		return ConfigurationKey{}, false
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return ConfigurationKey{}, false
	}
	k := ConfigurationKey{
		Nest:             categoryValue(cfg["nest"]),
		Gebaeudehuelle:   categoryValue(cfg["gebaeudehuelle"]),
		Innenverkleidung: categoryValue(cfg["innenverkleidung"]),
		Fussboden:        categoryValue(cfg["fussboden"]),
	}
	return k, k.Complete()
}

func categoryValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["value"].(string); ok {
			return s
		}
	}
	return ""
}

// Overview is the admin dashboard headline
type Overview struct {
	From                   time.Time              `json:"from"`
	To                     time.Time              `json:"to"`
	TotalSessions          int64                  `json:"totalSessions"`
	ActiveSessions         int64                  `json:"activeSessions"`
	AverageSessionDuration int64                  `json:"averageSessionDuration"`
	Inquiries              int64                  `json:"inquiries"`
	Conversions            int64                  `json:"conversions"`
	ConversionRate         float64                `json:"conversionRate"`
	Revenue                int64                  `json:"revenue"`
	TopConfigurations      []PopularConfiguration `json:"topConfigurations"`
}

// ConversionRate returns conversions/sessions as a percentage with two decimals.
func ConversionRate(conversions, sessions int64) float64 {
	if sessions <= 0 {
		return 0
	}
	return math.Round(float64(conversions)/float64(sessions)*10000) / 100
}

// Range is a reporting window
type Range struct {
	From time.Time
	To   time.Time
}

// LastDays returns the window of n days ending at now.
func LastDays(n int, now time.Time) Range {
	if n <= 0 {
		n = 30
	}
	return Range{From: now.AddDate(0, 0, -n), To: now}
}

// DayRange returns [midnight, next midnight) for day in UTC.
func DayRange(day time.Time) Range {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return Range{From: start, To: start.AddDate(0, 0, 1)}
}

// SessionStats is what the session store reports for a range.
type SessionStats struct {
	Total         int64
	Active        int64
	UniqueUsers   int64
	AvgDurationMs int64
	Interactions  int64
}

// Repository reads and writes the aggregated analytics tables
type Repository interface {
	SessionStats(ctx context.Context, r Range, activeSince time.Time) (SessionStats, error)
	CompletedConfigurations(ctx context.Context, r Range) ([]CompletedConfiguration, error)
	TopConfigurations(ctx context.Context, limit int) ([]PopularConfiguration, error)
	UpsertPopular(ctx context.Context, p *PopularConfiguration) error
	FindPopular(ctx context.Context, hash string) (*PopularConfiguration, error)
	SaveDaily(ctx context.Context, d *DailyAnalytics) error
	ListDaily(ctx context.Context, r Range) ([]DailyAnalytics, error)
	SavePerformanceMetric(ctx context.Context, m *PerformanceMetric) error
}

// CompletedConfiguration is a finished session's snapshot
type CompletedConfiguration struct {
	SessionID         string
	ConfigurationData string
	TotalPrice        int64
	EndTime           time.Time
}

// RankPopular sorts by count desc, then average price desc, then hash.
func RankPopular(items []PopularConfiguration) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.SelectionCount != b.SelectionCount {
			return a.SelectionCount > b.SelectionCount
		}
		if a.AveragePrice != b.AveragePrice {
			return a.AveragePrice > b.AveragePrice
		}
		return a.ConfigurationHash < b.ConfigurationHash
	})
}
