package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nest-haus/backend/internal/domain/analytics"
	"github.com/nest-haus/backend/internal/domain/inquiry"
	"github.com/nest-haus/backend/internal/domain/session"
	"github.com/nest-haus/backend/internal/domain/shared"
	"github.com/nest-haus/backend/internal/infrastructure/persistence"
)

type fixture struct {
	svc       *Service
	sessions  *persistence.GormSessionRepository
	inquiries *persistence.GormInquiryRepository
	repo      *persistence.GormAnalyticsRepository
	day       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := persistence.NewSQLiteDatabase(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		sessions:  persistence.NewGormSessionRepository(db.DB),
		inquiries: persistence.NewGormInquiryRepository(db.DB),
		repo:      persistence.NewGormAnalyticsRepository(db.DB),
		day:       time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, f.inquiries, zaptest.NewLogger(t))
	f.svc.now = func() time.Time { return f.day.Add(20 * time.Hour) }
	return f
}

const config80 = `{"nest":{"value":"nest80"},"gebaeudehuelle":{"value":"holzlattung"},"innenverkleidung":{"value":"fichte"},"fussboden":{"value":"parkett"}}`

func (f *fixture) completed(t *testing.T, id, ip string, start time.Time, minutes int, price int64) {
	t.Helper()
	ctx := context.Background()
	s := session.NewUserSession(id, session.ClientInfo{IP: ip, UserAgent: "Mozilla/5.0"}, start)
	require.NoError(t, f.sessions.Save(ctx, s))
	require.NoError(t, f.sessions.MarkCompleted(ctx, id, config80, &price, start.Add(time.Duration(minutes)*time.Minute)))
}

func (f *fixture) paidInquiry(t *testing.T, at time.Time, amount int64) {
	t.Helper()
	inq, err := inquiry.New(inquiry.Submission{Email: "p@example.at", Name: "Paula"}, "", "", nil, at)
	require.NoError(t, err)
	inq.AttachPayment("pi_"+at.Format("150405"), amount, "eur", at)
	inq.MarkPaid("card", at)
	require.NoError(t, f.inquiries.Create(context.Background(), inq))
}

func TestAggregateDaily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completed(t, "s1", "81.0.0.1", f.day.Add(9*time.Hour), 10, 200000)
	f.completed(t, "s2", "81.0.0.2", f.day.Add(11*time.Hour), 20, 220000)
	f.completed(t, "s-prev", "81.0.0.3", f.day.Add(-2*time.Hour), 5, 999999)
	f.paidInquiry(t, f.day.Add(12*time.Hour), 300000)

	d, err := f.svc.AggregateDaily(ctx, f.day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, f.day, d.Date)
	assert.Equal(t, int64(2), d.TotalSessions)
	assert.Equal(t, int64(2), d.UniqueUsers)
	assert.Equal(t, int64(1), d.Inquiries)
	assert.Equal(t, int64(1), d.Conversions)
	assert.Equal(t, int64(300000), d.Revenue)
	assert.Equal(t, int64(15*time.Minute/time.Millisecond), d.AvgSessionMs)

	days, err := f.svc.Daily(ctx, analytics.LastDays(7, f.day.Add(24*time.Hour)))
	require.NoError(t, err)
	require.Len(t, days, 1)

	top, err := f.svc.Popular(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "nest80", top[0].NestType)
	assert.Equal(t, int64(2), top[0].SelectionCount)
	assert.Equal(t, int64(210000), top[0].AveragePrice)

	// re-running replaces the daily row
	_, err = f.svc.AggregateDaily(ctx, f.day)
	require.NoError(t, err)
	days, err = f.svc.Daily(ctx, analytics.LastDays(7, f.day.Add(24*time.Hour)))
	require.NoError(t, err)
	assert.Len(t, days, 1)
}

func TestOverview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.completed(t, "s1", "81.0.0.1", f.day.Add(9*time.Hour), 10, 200000)
	f.completed(t, "s2", "81.0.0.2", f.day.Add(10*time.Hour), 10, 200000)
	active := session.NewUserSession("s3", session.ClientInfo{IP: "81.0.0.9"}, f.day.Add(20*time.Hour-time.Minute))
	require.NoError(t, f.sessions.Save(ctx, active))
	f.paidInquiry(t, f.day.Add(12*time.Hour), 300000)

	ov, err := f.svc.Overview(ctx, analytics.DayRange(f.day))
	require.NoError(t, err)
	assert.Equal(t, int64(3), ov.TotalSessions)
	assert.Equal(t, int64(1), ov.ActiveSessions)
	assert.Equal(t, int64(1), ov.Conversions)
	assert.Equal(t, 33.33, ov.ConversionRate)
	assert.Equal(t, int64(300000), ov.Revenue)
	assert.NotNil(t, ov.TopConfigurations)
}

func TestRecordPerformanceMetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.RecordPerformanceMetric(ctx, MetricInput{SessionID: "s1", MetricName: "LCP", Value: 1234.5, Path: "/konfigurator"}, "Mozilla/5.0"))
	assert.ErrorIs(t, f.svc.RecordPerformanceMetric(ctx, MetricInput{Value: 1}, ""), shared.ErrInvalidInput)
	assert.ErrorIs(t, f.svc.RecordPerformanceMetric(ctx, MetricInput{MetricName: "CLS", Value: -1}, ""), shared.ErrInvalidInput)
}
