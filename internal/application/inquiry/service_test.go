package inquiry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	appsession "github.com/nest-haus/backend/internal/application/session"
	"github.com/nest-haus/backend/internal/domain/cart"
	"github.com/nest-haus/backend/internal/domain/inquiry"
	"github.com/nest-haus/backend/internal/domain/session"
	"github.com/nest-haus/backend/internal/domain/shared"
	"github.com/nest-haus/backend/internal/infrastructure/email"
	"github.com/nest-haus/backend/internal/infrastructure/persistence"
)

type notifications struct {
	mu        sync.Mutex
	customers []string
	admins    []email.RequestContext
	failAdmin bool
}

func (n *notifications) SendCustomerConfirmation(_ context.Context, inq *inquiry.Inquiry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.customers = append(n.customers, inq.Email)
	return nil
}

func (n *notifications) SendAdminNotification(_ context.Context, _ *inquiry.Inquiry, rc email.RequestContext) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admins = append(n.admins, rc)
	if n.failAdmin {
		return errors.New("resend: 500")
	}
	return nil
}

type interactions struct {
	mu     sync.Mutex
	events []session.Interaction
	err    error
}

func (i *interactions) TrackInteraction(_ context.Context, _ string, in session.Interaction, _ session.ClientInfo, _ string) (*appsession.InteractionResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events = append(i.events, in)
	return &appsession.InteractionResult{}, i.err
}

type emailCounts struct {
	mu     sync.Mutex
	failed []string
}

func (e *emailCounts) IncEmail(kind string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.failed = append(e.failed, kind)
	}
}

type fixture struct {
	svc     *Service
	repo    *persistence.GormInquiryRepository
	mails   *notifications
	tracked *interactions
	emails  *emailCounts
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := persistence.NewSQLiteDatabase(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		repo:    persistence.NewGormInquiryRepository(db.DB),
		mails:   &notifications{},
		tracked: &interactions{},
		emails:  &emailCounts{},
		now:     time.Date(2025, 10, 6, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(ServiceConfig{
		Repo:     f.repo,
		Notifier: f.mails,
		Tracker:  f.tracked,
		Recorder: f.emails,
		Logger:   zaptest.NewLogger(t),
	})
	f.svc.now = func() time.Time { return f.now }
	return f
}

var client = session.ClientInfo{IP: "81.10.20.30", UserAgent: "Mozilla/5.0"}

func TestSubmit_Contact(t *testing.T) {
	f := newFixture(t)
	inq, err := f.svc.Submit(context.Background(), inquiry.Submission{
		Email:             "anna@example.at",
		Name:              "Anna Berger",
		PreferredContact:  "phone",
		ConfigurationData: map[string]any{"nest": map[string]any{"value": "nest80"}, "totalPrice": float64(213032)},
	}, "sess-1", client)
	require.NoError(t, err)

	assert.Equal(t, inquiry.StatusNew, inq.Status)
	assert.Equal(t, inquiry.ContactPhone, inq.PreferredContact)
	require.NotNil(t, inq.TotalPrice)
	assert.Equal(t, int64(213032), *inq.TotalPrice)
	assert.Contains(t, inq.ConfigurationData, "nest80")

	stored, err := f.svc.Get(context.Background(), inq.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "sess-1", stored.SessionID)

	assert.Equal(t, []string{"anna@example.at"}, f.mails.customers)
	require.Len(t, f.mails.admins, 1)
	assert.Equal(t, "81.10.20.30", f.mails.admins[0].ClientIP)
	require.Len(t, f.tracked.events, 1)
	assert.Equal(t, SubmissionEvent, f.tracked.events[0].EventType)
	assert.Equal(t, "contact", f.tracked.events[0].SelectionValue)
}

func TestSubmit_Appointment(t *testing.T) {
	f := newFixture(t)
	slot := time.Date(2025, 10, 9, 13, 0, 0, 0, time.UTC)
	inq, err := f.svc.Submit(context.Background(), inquiry.Submission{
		Email: "b@example.at", Name: "Bernd", RequestType: "appointment", AppointmentDateTime: &slot,
	}, "", client)
	require.NoError(t, err)
	require.NotNil(t, inq.AppointmentStatus)
	assert.Equal(t, inquiry.AppointmentPending, *inq.AppointmentStatus)
	assert.Equal(t, f.now.Add(inquiry.AppointmentHold), *inq.AppointmentExpiresAt)
	assert.Empty(t, f.tracked.events, "no session, nothing to track")
}

func TestSubmit_BestEffortSideEffects(t *testing.T) {
	f := newFixture(t)
	f.mails.failAdmin = true
	f.tracked.err = session.ErrStoreUnavailable

	inq, err := f.svc.Submit(context.Background(), inquiry.Submission{Email: "c@example.at", Name: "Clara"}, "sess-2", client)
	require.NoError(t, err)
	assert.NotNil(t, inq)
	assert.Equal(t, []string{"admin_notification"}, f.emails.failed)
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), inquiry.Submission{Email: "nope", Name: ""}, "", client)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.Empty(t, f.mails.customers)
}

func orderCart(sessionID, mail string) *cart.Cart {
	c := &cart.Cart{}
	c.Add(cart.Item{SessionID: sessionID, Nest: "nest80", TotalPrice: 213032, IsFromConfigurator: true}, time.Now())
	c.Details = &cart.OrderDetails{CustomerInfo: cart.CustomerInfo{Email: mail, Name: "Dora"}, Notes: "Bitte anrufen"}
	return c
}

func TestPlaceOrder_Deduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.PlaceOrder(ctx, orderCart("sess-9", "dora@example.at"), client)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, "1 Konfiguration - 213.032 €", first.Summary)
	assert.Equal(t, "Bestellung mit 1 Konfiguration(en). Bitte anrufen", first.Inquiry.Message)
	require.NotNil(t, first.Inquiry.TotalPrice)
	assert.Equal(t, int64(213032), *first.Inquiry.TotalPrice)

	f.now = f.now.Add(2 * time.Hour)
	again, err := f.svc.PlaceOrder(ctx, orderCart("sess-9", "other@example.at"), client)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Inquiry.ID, again.Inquiry.ID)

	f.now = f.now.Add(cart.DuplicateWindow)
	later, err := f.svc.PlaceOrder(ctx, orderCart("sess-9", "dora@example.at"), client)
	require.NoError(t, err)
	assert.False(t, later.Duplicate)
	assert.NotEqual(t, first.Inquiry.ID, later.Inquiry.ID)
}

func TestPlaceOrder_DeduplicatesByEmailWithoutSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.PlaceOrder(ctx, orderCart("", "Eva@Example.at"), client)
	require.NoError(t, err)
	again, err := f.svc.PlaceOrder(ctx, orderCart("", "eva@example.at"), client)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Inquiry.ID, again.Inquiry.ID)
}

func TestPlaceOrder_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.PlaceOrder(context.Background(), &cart.Cart{}, client)
	assert.ErrorIs(t, err, cart.ErrEmptyCart)

	c := orderCart("s", "")
	_, err = f.svc.PlaceOrder(context.Background(), c, client)
	assert.ErrorIs(t, err, cart.ErrEmailRequired)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inq, err := f.svc.Submit(ctx, inquiry.Submission{Email: "f@example.at", Name: "Franz"}, "", client)
	require.NoError(t, err)

	status := inquiry.Status("contacted")
	note := "  Rückruf vereinbart "
	follow := f.now.Add(48 * time.Hour)
	updated, err := f.svc.Update(ctx, inq.ID.String(), UpdateRequest{Status: &status, Note: &note, FollowUpDate: &follow})
	require.NoError(t, err)
	assert.Equal(t, inquiry.StatusContacted, updated.Status)
	require.NotNil(t, updated.ContactedAt)
	assert.Equal(t, "Rückruf vereinbart", updated.AdminNotes)
	assert.Equal(t, follow, *updated.FollowUpDate)

	bad := inquiry.Status("archived")
	_, err = f.svc.Update(ctx, inq.ID.String(), UpdateRequest{Status: &bad})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = f.svc.Update(ctx, "missing", UpdateRequest{})
	assert.ErrorIs(t, err, inquiry.ErrNotFound)
}

func TestListAndExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.now.Add(72 * time.Hour)
	_, err := f.svc.Submit(ctx, inquiry.Submission{Email: "g@example.at", Name: "Gerda", RequestType: "appointment", AppointmentDateTime: &slot}, "", client)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, inquiry.Submission{Email: "h@example.at", Name: "Hans"}, "", client)
	require.NoError(t, err)

	items, total, err := f.svc.List(ctx, shared.Filter{Search: "gerda"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)

	n, err := f.svc.ExpireAppointments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.now = f.now.Add(25 * time.Hour)
	n, err = f.svc.ExpireAppointments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired, err := f.svc.Get(ctx, items[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, inquiry.AppointmentExpired, *expired.AppointmentStatus)
}
