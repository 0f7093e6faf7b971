package payment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nest-haus/backend/internal/domain/inquiry"
	"github.com/nest-haus/backend/internal/domain/payment"
	"github.com/nest-haus/backend/internal/domain/shared"
	"github.com/nest-haus/backend/internal/infrastructure/cache"
	"github.com/nest-haus/backend/internal/infrastructure/persistence"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) FindOrCreateCustomer(ctx context.Context, email, name string, md map[string]string) (*payment.Customer, error) {
	args := m.Called(ctx, email, name, md)
	c, _ := args.Get(0).(*payment.Customer)
	return c, args.Error(1)
}

func (m *mockGateway) CreateIntent(ctx context.Context, req payment.IntentRequest, customerID string) (*payment.Intent, error) {
	args := m.Called(ctx, req, customerID)
	i, _ := args.Get(0).(*payment.Intent)
	return i, args.Error(1)
}

func (m *mockGateway) GetIntent(ctx context.Context, id string) (*payment.Intent, error) {
	args := m.Called(ctx, id)
	i, _ := args.Get(0).(*payment.Intent)
	return i, args.Error(1)
}

func (m *mockGateway) ParseEvent(payload []byte, signature string) (*payment.Event, error) {
	args := m.Called(payload, signature)
	e, _ := args.Get(0).(*payment.Event)
	return e, args.Error(1)
}

func (m *mockGateway) PublishableKey() string { return "pk_test" }

type sentMails struct {
	mu    sync.Mutex
	kinds []string
	fail  bool
}

func (s *sentMails) add(kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
	if s.fail {
		return errors.New("smtp down")
	}
	return nil
}

func (s *sentMails) SendPaymentConfirmation(context.Context, *inquiry.Inquiry) error {
	return s.add("customer")
}

func (s *sentMails) SendAdminPaymentNotification(context.Context, *inquiry.Inquiry) error {
	return s.add("admin")
}

func (s *sentMails) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.kinds)
}

type outcomes struct {
	mu     sync.Mutex
	events []string
	emails map[string]int
}

func (o *outcomes) IncPaymentEvent(eventType, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, eventType+":"+outcome)
}

func (o *outcomes) IncEmail(kind string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.emails == nil {
		o.emails = map[string]int{}
	}
	o.emails[kind]++
}

type fixture struct {
	svc     *Service
	gateway *mockGateway
	repo    *persistence.GormInquiryRepository
	mails   *sentMails
	metrics *outcomes
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := persistence.NewSQLiteDatabase(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := cache.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		gateway: &mockGateway{},
		repo:    persistence.NewGormInquiryRepository(db.DB),
		mails:   &sentMails{},
		metrics: &outcomes{},
		now:     time.Date(2025, 10, 2, 14, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(ServiceConfig{
		Gateway:     f.gateway,
		Inquiries:   f.repo,
		Idempotency: cache.NewIdempotencyStore(store, "stripe:event:"),
		Notifier:    f.mails,
		Recorder:    f.metrics,
		Logger:      zaptest.NewLogger(t),
	})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) inquiry(t *testing.T) *inquiry.Inquiry {
	t.Helper()
	inq, err := inquiry.New(inquiry.Submission{Email: "anna@example.at", Name: "Anna Berger"}, "sess-1", "", nil, f.now)
	require.NoError(t, err)
	require.NoError(t, f.repo.Create(context.Background(), inq))
	return inq
}

func succeeded(id, inquiryID string) *payment.Intent {
	return &payment.Intent{
		ID: id, Amount: 300000, Currency: "eur", Status: payment.StatusSucceeded,
		PaymentMethod: "card", Metadata: map[string]string{"inquiryId": inquiryID},
	}
}

func TestCreateIntent_LinksInquiry(t *testing.T) {
	f := newFixture(t)
	inq := f.inquiry(t)
	ctx := context.Background()

	f.gateway.On("FindOrCreateCustomer", mock.Anything, "anna@example.at", "Anna Berger", mock.MatchedBy(func(md map[string]string) bool {
		return md["source"] == payment.Source
	})).Return(&payment.Customer{ID: "cus_1"}, nil)
	f.gateway.On("CreateIntent", mock.Anything, mock.MatchedBy(func(r payment.IntentRequest) bool {
		return r.Currency == "eur" && r.Amount == 300000
	}), "cus_1").Return(&payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: 300000, Currency: "eur"}, nil)

	intent, err := f.svc.CreateIntent(ctx, payment.IntentRequest{
		Amount: 300000, CustomerEmail: "anna@example.at", CustomerName: "Anna Berger", InquiryID: inq.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)

	stored, err := f.repo.FindByID(ctx, inq.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_1", stored.PaymentIntentID)
	require.NotNil(t, stored.PaymentStatus)
	assert.Equal(t, inquiry.PaymentProcessing, *stored.PaymentStatus)
	f.gateway.AssertExpectations(t)
}

func TestCreateIntent_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateIntent(context.Background(), payment.IntentRequest{Amount: 10, CustomerEmail: "a@b.at"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	f.gateway.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything, mock.Anything)

	disabled := NewService(ServiceConfig{})
	_, err = disabled.CreateIntent(context.Background(), payment.IntentRequest{Amount: 5000, CustomerEmail: "a@b.at"})
	assert.ErrorIs(t, err, payment.ErrNotConfigured)
	assert.False(t, disabled.Enabled())
	assert.Empty(t, disabled.PublishableKey())
}

func TestCreateIntent_UnknownInquiryStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("FindOrCreateCustomer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&payment.Customer{ID: "cus_1"}, nil)
	f.gateway.On("CreateIntent", mock.Anything, mock.Anything, "cus_1").Return(&payment.Intent{ID: "pi_2"}, nil)

	intent, err := f.svc.CreateIntent(context.Background(), payment.IntentRequest{
		Amount: 5000, CustomerEmail: "a@b.at", InquiryID: "not-a-uuid",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_2", intent.ID)
}

func TestConfirm(t *testing.T) {
	f := newFixture(t)
	inq := f.inquiry(t)
	ctx := context.Background()

	f.gateway.On("GetIntent", mock.Anything, "pi_open").Return(&payment.Intent{ID: "pi_open", Status: payment.StatusProcessing}, nil)
	_, err := f.svc.Confirm(ctx, "pi_open", inq.ID.String())
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	f.gateway.On("GetIntent", mock.Anything, "pi_ok").Return(succeeded("pi_ok", inq.ID.String()), nil)
	res, err := f.svc.Confirm(ctx, "pi_ok", "")
	require.NoError(t, err)
	require.NotNil(t, res.Inquiry)
	assert.True(t, res.Inquiry.IsPaid())
	assert.Equal(t, inquiry.StatusConverted, res.Inquiry.Status)
	assert.Equal(t, "card", res.Inquiry.PaymentMethod)
	assert.Equal(t, 2, f.mails.count())

	// a second confirmation does not mail again
	_, err = f.svc.Confirm(ctx, "pi_ok", inq.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 2, f.mails.count())
}

func TestConfirm_EmailFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.mails.fail = true
	inq := f.inquiry(t)
	f.gateway.On("GetIntent", mock.Anything, "pi_ok").Return(succeeded("pi_ok", ""), nil)

	res, err := f.svc.Confirm(context.Background(), "pi_ok", inq.ID.String())
	require.NoError(t, err)
	assert.True(t, res.Inquiry.IsPaid())
	assert.Equal(t, map[string]int{"payment_confirmation": 1, "admin_payment_notification": 1}, f.metrics.emails)
}

func TestHandleWebhook_Succeeded(t *testing.T) {
	f := newFixture(t)
	inq := f.inquiry(t)
	ctx := context.Background()
	payload := []byte(`{"id":"evt_1"}`)

	f.gateway.On("ParseEvent", payload, "sig").Return(&payment.Event{
		ID: "evt_1", Type: payment.EventSucceeded, Intent: succeeded("pi_w", inq.ID.String()),
	}, nil)

	res, err := f.svc.HandleWebhook(ctx, payload, "sig")
	require.NoError(t, err)
	assert.True(t, res.Processed)

	stored, err := f.repo.FindByID(ctx, inq.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPaid())
	assert.Equal(t, "pi_w", stored.PaymentIntentID)
	assert.Equal(t, 2, f.mails.count())

	// redelivery is ignored
	res, err = f.svc.HandleWebhook(ctx, payload, "sig")
	require.NoError(t, err)
	assert.False(t, res.Processed)
	assert.Equal(t, "duplicate event", res.Message)
	assert.Equal(t, 2, f.mails.count())
	assert.Equal(t, []string{
		"payment_intent.succeeded:processed",
		"payment_intent.succeeded:duplicate",
	}, f.metrics.events)
}

func TestHandleWebhook_FailedAndCanceled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inq := f.inquiry(t)
	inq.AttachPayment("pi_f", 5000, "eur", f.now)
	require.NoError(t, f.repo.Save(ctx, inq))

	f.gateway.On("ParseEvent", []byte("failed"), "sig").Return(&payment.Event{
		ID: "evt_f", Type: payment.EventFailed, Intent: &payment.Intent{ID: "pi_f"},
	}, nil)
	_, err := f.svc.HandleWebhook(ctx, []byte("failed"), "sig")
	require.NoError(t, err)
	stored, err := f.repo.FindByID(ctx, inq.ID)
	require.NoError(t, err)
	assert.Equal(t, inquiry.PaymentFailed, *stored.PaymentStatus)

	f.gateway.On("ParseEvent", []byte("canceled"), "sig").Return(&payment.Event{
		ID: "evt_c", Type: payment.EventCanceled, Intent: &payment.Intent{ID: "pi_f"},
	}, nil)
	_, err = f.svc.HandleWebhook(ctx, []byte("canceled"), "sig")
	require.NoError(t, err)
	stored, err = f.repo.FindByID(ctx, inq.ID)
	require.NoError(t, err)
	assert.Equal(t, inquiry.PaymentCancelled, *stored.PaymentStatus)
	assert.Zero(t, f.mails.count())
}

func TestHandleWebhook_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleWebhook(ctx, []byte(strings.Repeat("x", MaxWebhookPayload+1)), "sig")
	assert.ErrorIs(t, err, payment.ErrPayloadTooLarge)

	f.gateway.On("ParseEvent", []byte("forged"), "bad").Return(nil, payment.ErrInvalidEvent)
	_, err = f.svc.HandleWebhook(ctx, []byte("forged"), "bad")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestHandleWebhook_UnknownInquiryAndEventType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gateway.On("ParseEvent", []byte("orphan"), "sig").Return(&payment.Event{
		ID: "evt_o", Type: payment.EventSucceeded, Intent: succeeded("pi_none", ""),
	}, nil)
	res, err := f.svc.HandleWebhook(ctx, []byte("orphan"), "sig")
	require.NoError(t, err)
	assert.True(t, res.Processed)

	f.gateway.On("ParseEvent", []byte("other"), "sig").Return(&payment.Event{
		ID: "evt_x", Type: payment.EventType("charge.refunded"),
	}, nil)
	res, err = f.svc.HandleWebhook(ctx, []byte("other"), "sig")
	require.NoError(t, err)
	assert.True(t, res.Processed)
	assert.Zero(t, f.mails.count())
}
