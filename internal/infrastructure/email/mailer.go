// Package email renders and sends the transactional mails of the inquiry
// and payment flows through Resend.
package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/nest-haus/backend/internal/domain/inquiry"
	"github.com/nest-haus/backend/internal/infrastructure/config"
)

const defaultFrom = "onboarding@resend.dev"

// Message is a rendered mail ready to send
type Message struct {
	From    string
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// ResendSender sends through the Resend API
type ResendSender struct {
	client *resend.Client
}

// NewResendSender creates a sender for apiKey
func NewResendSender(apiKey string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey)}
}

// Send implements Sender
func (s *ResendSender) Send(ctx context.Context, msg *Message) (string, error) {
	resp, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		ReplyTo: msg.ReplyTo,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return "", fmt.Errorf("resend: %w", err)
	}
	return resp.Id, nil
}

// RequestContext carries request details shown in admin notifications.
type RequestContext struct {
	ClientIP  string
	UserAgent string
}

// Mailer composes the inquiry and payment mails. With mail disabled every
// send is a logged no-op.
type Mailer struct {
	sender   Sender
	renderer *Renderer
	cfg      config.EmailConfig
	baseURL  string
	admins   []string
	logger   *zap.Logger
	now      func() time.Time
}

// NewMailer creates a Mailer. sender may be nil when mail is disabled.
func NewMailer(cfg config.EmailConfig, baseURL string, sender Sender, logger *zap.Logger) (*Mailer, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.From == "" {
		cfg.From = defaultFrom
	}
	var admins []string
	for _, a := range strings.Split(cfg.AdminEmail, ",") {
		if a = strings.TrimSpace(a); a != "" {
			admins = append(admins, a)
		}
	}
	return &Mailer{
		sender:   sender,
		renderer: renderer,
		cfg:      cfg,
		baseURL:  strings.TrimRight(baseURL, "/"),
		admins:   admins,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Enabled reports whether mails are actually sent
func (m *Mailer) Enabled() bool {
	return m.cfg.Enabled && m.sender != nil
}

func (m *Mailer) baseView(inq *inquiry.Inquiry, title, accent string) View {
	v := View{
		Title:         title,
		Accent:        accent,
		BaseURL:       m.baseURL,
		Inquiry:       inq,
		ContactMethod: contactMethodText(inq.PreferredContact),
		Configuration: SummarizeConfiguration(inq.ConfigurationData),
		SentAt:        formatTime(m.now()),
		RequestNoun:   "Anfrage",
		ResponseTime:  "Wir melden uns innerhalb von 2 Werktagen bei Ihnen",
	}
	if inq.TotalPrice != nil {
		v.TotalPrice = *inq.TotalPrice
	}
	if inq.IsAppointment() {
		v.RequestNoun = "Terminanfrage"
		v.ResponseTime = "Wir melden uns innerhalb von 24 Stunden für die Terminbestätigung"
		if inq.AppointmentDateTime != nil {
			v.Appointment = formatTime(*inq.AppointmentDateTime)
		}
	}
	return v
}

func (m *Mailer) paymentView(inq *inquiry.Inquiry, title, accent string) View {
	v := m.baseView(inq, title, accent)
	if inq.PaymentAmount != nil {
		v.Amount = FormatCents(*inq.PaymentAmount, inq.PaymentCurrency)
	}
	v.PaymentMethod = inq.PaymentMethod
	if v.PaymentMethod == "" {
		v.PaymentMethod = "card"
	}
	paid := m.now()
	if inq.PaidAt != nil {
		paid = *inq.PaidAt
	}
	v.PaidAt = formatTime(paid)
	return v
}

// SendCustomerConfirmation acknowledges an inquiry to the customer.
func (m *Mailer) SendCustomerConfirmation(ctx context.Context, inq *inquiry.Inquiry) error {
	subject := "Ihre Anfrage bei NEST-Haus"
	if inq.IsAppointment() {
		subject = "Terminanfrage bei NEST-Haus erhalten"
	}
	view := m.baseView(inq, "NEST-Haus Bestätigung", "#2c5530")
	return m.send(ctx, KindCustomerConfirmation, []string{inq.Email}, subject, view)
}

// SendAdminNotification tells the team about a new inquiry.
func (m *Mailer) SendAdminNotification(ctx context.Context, inq *inquiry.Inquiry, rc RequestContext) error {
	subject := "Neue Kontaktanfrage von " + inq.Name
	if inq.IsAppointment() {
		subject = "Neue Terminanfrage von " + inq.Name
	}
	view := m.baseView(inq, "Neue Kundenanfrage - NEST-Haus", "#d32f2f")
	view.ClientIP = rc.ClientIP
	view.UserAgent = rc.UserAgent
	return m.send(ctx, KindAdminNotification, m.admins, subject, view)
}

// SendPaymentConfirmation thanks the customer for a completed payment.
func (m *Mailer) SendPaymentConfirmation(ctx context.Context, inq *inquiry.Inquiry) error {
	view := m.paymentView(inq, "Zahlungsbestätigung - NEST-Haus", "#2c5530")
	return m.send(ctx, KindPaymentConfirmation, []string{inq.Email}, "Zahlungsbestätigung - NEST-Haus", view)
}

// SendAdminPaymentNotification tells the team a payment arrived.
func (m *Mailer) SendAdminPaymentNotification(ctx context.Context, inq *inquiry.Inquiry) error {
	view := m.paymentView(inq, "Neue Zahlung - NEST-Haus", "#1565c0")
	subject := fmt.Sprintf("Neue Zahlung von %s (%s)", inq.Name, view.Amount)
	return m.send(ctx, KindAdminPayment, m.admins, subject, view)
}

func (m *Mailer) send(ctx context.Context, kind Kind, to []string, subject string, view View) error {
	if !m.Enabled() {
		m.logger.Debug("Email disabled, skipping", zap.String("kind", string(kind)))
		return nil
	}
	if len(to) == 0 {
		return fmt.Errorf("email %s has no recipients", kind)
	}
	body, err := m.renderer.Render(kind, view)
	if err != nil {
		return err
	}
	id, err := m.sender.Send(ctx, &Message{
		From:    m.cfg.From,
		To:      to,
		ReplyTo: m.cfg.ReplyTo,
		Subject: subject,
		HTML:    body.HTML,
		Text:    body.Text,
	})
	if err != nil {
		m.logger.Error("Failed to send email", zap.String("kind", string(kind)), zap.Error(err))
		return err
	}
	m.logger.Info("Email sent", zap.String("kind", string(kind)), zap.String("message_id", id))
	return nil
}
