// Package inquiry holds customer contact and appointment requests together
// with the payment state of the configuration they were sent with.
package inquiry

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"

	"github.com/nest-haus/backend/internal/domain/shared"
)

// Status is the sales pipeline stage of an inquiry
type Status string

const (
	StatusNew        Status = "NEW"
	StatusContacted  Status = "CONTACTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusQuoted     Status = "QUOTED"
	StatusConverted  Status = "CONVERTED"
	StatusClosed     Status = "CLOSED"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusInProgress, StatusQuoted, StatusConverted, StatusClosed:
		return true
	}
	return false
}

// PaymentStatus tracks the checkout payment attached to an inquiry
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentPaid       PaymentStatus = "PAID"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentCancelled  PaymentStatus = "CANCELLED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
)

// ContactMethod is how the customer wants to be reached
type ContactMethod string

const (
	ContactEmail    ContactMethod = "EMAIL"
	ContactPhone    ContactMethod = "PHONE"
	ContactWhatsApp ContactMethod = "WHATSAPP"
)

// RequestType distinguishes plain contact requests from appointment requests
type RequestType string

const (
	RequestContact     RequestType = "contact"
	RequestAppointment RequestType = "appointment"
)

// AppointmentStatus of a requested appointment
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "PENDING"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentExpired   AppointmentStatus = "EXPIRED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
)

// AppointmentHold is how long a requested slot stays reserved without confirmation.
const AppointmentHold = 24 * time.Hour

// Inquiry is a customer inquiry
type Inquiry struct {
	shared.BaseEntity
	SessionID            string             `gorm:"type:varchar(128);index" json:"sessionId,omitempty"`
	Email                string             `gorm:"type:varchar(255);not null;index" json:"email"`
	Name                 string             `gorm:"type:varchar(255);not null" json:"name"`
	Phone                string             `gorm:"type:varchar(64)" json:"phone,omitempty"`
	Message              string             `gorm:"type:text" json:"message,omitempty"`
	ConfigurationData    string             `gorm:"type:text" json:"configurationData,omitempty"`
	TotalPrice           *int64             `json:"totalPrice,omitempty"`
	Status               Status             `gorm:"type:varchar(20);not null;default:'NEW';index" json:"status"`
	PreferredContact     ContactMethod      `gorm:"type:varchar(20);not null;default:'EMAIL'" json:"preferredContact"`
	BestTimeToCall       string             `gorm:"type:varchar(255)" json:"bestTimeToCall,omitempty"`
	RequestType          RequestType        `gorm:"type:varchar(20);not null;default:'contact'" json:"requestType"`
	AppointmentDateTime  *time.Time         `json:"appointmentDateTime,omitempty"`
	AppointmentStatus    *AppointmentStatus `gorm:"type:varchar(20);index" json:"appointmentStatus,omitempty"`
	AppointmentExpiresAt *time.Time         `gorm:"index" json:"appointmentExpiresAt,omitempty"`
	AdminNotes           string             `gorm:"type:text" json:"adminNotes,omitempty"`
	FollowUpDate         *time.Time         `json:"followUpDate,omitempty"`
	ContactedAt          *time.Time         `json:"contactedAt,omitempty"`
	PaymentIntentID      string             `gorm:"type:varchar(255);index" json:"paymentIntentId,omitempty"`
	PaymentStatus        *PaymentStatus     `gorm:"type:varchar(20)" json:"paymentStatus,omitempty"`
	PaymentMethod        string             `gorm:"type:varchar(64)" json:"paymentMethod,omitempty"`
	PaymentAmount        *int64             `json:"paymentAmount,omitempty"`
	PaymentCurrency      string             `gorm:"type:varchar(8)" json:"paymentCurrency,omitempty"`
	PaidAt               *time.Time         `json:"paidAt,omitempty"`
}

// TableName returns the table name for GORM
func (Inquiry) TableName() string {
	return "customer_inquiries"
}

var validate = validator.New()

// Submission is a contact form as sent by the website.
type Submission struct {
	Email               string         `json:"email" validate:"required,email"`
	Name                string         `json:"name" validate:"required"`
	Phone               string         `json:"phone,omitempty"`
	Message             string         `json:"message,omitempty"`
	PreferredContact    string         `json:"preferredContact,omitempty" validate:"omitempty,oneof=email phone whatsapp"`
	BestTimeToCall      string         `json:"bestTimeToCall,omitempty"`
	ConfigurationData   map[string]any `json:"configurationData,omitempty"`
	RequestType         string         `json:"requestType,omitempty" validate:"omitempty,oneof=contact appointment"`
	AppointmentDateTime *time.Time     `json:"appointmentDateTime,omitempty"`
}

// Validate checks the submission and reports the offending fields.
func (s Submission) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fields []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
	}
	return shared.ErrInvalidInput.WithMessage("Invalid data: " + strings.Join(fields, ", "))
}

// New builds a NEW inquiry from a validated submission. configuration is the
// JSON encoding of the submission's configuration data, totalPrice its price.
func New(sub Submission, sessionID, configuration string, totalPrice *int64, now time.Time) (*Inquiry, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	inq := &Inquiry{
		BaseEntity:        shared.NewBaseEntityAt(now),
		SessionID:         sessionID,
		Email:             strings.TrimSpace(sub.Email),
		Name:              strings.TrimSpace(sub.Name),
		Phone:             sub.Phone,
		Message:           sub.Message,
		ConfigurationData: configuration,
		TotalPrice:        totalPrice,
		Status:            StatusNew,
		PreferredContact:  ContactEmail,
		BestTimeToCall:    sub.BestTimeToCall,
		RequestType:       RequestContact,
	}
	if sub.PreferredContact != "" {
		inq.PreferredContact = ContactMethod(strings.ToUpper(sub.PreferredContact))
	}
	if sub.RequestType == string(RequestAppointment) {
		inq.RequestType = RequestAppointment
		pending := AppointmentPending
		inq.AppointmentStatus = &pending
		inq.AdminNotes = "Terminwunsch: Nicht angegeben - Status: PENDING (24h Bestätigung erforderlich)"
		if at := sub.AppointmentDateTime; at != nil {
			slot := *at
			expires := now.Add(AppointmentHold)
			inq.AppointmentDateTime = &slot
			inq.AppointmentExpiresAt = &expires
			inq.FollowUpDate = &slot
			inq.AdminNotes = fmt.Sprintf("Terminwunsch: %s - Status: PENDING (24h Bestätigung erforderlich)", FormatGermanDateTime(slot))
		}
	}
	return inq, nil
}

// IsAppointment reports whether the inquiry asks for an appointment
func (i *Inquiry) IsAppointment() bool {
	return i.RequestType == RequestAppointment
}

// UpdateStatus moves the inquiry through the pipeline. Moving to CONTACTED
// stamps ContactedAt once.
func (i *Inquiry) UpdateStatus(status Status, now time.Time) error {
	if !status.Valid() {
		return shared.ErrInvalidInput.WithMessage("Unknown inquiry status: " + string(status))
	}
	i.Status = status
	if status == StatusContacted && i.ContactedAt == nil {
		at := now
		i.ContactedAt = &at
	}
	i.Touch(now)
	return nil
}

// AppendNote adds a line to the admin notes.
func (i *Inquiry) AppendNote(note string, now time.Time) {
	if i.AdminNotes == "" {
		i.AdminNotes = note
	} else {
		i.AdminNotes += "\n" + note
	}
	i.Touch(now)
}

// AttachPayment records a freshly created payment intent.
func (i *Inquiry) AttachPayment(intentID string, amount int64, currency string, now time.Time) {
	i.PaymentIntentID = intentID
	i.setPaymentStatus(PaymentProcessing)
	i.PaymentAmount = &amount
	i.PaymentCurrency = currency
	i.Touch(now)
}

// MarkPaid records a successful payment and converts the inquiry.
func (i *Inquiry) MarkPaid(method string, now time.Time) {
	i.setPaymentStatus(PaymentPaid)
	if method != "" {
		i.PaymentMethod = method
	}
	if i.PaidAt == nil {
		at := now
		i.PaidAt = &at
	}
	i.Status = StatusConverted
	i.Touch(now)
}

// MarkPaymentFailed records a failed payment attempt.
func (i *Inquiry) MarkPaymentFailed(now time.Time) {
	if i.IsPaid() {
		return
	}
	i.setPaymentStatus(PaymentFailed)
	i.Touch(now)
}

// MarkPaymentCancelled records a cancelled payment.
func (i *Inquiry) MarkPaymentCancelled(now time.Time) {
	if i.IsPaid() {
		return
	}
	i.setPaymentStatus(PaymentCancelled)
	i.Touch(now)
}

// IsPaid reports whether the inquiry's payment succeeded
func (i *Inquiry) IsPaid() bool {
	return i.PaymentStatus != nil && *i.PaymentStatus == PaymentPaid
}

func (i *Inquiry) setPaymentStatus(s PaymentStatus) {
	i.PaymentStatus = &s
}

// ExpireAppointment expires a pending appointment whose hold ran out.
// It returns false when nothing changed.
func (i *Inquiry) ExpireAppointment(now time.Time) bool {
	if i.AppointmentStatus == nil || *i.AppointmentStatus != AppointmentPending {
		return false
	}
	if i.AppointmentExpiresAt == nil || !i.AppointmentExpiresAt.Before(now) {
		return false
	}
	expired := AppointmentExpired
	i.AppointmentStatus = &expired
	i.AdminNotes = ExpiryNote(now)
	i.Touch(now)
	return true
}

// ExpiryNote is the admin note written when an appointment hold runs out.
func ExpiryNote(now time.Time) string {
	return fmt.Sprintf("Automatisch abgelaufen am %s - 24h Bestätigungsfrist überschritten. Zeitfenster wieder verfügbar.", FormatGermanDateTime(now))
}

var vienna = loadVienna()

func loadVienna() *time.Location {
	loc, err := time.LoadLocation("Europe/Vienna")
	if err != nil {
		return time.UTC
	}
	return loc
}

// FormatGermanDateTime renders t the way admin notes show dates, in Vienna time.
func FormatGermanDateTime(t time.Time) string {
	return t.In(vienna).Format("2.1.2006, 15:04:05")
}
