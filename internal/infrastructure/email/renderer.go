package email

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nest-haus/backend/internal/domain/inquiry"
	"github.com/nest-haus/backend/internal/domain/pricing"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// Kind names a message template
type Kind string

const (
	KindCustomerConfirmation Kind = "customer_confirmation"
	KindAdminNotification    Kind = "admin_notification"
	KindPaymentConfirmation  Kind = "payment_confirmation"
	KindAdminPayment         Kind = "admin_payment"
)

var kinds = []Kind{KindCustomerConfirmation, KindAdminNotification, KindPaymentConfirmation, KindAdminPayment}

// ConfigurationLine is one labelled choice in the configuration summary.
type ConfigurationLine struct {
	Label string
	Value string
}

// View is the data every template renders from.
type View struct {
	Title         string
	Accent        string
	BaseURL       string
	Inquiry       *inquiry.Inquiry
	RequestNoun   string
	ResponseTime  string
	ContactMethod string
	Appointment   string
	Configuration []ConfigurationLine
	TotalPrice    int64
	Amount        string
	PaymentMethod string
	PaidAt        string
	SentAt        string
	ClientIP      string
	UserAgent     string
}

// Rendered is a message body in both formats
type Rendered struct {
	HTML string
	Text string
}

// Renderer executes the embedded message templates.
type Renderer struct {
	html map[Kind]*htmltemplate.Template
	text map[Kind]*texttemplate.Template
}

func templateFuncs() map[string]any {
	return map[string]any{
		"formatEUR": func(euros int64) string { return pricing.FormatEUR(decimal.NewFromInt(euros)) },
		"safeCSS":   func(s string) htmltemplate.CSS { return htmltemplate.CSS(s) },
		"title":     func(s string) string { return cases.Title(language.German).String(s) },
	}
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		html: make(map[Kind]*htmltemplate.Template, len(kinds)),
		text: make(map[Kind]*texttemplate.Template, len(kinds)),
	}
	for _, k := range kinds {
		h, err := htmltemplate.New(string(k)).Funcs(templateFuncs()).
			ParseFS(templateFS, "templates/layout.html", "templates/"+string(k)+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s.html: %w", k, err)
		}
		t, err := texttemplate.New(string(k)).Funcs(templateFuncs()).
			ParseFS(templateFS, "templates/"+string(k)+".txt")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s.txt: %w", k, err)
		}
		r.html[k] = h
		r.text[k] = t
	}
	return r, nil
}

// Render executes kind with view.
func (r *Renderer) Render(kind Kind, view View) (*Rendered, error) {
	h, ok := r.html[kind]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", kind)
	}
	var html, text bytes.Buffer
	if err := h.ExecuteTemplate(&html, string(kind)+".html", view); err != nil {
		return nil, fmt.Errorf("failed to render %s html: %w", kind, err)
	}
	if err := r.text[kind].ExecuteTemplate(&text, string(kind)+".txt", view); err != nil {
		return nil, fmt.Errorf("failed to render %s text: %w", kind, err)
	}
	return &Rendered{HTML: html.String(), Text: strings.TrimSpace(text.String()) + "\n"}, nil
}

var configurationLabels = []ConfigurationLine{
	{"nest", "Nest-Modell"},
	{"gebaeudehuelle", "Gebäudehülle"},
	{"innenverkleidung", "Innenverkleidung"},
	{"fussboden", "Fußboden"},
	{"pvanlage", "PV-Anlage"},
	{"fenster", "Fenster"},
	{"planungspaket", "Planungspaket"},
	{"grundstueckscheck", "Grundstückscheck"},
}

// SummarizeConfiguration extracts the named choices from a stored
// configuration. Unknown or malformed data yields no lines.
func SummarizeConfiguration(configuration string) []ConfigurationLine {
	if configuration == "" {
		return nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(configuration), &data); err != nil {
		return nil
	}
	var lines []ConfigurationLine
	for _, l := range configurationLabels {
		obj, ok := data[l.Label].(map[string]any)
		if !ok {
			continue
		}
		if name, ok := obj["name"].(string); ok && name != "" {
			lines = append(lines, ConfigurationLine{Label: l.Value, Value: name})
		}
	}
	return lines
}

func contactMethodText(m inquiry.ContactMethod) string {
	switch m {
	case inquiry.ContactPhone:
		return "Telefon"
	case inquiry.ContactWhatsApp:
		return "WhatsApp"
	default:
		return "E-Mail"
	}
}

// FormatCents renders an amount in minor units, e.g. 150000 eur as "1.500 €".
func FormatCents(cents int64, currency string) string {
	amount := decimal.New(cents, -2)
	if strings.EqualFold(currency, "eur") || currency == "" {
		return pricing.FormatEUR(amount)
	}
	return amount.StringFixed(2) + " " + strings.ToUpper(currency)
}

func formatTime(t time.Time) string {
	return inquiry.FormatGermanDateTime(t)
}
