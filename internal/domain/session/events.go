package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TrackedCategories are the configurator categories copied into
// selection_events when a full configuration snapshot is synced.
var TrackedCategories = []string{
	"nest", "gebaeudehuelle", "innenverkleidung", "fussboden",
	"belichtungspaket", "pvanlage", "fenster", "stirnseite", "planungspaket",
	"kamindurchzug", "fussbodenheizung", "bodenaufbau", "geschossdecke", "fundament",
}

// SelectionEvent is one configurator choice.
type SelectionEvent struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID         string    `gorm:"type:varchar(128);not null;index" json:"sessionId"`
	Category          string    `gorm:"type:varchar(64);not null;index" json:"category"`
	Selection         string    `gorm:"type:varchar(128);not null" json:"selection"`
	PreviousSelection string    `gorm:"type:varchar(128)" json:"previousSelection,omitempty"`
	PriceChange       *int64    `json:"priceChange,omitempty"`
	TotalPrice        *int64    `json:"totalPrice,omitempty"`
	TimeSpentMs       *int64    `json:"timeSpentMs,omitempty"`
	Timestamp         time.Time `gorm:"not null;index" json:"timestamp"`
}

// TableName returns the table name for GORM
func (SelectionEvent) TableName() string {
	return "selection_events"
}

// Selection is the tracking payload for a single configurator choice.
type Selection struct {
	SessionID         string `json:"sessionId"`
	Category          string `json:"category"`
	Selection         string `json:"selection"`
	PreviousSelection string `json:"previousSelection,omitempty"`
	PriceChange       *int64 `json:"priceChange,omitempty"`
	TotalPrice        *int64 `json:"totalPrice,omitempty"`
}

// Validate reports whether the required fields are present.
func (s Selection) Validate() error {
	var missing []string
	if s.SessionID == "" {
		missing = append(missing, "sessionId")
	}
	if s.Category == "" {
		missing = append(missing, "category")
	}
	if s.Selection == "" {
		missing = append(missing, "selection")
	}
	if len(missing) > 0 {
		return missingFields(missing)
	}
	return nil
}

// Event builds the persisted row for s.
func (s Selection) Event(now time.Time) *SelectionEvent {
	return &SelectionEvent{
		ID:                uuid.New(),
		SessionID:         s.SessionID,
		Category:          s.Category,
		Selection:         s.Selection,
		PreviousSelection: s.PreviousSelection,
		PriceChange:       s.PriceChange,
		TotalPrice:        s.TotalPrice,
		Timestamp:         now,
	}
}

// ConfigurationItem is one category entry of a configuration snapshot.
type ConfigurationItem struct {
	Category string `json:"category,omitempty"`
	Value    string `json:"value"`
	Name     string `json:"name,omitempty"`
	Price    int64  `json:"price,omitempty"`
}

// SnapshotEvents returns one selection event per tracked category present in config.
func SnapshotEvents(sessionID string, config map[string]*ConfigurationItem, totalPrice int64, now time.Time) []*SelectionEvent {
	events := make([]*SelectionEvent, 0, len(TrackedCategories))
	for _, category := range TrackedCategories {
		item, ok := config[category]
		if !ok || item == nil || item.Value == "" {
			continue
		}
		price := totalPrice
		events = append(events, &SelectionEvent{
			ID:         uuid.New(),
			SessionID:  sessionID,
			Category:   category,
			Selection:  item.Value,
			TotalPrice: &price,
			Timestamp:  now,
		})
	}
	return events
}

// InteractionEvent is a generic UI interaction (clicks, form submits, page views).
type InteractionEvent struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID      string     `gorm:"type:varchar(128);not null;index" json:"sessionId"`
	EventType      string     `gorm:"type:varchar(64);not null;index" json:"eventType"`
	Category       string     `gorm:"type:varchar(64);not null" json:"category"`
	ElementID      string     `gorm:"type:varchar(128)" json:"elementId,omitempty"`
	SelectionValue string     `gorm:"type:varchar(255)" json:"selectionValue,omitempty"`
	PreviousValue  string     `gorm:"type:varchar(255)" json:"previousValue,omitempty"`
	TimeSpent      *int64     `json:"timeSpent,omitempty"`
	DeviceType     DeviceType `gorm:"type:varchar(16)" json:"deviceType,omitempty"`
	ViewportWidth  *int       `json:"viewportWidth,omitempty"`
	ViewportHeight *int       `json:"viewportHeight,omitempty"`
	AdditionalData string     `gorm:"type:text" json:"additionalData,omitempty"`
	Timestamp      time.Time  `gorm:"not null;index" json:"timestamp"`
}

// TableName returns the table name for GORM
func (InteractionEvent) TableName() string {
	return "interaction_events"
}

// DeviceInfo is the optional client-side device report.
type DeviceInfo struct {
	Type   DeviceType `json:"type,omitempty"`
	Width  *int       `json:"width,omitempty"`
	Height *int       `json:"height,omitempty"`
}

// Interaction is the tracking payload for a UI interaction.
type Interaction struct {
	EventType      string      `json:"eventType"`
	Category       string      `json:"category"`
	ElementID      string      `json:"elementId,omitempty"`
	SelectionValue string      `json:"selectionValue,omitempty"`
	PreviousValue  string      `json:"previousValue,omitempty"`
	TimeSpent      *int64      `json:"timeSpent,omitempty"`
	DeviceInfo     *DeviceInfo `json:"deviceInfo,omitempty"`
}

// Validate reports whether the required fields are present.
func (i Interaction) Validate() error {
	var missing []string
	if i.EventType == "" {
		missing = append(missing, "eventType")
	}
	if i.Category == "" {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return missingFields(missing)
	}
	return nil
}

// Event builds the persisted row. A device type reported by the client wins
// over the one detected from the user agent.
func (i Interaction) Event(sessionID string, client ClientInfo, additionalData string, now time.Time) *InteractionEvent {
	ev := &InteractionEvent{
		ID:             uuid.New(),
		SessionID:      sessionID,
		EventType:      i.EventType,
		Category:       i.Category,
		ElementID:      i.ElementID,
		SelectionValue: i.SelectionValue,
		PreviousValue:  i.PreviousValue,
		TimeSpent:      i.TimeSpent,
		DeviceType:     DetectDevice(client.UserAgent),
		AdditionalData: additionalData,
		Timestamp:      now,
	}
	if d := i.DeviceInfo; d != nil {
		if d.Type != "" {
			ev.DeviceType = d.Type
		}
		ev.ViewportWidth = d.Width
		ev.ViewportHeight = d.Height
	}
	return ev
}

func missingFields(fields []string) error {
	return ErrMissingFields.WithMessage("Missing required fields: " + strings.Join(fields, ", "))
}
