// Package session models configurator visits: the user session row, the
// selection and interaction events recorded against it, and the rules that
// decide how repeat visits of the same visitor are counted.
package session

import (
	"strings"
	"time"

	"github.com/nest-haus/backend/internal/domain/shared"
)

// Status of a configurator session
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusAbandoned Status = "ABANDONED"
	StatusConverted Status = "CONVERTED"
)

// FinalizeReason tells Finalize how a session ended.
type FinalizeReason string

const (
	ReasonCompleted  FinalizeReason = "completed"
	ReasonConversion FinalizeReason = "conversion"
	ReasonPageExit   FinalizeReason = "page_exit"
	ReasonTimeout    FinalizeReason = "timeout"
)

// Unknown is stored when the client does not send an IP or user agent.
const Unknown = "unknown"

// UserSession is the durable record of a configurator visit.
type UserSession struct {
	shared.BaseEntity
	SessionID         string     `gorm:"type:varchar(128);not null;uniqueIndex" json:"sessionId"`
	UserIdentifier    string     `gorm:"type:varchar(64);index" json:"userIdentifier,omitempty"`
	IPAddress         string     `gorm:"type:varchar(64);not null;default:'unknown'" json:"ipAddress"`
	UserAgent         string     `gorm:"type:text;not null;default:'unknown'" json:"userAgent"`
	Referrer          string     `gorm:"type:text" json:"referrer,omitempty"`
	StartTime         time.Time  `gorm:"not null;index" json:"startTime"`
	LastActivity      time.Time  `gorm:"not null" json:"lastActivity"`
	EndTime           *time.Time `json:"endTime,omitempty"`
	DurationMs        *int64     `json:"durationMs,omitempty"`
	Status            Status     `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	TotalPrice        *int64     `json:"totalPrice,omitempty"`
	ConfigurationData string     `gorm:"type:text" json:"configurationData,omitempty"`
	VisitCount        int        `gorm:"not null;default:1" json:"visitCount"`
	LastVisitDate     time.Time  `gorm:"not null" json:"lastVisitDate"`
	Country           string     `gorm:"type:varchar(8)" json:"country,omitempty"`
	City              string     `gorm:"type:varchar(128)" json:"city,omitempty"`
	Latitude          *float64   `json:"latitude,omitempty"`
	Longitude         *float64   `json:"longitude,omitempty"`
	TrafficSource     string     `gorm:"type:varchar(32)" json:"trafficSource,omitempty"`
	TrafficMedium     string     `gorm:"type:varchar(32)" json:"trafficMedium,omitempty"`
	ReferralDomain    string     `gorm:"type:varchar(255)" json:"referralDomain,omitempty"`
	DeviceType        DeviceType `gorm:"type:varchar(16)" json:"deviceType,omitempty"`
}

// TableName returns the table name for GORM
func (UserSession) TableName() string {
	return "user_sessions"
}

// NewUserSession starts an ACTIVE session for client at now.
func NewUserSession(sessionID string, client ClientInfo, now time.Time) *UserSession {
	client = client.normalized()
	return &UserSession{
		BaseEntity:     shared.NewBaseEntityAt(now),
		SessionID:      sessionID,
		UserIdentifier: client.UserIdentifier(),
		IPAddress:      client.IP,
		UserAgent:      client.UserAgent,
		Referrer:       client.Referer,
		StartTime:      now,
		LastActivity:   now,
		Status:         StatusActive,
		VisitCount:     1,
		LastVisitDate:  now,
		DeviceType:     DetectDevice(client.UserAgent),
	}
}

// Touch records activity without changing anything else.
func (s *UserSession) Touch(now time.Time) {
	s.LastActivity = now
	s.UpdatedAt = now
}

// SetLocation fills geolocation fields that are still empty.
func (s *UserSession) SetLocation(loc *Location) {
	if loc == nil || s.Country != "" {
		return
	}
	s.Country = loc.Country
	s.City = loc.City
	lat, lon := loc.Latitude, loc.Longitude
	s.Latitude = &lat
	s.Longitude = &lon
}

// SetTraffic stores the classified traffic source.
func (s *UserSession) SetTraffic(t TrafficSource) {
	s.TrafficSource = t.Source
	s.TrafficMedium = t.Medium
	s.ReferralDomain = t.Domain
}

// Finalize closes the session. Completed and conversion reasons mark it
// COMPLETED, everything else ABANDONED. Finalizing twice is a no-op.
func (s *UserSession) Finalize(reason FinalizeReason, now time.Time) {
	if s.EndTime != nil {
		return
	}
	switch reason {
	case ReasonCompleted, ReasonConversion:
		s.Status = StatusCompleted
	default:
		s.Status = StatusAbandoned
	}
	end := now
	s.EndTime = &end
	d := now.Sub(s.StartTime).Milliseconds()
	if d < 0 {
		d = 0
	}
	s.DurationMs = &d
	s.Touch(now)
}

// ClientInfo is what the HTTP layer knows about the caller.
type ClientInfo struct {
	IP        string
	UserAgent string
	Referer   string
}

func (c ClientInfo) normalized() ClientInfo {
	if c.IP == "" {
		c.IP = Unknown
	}
	if c.UserAgent == "" {
		c.UserAgent = Unknown
	}
	return c
}

// UserIdentifier returns the visitor hash for this client.
func (c ClientInfo) UserIdentifier() string {
	c = c.normalized()
	return UserIdentifier(c.IP, c.UserAgent)
}

// ResolveClientIP picks the caller address from proxy headers: the first
// X-Forwarded-For hop, then X-Real-IP, then "unknown".
func ResolveClientIP(forwardedFor, realIP string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(realIP); ip != "" {
		return ip
	}
	return Unknown
}
