package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// UserIdentifier hashes ip and user agent into the visitor key used for
// deduplicating sessions across page loads. Only the hash is queried on.
func UserIdentifier(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}

// VisitAction says what to do with the visitor's sessions for one interaction.
type VisitAction int

const (
	// VisitCreate starts a new session row.
	VisitCreate VisitAction = iota
	// VisitTouch only bumps the activity of the existing row for this session id.
	VisitTouch
	// VisitJoin touches the visitor's canonical session of the day and creates
	// the new session id with the same visit count.
	VisitJoin
)

func (a VisitAction) String() string {
	switch a {
	case VisitTouch:
		return "touch"
	case VisitJoin:
		return "join"
	default:
		return "create"
	}
}

// Visit is the outcome of ResolveVisit.
type Visit struct {
	Action     VisitAction
	VisitCount int
}

// ResolveVisit decides how an interaction from sessionID counts against the
// visitor's latest known session. A new calendar day increments the visit
// count; several session ids on the same day share one visit.
func ResolveVisit(latest *UserSession, sessionID string, now time.Time) Visit {
	if latest == nil {
		return Visit{Action: VisitCreate, VisitCount: 1}
	}
	count := latest.VisitCount
	if count < 1 {
		count = 1
	}
	if latest.SessionID == sessionID {
		return Visit{Action: VisitTouch, VisitCount: count}
	}
	if SameDay(latest.LastVisitDate, now) {
		return Visit{Action: VisitJoin, VisitCount: count}
	}
	return Visit{Action: VisitCreate, VisitCount: count + 1}
}

// SameDay reports whether a and b fall on the same calendar day in b's location.
func SameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
