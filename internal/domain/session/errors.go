package session

import "github.com/nest-haus/backend/internal/domain/shared"

var (
	// ErrMissingFields rejects tracking payloads without their required keys.
	ErrMissingFields = shared.ErrInvalidInput.WithMessage("Missing required fields")
	// ErrStoreUnavailable is returned when the live session store cannot be reached.
	ErrStoreUnavailable = shared.ErrServiceUnavailable.WithMessage("Session store unavailable")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = shared.ErrNotFound.WithMessage("Session not found")
)
