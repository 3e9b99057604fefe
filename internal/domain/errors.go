package domain

import "errors"

// Domain errors
var (
	ErrHighlightNotFound     = errors.New("highlight not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionClosed         = errors.New("session closed")
	ErrCapabilityUnsupported = errors.New("capability not supported by document")
	ErrBookMismatch          = errors.New("highlight belongs to another book")
)

// ValidationError represents a validation error with field and message information.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}
