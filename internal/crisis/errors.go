package crisis

import "errors"

// Service errors.
var (
	ErrCrisisNotFound        = errors.New("crisis not found")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrCrisisAlreadyResolved = errors.New("crisis already resolved")
	ErrCrisisCancelled       = errors.New("crisis cancelled")
	ErrMissingResolution     = errors.New("resolution summary, root cause and resolver are required")
	ErrMissingMitigation     = errors.New("mitigation steps are required")
	ErrEscalationNotAllowed  = errors.New("escalation not allowed in current status")
)

// Validation errors for submitted events.
var (
	ErrMissingType        = errors.New("event type is required")
	ErrMissingDescription = errors.New("event description is required")
	ErrInvalidDetectedAt  = errors.New("detected_at is missing or unparseable")
	ErrInvalidSeverity    = errors.New("invalid severity hint")
)
