package cascade

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("cascade: no store configured")
	ErrMigrationFailed = errors.New("cascade: migration failed")

	// Command errors.
	ErrUnknownCommand     = errors.New("cascade: no handler registered for command")
	ErrMalformedPayload   = errors.New("cascade: malformed command payload")
	ErrUnsupportedVersion = errors.New("cascade: unsupported command version")
	ErrInlineOnly         = errors.New("cascade: command cannot run in background")

	// Cascade errors.
	ErrCascadeTooDeep = errors.New("cascade: cascade depth limit exceeded")
	ErrAlreadyStarted = errors.New("cascade: engine already started")
	ErrNotStarted     = errors.New("cascade: engine not started")

	// Recurrence errors.
	ErrInvalidFrequency  = errors.New("cascade: invalid frequency")
	ErrRecurringNotFound = errors.New("cascade: recurring job not found")

	// Request/response errors.
	ErrRequestTimeout = errors.New("cascade: request timed out waiting for response event")
)
