package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict: name already exists")
	ErrInvalidChannel   = errors.New("invalid channel: must be email, sms, or push")
	ErrInvalidPriority  = errors.New("invalid priority: must be low, medium, high, or critical")
	ErrInvalidRecipient = errors.New("recipient must not be empty")
	ErrInvalidTrigger   = errors.New("trigger must not be empty")
	ErrNoChannels       = errors.New("at least one channel is required")
	ErrInvalidJobName   = errors.New("job name must not be empty")
	ErrInvalidSchedule  = errors.New("schedule must be interval with interval_seconds > 0 or cron with an expression")
	ErrUnknownJobKind   = errors.New("unknown job kind")
	ErrStaticJob        = errors.New("static jobs cannot be modified through the admin API")
)

// TransientError marks a delivery failure that is worth retrying: provider
// timeouts, rate limits, 5xx responses. Adapters fall through to the next
// provider on it; the executor may retry the whole job run.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ConfigError marks a failure that retrying cannot fix: missing template,
// missing credentials, no registered device. The affected channel or item
// is skipped or failed without retry.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
