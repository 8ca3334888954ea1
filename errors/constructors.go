package errors

import (
	"fmt"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *RelayError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *RelayError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// EventInvalid creates an error for a hook event missing required fields
func EventInvalid(field string) *RelayError {
	return New(ErrCodeEventInvalid, fmt.Sprintf("hook event is missing required field '%s'", field)).
		WithDetail("field", field)
}

// SessionNotFound creates a session not found error
func SessionNotFound(sessionID string) *RelayError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session '%s' not found", sessionID)).
		WithDetail("sessionId", sessionID)
}

// SessionWrite creates a session persistence failure error
func SessionWrite(sessionID string, err error) *RelayError {
	return Wrap(err, ErrCodeSessionWrite, fmt.Sprintf("failed to persist session '%s'", sessionID)).
		WithDetail("sessionId", sessionID)
}

// QueueRead creates a payload queue read failure error
func QueueRead(path string, err error) *RelayError {
	return Wrap(err, ErrCodeQueueRead, fmt.Sprintf("failed to read payload queue: %s", path)).
		WithDetail("path", path)
}

// QueueWrite creates a payload queue write failure error
func QueueWrite(path string, err error) *RelayError {
	return Wrap(err, ErrCodeQueueWrite, fmt.Sprintf("failed to rewrite payload queue: %s", path)).
		WithDetail("path", path)
}

// APIConfig creates an error for missing or inconsistent API client configuration
func APIConfig(reason string) *RelayError {
	return New(ErrCodeAPIConfig, fmt.Sprintf("api client misconfigured: %s", reason))
}
