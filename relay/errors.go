package relay

import (
	"errors"
	"strings"
)

var (
	// ErrNotConfigured is wrapped by every ConfigurationError.
	ErrNotConfigured = errors.New("relay not configured")

	// ErrInvalidExchange is returned when a thread id or message is empty.
	ErrInvalidExchange = errors.New("thread_id and message are required")
)

// ConfigurationError is returned before any remote call when credentials are missing.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return strings.Join(e.Missing, " or ") + " not configured"
}

func (e *ConfigurationError) Unwrap() error {
	return ErrNotConfigured
}
