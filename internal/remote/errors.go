package remote

import (
	"errors"
	"fmt"
)

// TransientError marks a remote failure that is worth retrying: network
// errors, unexpected HTTP statuses, and eventual-consistency windows.
type TransientError struct {
	Op         string
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransientError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Op, e.URL, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.URL, msg)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks the error as retryable for the retry package.
func (e *TransientError) Transient() bool { return true }

// IsTransient reports whether err is, or wraps, a transient remote failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ConfigError is returned when a channel is used before its setup call.
type ConfigError struct {
	Remote  string
	Channel string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("no %s connector configured for %s", e.Channel, e.Remote)
}

// AlreadyPublishedError is returned by the two-phase HTTP connector when an
// artifact is already present at its final location.
type AlreadyPublishedError struct {
	URL string
}

func (e *AlreadyPublishedError) Error() string {
	return fmt.Sprintf("artifact %s already exists", e.URL)
}
