// Package retry provides a bounded retry wrapper with a fixed backoff.
//
// The retry policy is plain data: call sites build a Policy, extend the set
// of retryable failures when they need to, and wrap the operation with Do or
// Do1. Nothing here keeps global state, so tests can shrink the backoff or
// swap the sleep function per call.
package retry

import (
	"errors"
	"fmt"
	"time"

	"capstan/pkg/logger"
)

// Matcher reports whether an error should consume retry budget.
type Matcher func(error) bool

// transient is implemented by errors that mark themselves as retryable,
// regardless of which package defines them.
type transient interface {
	Transient() bool
}

// Policy describes how an operation is retried. The zero value retries
// nothing; use Default for the standard publishing policy.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Backoff is slept between attempts. Fixed, not exponential.
	Backoff time.Duration

	// Extra extends the retryable set beyond transient remote failures.
	Extra []Matcher

	// Sleep replaces time.Sleep when set. Tests use this to count backoffs.
	Sleep func(time.Duration)
}

// Default returns the policy used when nothing else is configured.
func Default() Policy {
	return Policy{MaxAttempts: 3, Backoff: 5 * time.Second}
}

// Extend returns a copy of the policy whose retryable set additionally
// matches the given errors. The receiver is not modified.
func (p Policy) Extend(matchers ...Matcher) Policy {
	extra := make([]Matcher, 0, len(p.Extra)+len(matchers))
	extra = append(extra, p.Extra...)
	extra = append(extra, matchers...)
	p.Extra = extra
	return p
}

func (p Policy) retryable(err error) bool {
	var t transient
	if errors.As(err, &t) && t.Transient() {
		return true
	}
	for _, m := range p.Extra {
		if m(err) {
			return true
		}
	}
	return false
}

// ExhaustedError is returned when every attempt failed with a retryable
// error. It wraps the last failure.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs fn under the policy. Non-retryable errors propagate unchanged on
// first occurrence without consuming backoff.
func Do(p Policy, op string, fn func() error) error {
	_, err := Do1(p, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Do1 is Do for operations that return a value.
func Do1[T any](p Policy, op string, fn func() (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !p.retryable(err) {
			return zero, err
		}
		last = err
		logger.Warn("Retrying after transient failure",
			"op", op,
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", p.Backoff,
			"error", err,
		)
		sleep(p.Backoff)
	}

	return zero, &ExhaustedError{Op: op, Attempts: attempts, Err: last}
}
