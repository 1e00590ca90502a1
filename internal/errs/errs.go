// Package errs defines the typed error taxonomy used across the engine so
// callers can classify a failure without string-matching error text.
package errs

import (
	"errors"
	"fmt"
)

// Class categorizes a failure for retry/backoff and logging decisions.
type Class string

const (
	// TransientExternal is a retryable failure in a dependency (timeout,
	// connection reset, 5xx, rate limit).
	TransientExternal Class = "transient_external"
	// PermanentExternal is a non-retryable failure reported by a dependency
	// (4xx other than rate limit, malformed response it will never fix).
	PermanentExternal Class = "permanent_external"
	// ContractViolation means the caller violated a documented precondition
	// (bad config, invalid argument, storage contract broken by caller).
	ContractViolation Class = "contract_violation"
	// DataIntegrity means persisted state was found inconsistent with the
	// invariants it is supposed to uphold.
	DataIntegrity Class = "data_integrity"
	// Internal is a bug: an invariant the code itself was supposed to hold.
	Internal Class = "internal"
	// StreamIdle means a streaming LLM response stopped producing tokens
	// before the overall request deadline elapsed.
	StreamIdle Class = "stream_idle"
)

// Error wraps an underlying cause with a Class and a component tag.
type Error struct {
	Class     Class
	Component string
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Component, e.Class, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Class, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no underlying cause.
func New(class Class, component, msg string) error {
	return &Error{Class: class, Component: component, Msg: msg}
}

// Wrap attaches a Class and component to an underlying error.
func Wrap(class Class, component, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Component: component, Msg: msg, Err: err}
}

// ClassOf extracts the Class from err, returning Internal when err carries
// no classification (a bug to fix, not a condition to silently swallow).
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return Internal
}

// Retryable reports whether the classified error is worth retrying with
// backoff.
func Retryable(err error) bool {
	switch ClassOf(err) {
	case TransientExternal, StreamIdle:
		return true
	default:
		return false
	}
}
