// Package errors defines the error taxonomy shared by all coflow components.
package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the coflow engine

var (
	// ErrInvalidState indicates an operation attempted in the wrong
	// lifecycle phase, such as mutating a running process or re-entering
	// an already-running scheduler loop
	ErrInvalidState = errors.New("invalid state")

	// ErrRuntimeFailure indicates an execution-time failure: a missing
	// capability, a failed OS call, or an unexpected handler error
	ErrRuntimeFailure = errors.New("runtime failure")

	// ErrInvalidArgument indicates malformed input, such as an unknown
	// option key or an invalid command shape
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTimeout indicates that a bounded wait expired before the unit
	// of work reached a terminal state
	ErrTimeout = fmt.Errorf("%w: operation timed out", ErrRuntimeFailure)

	// ErrUnsupported indicates that a required capability is not
	// available on the host
	ErrUnsupported = fmt.Errorf("%w: unsupported capability", ErrRuntimeFailure)
)

// StateError reports a lifecycle violation: the named operation was
// attempted while the component was in a state that forbids it.
type StateError struct {
	Op    string
	State string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("%s: not allowed while %s", e.Op, e.State)
}

// Unwrap makes StateError match ErrInvalidState via errors.Is.
func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// NewStateError creates a StateError for the given operation and state.
func NewStateError(op, state string) *StateError {
	return &StateError{Op: op, State: state}
}

// OptionError reports a rejected option key or value.
type OptionError struct {
	Key    string
	Reason string
}

// Error implements the error interface.
func (e *OptionError) Error() string {
	return fmt.Sprintf("option %q: %s", e.Key, e.Reason)
}

// Unwrap makes OptionError match ErrInvalidArgument via errors.Is.
func (e *OptionError) Unwrap() error {
	return ErrInvalidArgument
}

// NewOptionError creates an OptionError for the given key.
func NewOptionError(key, reason string) *OptionError {
	return &OptionError{Key: key, Reason: reason}
}

// Wrap annotates err with the engine's runtime-failure class so callers can
// classify captured handler errors without losing the original cause.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRuntimeFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRuntimeFailure, err)
}

// IsTimeout returns true if the error represents an expired bounded wait,
// as opposed to an ordinary execution failure
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsUnsupported returns true if the error represents a missing host capability
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// IsInvalidState returns true if the error represents a lifecycle violation
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}
