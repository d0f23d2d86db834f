// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"errors"
	"fmt"
)

const (
	// StateInitializing indicates discovery or startup is in progress.
	StateInitializing State = iota
	// StateReady indicates the component completed startup and is serving.
	StateReady
	// StateFailed indicates startup failed. The instance cannot become ready.
	StateFailed
	// StateClosing indicates Close was called and resources are being released.
	StateClosing
	// StateClosed is terminal: every resource has been released.
	StateClosed
)

// ErrInvalidState is returned when a State value is not one of the defined states.
var ErrInvalidState = errors.New("invalid state")

type (
	// State is the lifecycle state of a component.
	State int32

	// InvalidStateError is returned when a State value is not recognized.
	InvalidStateError struct {
		Value State
	}
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "error"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %d (valid: 0=initializing, 1=ready, 2=error, 3=closing, 4=closed)", e.Value)
}

// Unwrap returns ErrInvalidState.
func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// Validate returns an error wrapping ErrInvalidState for unknown values.
func (s State) Validate() error {
	switch s {
	case StateInitializing, StateReady, StateFailed, StateClosing, StateClosed:
		return nil
	default:
		return &InvalidStateError{Value: s}
	}
}

// IsTerminal reports whether no further startup can happen.
func (s State) IsTerminal() bool {
	return s == StateFailed || s == StateClosed
}
