// SPDX-License-Identifier: MPL-2.0

package manager

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is the sentinel wrapped by ClosedManagerError.
	ErrClosed = errors.New("manager closed")
	// ErrNotReady is returned by queries issued before the initial
	// resolution succeeded.
	ErrNotReady = errors.New("manager not ready")
	// ErrNotManaged is the sentinel wrapped by NotManagedError.
	ErrNotManaged = errors.New("script not managed")
)

type (
	// ClosedManagerError is returned by operations on a closed manager.
	ClosedManagerError struct {
		Op string
	}

	// NotManagedError is returned when a path is not a known script.
	NotManagedError struct {
		Path string
	}
)

func (e *ClosedManagerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, ErrClosed)
}

// Unwrap returns ErrClosed.
func (e *ClosedManagerError) Unwrap() error { return ErrClosed }

func (e *NotManagedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotManaged, e.Path)
}

// Unwrap returns ErrNotManaged.
func (e *NotManagedError) Unwrap() error { return ErrNotManaged }
