// SPDX-License-Identifier: MPL-2.0

// Package lifecycle provides the atomic state machine shared by long-lived
// components such as the dependency manager and the development server.
//
// A component moves from initializing to ready or failed exactly once, and
// from any non-terminal state through closing to closed. Reads of the state
// are lock-free; transitions are compare-and-swap so concurrent callers
// agree on which of them performed a transition.
package lifecycle
