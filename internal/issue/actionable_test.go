// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "resolve dependencies"},
			expected: "failed to resolve dependencies",
		},
		{
			name:     "operation with resource",
			err:      &ActionableError{Operation: "load project config", Resource: "config.json"},
			expected: "failed to load project config: config.json",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "load project config",
				Resource:  "config.json",
				Cause:     errors.New("lib[0]: expected string"),
			},
			expected: "failed to load project config: config.json: lib[0]: expected string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_Unwrap(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("port in use")
	err := error(&ActionableError{Operation: "start server", Cause: sentinel})
	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should see the cause")
	}

	var ae *ActionableError
	if !errors.As(err, &ae) || ae.Operation != "start server" {
		t.Error("errors.As should find the ActionableError")
	}

	if (&ActionableError{Operation: "x"}).Unwrap() != nil {
		t.Error("Unwrap() without cause should be nil")
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	inner := errors.New("exit status 1")
	err := &ActionableError{
		Operation:   "compile",
		Suggestions: []string{"Check the compiler log", "Run with --loglevel debug"},
		Cause:       errors.Join(inner),
	}

	short := err.Format(false)
	if !strings.Contains(short, "\n  • Check the compiler log") || !strings.Contains(short, "\n  • Run with --loglevel debug") {
		t.Errorf("suggestions missing:\n%s", short)
	}
	if strings.Contains(short, "Error chain") {
		t.Error("non-verbose output should not include the chain")
	}

	verbose := err.Format(true)
	if !strings.Contains(verbose, "Error chain:") || !strings.Contains(verbose, "1. exit status 1") {
		t.Errorf("verbose output missing chain:\n%s", verbose)
	}

	plain := (&ActionableError{Operation: "compile"}).Format(true)
	if plain != "failed to compile" {
		t.Errorf("Format() = %q", plain)
	}
}

func TestErrorContext(t *testing.T) {
	t.Parallel()

	if NewErrorContext().Build() != nil {
		t.Error("Build() without operation should be nil")
	}
	if err := NewErrorContext().BuildError(); err != nil {
		t.Errorf("BuildError() without operation = %v, want nil", err)
	}

	cause := errors.New("duplicate provide")
	ae := NewErrorContext().
		WithOperation("resolve dependencies").
		WithResource("lib/a.js").
		WithSuggestion("one").
		WithSuggestion("two").
		WithIssue(DuplicateProvideId).
		Wrap(cause).
		Build()

	if ae.Operation != "resolve dependencies" || ae.Resource != "lib/a.js" {
		t.Errorf("unexpected %+v", ae)
	}
	if len(ae.Suggestions) != 2 || ae.Issue != DuplicateProvideId || !errors.Is(ae, cause) {
		t.Errorf("unexpected %+v", ae)
	}
}

func TestWrapWithContext(t *testing.T) {
	t.Parallel()

	if WrapWithContext(nil, "x", "y") != nil {
		t.Error("nil error should stay nil")
	}
	ae := WrapWithContext(errors.New("boom"), "write output", "out.js")
	if ae.Error() != "failed to write output: out.js: boom" {
		t.Errorf("Error() = %q", ae.Error())
	}
}
