// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	t.Run("Initializing to Ready to Closed", func(t *testing.T) {
		t.Parallel()

		b := New()
		if b.State() != StateInitializing {
			t.Errorf("expected StateInitializing, got %s", b.State())
		}
		if err := b.Begin(context.Background()); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}
		if !b.MarkReady() {
			t.Error("MarkReady should report the transition")
		}
		if !b.IsReady() {
			t.Error("IsReady should return true")
		}
		if err := b.WaitReady(context.Background()); err != nil {
			t.Errorf("WaitReady = %v", err)
		}

		if !b.BeginClose() {
			t.Error("BeginClose should return true")
		}
		if b.State() != StateClosing {
			t.Errorf("expected StateClosing, got %s", b.State())
		}
		if b.Context().Err() == nil {
			t.Error("context should be cancelled on close")
		}
		b.MarkClosed()
		if b.State() != StateClosed {
			t.Errorf("expected StateClosed, got %s", b.State())
		}
		// Ready was settled before the close.
		if err := b.WaitReady(context.Background()); err != nil {
			t.Errorf("WaitReady after close = %v", err)
		}
	})

	t.Run("Initializing to Failed", func(t *testing.T) {
		t.Parallel()

		b := New()
		if err := b.Begin(context.Background()); err != nil {
			t.Fatalf("Begin failed: %v", err)
		}

		testErr := errors.New("cycle")
		if !b.Fail(testErr) {
			t.Fatal("Fail should report the transition")
		}
		if b.State() != StateFailed {
			t.Errorf("expected StateFailed, got %s", b.State())
		}
		if !errors.Is(b.LastError(), testErr) {
			t.Errorf("expected %v, got %v", testErr, b.LastError())
		}
		if err := b.WaitReady(context.Background()); !errors.Is(err, testErr) {
			t.Errorf("WaitReady = %v, want %v", err, testErr)
		}
		select {
		case err := <-b.Err():
			if !errors.Is(err, testErr) {
				t.Errorf("expected %v from error channel, got %v", testErr, err)
			}
		default:
			t.Error("expected error in channel")
		}

		// A failed instance never becomes ready.
		if b.MarkReady() {
			t.Error("MarkReady after Fail should be a no-op")
		}
	})

	t.Run("Fail after Ready is ignored", func(t *testing.T) {
		t.Parallel()

		b := New()
		b.MarkReady()
		if b.Fail(errors.New("late")) {
			t.Error("Fail should not transition a ready component")
		}
		if b.State() != StateReady {
			t.Errorf("expected StateReady, got %s", b.State())
		}
	})

	t.Run("Close before ready", func(t *testing.T) {
		t.Parallel()

		b := New()
		if !b.BeginClose() {
			t.Fatal("BeginClose should return true")
		}
		b.MarkClosed()
		if err := b.WaitReady(context.Background()); !errors.Is(err, ErrClosedBeforeReady) {
			t.Errorf("WaitReady = %v, want ErrClosedBeforeReady", err)
		}
		if err := b.Begin(context.Background()); err == nil {
			t.Error("Begin after close should fail")
		}
	})
}

func TestConcurrentClose(t *testing.T) {
	t.Parallel()

	b := New()
	b.MarkReady()

	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		reads sync.WaitGroup
	)
	for range 10 {
		reads.Go(func() {
			for range 100 {
				_ = b.State()
				_ = b.IsReady()
			}
		})
	}
	for range 10 {
		wg.Go(func() {
			if b.BeginClose() {
				wins.Add(1)
			}
		})
	}
	wg.Wait()
	reads.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one BeginClose winner, got %d", wins.Load())
	}
}

func TestBeginTwice(t *testing.T) {
	t.Parallel()

	b := New()
	if err := b.Begin(context.Background()); err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	if err := b.Begin(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Begin = %v, want ErrAlreadyStarted", err)
	}
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Begin(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Begin = %v, want context.Canceled", err)
	}
	if b.State() != StateFailed {
		t.Errorf("expected StateFailed, got %s", b.State())
	}
}

func TestWaitReadyTimeout(t *testing.T) {
	t.Parallel()

	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady = %v, want DeadlineExceeded", err)
	}
}

func TestGoroutineTracking(t *testing.T) {
	t.Parallel()

	b := New()
	stopped := make(chan struct{})
	b.Go(func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	})

	b.BeginClose()
	b.Wait()

	select {
	case <-stopped:
	default:
		t.Error("goroutine should have observed cancellation before Wait returned")
	}
}

func TestWithErrorChannel(t *testing.T) {
	t.Parallel()

	b := New(WithErrorChannel(3))
	for range 5 {
		b.SendError(errors.New("x"))
	}
	if got := len(b.Err()); got != 3 {
		t.Errorf("expected 3 buffered errors, got %d", got)
	}
}

func TestState_Validate(t *testing.T) {
	t.Parallel()

	for _, s := range []State{StateInitializing, StateReady, StateFailed, StateClosing, StateClosed} {
		if err := s.Validate(); err != nil {
			t.Errorf("%s.Validate() = %v", s, err)
		}
	}

	err := State(42).Validate()
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	var ise *InvalidStateError
	if !errors.As(err, &ise) || ise.Value != 42 {
		t.Errorf("expected InvalidStateError{42}, got %v", err)
	}
	if State(42).String() != "unknown" {
		t.Errorf("unexpected String() %q", State(42).String())
	}
}

func TestState_IsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  bool
	}{
		{StateInitializing, false},
		{StateReady, false},
		{StateFailed, true},
		{StateClosing, false},
		{StateClosed, true},
	}
	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
