// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrAlreadyStarted is returned by Begin on a second call.
	ErrAlreadyStarted = errors.New("already started")
	// ErrClosedBeforeReady is returned by WaitReady when the component was
	// closed without ever becoming ready.
	ErrClosedBeforeReady = errors.New("closed before ready")
)

type (
	// Base holds the lifecycle state of one component instance. Components
	// embed it or keep it as a field. An instance is single-use.
	Base struct {
		state   atomic.Int32
		begun   atomic.Bool
		stateMu sync.Mutex
		lastErr error

		ctx    context.Context
		cancel context.CancelFunc
		wg     sync.WaitGroup

		readyCh   chan struct{}
		failedCh  chan struct{}
		closedCh  chan struct{}
		closeOnce sync.Once
		errCh     chan error
	}

	// Option configures a Base instance.
	Option func(*Base)
)

// WithErrorChannel sets the buffer size of the asynchronous error channel.
// Default buffer size is 1.
func WithErrorChannel(size int) Option {
	return func(b *Base) {
		b.errCh = make(chan error, size)
	}
}

// New creates a Base in StateInitializing.
func New(opts ...Option) *Base {
	b := &Base{
		readyCh:  make(chan struct{}),
		failedCh: make(chan struct{}),
		closedCh: make(chan struct{}),
		errCh:    make(chan error, 1),
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.state.Store(int32(StateInitializing))

	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state (atomic, lock-free read).
func (b *Base) State() State {
	return State(b.state.Load())
}

// IsReady reports whether the component is in StateReady.
func (b *Base) IsReady() bool {
	return b.State() == StateReady
}

// Err returns the channel of asynchronous errors.
func (b *Base) Err() <-chan error {
	return b.errCh
}

// LastError returns the error that caused StateFailed, or nil.
func (b *Base) LastError() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.lastErr
}

// Context is cancelled when the component fails or begins closing.
func (b *Base) Context() context.Context {
	return b.ctx
}

// Begin claims the single start of this instance. It fails if ctx is
// already cancelled, if Begin was called before, or if the component was
// closed before starting.
func (b *Base) Begin(ctx context.Context) error {
	select {
	case <-ctx.Done():
		err := fmt.Errorf("context cancelled before start: %w", ctx.Err())
		b.Fail(err)
		return err
	default:
	}

	if !b.begun.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if s := b.State(); s != StateInitializing {
		return fmt.Errorf("cannot start in state %s", s)
	}
	return nil
}

// MarkReady moves Initializing to Ready and releases WaitReady callers.
// It reports whether this call performed the transition.
func (b *Base) MarkReady() bool {
	if b.state.CompareAndSwap(int32(StateInitializing), int32(StateReady)) {
		close(b.readyCh)
		return true
	}
	return false
}

// Fail moves Initializing to Failed with err. It reports whether this call
// performed the transition; errors after startup are only delivered
// through SendError.
func (b *Base) Fail(err error) bool {
	if !b.state.CompareAndSwap(int32(StateInitializing), int32(StateFailed)) {
		return false
	}

	b.stateMu.Lock()
	b.lastErr = err
	b.stateMu.Unlock()

	b.cancel()
	close(b.failedCh)
	b.SendError(err)
	return true
}

// BeginClose moves any non-closing state to Closing and cancels Context.
// It returns false if the component is already closing or closed.
func (b *Base) BeginClose() bool {
	for {
		current := b.State()
		switch current {
		case StateClosing, StateClosed:
			return false
		case StateInitializing, StateReady, StateFailed:
			if !b.state.CompareAndSwap(int32(current), int32(StateClosing)) {
				continue
			}
			b.cancel()
			return true
		default:
			return false
		}
	}
}

// MarkClosed records that every resource is released.
func (b *Base) MarkClosed() {
	b.state.Store(int32(StateClosed))
	b.closeOnce.Do(func() { close(b.closedCh) })
}

// Closed returns a channel closed once MarkClosed has been called.
func (b *Base) Closed() <-chan struct{} {
	return b.closedCh
}

// WaitReady blocks until the component is ready, fails, is closed, or ctx
// is cancelled.
func (b *Base) WaitReady(ctx context.Context) error {
	// A settled outcome takes priority over a later close.
	select {
	case <-b.readyCh:
		return nil
	case <-b.failedCh:
		return b.LastError()
	default:
	}

	select {
	case <-b.readyCh:
		return nil
	case <-b.failedCh:
		return b.LastError()
	case <-b.closedCh:
		return ErrClosedBeforeReady
	case <-ctx.Done():
		return fmt.Errorf("waiting for ready: %w", ctx.Err())
	}
}

// Go runs fn in a goroutine tracked by Wait. fn receives Context.
func (b *Base) Go(fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(b.ctx)
	}()
}

// Wait blocks until every goroutine started with Go has returned.
func (b *Base) Wait() {
	b.wg.Wait()
}

// SendError delivers err without blocking. It is dropped if the channel is full.
func (b *Base) SendError(err error) {
	select {
	case b.errCh <- err:
	default:
	}
}
