package dbus

import (
	"context"
	"sync"
)

// CallState is the lifecycle of a single call: Idle -> Sent -> Completed | Failed.
type CallState int

const (
	StateIdle CallState = iota
	StateSent
	StateCompleted
	StateFailed
)

// String returns the state name.
func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSent:
		return "sent"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s CallState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Dispatcher runs completion callbacks. The GTK window posts them to the
// main loop; the default runs them inline on the goroutine that resolved
// the call.
//
// Only a dispatcher that defers to a loop the caller is itself running on
// (glib.IdleAdd, a tea.Cmd, a drained queue) guarantees the callback runs
// after SendAsync returned. With the inline default the callback may run
// on another goroutine before the caller has seen the Pending handle.
type Dispatcher func(fn func())

func inlineDispatcher(fn func()) { fn() }

// Pending is the handle of an asynchronous call. It resolves exactly once.
type Pending[T any] struct {
	mu     sync.Mutex
	state  CallState
	value  T
	err    error
	done   chan struct{}
	cancel context.CancelFunc
	// cancelled is set by Cancel so the resolution reports ErrCancelled
	// even when the transport surfaces a plain context error.
	cancelled bool
}

func newPending[T any]() *Pending[T] {
	return &Pending[T]{
		state: StateIdle,
		done:  make(chan struct{}),
	}
}

// State returns the current call state.
func (p *Pending[T]) State() CallState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done is closed once the call has resolved.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Result returns the resolved value and error. It is only meaningful
// after Done is closed.
func (p *Pending[T]) Result() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// Wait blocks until the call resolves or ctx is done. Giving up on Wait
// does not cancel the call.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel abandons the call. If it has not resolved yet it resolves with
// ErrCancelled. Cancel after resolution is a no-op.
func (p *Pending[T]) Cancel() {
	p.mu.Lock()
	if p.state.Terminal() {
		p.mu.Unlock()
		return
	}
	p.cancelled = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (p *Pending[T]) markSent(cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateSent
	p.cancel = cancel
}

func (p *Pending[T]) wasCancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

// resolve records the outcome. It reports false if the call had already
// resolved.
func (p *Pending[T]) resolve(value T, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Terminal() {
		return false
	}
	p.value = value
	p.err = err
	if err != nil {
		p.state = StateFailed
	} else {
		p.state = StateCompleted
	}
	close(p.done)
	return true
}
