package dbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/busdemo/internal/model"
)

// stubTransport answers every call with a canned reply or error.
type stubTransport struct {
	mu    sync.Mutex
	calls []MethodCall

	reply []any
	err   error
	// block, if set, holds asynchronous replies until it is closed.
	block chan struct{}
	// handler, if set, overrides reply and err.
	handler func(MethodCall) ([]any, error)
}

func (s *stubTransport) respond(call MethodCall) ([]any, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		return handler(call)
	}
	return s.reply, s.err
}

func (s *stubTransport) Call(ctx context.Context, call MethodCall) ([]any, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.respond(call)
}

func (s *stubTransport) Go(ctx context.Context, call MethodCall, done func([]any, error)) {
	go func() {
		if s.block != nil {
			select {
			case <-s.block:
			case <-ctx.Done():
				done(nil, ctx.Err())
				return
			}
		}
		done(s.respond(call))
	}()
}

func (s *stubTransport) Calls() []MethodCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MethodCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// recorder keeps every record it is given.
type recorder struct {
	mu      sync.Mutex
	records []model.CallRecord
}

func (r *recorder) Record(rec model.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recorder) Records() []model.CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.CallRecord, len(r.records))
	copy(out, r.records)
	return out
}

// queue is a dispatcher standing in for a UI main loop: callbacks are
// only run when the test drains them.
type queue chan func()

func (q queue) dispatch(fn func()) { q <- fn }

func (q queue) next(t *testing.T) func() {
	t.Helper()
	select {
	case fn := <-q:
		return fn
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no callback dispatched")
		return nil
	}
}

func (q queue) empty(t *testing.T) {
	t.Helper()
	select {
	case <-q:
		require.FailNow(t, "unexpected extra callback")
	case <-time.After(50 * time.Millisecond):
	}
}

func demoRequest() NotificationRequest {
	return NotificationRequest{
		AppName:       "app_name",
		ReplacesID:    -1,
		AppIcon:       "",
		Summary:       "D-Bus Notification",
		Body:          "Hello World Message",
		Actions:       nil,
		Hints:         map[string]any{"urgency": 1},
		ExpireTimeout: -1,
	}
}
