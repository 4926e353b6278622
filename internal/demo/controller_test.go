package demo

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/busdemo/internal/dbus"
)

const demoXML = `<node name="/org/gtk/example">
  <interface name="org.freedesktop.DBus.Introspectable"/>
  <interface name="org.gtk.example.Demo"/>
  <node name="child"/>
</node>`

type fakeView struct {
	mu     sync.Mutex
	lines  []string
	status string
	isErr  bool
}

func (v *fakeView) AppendLog(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lines = append(v.lines, line)
}

func (v *fakeView) SetStatus(text string, isErr bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.status, v.isErr = text, isErr
}

func (v *fakeView) Lines() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.lines...)
}

func (v *fakeView) Status() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status, v.isErr
}

// fakeBus answers Introspect, Notify and CloseNotification.
type fakeBus struct {
	mu      sync.Mutex
	methods []string
	err     error
	block   chan struct{}
}

func (f *fakeBus) reply(call dbus.MethodCall) ([]any, error) {
	f.mu.Lock()
	f.methods = append(f.methods, call.Method)
	err := f.err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	switch call.Method {
	case "Introspect":
		return []any{demoXML}, nil
	case "Notify":
		return []any{uint32(7)}, nil
	default:
		return nil, nil
	}
}

func (f *fakeBus) Call(_ context.Context, call dbus.MethodCall) ([]any, error) {
	return f.reply(call)
}

func (f *fakeBus) Go(ctx context.Context, call dbus.MethodCall, done func([]any, error)) {
	go func() {
		if f.block != nil {
			select {
			case <-f.block:
			case <-ctx.Done():
				done(nil, ctx.Err())
				return
			}
		}
		done(f.reply(call))
	}()
}

// mainLoop stands in for the GTK main loop: completions queue up until
// the test runs them.
type mainLoop chan func()

func (q mainLoop) dispatch(fn func()) { q <- fn }

func (q mainLoop) next(t *testing.T) {
	t.Helper()
	select {
	case fn := <-q:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("no completion dispatched")
	}
}

var target = Target{Destination: ":1.42", Path: godbus.ObjectPath("/org/gtk/example")}

func newController(bus *fakeBus, loop mainLoop) (*Controller, *fakeView) {
	view := &fakeView{}
	client := dbus.NewClient(bus, dbus.WithDispatcher(loop.dispatch))
	req := dbus.NewRequest("app_name", "D-Bus Notification", "Hello World Message")
	return NewController(client, target, req, view, nil), view
}

func TestController_IntrospectSync(t *testing.T) {
	c, view := newController(&fakeBus{}, make(mainLoop, 1))

	c.IntrospectSync(context.Background())

	assert.Equal(t, []string{
		"Synchronous D-Bus connection",
		"dbus_name = :1.42",
		"sync introspection: :1.42 /org/gtk/example: 2 interfaces, 1 children",
		"  interfaces: org.freedesktop.DBus.Introspectable, org.gtk.example.Demo",
		"  children: child",
	}, view.Lines())
	status, isErr := view.Status()
	assert.Equal(t, "Introspection complete", status)
	assert.False(t, isErr)
}

func TestController_IntrospectAsync(t *testing.T) {
	loop := make(mainLoop, 1)
	c, view := newController(&fakeBus{}, loop)

	c.IntrospectAsync(context.Background())

	// Nothing but the request lines until the loop runs the completion.
	assert.Len(t, view.Lines(), 2)
	status, _ := view.Status()
	assert.Equal(t, "Introspection sent", status)

	loop.next(t)
	assert.Contains(t, view.Lines(), "async introspection: :1.42 /org/gtk/example: 2 interfaces, 1 children")
	assert.Equal(t, 0, c.Pending())
}

func TestController_Notify(t *testing.T) {
	loop := make(mainLoop, 1)
	c, view := newController(&fakeBus{}, loop)

	c.Notify(context.Background())
	loop.next(t)

	assert.Equal(t, []string{"Notify", "notification id = 7"}, view.Lines())
	assert.Equal(t, uint32(7), c.LastNotificationID())
	assert.Equal(t, 0, c.Pending())

	c.CloseLast(context.Background())
	assert.Equal(t, uint32(0), c.LastNotificationID())
	status, isErr := view.Status()
	assert.Equal(t, "Closed notification 7", status)
	assert.False(t, isErr)
}

func TestController_NotifyInvalidRequest(t *testing.T) {
	bus := &fakeBus{}
	c, view := newController(bus, make(mainLoop, 1))
	c.SetRequest(dbus.NewRequest("", "summary", "body"))

	c.Notify(context.Background())

	status, isErr := view.Status()
	assert.Equal(t, "Notification failed", status)
	assert.True(t, isErr)
	assert.Empty(t, bus.methods)
	assert.Equal(t, 0, c.Pending())
}

func TestController_NotifyTransportFailure(t *testing.T) {
	loop := make(mainLoop, 1)
	remote := godbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown", Body: []any{"no daemon"}}
	c, view := newController(&fakeBus{err: remote}, loop)

	c.Notify(context.Background())
	loop.next(t)

	lines := view.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "org.freedesktop.DBus.Error.ServiceUnknown")
	_, isErr := view.Status()
	assert.True(t, isErr)
}

func TestController_CloseWithoutNotification(t *testing.T) {
	bus := &fakeBus{}
	c, view := newController(bus, make(mainLoop, 1))

	c.CloseLast(context.Background())

	_, isErr := view.Status()
	assert.True(t, isErr)
	assert.Empty(t, bus.methods)
}

func TestController_CancelPending(t *testing.T) {
	loop := make(mainLoop, 2)
	bus := &fakeBus{block: make(chan struct{})}
	defer close(bus.block)
	c, view := newController(bus, loop)

	c.Notify(context.Background())
	c.IntrospectAsync(context.Background())
	assert.Equal(t, 2, c.Pending())

	assert.Equal(t, 2, c.CancelPending())
	loop.next(t)
	loop.next(t)

	assert.Equal(t, 0, c.Pending())
	failures := 0
	for _, line := range view.Lines() {
		if strings.Contains(line, "call cancelled") {
			failures++
		}
	}
	assert.Equal(t, 2, failures)
}
