package dbus

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// MethodCall addresses one method on one object.
type MethodCall struct {
	Destination string
	Path        dbus.ObjectPath
	Interface   string
	Method      string
	Args        []any
}

// Member returns the fully qualified method name.
func (c MethodCall) Member() string {
	return c.Interface + "." + c.Method
}

func (c MethodCall) String() string {
	return fmt.Sprintf("%s %s %s", c.Destination, c.Path, c.Member())
}

// Transport delivers method calls to the bus.
//
// Call blocks until the reply arrives or ctx is done. Go returns
// immediately and invokes done exactly once with the reply body or an
// error; done may run on any goroutine. Neither retries.
type Transport interface {
	Call(ctx context.Context, call MethodCall) ([]any, error)
	Go(ctx context.Context, call MethodCall, done func(body []any, err error))
}

// BusTransport is a Transport over a godbus connection.
type BusTransport struct {
	conn *dbus.Conn
}

// NewBusTransport wraps an existing connection. The connection stays
// owned by the caller.
func NewBusTransport(conn *dbus.Conn) *BusTransport {
	return &BusTransport{conn: conn}
}

// SessionTransport connects to the shared session bus.
func SessionTransport() (*BusTransport, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return NewBusTransport(conn), nil
}

// Conn returns the underlying connection.
func (t *BusTransport) Conn() *dbus.Conn {
	return t.conn
}

// UniqueName returns the unique name the bus assigned to this connection.
func (t *BusTransport) UniqueName() string {
	names := t.conn.Names()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// Call implements Transport.
func (t *BusTransport) Call(ctx context.Context, call MethodCall) ([]any, error) {
	obj := t.conn.Object(call.Destination, call.Path)
	c := obj.CallWithContext(ctx, call.Member(), 0, call.Args...)
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Body, nil
}

// Go implements Transport.
func (t *BusTransport) Go(ctx context.Context, call MethodCall, done func(body []any, err error)) {
	ch := make(chan *dbus.Call, 1)
	obj := t.conn.Object(call.Destination, call.Path)
	c := obj.GoWithContext(ctx, call.Member(), 0, ch, call.Args...)

	// A call that fails before being sent is reported on c but may never
	// reach ch.
	if c.Err != nil {
		go done(nil, c.Err)
		return
	}

	go func() {
		select {
		case reply := <-ch:
			done(reply.Body, reply.Err)
		case <-ctx.Done():
			done(nil, ctx.Err())
		}
	}()
}
