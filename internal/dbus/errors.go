package dbus

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Error kinds. Every error returned by this package wraps exactly one of
// them, so callers can branch with errors.Is.
var (
	// ErrInvalidRequest means the request was rejected before anything was sent.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTransport means the connection or the remote call failed.
	ErrTransport = errors.New("transport failure")
	// ErrProtocol means the reply did not match the expected signature.
	ErrProtocol = errors.New("protocol error")
	// ErrCancelled means the caller cancelled a pending call.
	ErrCancelled = errors.New("call cancelled")
)

// CallError carries the error kind, the operation that failed and the cause.
type CallError struct {
	Kind error
	Op   string
	Err  error
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *CallError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalidf(op, format string, args ...any) error {
	return &CallError{Kind: ErrInvalidRequest, Op: op, Err: fmt.Errorf(format, args...)}
}

func protocolf(op, format string, args ...any) error {
	return &CallError{Kind: ErrProtocol, Op: op, Err: fmt.Errorf(format, args...)}
}

func transportErr(op string, err error) error {
	return &CallError{Kind: ErrTransport, Op: op, Err: err}
}

func cancelledErr(op string, err error) error {
	return &CallError{Kind: ErrCancelled, Op: op, Err: err}
}

// RemoteErrorName returns the D-Bus error name (for example
// org.freedesktop.DBus.Error.ServiceUnknown) if err carries a remote error
// reply, or "" otherwise.
func RemoteErrorName(err error) string {
	var remote dbus.Error
	if errors.As(err, &remote) {
		return remote.Name
	}
	var remotePtr *dbus.Error
	if errors.As(err, &remotePtr) && remotePtr != nil {
		return remotePtr.Name
	}
	return ""
}
