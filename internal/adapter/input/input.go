// Package input provides sources of notification requests for batch sends.
package input

import (
	"context"
	"os/exec"

	"github.com/jmylchreest/busdemo/internal/dbus"
)

// Source yields notification requests to send.
type Source interface {
	// Name returns the source identifier (e.g., "dunst", "stdin").
	Name() string

	// Requests reads the requests from the source, in send order.
	Requests(ctx context.Context) ([]dbus.NotificationRequest, error)
}

// DetectDaemon returns the name of the first daemon whose history can be
// replayed. Returns empty string if none found.
func DetectDaemon() string {
	// Check for dunst
	if _, err := exec.LookPath("dunstctl"); err == nil {
		return "dunst"
	}
	return ""
}

// NewSource creates a Source by name. "stdin" (or "-") reads standard
// input, "dunst" replays dunstctl history, anything else is a file path.
func NewSource(name string) (Source, error) {
	switch name {
	case "":
		return nil, &AdapterError{Source: name, Message: "no source given"}
	case "stdin", "-":
		return NewStdinSource(), nil
	case "dunst":
		if DetectDaemon() != "dunst" {
			return nil, &AdapterError{Source: name, Message: "dunstctl not found"}
		}
		return NewDunstSource(), nil
	default:
		return NewFileSource(name), nil
	}
}

// AdapterError represents a source-related error.
type AdapterError struct {
	Source  string
	Message string
	Err     error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}
