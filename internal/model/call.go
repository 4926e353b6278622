// Package model defines the records busdemo keeps about its D-Bus calls.
package model

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
)

// CallKind identifies which demo operation a call belongs to.
type CallKind string

const (
	KindNotify       CallKind = "notify"
	KindIntrospect   CallKind = "introspect"
	KindClose        CallKind = "close"
	KindCapabilities CallKind = "capabilities"
	KindServerInfo   CallKind = "server-info"
)

// Mode is how a call was issued.
type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

// CallRecord describes one outbound method call and how it ended.
type CallRecord struct {
	ID          string   `json:"id" yaml:"id"`
	Kind        CallKind `json:"kind" yaml:"kind"`
	Mode        Mode     `json:"mode" yaml:"mode"`
	State       string   `json:"state" yaml:"state"`
	Destination string   `json:"destination" yaml:"destination"`
	Path        string   `json:"path" yaml:"path"`
	Member      string   `json:"member" yaml:"member"`

	NotificationID uint32 `json:"notification_id,omitempty" yaml:"notification_id,omitempty"`
	Summary        string `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error          string `json:"error,omitempty" yaml:"error,omitempty"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
}

// Validation errors.
var (
	ErrEmptyID     = errors.New("id cannot be empty")
	ErrEmptyKind   = errors.New("kind cannot be empty")
	ErrEmptyMember = errors.New("member cannot be empty")
	ErrNoStartTime = errors.New("started_at must be set")
)

// NewCallRecord creates a record with a fresh ULID, stamped now.
func NewCallRecord(kind CallKind, mode Mode) (*CallRecord, error) {
	now := time.Now()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ULID: %w", err)
	}
	return &CallRecord{
		ID:        id.String(),
		Kind:      kind,
		Mode:      mode,
		State:     "idle",
		StartedAt: now,
	}, nil
}

// Validate checks that the record has all required fields.
func (r *CallRecord) Validate() error {
	if r.ID == "" {
		return ErrEmptyID
	}
	if r.Kind == "" {
		return ErrEmptyKind
	}
	if r.Member == "" {
		return ErrEmptyMember
	}
	if r.StartedAt.IsZero() {
		return ErrNoStartTime
	}
	return nil
}

// Finished reports whether the call reached a terminal state.
func (r *CallRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Failed reports whether the call ended with an error.
func (r *CallRecord) Failed() bool {
	return r.Error != ""
}

// Finish stamps the record with its terminal state.
func (r *CallRecord) Finish(state string, err error) {
	r.State = state
	r.FinishedAt = time.Now()
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns how long the call took, or how long it has been
// pending so far.
func (r *CallRecord) Duration() time.Duration {
	if r.Finished() {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// RelativeTime returns a human-readable start time, e.g. "3 minutes ago".
func (r *CallRecord) RelativeTime() string {
	return humanize.Time(r.StartedAt)
}

// Line renders a one-line summary for logs and status views.
func (r *CallRecord) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s %s", r.Mode, r.Kind, r.Member, r.State)
	if r.NotificationID != 0 {
		fmt.Fprintf(&b, " id=%d", r.NotificationID)
	}
	if r.Finished() {
		fmt.Fprintf(&b, " (%s)", r.Duration().Round(time.Millisecond))
	}
	if r.Error != "" {
		fmt.Fprintf(&b, ": %s", r.Error)
	}
	return b.String()
}

// Clone returns a copy of the record.
func (r *CallRecord) Clone() *CallRecord {
	clone := *r
	return &clone
}
