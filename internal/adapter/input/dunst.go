package input

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jmylchreest/busdemo/internal/dbus"
)

// DunstSource replays dunstctl history as fresh notifications.
type DunstSource struct{}

// NewDunstSource creates a new DunstSource.
func NewDunstSource() *DunstSource {
	return &DunstSource{}
}

// Name returns the source identifier.
func (s *DunstSource) Name() string {
	return "dunst"
}

// Requests fetches dunstctl history, oldest first.
func (s *DunstSource) Requests(ctx context.Context) ([]dbus.NotificationRequest, error) {
	// Execute dunstctl history
	cmd := exec.CommandContext(ctx, "dunstctl", "history")
	output, err := cmd.Output()
	if err != nil {
		return nil, &AdapterError{
			Source:  "dunst",
			Message: "failed to execute dunstctl history",
			Err:     err,
		}
	}

	return ParseDunstHistory(output)
}

// dunstHistory represents the top-level dunstctl history JSON structure.
type dunstHistory struct {
	Type string         `json:"type"`
	Data [][]dunstEntry `json:"data"`
}

// dunstEntry represents a single notification in dunstctl history.
type dunstEntry struct {
	ID            dunstValue `json:"id"`
	AppName       dunstValue `json:"appname"`
	Summary       dunstValue `json:"summary"`
	Body          dunstValue `json:"body"`
	Timeout       dunstValue `json:"timeout"`
	Urgency       dunstValue `json:"urgency"`
	Category      dunstValue `json:"category"`
	IconPath      dunstValue `json:"icon_path"`
	DefaultAction dunstValue `json:"default_action_name"`
	Progress      dunstValue `json:"progress"`
	StackTag      dunstValue `json:"stack_tag"`
}

// dunstValue represents a typed value in dunst JSON.
// dunst uses {"type": "INT", "data": 123} format.
type dunstValue struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// String returns the value as a string.
func (v dunstValue) String() string {
	switch d := v.Data.(type) {
	case string:
		return d
	case float64:
		return strconv.FormatFloat(d, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", d)
	}
}

// Int returns the value as an int.
func (v dunstValue) Int() int {
	switch d := v.Data.(type) {
	case float64:
		return int(d)
	case string:
		i, _ := strconv.Atoi(d)
		return i
	default:
		return 0
	}
}

// ParseDunstHistory parses dunstctl history JSON output. dunst lists the
// newest entry first; the requests come back oldest first so a replay
// keeps the original order.
func ParseDunstHistory(data []byte) ([]dbus.NotificationRequest, error) {
	var history dunstHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, &AdapterError{
			Source:  "dunst",
			Message: "failed to parse dunstctl history JSON",
			Err:     err,
		}
	}

	var requests []dbus.NotificationRequest

	// dunst uses nested arrays: data is [[entry1, entry2, ...]]
	for _, group := range history.Data {
		for _, entry := range group {
			requests = append(requests, convertDunstEntry(entry))
		}
	}

	for i, j := 0, len(requests)-1; i < j; i, j = i+1, j-1 {
		requests[i], requests[j] = requests[j], requests[i]
	}
	return requests, nil
}

// convertDunstEntry converts a dunst entry to a request.
func convertDunstEntry(entry dunstEntry) dbus.NotificationRequest {
	appName := sanitizeString(entry.AppName.String())
	if appName == "" {
		appName = "dunst"
	}

	req := dbus.NewRequest(appName,
		sanitizeString(entry.Summary.String()),
		sanitizeString(entry.Body.String()))
	req.AppIcon = entry.IconPath.String()

	// dunst reports the timeout in microseconds; 0 means never
	timeout := entry.Timeout.Int() / 1000
	if timeout > 0 {
		req.ExpireTimeout = int32(timeout)
	}

	urgency := entry.Urgency.Int()
	if urgency < 0 || urgency > 2 {
		urgency = int(dbus.UrgencyNormal)
	}
	req.Hints = map[string]any{"urgency": byte(urgency)}

	if c := entry.Category.String(); c != "" {
		req.Hints["category"] = c
	}
	if tag := entry.StackTag.String(); tag != "" {
		req.Hints["x-dunst-stack-tag"] = tag
	}
	if p := entry.Progress.Int(); p > 0 {
		req.Hints["value"] = int32(min(p, 100))
	}
	if action := entry.DefaultAction.String(); action != "" {
		req.Actions = []dbus.Action{{Key: action, Label: action}}
	}

	return req
}

// sanitizeString removes control characters and normalizes whitespace.
// The payload builder rejects NUL, which dunst output can carry.
func sanitizeString(s string) string {
	// Replace control characters with spaces
	var result strings.Builder
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\t' {
			result.WriteRune(' ')
		} else {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
