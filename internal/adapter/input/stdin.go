package input

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/busdemo/internal/dbus"
)

// ReaderSource reads requests from a stream. It accepts a JSON array, a
// single JSON object, JSON lines, or a YAML list.
type ReaderSource struct {
	name   string
	reader io.Reader
	yaml   bool
}

// NewStdinSource creates a ReaderSource reading from os.Stdin.
func NewStdinSource() *ReaderSource {
	return &ReaderSource{name: "stdin", reader: os.Stdin}
}

// NewReaderSource creates a ReaderSource with a custom reader.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{name: "stdin", reader: r}
}

// FileSource reads requests from a file; .yaml and .yml files are YAML.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name returns the source identifier.
func (s *FileSource) Name() string {
	return s.path
}

// Requests reads the file.
func (s *FileSource) Requests(ctx context.Context) ([]dbus.NotificationRequest, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, &AdapterError{Source: s.path, Message: "failed to open file", Err: err}
	}
	defer func() { _ = f.Close() }()

	ext := strings.ToLower(filepath.Ext(s.path))
	src := &ReaderSource{name: s.path, reader: f, yaml: ext == ".yaml" || ext == ".yml"}
	return src.Requests(ctx)
}

// Name returns the source identifier.
func (s *ReaderSource) Name() string {
	return s.name
}

// Requests reads the whole stream and decodes it.
func (s *ReaderSource) Requests(ctx context.Context) ([]dbus.NotificationRequest, error) {
	// Read all input
	scanner := bufio.NewScanner(s.reader)
	const maxSize = 10 * 1024 * 1024 // 10MB max
	scanner.Buffer(make([]byte, 64*1024), maxSize)

	var data []byte
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data = append(data, scanner.Bytes()...)
		data = append(data, '\n')
	}

	if err := scanner.Err(); err != nil {
		return nil, &AdapterError{
			Source:  s.name,
			Message: "failed to read input",
			Err:     err,
		}
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	entries, err := s.decode(data)
	if err != nil {
		return nil, err
	}

	requests := make([]dbus.NotificationRequest, 0, len(entries))
	for _, entry := range entries {
		requests = append(requests, entry.request())
	}
	return requests, nil
}

func (s *ReaderSource) decode(data []byte) ([]requestEntry, error) {
	var entries []requestEntry

	if s.yaml {
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, &AdapterError{Source: s.name, Message: "failed to parse YAML input", Err: err}
		}
		return entries, nil
	}

	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, &AdapterError{Source: s.name, Message: "failed to parse JSON input", Err: err}
		}
	case '{':
		// One object or JSON lines
		dec := json.NewDecoder(bytes.NewReader(data))
		for dec.More() {
			var entry requestEntry
			if err := dec.Decode(&entry); err != nil {
				return nil, &AdapterError{Source: s.name, Message: "failed to parse JSON input", Err: err}
			}
			entries = append(entries, entry)
		}
	default:
		// Not JSON; YAML is the only other format we take
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, &AdapterError{Source: s.name, Message: "input is neither JSON nor YAML", Err: err}
		}
	}
	return entries, nil
}

// requestEntry is a notification request in the simple input format.
type requestEntry struct {
	AppName       string        `json:"app_name" yaml:"app_name"`
	Icon          string        `json:"icon,omitempty" yaml:"icon,omitempty"`
	Summary       string        `json:"summary" yaml:"summary"`
	Body          string        `json:"body" yaml:"body"`
	Urgency       *int          `json:"urgency,omitempty" yaml:"urgency,omitempty"`
	Category      string        `json:"category,omitempty" yaml:"category,omitempty"`
	Transient     bool          `json:"transient,omitempty" yaml:"transient,omitempty"`
	Actions       []actionEntry `json:"actions,omitempty" yaml:"actions,omitempty"`
	ExpireTimeout *int32        `json:"expire_timeout,omitempty" yaml:"expire_timeout,omitempty"`
	ReplacesID    int64         `json:"replaces_id,omitempty" yaml:"replaces_id,omitempty"`
}

type actionEntry struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
}

// request converts the entry as written. Validation is left to the payload
// builder so a bad entry fails its own send instead of going out altered.
func (e requestEntry) request() dbus.NotificationRequest {
	req := dbus.NewRequest(e.AppName, e.Summary, e.Body)
	req.AppIcon = e.Icon
	req.ReplacesID = e.ReplacesID
	if e.ExpireTimeout != nil {
		req.ExpireTimeout = *e.ExpireTimeout
	}

	req.Hints = map[string]any{"urgency": dbus.UrgencyNormal}
	if e.Urgency != nil {
		req.Hints["urgency"] = *e.Urgency
	}
	if e.Category != "" {
		req.Hints["category"] = e.Category
	}
	if e.Transient {
		req.Hints["transient"] = true
	}

	for _, a := range e.Actions {
		req.Actions = append(req.Actions, dbus.Action{Key: a.Key, Label: a.Label})
	}
	return req
}
