package output

import (
	"encoding/json"
	"io"

	"github.com/jmylchreest/busdemo/internal/dbus"
	"github.com/jmylchreest/busdemo/internal/model"
)

// JSONFormatter formats results as JSON.
type JSONFormatter struct {
	opts FormatterOptions
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(opts FormatterOptions) *JSONFormatter {
	return &JSONFormatter{opts: opts}
}

// Calls writes records as a JSON array.
func (f *JSONFormatter) Calls(w io.Writer, records []model.CallRecord) error {
	if records == nil {
		records = []model.CallRecord{}
	}
	return f.encode(w, records)
}

// Introspection writes the interfaces and children of an object.
func (f *JSONFormatter) Introspection(w io.Writer, in *dbus.Introspection) error {
	return f.encode(w, newIntrospectionView(in, f.opts.ShowXML))
}

// Value writes v as JSON.
func (f *JSONFormatter) Value(w io.Writer, v any) error {
	return f.encode(w, v)
}

func (f *JSONFormatter) encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
