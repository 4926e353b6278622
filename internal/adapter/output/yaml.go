package output

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/busdemo/internal/dbus"
	"github.com/jmylchreest/busdemo/internal/model"
)

// YAMLFormatter formats results as YAML.
type YAMLFormatter struct {
	opts FormatterOptions
}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter(opts FormatterOptions) *YAMLFormatter {
	return &YAMLFormatter{opts: opts}
}

// Calls writes records as a YAML sequence.
func (f *YAMLFormatter) Calls(w io.Writer, records []model.CallRecord) error {
	if records == nil {
		records = []model.CallRecord{}
	}
	return f.encode(w, records)
}

// Introspection writes the interfaces and children of an object.
func (f *YAMLFormatter) Introspection(w io.Writer, in *dbus.Introspection) error {
	return f.encode(w, newIntrospectionView(in, f.opts.ShowXML))
}

// Value writes v as YAML.
func (f *YAMLFormatter) Value(w io.Writer, v any) error {
	return f.encode(w, v)
}

func (f *YAMLFormatter) encode(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}
