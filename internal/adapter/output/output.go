// Package output provides output formatters for call records and
// introspection results.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/jmylchreest/busdemo/internal/dbus"
	"github.com/jmylchreest/busdemo/internal/model"
)

// Formatter writes command results.
type Formatter interface {
	// Calls writes call records.
	Calls(w io.Writer, records []model.CallRecord) error
	// Introspection writes a parsed introspection reply.
	Introspection(w io.Writer, in *dbus.Introspection) error
	// Value writes a single reply value: a notify result, server
	// information or a capability list.
	Value(w io.Writer, v any) error
}

// FormatType represents an output format type.
type FormatType string

const (
	FormatPlain FormatType = "plain"
	FormatDmenu FormatType = "dmenu"
	FormatIDs   FormatType = "ids"
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
)

// FormatTypes lists the accepted format names.
func FormatTypes() []FormatType {
	return []FormatType{FormatPlain, FormatDmenu, FormatIDs, FormatJSON, FormatYAML}
}

// ParseFormat validates a format name.
func ParseFormat(name string) (FormatType, error) {
	for _, f := range FormatTypes() {
		if strings.EqualFold(name, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q, must be one of %v", name, FormatTypes())
}

// NewFormatter creates a formatter for the specified format type.
func NewFormatter(format FormatType, opts FormatterOptions) Formatter {
	switch format {
	case FormatJSON:
		return NewJSONFormatter(opts)
	case FormatYAML:
		return NewYAMLFormatter(opts)
	case FormatDmenu:
		return NewDmenuFormatter(opts)
	case FormatIDs:
		return NewIDsFormatter()
	case FormatPlain:
		fallthrough
	default:
		return NewPlainFormatter(opts)
	}
}

// FormatterOptions configures formatter behavior.
type FormatterOptions struct {
	Template  string // Custom template for dmenu format
	ShowIndex bool   // Show 1-based index prefix
	ShowTime  bool   // Show relative time
	Separator string // Field separator for dmenu format
	ShowXML   bool   // Include raw introspection XML
}

// DefaultFormatterOptions returns sensible defaults.
func DefaultFormatterOptions() FormatterOptions {
	return FormatterOptions{
		ShowIndex: true,
		ShowTime:  true,
		Separator: " | ",
	}
}

// introspectionView is the structured form of an introspection reply.
type introspectionView struct {
	Destination string          `json:"destination" yaml:"destination"`
	Path        string          `json:"path" yaml:"path"`
	Interfaces  []interfaceView `json:"interfaces" yaml:"interfaces"`
	Children    []string        `json:"children,omitempty" yaml:"children,omitempty"`
	XML         string          `json:"xml,omitempty" yaml:"xml,omitempty"`
}

type interfaceView struct {
	Name       string   `json:"name" yaml:"name"`
	Methods    []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	Signals    []string `json:"signals,omitempty" yaml:"signals,omitempty"`
	Properties []string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

func newIntrospectionView(in *dbus.Introspection, withXML bool) introspectionView {
	view := introspectionView{
		Destination: in.Destination,
		Path:        string(in.Path),
		Interfaces:  make([]interfaceView, 0, len(in.Node.Interfaces)),
		Children:    in.ChildNames(),
	}
	if withXML {
		view.XML = in.XML
	}
	for _, iface := range in.Node.Interfaces {
		iv := interfaceView{Name: iface.Name}
		for _, m := range iface.Methods {
			var ins, outs []string
			for _, arg := range m.Args {
				if arg.Direction == "out" {
					outs = append(outs, arg.Type)
				} else {
					ins = append(ins, arg.Type)
				}
			}
			sig := fmt.Sprintf("%s(%s)", m.Name, strings.Join(ins, ""))
			if len(outs) > 0 {
				sig += " -> " + strings.Join(outs, "")
			}
			iv.Methods = append(iv.Methods, sig)
		}
		for _, s := range iface.Signals {
			var types []string
			for _, arg := range s.Args {
				types = append(types, arg.Type)
			}
			iv.Signals = append(iv.Signals, fmt.Sprintf("%s(%s)", s.Name, strings.Join(types, "")))
		}
		for _, p := range iface.Properties {
			iv.Properties = append(iv.Properties, fmt.Sprintf("%s %s %s", p.Name, p.Type, p.Access))
		}
		view.Interfaces = append(view.Interfaces, iv)
	}
	return view
}
