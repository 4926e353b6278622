package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/jmylchreest/busdemo/internal/dbus"
	"github.com/jmylchreest/busdemo/internal/model"
)

// PlainFormatter formats results as human-readable text.
type PlainFormatter struct {
	opts FormatterOptions
}

// NewPlainFormatter creates a new plain text formatter.
func NewPlainFormatter(opts FormatterOptions) *PlainFormatter {
	return &PlainFormatter{opts: opts}
}

// Calls writes one line per record, followed by its destination.
func (f *PlainFormatter) Calls(w io.Writer, records []model.CallRecord) error {
	for i := range records {
		if err := f.formatCall(w, i+1, &records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *PlainFormatter) formatCall(w io.Writer, index int, r *model.CallRecord) error {
	var sb strings.Builder

	if f.opts.ShowIndex {
		fmt.Fprintf(&sb, "[%d] ", index)
	}
	sb.WriteString(r.Line())
	if f.opts.ShowTime {
		fmt.Fprintf(&sb, " (%s)", r.RelativeTime())
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "    %s %s\n", r.Destination, r.Path)

	_, err := io.WriteString(w, sb.String())
	return err
}

// Introspection writes the object's interfaces and their members.
func (f *PlainFormatter) Introspection(w io.Writer, in *dbus.Introspection) error {
	view := newIntrospectionView(in, f.opts.ShowXML)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", view.Destination, view.Path)
	for _, iface := range view.Interfaces {
		fmt.Fprintf(&sb, "  interface %s\n", iface.Name)
		for _, m := range iface.Methods {
			fmt.Fprintf(&sb, "    method   %s\n", m)
		}
		for _, s := range iface.Signals {
			fmt.Fprintf(&sb, "    signal   %s\n", s)
		}
		for _, p := range iface.Properties {
			fmt.Fprintf(&sb, "    property %s\n", p)
		}
	}
	for _, child := range view.Children {
		fmt.Fprintf(&sb, "  node %s\n", child)
	}
	if view.XML != "" {
		sb.WriteString(view.XML)
		if !strings.HasSuffix(view.XML, "\n") {
			sb.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// Value writes a single reply value.
func (f *PlainFormatter) Value(w io.Writer, v any) error {
	return writePlainValue(w, v)
}

func writePlainValue(w io.Writer, v any) error {
	var err error
	switch v := v.(type) {
	case dbus.Result:
		_, err = fmt.Fprintf(w, "%d\n", v.ID)
	case dbus.ServerInfo:
		_, err = fmt.Fprintf(w, "name:         %s\nvendor:       %s\nversion:      %s\nspec_version: %s\n",
			v.Name, v.Vendor, v.Version, v.SpecVersion)
	case []string:
		for _, s := range v {
			if _, err = fmt.Fprintln(w, s); err != nil {
				return err
			}
		}
	default:
		_, err = fmt.Fprintln(w, v)
	}
	return err
}
