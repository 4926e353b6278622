package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/jmylchreest/busdemo/internal/dbus"
	"github.com/jmylchreest/busdemo/internal/model"
)

// DmenuFormatter writes one line per item for dmenu/rofi/fuzzel.
type DmenuFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewDmenuFormatter creates a new dmenu formatter. An unparsable
// template falls back to the default line format.
func NewDmenuFormatter(opts FormatterOptions) *DmenuFormatter {
	f := &DmenuFormatter{opts: opts}

	if opts.Template != "" {
		tmpl, err := template.New("dmenu").Funcs(templateFuncs()).Parse(opts.Template)
		if err == nil {
			f.template = tmpl
		}
	}

	return f
}

// Calls writes one line per record.
func (f *DmenuFormatter) Calls(w io.Writer, records []model.CallRecord) error {
	for i := range records {
		line := f.formatLine(i+1, &records[i])
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func (f *DmenuFormatter) formatLine(index int, r *model.CallRecord) string {
	if f.template != nil {
		var buf strings.Builder
		data := templateData{
			Index:        index,
			Call:         r,
			RelativeTime: relativeTime(r.StartedAt),
		}
		if err := f.template.Execute(&buf, data); err == nil {
			return buf.String()
		}
	}

	// Default format: index | time | mode | member state: error
	var parts []string
	sep := f.opts.Separator
	if sep == "" {
		sep = " | "
	}

	if f.opts.ShowIndex {
		parts = append(parts, fmt.Sprintf("%d", index))
	}
	if f.opts.ShowTime {
		parts = append(parts, relativeTime(r.StartedAt))
	}
	parts = append(parts, string(r.Mode))

	content := r.Member + " " + r.State
	if r.NotificationID != 0 {
		content += fmt.Sprintf(" #%d", r.NotificationID)
	}
	if r.Error != "" {
		content += ": " + singleLine(r.Error)
	}
	parts = append(parts, content)

	return strings.Join(parts, sep)
}

// Introspection writes one fully qualified member per line.
func (f *DmenuFormatter) Introspection(w io.Writer, in *dbus.Introspection) error {
	for _, iface := range in.Node.Interfaces {
		for _, m := range iface.Methods {
			if _, err := fmt.Fprintf(w, "%s.%s\n", iface.Name, m.Name); err != nil {
				return err
			}
		}
		for _, s := range iface.Signals {
			if _, err := fmt.Fprintf(w, "%s.%s\n", iface.Name, s.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Value writes a single reply value.
func (f *DmenuFormatter) Value(w io.Writer, v any) error {
	return writePlainValue(w, v)
}

// templateData provides data for custom templates.
type templateData struct {
	Index        int
	Call         *model.CallRecord
	RelativeTime string
}

// templateFuncs returns template helper functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"truncate": func(s string, maxLen int) string {
			if maxLen <= 0 || len(s) <= maxLen {
				return s
			}
			if maxLen <= 3 {
				return s[:maxLen]
			}
			return s[:maxLen-3] + "..."
		},
		"reltime": relativeTime,
		"stateIcon": func(state string) string {
			switch state {
			case "completed":
				return "+"
			case "failed":
				return "!"
			default:
				return "~"
			}
		},
	}
}

// relativeTime returns a compact relative time, e.g. "5m".
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw", int(d.Hours()/24/7))
	}
}

func singleLine(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", " ")), " ")
}
