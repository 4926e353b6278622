package output

import (
	"fmt"
	"io"

	"github.com/jmylchreest/busdemo/internal/dbus"
	"github.com/jmylchreest/busdemo/internal/model"
)

// IDsFormatter outputs bare identifiers, one per line, for piping.
type IDsFormatter struct{}

// NewIDsFormatter creates a new IDs formatter.
func NewIDsFormatter() *IDsFormatter {
	return &IDsFormatter{}
}

// Calls writes record ULIDs.
func (f *IDsFormatter) Calls(w io.Writer, records []model.CallRecord) error {
	for _, r := range records {
		if _, err := fmt.Fprintln(w, r.ID); err != nil {
			return err
		}
	}
	return nil
}

// Introspection writes interface names.
func (f *IDsFormatter) Introspection(w io.Writer, in *dbus.Introspection) error {
	return writePlainValue(w, in.InterfaceNames())
}

// Value writes a notify result as its id; anything else as plain text.
func (f *IDsFormatter) Value(w io.Writer, v any) error {
	return writePlainValue(w, v)
}
