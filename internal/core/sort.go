package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmylchreest/busdemo/internal/model"
)

// SortField represents a field to sort by.
type SortField string

const (
	SortByStarted  SortField = "started"
	SortByDuration SortField = "duration"
	SortByKind     SortField = "kind"
)

// SortOrder represents ascending or descending order.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortOptions specifies sorting criteria.
type SortOptions struct {
	Field SortField // Field to sort by
	Order SortOrder // Sort order (asc/desc)
}

// DefaultSortOptions returns default sort options (newest first).
func DefaultSortOptions() SortOptions {
	return SortOptions{
		Field: SortByStarted,
		Order: SortDesc,
	}
}

// Sort sorts records in place based on the provided options. Ties keep
// their existing order.
func Sort(records []model.CallRecord, opts SortOptions) {
	if len(records) == 0 {
		return
	}

	less := func(a, b *model.CallRecord) bool {
		switch opts.Field {
		case SortByDuration:
			return a.Duration() < b.Duration()
		case SortByKind:
			return strings.ToLower(string(a.Kind)) < strings.ToLower(string(b.Kind))
		default:
			return a.StartedAt.Before(b.StartedAt)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if opts.Order == SortDesc {
			return less(&records[j], &records[i])
		}
		return less(&records[i], &records[j])
	})
}

// ParseSortField parses a sort field string.
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "started", "time", "timestamp", "t":
		return SortByStarted, nil
	case "duration", "took", "d":
		return SortByDuration, nil
	case "kind", "k":
		return SortByKind, nil
	default:
		return "", fmt.Errorf("invalid sort field: %s (use started, duration or kind)", s)
	}
}

// ParseSortOrder parses a sort order string.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending", "a":
		return SortAsc, nil
	case "", "desc", "descending", "d":
		return SortDesc, nil
	default:
		return "", fmt.Errorf("invalid sort order: %s (use asc or desc)", s)
	}
}
