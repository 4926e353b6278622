// Package core provides filtering, sorting, and lookup logic for the call log.
package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/busdemo/internal/model"
)

// FilterOp represents a comparison operator.
type FilterOp string

const (
	FilterOpEqual     FilterOp = "="  // Exact match
	FilterOpNotEqual  FilterOp = "!=" // Not equal
	FilterOpContains  FilterOp = "~"  // Contains substring
	FilterOpRegex     FilterOp = "~=" // Regex match
	FilterOpGreater   FilterOp = ">"  // Greater than
	FilterOpLess      FilterOp = "<"  // Less than
	FilterOpGreaterEq FilterOp = ">=" // Greater than or equal
	FilterOpLessEq    FilterOp = "<=" // Less than or equal
)

// FilterCondition represents a single filter condition.
type FilterCondition struct {
	Field    string   // Field name: kind, mode, state, member, dest, path, summary, error, id, failed, started, duration
	Operator FilterOp // Comparison operator
	Value    string   // Value to compare against

	// Cached parsed values for efficiency
	regex       *regexp.Regexp // Compiled regex for ~= operator
	intVal      int64          // Parsed notification id or duration in ms
	timestampOp time.Time      // Parsed timestamp for comparison
	boolVal     bool           // Parsed bool value
}

// FilterExpr represents a compound filter expression.
// Multiple conditions are ANDed together.
type FilterExpr struct {
	Conditions []FilterCondition
}

// ParseDuration parses a duration string with extended formats.
// Supports: 48h, 7d, 1w, 0 (all time)
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	// Special case: 0 means no filter (all time)
	if s == "0" || s == "" {
		return 0, nil
	}

	// Handle day suffix (7d -> 168h)
	if daysStr, found := strings.CutSuffix(s, "d"); found {
		days, err := strconv.Atoi(daysStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	// Handle week suffix (1w -> 168h)
	if weeksStr, found := strings.CutSuffix(s, "w"); found {
		weeks, err := strconv.Atoi(weeksStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}

	// Standard Go duration parsing
	return time.ParseDuration(s)
}

// ParseKind parses a call kind name.
// Accepts: notify, introspect, close, capabilities (caps), server-info (info)
func ParseKind(s string) (model.CallKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "notify", "notification":
		return model.KindNotify, nil
	case "introspect", "introspection":
		return model.KindIntrospect, nil
	case "close":
		return model.KindClose, nil
	case "capabilities", "caps":
		return model.KindCapabilities, nil
	case "server-info", "info":
		return model.KindServerInfo, nil
	default:
		return "", fmt.Errorf("invalid kind: %s (use notify, introspect, close, caps or info)", s)
	}
}

// ParseMode parses a call mode name.
func ParseMode(s string) (model.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sync", "blocking":
		return model.ModeSync, nil
	case "async":
		return model.ModeAsync, nil
	default:
		return "", fmt.Errorf("invalid mode: %s (use sync or async)", s)
	}
}

// ParseFilter parses a filter expression string into a FilterExpr.
// Format: "field=value,field2~value2,field3>value3"
// Multiple conditions are comma-separated and ANDed together.
//
// Supported fields: kind, mode, state, member, dest, path, summary, error,
// id, failed, started, duration
// Supported operators: = (equal), != (not equal), ~ (contains), ~= (regex), >, <, >=, <=
//
// Examples:
//   - "kind=notify" - notification calls only
//   - "mode=async,failed=true" - async calls that failed
//   - "error~ServiceUnknown" - error text contains "ServiceUnknown"
//   - "started>1h" - calls from the last hour
//   - "duration>=500" - calls that took half a second or more
func ParseFilter(expr string) (*FilterExpr, error) {
	if expr == "" {
		return &FilterExpr{}, nil
	}

	filter := &FilterExpr{
		Conditions: make([]FilterCondition, 0),
	}

	// Split by comma
	for part := range strings.SplitSeq(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		cond, err := parseCondition(part)
		if err != nil {
			return nil, err
		}
		filter.Conditions = append(filter.Conditions, cond)
	}

	return filter, nil
}

// parseCondition parses a single condition like "kind=notify" or "error~timeout"
func parseCondition(s string) (FilterCondition, error) {
	// Try operators in order of specificity (longest first)
	operators := []FilterOp{
		FilterOpNotEqual,  // != (must be before =)
		FilterOpGreaterEq, // >= (must be before >)
		FilterOpLessEq,    // <= (must be before <)
		FilterOpRegex,     // ~= (must be before ~)
		FilterOpEqual,
		FilterOpContains,
		FilterOpGreater,
		FilterOpLess,
	}

	for _, op := range operators {
		idx := strings.Index(s, string(op))
		if idx > 0 {
			field := strings.TrimSpace(s[:idx])
			value := strings.TrimSpace(s[idx+len(op):])

			cond := FilterCondition{
				Field:    strings.ToLower(field),
				Operator: op,
				Value:    value,
			}

			// Pre-parse and validate based on field type
			if err := cond.init(); err != nil {
				return FilterCondition{}, err
			}

			return cond, nil
		}
	}

	return FilterCondition{}, fmt.Errorf("invalid filter condition: %s (missing operator)", s)
}

// init pre-parses and validates the condition value.
func (c *FilterCondition) init() error {
	switch c.Field {
	case "kind", "type":
		c.Field = "kind"
		k, err := ParseKind(c.Value)
		if err != nil {
			return err
		}
		c.Value = string(k)
	case "mode":
		m, err := ParseMode(c.Value)
		if err != nil {
			return err
		}
		c.Value = string(m)
	case "state", "status":
		c.Field = "state"
	case "member", "method":
		c.Field = "member"
	case "dest", "destination":
		c.Field = "dest"
	case "path":
	case "summary", "title":
		c.Field = "summary"
	case "error", "err":
		c.Field = "error"
	case "id", "notification_id":
		c.Field = "id"
		v, err := strconv.ParseUint(c.Value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid notification id: %s", c.Value)
		}
		c.intVal = int64(v)
	case "duration", "took":
		c.Field = "duration"
		v, err := parseMillis(c.Value)
		if err != nil {
			return err
		}
		c.intVal = v
	case "failed":
		c.boolVal = parseBool(c.Value)
	case "started", "timestamp", "time", "ts":
		c.Field = "started"
		// Parse duration for relative time comparisons
		dur, err := ParseDuration(c.Value)
		if err != nil {
			return fmt.Errorf("invalid timestamp value: %w", err)
		}
		c.timestampOp = time.Now().Add(-dur)
	default:
		return fmt.Errorf("unknown filter field: %s", c.Field)
	}

	// Compile regex if needed
	if c.Operator == FilterOpRegex {
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return fmt.Errorf("invalid regex: %w", err)
		}
		c.regex = re
	}

	return nil
}

// parseMillis accepts a bare millisecond count or a Go duration.
func parseMillis(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", s)
	}
	return d.Milliseconds(), nil
}

// parseBool parses various boolean representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "true", "yes", "1", "y", "t":
		return true
	default:
		return false
	}
}

// Match tests if a record matches the filter expression.
// All conditions must match (AND logic).
func (f *FilterExpr) Match(r model.CallRecord) bool {
	for _, cond := range f.Conditions {
		if !cond.Match(r) {
			return false
		}
	}
	return true
}

// Match tests if a record matches this single condition.
func (c *FilterCondition) Match(r model.CallRecord) bool {
	switch c.Field {
	case "kind":
		return c.matchString(string(r.Kind))
	case "mode":
		return c.matchString(string(r.Mode))
	case "state":
		return c.matchString(r.State)
	case "member":
		return c.matchString(r.Member)
	case "dest":
		return c.matchString(r.Destination)
	case "path":
		return c.matchString(r.Path)
	case "summary":
		return c.matchString(r.Summary)
	case "error":
		return c.matchString(r.Error)
	case "id":
		return c.matchInt(int64(r.NotificationID))
	case "duration":
		if !r.Finished() {
			return false
		}
		return c.matchInt(r.Duration().Milliseconds())
	case "failed":
		return c.matchBool(r.Failed())
	case "started":
		return c.matchTimestamp(r.StartedAt)
	default:
		return false
	}
}

// matchString matches a string field.
func (c *FilterCondition) matchString(fieldValue string) bool {
	switch c.Operator {
	case FilterOpEqual:
		return fieldValue == c.Value
	case FilterOpNotEqual:
		return fieldValue != c.Value
	case FilterOpContains:
		return strings.Contains(strings.ToLower(fieldValue), strings.ToLower(c.Value))
	case FilterOpRegex:
		return c.regex != nil && c.regex.MatchString(fieldValue)
	default:
		return false
	}
}

// matchInt matches an integer field with numeric comparison.
func (c *FilterCondition) matchInt(fieldValue int64) bool {
	switch c.Operator {
	case FilterOpEqual:
		return fieldValue == c.intVal
	case FilterOpNotEqual:
		return fieldValue != c.intVal
	case FilterOpGreater:
		return fieldValue > c.intVal
	case FilterOpLess:
		return fieldValue < c.intVal
	case FilterOpGreaterEq:
		return fieldValue >= c.intVal
	case FilterOpLessEq:
		return fieldValue <= c.intVal
	default:
		return false
	}
}

// matchBool matches a boolean field.
func (c *FilterCondition) matchBool(fieldValue bool) bool {
	switch c.Operator {
	case FilterOpEqual:
		return fieldValue == c.boolVal
	case FilterOpNotEqual:
		return fieldValue != c.boolVal
	default:
		return false
	}
}

// matchTimestamp matches a timestamp field.
func (c *FilterCondition) matchTimestamp(fieldValue time.Time) bool {
	switch c.Operator {
	case FilterOpGreater:
		return fieldValue.After(c.timestampOp)
	case FilterOpLess:
		return fieldValue.Before(c.timestampOp)
	case FilterOpGreaterEq:
		return fieldValue.After(c.timestampOp) || fieldValue.Equal(c.timestampOp)
	case FilterOpLessEq:
		return fieldValue.Before(c.timestampOp) || fieldValue.Equal(c.timestampOp)
	default:
		return false
	}
}

// FilterWithExpr filters records using a filter expression.
func FilterWithExpr(records []model.CallRecord, expr *FilterExpr) []model.CallRecord {
	if expr == nil || len(expr.Conditions) == 0 {
		return records
	}

	result := make([]model.CallRecord, 0, len(records))
	for _, r := range records {
		if expr.Match(r) {
			result = append(result, r)
		}
	}
	return result
}
