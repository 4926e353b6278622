package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmylchreest/busdemo/internal/model"
)

// ErrAmbiguousID is returned when an id prefix matches more than one record.
var ErrAmbiguousID = errors.New("ambiguous id prefix")

// LookupByID finds a record by its ULID or a unique prefix of it
// (case-insensitive). Returns nil if nothing matches.
func LookupByID(records []model.CallRecord, id string) (*model.CallRecord, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return nil, nil
	}

	var match *model.CallRecord
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
		if strings.HasPrefix(records[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
			}
			match = &records[i]
		}
	}
	return match, nil
}

// LookupByIndex finds a record by its index (1-based for user-friendliness).
// Returns nil if index is out of bounds.
func LookupByIndex(records []model.CallRecord, index int) *model.CallRecord {
	// Convert to 0-based
	idx := index - 1
	if idx < 0 || idx >= len(records) {
		return nil
	}
	return &records[idx]
}

// Search finds records matching a term in the member, summary or error.
// Case-insensitive substring match.
func Search(records []model.CallRecord, term string) []model.CallRecord {
	if term == "" {
		return records
	}

	term = strings.ToLower(term)
	var result []model.CallRecord

	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Member), term) ||
			strings.Contains(strings.ToLower(r.Summary), term) ||
			strings.Contains(strings.ToLower(r.Error), term) {
			result = append(result, r)
		}
	}

	return result
}

// UniqueDestinations returns the sorted bus names that were called.
func UniqueDestinations(records []model.CallRecord) []string {
	seen := make(map[string]bool)
	var dests []string

	for _, r := range records {
		if r.Destination != "" && !seen[r.Destination] {
			seen[r.Destination] = true
			dests = append(dests, r.Destination)
		}
	}

	sort.Strings(dests)
	return dests
}
