// Package store keeps the log of D-Bus calls the demo has made.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmylchreest/busdemo/internal/model"
)

// ChangeType indicates the type of store change.
type ChangeType int

const (
	// ChangeTypeAdd indicates a new call was recorded.
	ChangeTypeAdd ChangeType = iota
	// ChangeTypeUpdate indicates a known call changed state.
	ChangeTypeUpdate
	// ChangeTypeClear indicates the log was cleared.
	ChangeTypeClear
	// ChangeTypePrune indicates old calls were pruned.
	ChangeTypePrune
)

// ChangeEvent signals store content changes.
type ChangeEvent struct {
	Type  ChangeType
	Count int
	ID    string // set for add and update
}

// FilterOptions specifies criteria for filtering call records.
type FilterOptions struct {
	Since  time.Duration  // Records started within now-since (0=all)
	Kind   model.CallKind // Exact kind match ("" = any)
	Mode   model.Mode     // Exact mode match ("" = any)
	Failed *bool          // Only failed (true) or successful (false) calls
	Limit  int            // Maximum results (0=unlimited)
}

// Store is the call log. It satisfies the D-Bus client's Recorder, so a
// call's record is upserted when it is sent and again when it resolves.
type Store struct {
	mu      sync.RWMutex
	records []model.CallRecord
	index   map[string]int // record id -> slice index

	persistence Persistence

	subscribers []chan ChangeEvent
	closed      bool
}

// NewStore creates a new Store.
// If persistence is not nil, every change is written through to it.
func NewStore(persistence Persistence) *Store {
	return &Store{
		records:     make([]model.CallRecord, 0),
		index:       make(map[string]int),
		persistence: persistence,
		subscribers: make([]chan ChangeEvent, 0),
	}
}

// Record inserts rec, or replaces the record with the same id.
func (s *Store) Record(rec model.CallRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid call record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	changeType := ChangeTypeAdd
	if idx, exists := s.index[rec.ID]; exists {
		s.records[idx] = rec
		changeType = ChangeTypeUpdate
	} else {
		s.index[rec.ID] = len(s.records)
		s.records = append(s.records, rec)
	}

	// The log is append-only; Load keeps the last line per id.
	if s.persistence != nil {
		if err := s.persistence.Append(rec); err != nil {
			return err
		}
	}

	s.notifyChange(ChangeEvent{Type: changeType, Count: 1, ID: rec.ID})
	return nil
}

// All returns all records, newest first.
func (s *Store) All() []model.CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.CallRecord, len(s.records))
	copy(result, s.records)
	sortNewestFirst(result)
	return result
}

// Filter returns records matching the criteria, newest first.
func (s *Store) Filter(opts FilterOptions) []model.CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Time{}
	if opts.Since > 0 {
		cutoff = time.Now().Add(-opts.Since)
	}

	var result []model.CallRecord
	for _, r := range s.records {
		if !cutoff.IsZero() && r.StartedAt.Before(cutoff) {
			continue
		}
		if opts.Kind != "" && r.Kind != opts.Kind {
			continue
		}
		if opts.Mode != "" && r.Mode != opts.Mode {
			continue
		}
		if opts.Failed != nil && r.Failed() != *opts.Failed {
			continue
		}
		result = append(result, r)
	}

	sortNewestFirst(result)

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result
}

// GetByID returns a record by its ULID.
func (s *Store) GetByID(id string) *model.CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx, exists := s.index[id]; exists {
		return s.records[idx].Clone()
	}
	return nil
}

// Count returns the number of records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Prune removes records started before now-olderThan and then keeps at
// most keep of the newest (0 = no cap). It returns how many were removed.
func (s *Store) Prune(olderThan time.Duration, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	kept := make([]model.CallRecord, 0, len(s.records))
	cutoff := time.Now().Add(-olderThan)
	for _, r := range s.records {
		if olderThan > 0 && r.StartedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, r)
	}
	if keep > 0 && len(kept) > keep {
		sortNewestFirst(kept)
		kept = kept[:keep]
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].StartedAt.Before(kept[j].StartedAt)
		})
	}

	removed := len(s.records) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	s.records = kept
	s.rebuildIndex()

	if s.persistence != nil {
		if err := s.persistence.Rewrite(s.records); err != nil {
			return removed, err
		}
	}

	s.notifyChange(ChangeEvent{Type: ChangeTypePrune, Count: removed})
	return removed, nil
}

// Clear removes all records.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	count := len(s.records)
	s.records = make([]model.CallRecord, 0)
	s.index = make(map[string]int)

	if s.persistence != nil {
		if err := s.persistence.Clear(); err != nil {
			return err
		}
	}

	s.notifyChange(ChangeEvent{Type: ChangeTypeClear, Count: count})
	return nil
}

// Hydrate merges the persisted log into the store. Records already held
// are replaced by their persisted version.
func (s *Store) Hydrate() error {
	if s.persistence == nil {
		return nil
	}

	records, err := s.persistence.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed := 0
	for _, r := range records {
		if idx, exists := s.index[r.ID]; exists {
			if !sameOutcome(s.records[idx], r) {
				s.records[idx] = r
				changed++
			}
			continue
		}
		s.index[r.ID] = len(s.records)
		s.records = append(s.records, r)
		changed++
	}
	if changed > 0 {
		s.notifyChange(ChangeEvent{Type: ChangeTypeAdd, Count: changed})
	}
	s.mu.Unlock()

	return nil
}

// Subscribe returns a channel that receives change events.
func (s *Store) Subscribe() <-chan ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan ChangeEvent, 10)
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscription.
func (s *Store) Unsubscribe(ch <-chan ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close releases resources and closes all subscriber channels.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil

	if s.persistence != nil {
		return s.persistence.Close()
	}
	return nil
}

func (s *Store) rebuildIndex() {
	s.index = make(map[string]int, len(s.records))
	for i, r := range s.records {
		s.index[r.ID] = i
	}
}

// notifyChange sends a change event to all subscribers (non-blocking).
func (s *Store) notifyChange(event ChangeEvent) {
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
}

func sameOutcome(a, b model.CallRecord) bool {
	return a.State == b.State && a.Error == b.Error && a.FinishedAt.Equal(b.FinishedAt)
}

func sortNewestFirst(rs []model.CallRecord) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].StartedAt.Equal(rs[j].StartedAt) {
			// ULIDs sort by creation time.
			return rs[i].ID > rs[j].ID
		}
		return rs[i].StartedAt.After(rs[j].StartedAt)
	})
}

// Errors
var (
	ErrStoreClosed = storeError("store is closed")
)

type storeError string

func (e storeError) Error() string {
	return string(e)
}
