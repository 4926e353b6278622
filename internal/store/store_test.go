package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/busdemo/internal/model"
)

func TestNewStore(t *testing.T) {
	s := NewStore(nil)
	assert.NotNil(t, s)
	assert.Equal(t, 0, s.Count())
}

func TestStore_RecordUpserts(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	rec := testRecord("call1", time.Now())
	require.NoError(t, s.Record(rec))
	assert.Equal(t, 1, s.Count())

	rec.Finish("completed", nil)
	rec.NotificationID = 42
	require.NoError(t, s.Record(rec))
	assert.Equal(t, 1, s.Count())

	got := s.GetByID("call1")
	require.NotNil(t, got)
	assert.Equal(t, "completed", got.State)
	assert.Equal(t, uint32(42), got.NotificationID)

	require.NoError(t, s.Record(testRecord("call2", time.Now())))
	assert.Equal(t, 2, s.Count())
}

func TestStore_RecordRejectsInvalid(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	rec := testRecord("", time.Now())
	err := s.Record(rec)
	assert.ErrorIs(t, err, model.ErrEmptyID)
	assert.Equal(t, 0, s.Count())
}

func TestStore_All(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	now := time.Now()
	require.NoError(t, s.Record(testRecord("old", now.Add(-time.Minute))))
	require.NoError(t, s.Record(testRecord("new", now)))

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[1].ID)
}

func TestStore_Filter(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	now := time.Now()
	sync := testRecord("sync", now.Add(-2*time.Hour))
	async := testRecord("async", now.Add(-time.Minute))
	async.Mode = model.ModeAsync
	failed := testRecord("failed", now)
	failed.Kind = model.KindIntrospect
	failed.Finish("failed", errors.New("no reply"))

	for _, r := range []model.CallRecord{sync, async, failed} {
		require.NoError(t, s.Record(r))
	}

	yes, no := true, false
	tests := []struct {
		name string
		opts FilterOptions
		want []string
	}{
		{"all", FilterOptions{}, []string{"failed", "async", "sync"}},
		{"since", FilterOptions{Since: time.Hour}, []string{"failed", "async"}},
		{"kind", FilterOptions{Kind: model.KindIntrospect}, []string{"failed"}},
		{"mode", FilterOptions{Mode: model.ModeAsync}, []string{"async"}},
		{"failed only", FilterOptions{Failed: &yes}, []string{"failed"}},
		{"succeeded only", FilterOptions{Failed: &no}, []string{"async", "sync"}},
		{"limit", FilterOptions{Limit: 1}, []string{"failed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []string
			for _, r := range s.Filter(tt.opts) {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_GetByIDReturnsCopy(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	require.NoError(t, s.Record(testRecord("call1", time.Now())))

	got := s.GetByID("call1")
	require.NotNil(t, got)
	got.State = "mutated"
	assert.Equal(t, "sent", s.GetByID("call1").State)

	assert.Nil(t, s.GetByID("missing"))
}

func TestStore_Prune(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	now := time.Now()
	require.NoError(t, s.Record(testRecord("ancient", now.Add(-72*time.Hour))))
	require.NoError(t, s.Record(testRecord("older", now.Add(-2*time.Minute))))
	require.NoError(t, s.Record(testRecord("old", now.Add(-time.Minute))))
	require.NoError(t, s.Record(testRecord("new", now)))

	removed, err := s.Prune(48*time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Nil(t, s.GetByID("ancient"))

	removed, err = s.Prune(0, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Nil(t, s.GetByID("older"))
	assert.NotNil(t, s.GetByID("old"))
	assert.NotNil(t, s.GetByID("new"))

	removed, err = s.Prune(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestStore_Subscribe(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	ch := s.Subscribe()

	rec := testRecord("call1", time.Now())
	require.NoError(t, s.Record(rec))
	rec.Finish("completed", nil)
	require.NoError(t, s.Record(rec))

	for _, want := range []ChangeType{ChangeTypeAdd, ChangeTypeUpdate} {
		select {
		case event := <-ch:
			assert.Equal(t, want, event.Type)
			assert.Equal(t, "call1", event.ID)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("expected change event")
		}
	}
}

func TestStore_Unsubscribe(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	ch := s.Subscribe()
	s.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestStore_Clear(t *testing.T) {
	s := NewStore(nil)
	defer s.Close()

	require.NoError(t, s.Record(testRecord("call1", time.Now())))
	require.NoError(t, s.Clear())
	assert.Equal(t, 0, s.Count())
	assert.Nil(t, s.GetByID("call1"))
}

func TestStore_Close(t *testing.T) {
	s := NewStore(nil)
	ch := s.Subscribe()

	require.NoError(t, s.Close())

	_, ok := <-ch
	assert.False(t, ok)

	err := s.Record(testRecord("call1", time.Now()))
	assert.ErrorIs(t, err, ErrStoreClosed)

	// Closing twice is fine.
	require.NoError(t, s.Close())
}

func testRecord(id string, started time.Time) model.CallRecord {
	return model.CallRecord{
		ID:          id,
		Kind:        model.KindNotify,
		Mode:        model.ModeSync,
		State:       "sent",
		Destination: "org.freedesktop.Notifications",
		Path:        "/org/freedesktop/Notifications",
		Member:      "org.freedesktop.Notifications.Notify",
		StartedAt:   started,
	}
}
