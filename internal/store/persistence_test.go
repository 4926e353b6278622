package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLPersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calls.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, path, p.Path())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "busdemo_schema_version")
}

func TestNewJSONLPersistence_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "nested", "calls.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	_, err = os.Stat(filepath.Dir(path))
	require.NoError(t, err)
}

func TestJSONLPersistence_LastVersionWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)

	now := time.Now()
	first := testRecord("call1", now)
	second := testRecord("call2", now.Add(time.Second))

	require.NoError(t, p.Append(first))
	require.NoError(t, p.Append(second))
	first.Finish("completed", nil)
	require.NoError(t, p.Append(first))
	require.NoError(t, p.Close())

	p, err = NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	loaded, err := p.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "call1", loaded[0].ID)
	assert.Equal(t, "completed", loaded[0].State)
	assert.True(t, loaded[0].Finished())
	assert.Equal(t, "call2", loaded[1].ID)
	assert.Equal(t, "sent", loaded[1].State)
}

func TestJSONLPersistence_Rewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, p.Append(testRecord(id, now)))
	}

	require.NoError(t, p.Rewrite(nil))
	require.NoError(t, p.Append(testRecord("d", now)))

	loaded, err := p.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "d", loaded[0].ID)

	_, err = os.Stat(path + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestJSONLPersistence_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Append(testRecord("a", time.Now())))
	require.NoError(t, p.Clear())

	loaded, err := p.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(content), "\n"), "only the header remains")
}

func TestJSONLPersistence_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")

	content := `{"busdemo_schema_version":1,"created_at":0}
{"id":"good","kind":"notify","mode":"sync","state":"sent","member":"m","started_at":"2026-01-02T15:04:05Z"}
not json
{"kind":"notify"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	loaded, err := p.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "good", loaded[0].ID)
}

func TestJSONLPersistence_SchemaVersionCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"busdemo_schema_version":99,"created_at":0}`+"\n"), 0600))

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema version")
}

func TestJSONLPersistence_Closed(t *testing.T) {
	p, err := NewJSONLPersistence(filepath.Join(t.TempDir(), "calls.jsonl"))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Append(testRecord("a", time.Now())), ErrPersistenceClosed)
	_, err = p.Load()
	assert.ErrorIs(t, err, ErrPersistenceClosed)
}

func TestStoreWithPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	s := NewStore(p)

	rec := testRecord("call1", time.Now())
	require.NoError(t, s.Record(rec))
	rec.Finish("failed", os.ErrDeadlineExceeded)
	require.NoError(t, s.Record(rec))
	require.NoError(t, s.Record(testRecord("call2", time.Now())))
	require.NoError(t, s.Close())

	p2, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	s2 := NewStore(p2)
	defer s2.Close()

	require.NoError(t, s2.Hydrate())
	assert.Equal(t, 2, s2.Count())

	got := s2.GetByID("call1")
	require.NotNil(t, got)
	assert.Equal(t, "failed", got.State)
	assert.True(t, got.Failed())

	// Hydrating again changes nothing.
	ch := s2.Subscribe()
	require.NoError(t, s2.Hydrate())
	assert.Equal(t, 2, s2.Count())
	select {
	case ev := <-ch:
		t.Fatalf("unexpected change event %+v", ev)
	default:
	}
}

func TestStore_PrunePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")

	p, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	s := NewStore(p)

	now := time.Now()
	require.NoError(t, s.Record(testRecord("old", now.Add(-time.Hour))))
	require.NoError(t, s.Record(testRecord("new", now)))

	removed, err := s.Prune(30*time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	require.NoError(t, s.Close())

	p2, err := NewJSONLPersistence(path)
	require.NoError(t, err)
	defer p2.Close()

	loaded, err := p2.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "new", loaded[0].ID)
}
