package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/busdemo/internal/model"
)

// SchemaVersion is the current persistence schema version.
const SchemaVersion = 1

// Persistence defines the interface for call log storage.
type Persistence interface {
	// Load reads the log, keeping the last version of each record.
	Load() ([]model.CallRecord, error)

	// Append adds a record version to storage.
	Append(r model.CallRecord) error

	// Rewrite replaces the entire storage file (used after prune).
	Rewrite(rs []model.CallRecord) error

	// Clear removes all stored records.
	Clear() error

	// Close releases file handles and resources.
	Close() error
}

// schemaHeader is the first line of the JSONL file.
type schemaHeader struct {
	SchemaVersion int   `json:"busdemo_schema_version"`
	CreatedAt     int64 `json:"created_at"`
}

// JSONLPersistence implements Persistence using JSONL files.
type JSONLPersistence struct {
	mu     sync.RWMutex
	path   string
	file   *os.File
	closed bool
}

// NewJSONLPersistence creates a new JSONLPersistence.
// Creates the file if it doesn't exist.
func NewJSONLPersistence(path string) (*JSONLPersistence, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	p := &JSONLPersistence{
		path: path,
		file: file,
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	if info.Size() == 0 {
		if err := p.writeHeader(); err != nil {
			file.Close()
			return nil, err
		}
	}

	return p, nil
}

// Path returns the file backing the log.
func (p *JSONLPersistence) Path() string {
	return p.path
}

func (p *JSONLPersistence) writeHeader() error {
	header := schemaHeader{
		SchemaVersion: SchemaVersion,
		CreatedAt:     time.Now().Unix(),
	}

	data, err := json.Marshal(header)
	if err != nil {
		return err
	}

	_, err = p.file.Write(append(data, '\n'))
	return err
}

// ErrPersistenceClosed is returned when operations are attempted on a closed persistence.
var ErrPersistenceClosed = errors.New("persistence is closed")

// Load reads all records from storage. A record appears once per state
// change in the file; the last line for an id wins, and records keep the
// order in which they were first written.
func (p *JSONLPersistence) Load() ([]model.CallRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.file == nil {
		return nil, ErrPersistenceClosed
	}

	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", p.path, err)
	}

	var records []model.CallRecord
	index := make(map[string]int)

	scanner := bufio.NewScanner(p.file)
	const maxLineSize = 1024 * 1024 // 1MB; introspection errors can be long
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		if lineNum == 1 {
			var header schemaHeader
			if err := json.Unmarshal(line, &header); err == nil && header.SchemaVersion > 0 {
				if header.SchemaVersion > SchemaVersion {
					return nil, fmt.Errorf("unsupported schema version %d (max: %d)",
						header.SchemaVersion, SchemaVersion)
				}
				continue
			}
		}

		var r model.CallRecord
		if err := json.Unmarshal(line, &r); err != nil || r.ID == "" {
			// Skip malformed lines
			continue
		}

		if idx, exists := index[r.ID]; exists {
			records[idx] = r
			continue
		}
		index[r.ID] = len(records)
		records = append(records, r)
	}

	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("error reading file: %w", err)
	}

	if _, err := p.file.Seek(0, io.SeekEnd); err != nil {
		return records, err
	}

	return records, nil
}

// Append adds a record to storage.
func (p *JSONLPersistence) Append(r model.CallRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.file == nil {
		return ErrPersistenceClosed
	}

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	if _, err := p.file.Write(append(data, '\n')); err != nil {
		return err
	}
	return p.file.Sync()
}

// Rewrite replaces the entire storage file, one line per record.
func (p *JSONLPersistence) Rewrite(rs []model.CallRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPersistenceClosed
	}

	if err := p.reopenTruncated(); err != nil {
		return err
	}

	for _, r := range rs {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := p.file.Write(append(data, '\n')); err != nil {
			return err
		}
	}

	if err := p.file.Sync(); err != nil {
		return err
	}

	os.Remove(p.path + ".bak")
	return nil
}

// Clear removes all stored records.
func (p *JSONLPersistence) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPersistenceClosed
	}

	if err := p.reopenTruncated(); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return err
	}

	os.Remove(p.path + ".bak")
	return nil
}

// reopenTruncated moves the current file aside to .bak and starts a new
// one with a fresh header. The caller removes the backup on success.
func (p *JSONLPersistence) reopenTruncated() error {
	if p.file != nil {
		if err := p.file.Close(); err != nil {
			return err
		}
		p.file = nil
	}

	backupPath := p.path + ".bak"
	if err := os.Rename(p.path, backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	file, err := os.OpenFile(p.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0600)
	if err != nil {
		os.Rename(backupPath, p.path)
		return fmt.Errorf("failed to create new file: %w", err)
	}
	p.file = file

	return p.writeHeader()
}

// Close releases file handles and resources.
func (p *JSONLPersistence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.file != nil {
		err := p.file.Close()
		p.file = nil
		return err
	}
	return nil
}
