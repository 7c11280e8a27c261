package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/onioktairawan/lordadmin/internal/logger"
	"github.com/sirupsen/logrus"
)

// maxLineSize bounds a single JSONL record
const maxLineSize = 1024 * 1024

// JSONL appends entries to a file, one JSON object per line:
//
//	{"id":"5f0c...","kind":"ban","chat_id":"-100","user_id":"42","label":"@bob","timestamp":"..."}
//	{"id":"9a1e...","kind":"unban","chat_id":"-100","user_id":"42","label":"@bob","timestamp":"..."}
type JSONL struct {
	path string
	mu   sync.Mutex
}

// NewJSONL creates the parent directory of path and returns a journal
// writing to it
func NewJSONL(path string) (*JSONL, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl journal: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}
	return &JSONL{path: path}, nil
}

// Append writes e as one line
func (j *JSONL) Append(_ context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	if len(data) >= maxLineSize {
		return fmt.Errorf("journal entry too large: %d bytes", len(data))
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	return nil
}

// Replay calls fn for every entry in file order. Corrupted lines are
// skipped with a warning; a missing file replays nothing. fn must not
// call Append.
func (j *JSONL) Replay(ctx context.Context, fn func(Entry) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			logger.WithFields(logrus.Fields{
				"path":  j.path,
				"line":  line,
				"error": err,
			}).Warn("skipping-corrupted-journal-line")
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	return nil
}

// Close is a no-op; the file is opened per append
func (j *JSONL) Close() error { return nil }
