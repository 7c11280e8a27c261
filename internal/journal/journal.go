// Package journal is an append-only log of committed moderation changes.
// Replaying it in order rebuilds the identity and moderation stores.
package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the type of a journal entry
type Kind string

const (
	KindObserve  Kind = "observe"
	KindBan      Kind = "ban"
	KindUnban    Kind = "unban"
	KindRestrict Kind = "restrict"
	KindWarn     Kind = "warn"
)

// Entry is one committed change
type Entry struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Platform    string    `json:"platform"`
	ChatID      string    `json:"chat_id,omitempty"`
	UserID      string    `json:"user_id"`
	Label       string    `json:"label,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Handle      string    `json:"handle,omitempty"`
	Restricted  bool      `json:"restricted,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEntry returns an entry of kind with a fresh ID and the current time
func NewEntry(kind Kind) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// Journal persists entries and replays them in append order
type Journal interface {
	Append(ctx context.Context, e Entry) error
	Replay(ctx context.Context, fn func(Entry) error) error
	Close() error
}

// Storage drivers
const (
	DriverMemory = "memory"
	DriverJSONL  = "jsonl"
	DriverSQLite = "sqlite"
)

// Open returns the journal for driver. path is ignored by the memory driver.
func Open(driver, path string) (Journal, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverJSONL:
		return NewJSONL(path)
	case DriverSQLite:
		return NewSQLite(path)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

// Memory keeps entries in process memory. Nothing survives a restart.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemory creates an empty in-memory journal
func NewMemory() *Memory {
	return &Memory{}
}

// Append stores e
func (m *Memory) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

// Replay calls fn for every entry in append order
func (m *Memory) Replay(ctx context.Context, fn func(Entry) error) error {
	for _, e := range m.Entries() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns a copy of every stored entry
func (m *Memory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.entries...)
}

// Close is a no-op
func (m *Memory) Close() error { return nil }
