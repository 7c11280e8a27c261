// Package identity tracks every member the bot has seen together with the
// history of their display names and handles.
package identity

import (
	"strings"
	"sync"
	"time"

	"github.com/onioktairawan/lordadmin/internal/bot"
)

// Field names an identity attribute whose changes are recorded
type Field string

const (
	FieldName   Field = "name"
	FieldHandle Field = "handle"
)

// HistoryEntry records the value a field held before it changed
type HistoryEntry struct {
	Field     Field     `json:"field"`
	Previous  string    `json:"previous"`
	ChangedAt time.Time `json:"changed_at"`
}

// Identity is the current view of one user plus their change history
type Identity struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Handle      string         `json:"handle,omitempty"`
	FirstSeen   time.Time      `json:"first_seen"`
	History     []HistoryEntry `json:"history,omitempty"`
}

// Member converts the identity back to a bot.Member
func (i Identity) Member() bot.Member {
	return bot.Member{ID: i.ID, DisplayName: i.DisplayName, Handle: i.Handle}
}

// Store is a concurrency-safe identity registry. Records are never removed
// and history is append-only.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*Identity
	order   []string          // first-seen order
	handles map[string]string // lowercase handle -> user ID
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		byID:    make(map[string]*Identity),
		handles: make(map[string]string),
	}
}

// Observe records m as seen now. See ObserveAt.
func (s *Store) Observe(m bot.Member) (Identity, []HistoryEntry) {
	return s.ObserveAt(m, time.Now())
}

// ObserveAt creates or updates the identity for m. For every field whose
// value differs from the stored one, a HistoryEntry carrying the old value
// is appended. The returned slice holds only the entries added by this call
// and is empty when nothing changed. Members without an ID are ignored.
func (s *Store) ObserveAt(m bot.Member, at time.Time) (Identity, []HistoryEntry) {
	if m.ID == "" {
		return Identity{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[m.ID]
	if !ok {
		rec = &Identity{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Handle:      m.Handle,
			FirstSeen:   at,
		}
		s.byID[m.ID] = rec
		s.order = append(s.order, m.ID)
		s.indexHandle("", m.Handle, m.ID)
		return rec.clone(), nil
	}

	var changes []HistoryEntry
	if rec.DisplayName != m.DisplayName {
		changes = append(changes, HistoryEntry{Field: FieldName, Previous: rec.DisplayName, ChangedAt: at})
		rec.DisplayName = m.DisplayName
	}
	if rec.Handle != m.Handle {
		changes = append(changes, HistoryEntry{Field: FieldHandle, Previous: rec.Handle, ChangedAt: at})
		s.indexHandle(rec.Handle, m.Handle, m.ID)
		rec.Handle = m.Handle
	}
	rec.History = append(rec.History, changes...)
	return rec.clone(), changes
}

// indexHandle moves the handle index entry for id from prev to next.
// Caller must hold s.mu.
func (s *Store) indexHandle(prev, next, id string) {
	if prev != "" {
		key := strings.ToLower(prev)
		if s.handles[key] == id {
			delete(s.handles, key)
		}
	}
	if next != "" {
		s.handles[strings.ToLower(next)] = id
	}
}

// Get returns the identity for userID
func (s *Store) Get(userID string) (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[userID]
	if !ok {
		return Identity{}, false
	}
	return rec.clone(), true
}

// All returns a snapshot of every identity in first-seen order
func (s *Store) All() []Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Identity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].clone())
	}
	return out
}

// Len returns the number of known identities
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// LookupHandle returns the user currently holding handle. The leading "@"
// is optional and matching ignores case.
func (s *Store) LookupHandle(handle string) (string, bool) {
	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
	if key == "" {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.handles[key]
	return id, ok
}

func (i *Identity) clone() Identity {
	c := *i
	if len(i.History) > 0 {
		c.History = append([]HistoryEntry(nil), i.History...)
	}
	return c
}

var _ bot.HandleDirectory = (*Store)(nil)
