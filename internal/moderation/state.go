// Package moderation holds the authoritative ban list, mute state and
// warning counts. Every value is scoped to a chat.
package moderation

import (
	"strings"
	"sync"
	"time"

	"github.com/onioktairawan/lordadmin/internal/logger"
	"github.com/sirupsen/logrus"
)

// BanRecord is one entry of a chat's ban set
type BanRecord struct {
	ChatID   string    `json:"chat_id"`
	UserID   string    `json:"user_id"`
	Label    string    `json:"label"`
	BannedAt time.Time `json:"banned_at"`
}

type chatState struct {
	bans       map[string]*BanRecord
	banOrder   []string // user IDs in insertion order
	restricted map[string]bool
	warnings   map[string]int
}

func newChatState() *chatState {
	return &chatState{
		bans:       make(map[string]*BanRecord),
		restricted: make(map[string]bool),
		warnings:   make(map[string]int),
	}
}

// State is safe for concurrent use. It never talks to a platform; handlers
// call it only after the platform confirmed the sanction.
type State struct {
	mu    sync.RWMutex
	chats map[string]*chatState
}

// NewState creates an empty moderation state
func NewState() *State {
	return &State{chats: make(map[string]*chatState)}
}

// chat returns the state for chatID, creating it when create is set.
// Caller must hold s.mu (write lock when create is set).
func (s *State) chat(chatID string, create bool) *chatState {
	cs, ok := s.chats[chatID]
	if !ok && create {
		cs = newChatState()
		s.chats[chatID] = cs
	}
	return cs
}

// Ban adds userID to the chat's ban set. See BanAt.
func (s *State) Ban(chatID, userID, label string) BanRecord {
	return s.BanAt(chatID, userID, label, time.Now())
}

// BanAt adds userID to the chat's ban set. A user already banned keeps a
// single record whose label is replaced and whose position is unchanged.
func (s *State) BanAt(chatID, userID, label string, at time.Time) BanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.chat(chatID, true)
	for _, id := range cs.banOrder {
		if id != userID && sameLabel(cs.bans[id].Label, label) {
			logger.WithFields(logrus.Fields{
				"chat_id":       chatID,
				"user_id":       userID,
				"label":         label,
				"other_user_id": id,
			}).Warn("ban-label-collision")
		}
	}

	if rec, ok := cs.bans[userID]; ok {
		rec.Label = label
		rec.BannedAt = at
		return *rec
	}
	rec := &BanRecord{ChatID: chatID, UserID: userID, Label: label, BannedAt: at}
	cs.bans[userID] = rec
	cs.banOrder = append(cs.banOrder, userID)
	return *rec
}

// Find looks query up the same way Unban does without removing anything
func (s *State) Find(chatID, query string) (BanRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.chat(chatID, false)
	if cs == nil {
		return BanRecord{}, false
	}
	if id, ok := cs.find(query); ok {
		return *cs.bans[id], true
	}
	return BanRecord{}, false
}

// Unban removes the record matching query and returns it. query is tried
// as a user ID first, then as a label; labels compare case-sensitively
// after one leading "@" is stripped from each side. With several records
// sharing a label the earliest ban wins. ok is false when nothing matched.
func (s *State) Unban(chatID, query string) (BanRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.chat(chatID, false)
	if cs == nil {
		return BanRecord{}, false
	}
	id, ok := cs.find(query)
	if !ok {
		return BanRecord{}, false
	}
	rec := *cs.bans[id]
	delete(cs.bans, id)
	for i, v := range cs.banOrder {
		if v == id {
			cs.banOrder = append(cs.banOrder[:i], cs.banOrder[i+1:]...)
			break
		}
	}
	return rec, true
}

func (cs *chatState) find(query string) (string, bool) {
	if query == "" {
		return "", false
	}
	if _, ok := cs.bans[query]; ok {
		return query, true
	}
	for _, id := range cs.banOrder {
		if sameLabel(cs.bans[id].Label, query) {
			return id, true
		}
	}
	return "", false
}

func sameLabel(a, b string) bool {
	a = strings.TrimPrefix(a, "@")
	b = strings.TrimPrefix(b, "@")
	return a != "" && a == b
}

// Bans returns the chat's ban set in insertion order
func (s *State) Bans(chatID string) []BanRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.chat(chatID, false)
	if cs == nil {
		return nil
	}
	out := make([]BanRecord, 0, len(cs.banOrder))
	for _, id := range cs.banOrder {
		out = append(out, *cs.bans[id])
	}
	return out
}

// IsBanned reports whether userID is in the chat's ban set
func (s *State) IsBanned(chatID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.chat(chatID, false)
	if cs == nil {
		return false
	}
	_, ok := cs.bans[userID]
	return ok
}

// SetRestricted records the mute state of userID and reports whether the
// stored value changed. Repeating the same value is a no-op.
func (s *State) SetRestricted(chatID, userID string, restricted bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.chat(chatID, true)
	if cs.restricted[userID] == restricted {
		return false
	}
	if restricted {
		cs.restricted[userID] = true
	} else {
		delete(cs.restricted, userID)
	}
	return true
}

// IsRestricted reports whether userID is muted in chatID
func (s *State) IsRestricted(chatID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.chat(chatID, false)
	return cs != nil && cs.restricted[userID]
}

// Warn increments the warning count of userID and returns the new count
func (s *State) Warn(chatID, userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.chat(chatID, true)
	cs.warnings[userID]++
	return cs.warnings[userID]
}

// Warnings returns the current warning count of userID
func (s *State) Warnings(chatID, userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs := s.chat(chatID, false)
	if cs == nil {
		return 0
	}
	return cs.warnings[userID]
}
