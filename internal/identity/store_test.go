package identity

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onioktairawan/lordadmin/internal/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ObserveCreates(t *testing.T) {
	s := NewStore()

	id, changes := s.Observe(bot.Member{ID: "1", DisplayName: "Alice", Handle: "alice"})
	assert.Empty(t, changes)
	assert.Equal(t, "Alice", id.DisplayName)
	assert.Empty(t, id.History)

	got, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "alice", got.Handle)
	assert.False(t, got.FirstSeen.IsZero())
}

func TestStore_ObserveRecordsTransitionsOnly(t *testing.T) {
	s := NewStore()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s.ObserveAt(bot.Member{ID: "1", DisplayName: "Alice", Handle: "alice"}, at)

	// unchanged observations add nothing
	for i := 0; i < 3; i++ {
		_, changes := s.ObserveAt(bot.Member{ID: "1", DisplayName: "Alice", Handle: "alice"}, at)
		assert.Empty(t, changes)
	}

	_, changes := s.ObserveAt(bot.Member{ID: "1", DisplayName: "Ali", Handle: "alice"}, at.Add(time.Hour))
	require.Len(t, changes, 1)
	assert.Equal(t, HistoryEntry{Field: FieldName, Previous: "Alice", ChangedAt: at.Add(time.Hour)}, changes[0])

	_, changes = s.ObserveAt(bot.Member{ID: "1", DisplayName: "A", Handle: "ali"}, at.Add(2*time.Hour))
	require.Len(t, changes, 2)
	assert.Equal(t, FieldName, changes[0].Field)
	assert.Equal(t, "Ali", changes[0].Previous)
	assert.Equal(t, FieldHandle, changes[1].Field)
	assert.Equal(t, "alice", changes[1].Previous)

	got, _ := s.Get("1")
	assert.Len(t, got.History, 3)
	assert.Equal(t, "A", got.DisplayName)
	assert.Equal(t, "ali", got.Handle)
}

func TestStore_ObserveIgnoresEmptyID(t *testing.T) {
	s := NewStore()
	id, changes := s.Observe(bot.Member{DisplayName: "ghost"})
	assert.Equal(t, Identity{}, id)
	assert.Nil(t, changes)
	assert.Equal(t, 0, s.Len())
}

func TestStore_GetMissing(t *testing.T) {
	_, ok := NewStore().Get("nope")
	assert.False(t, ok)
}

func TestStore_AllStableOrder(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"3", "1", "2"} {
		s.Observe(bot.Member{ID: id, DisplayName: "user" + id})
	}
	// a later change does not move the record
	s.Observe(bot.Member{ID: "3", DisplayName: "renamed"})

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].ID)
	assert.Equal(t, "1", all[1].ID)
	assert.Equal(t, "2", all[2].ID)
	assert.Equal(t, all, s.All())
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	s := NewStore()
	s.Observe(bot.Member{ID: "1", DisplayName: "a"})
	s.Observe(bot.Member{ID: "1", DisplayName: "b"})

	got, _ := s.Get("1")
	got.History[0].Previous = "tampered"
	got.DisplayName = "tampered"

	again, _ := s.Get("1")
	assert.Equal(t, "a", again.History[0].Previous)
	assert.Equal(t, "b", again.DisplayName)
}

func TestStore_LookupHandle(t *testing.T) {
	s := NewStore()
	s.Observe(bot.Member{ID: "1", DisplayName: "Bob", Handle: "Bob_"})

	id, ok := s.LookupHandle("@bob_")
	require.True(t, ok)
	assert.Equal(t, "1", id)

	_, ok = s.LookupHandle("@")
	assert.False(t, ok)

	// the old handle is released on change and can be taken by someone else
	s.Observe(bot.Member{ID: "1", DisplayName: "Bob", Handle: "robert"})
	_, ok = s.LookupHandle("bob_")
	assert.False(t, ok)

	s.Observe(bot.Member{ID: "2", DisplayName: "Other", Handle: "robert"})
	id, _ = s.LookupHandle("robert")
	assert.Equal(t, "2", id)

	// user 1 dropping the handle must not steal it back from user 2
	s.Observe(bot.Member{ID: "1", DisplayName: "Bob"})
	id, _ = s.LookupHandle("robert")
	assert.Equal(t, "2", id)
}

func TestStore_ConcurrentObserve(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i%10)
			s.Observe(bot.Member{ID: id, DisplayName: fmt.Sprintf("name%d", i%2)})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, s.Len())
	for _, rec := range s.All() {
		// consecutive history entries never repeat the same previous value
		for j := 1; j < len(rec.History); j++ {
			assert.NotEqual(t, rec.History[j-1].Previous, rec.History[j].Previous)
		}
	}
}
