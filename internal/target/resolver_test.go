package target

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/onioktairawan/lordadmin/internal/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct {
	mu       sync.Mutex
	byHandle map[string]bot.Member
	byID     map[string]bot.Member
	err      error
	block    bool
	calls    []string
}

func (m *mockDirectory) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockDirectory) ResolveMemberByHandle(ctx context.Context, _, handle string) (bot.Member, error) {
	m.record("handle:" + handle)
	if m.block {
		<-ctx.Done()
		return bot.Member{}, ctx.Err()
	}
	if m.err != nil {
		return bot.Member{}, m.err
	}
	if mem, ok := m.byHandle[handle]; ok {
		return mem, nil
	}
	return bot.Member{}, bot.ErrMemberNotFound
}

func (m *mockDirectory) ResolveMemberByID(_ context.Context, _, userID string) (bot.Member, error) {
	m.record("id:" + userID)
	if m.err != nil {
		return bot.Member{}, m.err
	}
	if mem, ok := m.byID[userID]; ok {
		return mem, nil
	}
	return bot.Member{}, bot.ErrMemberNotFound
}

var (
	alice = bot.Member{ID: "1", DisplayName: "Alice", Handle: "alice"}
	bob   = bot.Member{ID: "2", DisplayName: "Bob", Handle: "bob"}
)

func newDirectory() *mockDirectory {
	return &mockDirectory{
		byHandle: map[string]bot.Member{"bob": bob},
		byID:     map[string]bot.Member{"2": bob},
	}
}

func TestResolver_Precedence(t *testing.T) {
	tests := []struct {
		name   string
		reply  *bot.Member
		args   []string
		want   bot.Member
		source Source
		calls  []string
	}{
		{"reply beats handle", &alice, []string{"@bob"}, alice, SourceReply, nil},
		{"reply beats id", &alice, []string{"2"}, alice, SourceReply, nil},
		{"reply alone", &alice, nil, alice, SourceReply, nil},
		{"handle", nil, []string{"@bob"}, bob, SourceHandle, []string{"handle:bob"}},
		{"handle wins over later id", nil, []string{"@bob", "1"}, bob, SourceHandle, []string{"handle:bob"}},
		{"numeric id", nil, []string{"2"}, bob, SourceID, []string{"id:2"}},
		{"numeric id normalized", nil, []string{"+02"}, bob, SourceID, []string{"id:2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newDirectory()
			r := NewResolver(dir, time.Second)

			res, err := r.Resolve(context.Background(), "c", tt.reply, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Member)
			assert.Equal(t, tt.source, res.Source)
			assert.Equal(t, tt.calls, dir.calls)
		})
	}
}

func TestResolver_NoTarget(t *testing.T) {
	for _, args := range [][]string{nil, {}, {"bob"}, {"@"}, {"12abc"}} {
		dir := newDirectory()
		r := NewResolver(dir, time.Second)

		_, err := r.Resolve(context.Background(), "c", nil, args)
		assert.ErrorIs(t, err, ErrNoTarget, "args %v", args)
		assert.Empty(t, dir.calls)
	}

	// a reply without an author does not count
	_, err := NewResolver(newDirectory(), time.Second).Resolve(context.Background(), "c", &bot.Member{}, nil)
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestResolver_NotFound(t *testing.T) {
	r := NewResolver(newDirectory(), time.Second)

	_, err := r.Resolve(context.Background(), "c", nil, []string{"@carol"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve(context.Background(), "c", nil, []string{"99"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolver_DirectoryFailure(t *testing.T) {
	dir := newDirectory()
	dir.err = errors.New("flood wait")
	r := NewResolver(dir, time.Second)

	_, err := r.Resolve(context.Background(), "c", nil, []string{"@bob"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "flood wait")
}

func TestResolver_Timeout(t *testing.T) {
	dir := newDirectory()
	dir.block = true
	r := NewResolver(dir, 10*time.Millisecond)

	_, err := r.Resolve(context.Background(), "c", nil, []string{"@bob"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSource_String(t *testing.T) {
	assert.Equal(t, "reply", SourceReply.String())
	assert.Equal(t, "handle", SourceHandle.String())
	assert.Equal(t, "id", SourceID.String())
	assert.Equal(t, "unknown", Source(9).String())
}
