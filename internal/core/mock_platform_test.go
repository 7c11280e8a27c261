package core

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/onioktairawan/lordadmin/internal/bot"
	"github.com/onioktairawan/lordadmin/internal/journal"
	"github.com/stretchr/testify/require"
)

// MockPlatform is a mock implementation of bot.Platform for testing
type MockPlatform struct {
	mu sync.Mutex

	username string
	status   string
	admins   map[string][]bot.Member // chat -> admins
	members  map[string]bot.Member   // user ID -> member

	adminErr    error
	resolveErr  error
	banErr      error
	unbanErr    error
	restrictErr error
	blockBan    bool // BanMember waits for ctx to expire
	panicOnSend string

	adminCalls   int
	bans         []string
	unbans       []string
	restrictions []RestrictionCall
	sent         []SentMessage
	direct       []SentMessage

	handler func(bot.Event)
	started chan struct{}
	stopped bool
}

type RestrictionCall struct {
	ChatID    string
	UserID    string
	AllowSend bool
}

type SentMessage struct {
	To   string
	Text string
}

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		username: "lordbot",
		status:   bot.StatusRunning,
		admins:   make(map[string][]bot.Member),
		members:  make(map[string]bot.Member),
		started:  make(chan struct{}),
	}
}

func (m *MockPlatform) Name() string { return "telegram" }

func (m *MockPlatform) Username() string { return m.username }

func (m *MockPlatform) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *MockPlatform) Start(handler func(bot.Event)) error {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
	close(m.started)
	return nil
}

func (m *MockPlatform) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *MockPlatform) ListAdministrators(_ context.Context, chatID string) ([]bot.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adminCalls++
	if m.adminErr != nil {
		return nil, m.adminErr
	}
	return append([]bot.Member(nil), m.admins[chatID]...), nil
}

func (m *MockPlatform) ResolveMemberByHandle(_ context.Context, _, handle string) (bot.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resolveErr != nil {
		return bot.Member{}, m.resolveErr
	}
	for _, member := range m.members {
		if strings.EqualFold(member.Handle, handle) {
			return member, nil
		}
	}
	return bot.Member{}, bot.ErrMemberNotFound
}

func (m *MockPlatform) ResolveMemberByID(_ context.Context, _, userID string) (bot.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resolveErr != nil {
		return bot.Member{}, m.resolveErr
	}
	member, ok := m.members[userID]
	if !ok {
		return bot.Member{}, bot.ErrMemberNotFound
	}
	return member, nil
}

func (m *MockPlatform) ApplyRestriction(_ context.Context, chatID, userID string, allowSend bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.restrictErr != nil {
		return m.restrictErr
	}
	m.restrictions = append(m.restrictions, RestrictionCall{ChatID: chatID, UserID: userID, AllowSend: allowSend})
	return nil
}

func (m *MockPlatform) BanMember(ctx context.Context, _, userID string) error {
	m.mu.Lock()
	block, err := m.blockBan, m.banErr
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.bans = append(m.bans, userID)
	return nil
}

func (m *MockPlatform) UnbanMember(_ context.Context, _, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unbanErr != nil {
		return m.unbanErr
	}
	m.unbans = append(m.unbans, userID)
	return nil
}

func (m *MockPlatform) SendMessage(_ context.Context, channel, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOnSend != "" && strings.Contains(text, m.panicOnSend) {
		panic("send exploded")
	}
	m.sent = append(m.sent, SentMessage{To: channel, Text: text})
	return nil
}

func (m *MockPlatform) SendDirect(_ context.Context, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direct = append(m.direct, SentMessage{To: userID, Text: text})
	return nil
}

func (m *MockPlatform) addMember(members ...bot.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, member := range members {
		m.members[member.ID] = member
	}
}

func (m *MockPlatform) GetSent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

func (m *MockPlatform) GetDirect() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.direct...)
}

func (m *MockPlatform) GetBans() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bans...)
}

func (m *MockPlatform) GetUnbans() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.unbans...)
}

func (m *MockPlatform) GetRestrictions() []RestrictionCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RestrictionCall(nil), m.restrictions...)
}

var _ bot.Platform = (*MockPlatform)(nil)
var _ bot.StatusReporter = (*MockPlatform)(nil)

const testChat = "-100"

var (
	alice   = bot.Member{ID: "1", DisplayName: "Alice", Handle: "alice"}
	bob     = bot.Member{ID: "42", DisplayName: "Bob", Handle: "bob"}
	dave    = bot.Member{ID: "7", DisplayName: "Dave"}
	carol   = bot.Member{ID: "9", DisplayName: "Carol", Handle: "carol"}
	selfBot = bot.Member{ID: "1000", DisplayName: "Lord", Handle: "lordbot", IsBot: true}
)

// testConfig returns a validated config; mutate adjusts it before validation
func testConfig(t *testing.T, mutate func(*Config)) *Config {
	t.Helper()
	config := &Config{
		Bots: map[string]BotConfig{
			"telegram": {Enabled: true, Token: "test-token"},
		},
	}
	if mutate != nil {
		mutate(config)
	}
	require.NoError(t, validateConfig(config))
	return config
}

// newTestEngine wires an engine to a mock platform where Alice and Dave
// administer testChat
func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *MockPlatform, *journal.Memory) {
	t.Helper()
	platform := NewMockPlatform()
	platform.admins[testChat] = []bot.Member{alice, dave, selfBot}
	platform.addMember(alice, bob, dave, carol)

	mem := journal.NewMemory()
	engine := NewEngine(testConfig(t, mutate), mem)
	engine.RegisterBotAdapter(platform)
	t.Cleanup(func() { _ = engine.Stop() })
	return engine, platform, mem
}

func commandEvent(t *testing.T, actor bot.Member, reply *bot.Member, text string) bot.Event {
	t.Helper()
	cmd, ok := bot.ParseCommand(text)
	require.True(t, ok, "not a command: %s", text)
	return bot.Event{
		Kind:        bot.EventCommand,
		Platform:    "telegram",
		ChatID:      testChat,
		Actor:       actor,
		Command:     cmd,
		ReplyTarget: reply,
		Text:        text,
	}
}

func replyTo(m bot.Member) *bot.Member { return &m }
