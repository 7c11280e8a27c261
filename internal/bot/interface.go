// Package bot binds the moderation core to concrete chat platforms.
//
// The core never talks to a platform directly. It consumes inbound Events
// delivered by an adapter and calls back through the Platform interface to
// look members up, restrict or ban them, and send messages.
//
// # Supported Platforms
//
//   - Telegram: long polling; chat IDs are Telegram chat IDs
//   - Discord: gateway WebSocket; the moderation scope is the guild and
//     replies go to the originating text channel
//
// # Usage
//
//	tg := bot.NewTelegramBot(token, identityStore)
//	err := tg.Start(func(ev bot.Event) {
//	    engine.HandleEvent(ev)
//	})
//	...
//	tg.Stop()
//
// # Thread Safety
//
// Adapters are safe for concurrent use. Every Platform method takes a
// context and returns ctx.Err() once it is done, even when the underlying
// client library cannot be interrupted.
package bot

import (
	"context"
	"errors"
	"time"
)

// ErrMemberNotFound is returned by lookups when the user is not a member of the chat
var ErrMemberNotFound = errors.New("member not found in chat")

// Member is a chat user as seen by the platform
type Member struct {
	ID          string // Stable platform user ID
	DisplayName string // First name / nickname shown in chat
	Handle      string // Unique nickname without the leading "@", may be empty
	IsBot       bool
}

// Label returns "@handle" when the member has a handle, otherwise the display name
func (m Member) Label() string {
	if m.Handle != "" {
		return "@" + m.Handle
	}
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.ID
}

// EventKind classifies an inbound event
type EventKind int

const (
	EventText       EventKind = iota // Free text, or anything that is not a command
	EventCommand                     // "/name[@bot] args..."
	EventNewMembers                  // Structural join event
)

// String returns the log name of the kind
func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventNewMembers:
		return "new_members"
	default:
		return "text"
	}
}

// Command is a parsed command invocation
type Command struct {
	Name    string   // Lowercase name without the leading "/"
	Mention string   // Bot username after "@", empty when not addressed
	Args    []string // Whitespace separated arguments
}

// Event is one inbound chat event
type Event struct {
	ID          string    // Correlation ID, assigned by the engine when empty
	Kind        EventKind
	Platform    string    // telegram/discord
	ChatID      string    // Moderation scope: Telegram chat or Discord guild
	Channel     string    // Reply destination, empty means ChatID
	Actor       Member    // Sender; zero for join events
	Members     []Member  // Joined members for EventNewMembers
	Command     Command   // Parsed command for EventCommand
	ReplyTarget *Member   // Author of the message this one replies to
	Text        string    // Raw text body
	Timestamp   time.Time
}

// ReplyChannel returns where replies to this event should be sent
func (e Event) ReplyChannel() string {
	if e.Channel != "" {
		return e.Channel
	}
	return e.ChatID
}

// Transport is the connection side of an adapter
type Transport interface {
	// Name returns the platform name, e.g. "telegram"
	Name() string

	// Username returns the bot's own handle once started
	Username() string

	// Start connects and delivers every inbound event to handler
	Start(handler func(Event)) error

	// Stop disconnects and releases resources
	Stop() error
}

// Directory answers who administers a chat and who a member is
type Directory interface {
	ListAdministrators(ctx context.Context, chatID string) ([]Member, error)
	ResolveMemberByHandle(ctx context.Context, chatID, handle string) (Member, error)
	ResolveMemberByID(ctx context.Context, chatID, userID string) (Member, error)
}

// Moderator applies platform-side sanctions
type Moderator interface {
	// ApplyRestriction mutes (allowSend=false) or unmutes (allowSend=true) a member
	ApplyRestriction(ctx context.Context, chatID, userID string, allowSend bool) error
	BanMember(ctx context.Context, chatID, userID string) error
	UnbanMember(ctx context.Context, chatID, userID string) error
}

// Messenger delivers text
type Messenger interface {
	// SendMessage posts text to a chat or channel
	SendMessage(ctx context.Context, channel, text string) error

	// SendDirect posts text to a user privately
	SendDirect(ctx context.Context, userID, text string) error
}

// Platform is everything the moderation core needs from a chat platform
type Platform interface {
	Transport
	Directory
	Moderator
	Messenger
}

// StatusReporter is implemented by adapters that track connection health
type StatusReporter interface {
	Status() string
}

// HandleDirectory maps a handle to a user ID from previously observed members
type HandleDirectory interface {
	LookupHandle(handle string) (userID string, ok bool)
}

// Connection states reported through StatusReporter
const (
	StatusStarting     = "Starting"
	StatusRunning      = "Running"
	StatusDisconnected = "Disconnected"
	StatusStopped      = "Stopped"
)
