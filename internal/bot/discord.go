package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/onioktairawan/lordadmin/internal/logger"
	"github.com/onioktairawan/lordadmin/pkg/constants"
	"github.com/sirupsen/logrus"
)

// discordMembersPageSize is the page size for listing guild members
const discordMembersPageSize = 1000

// DiscordSessionInterface defines the interface we need from discordgo.Session
// This allows us to mock it in tests without depending on concrete types
type DiscordSessionInterface interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMembers(guildID string, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	GuildMembersSearch(guildID, query string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
	GuildMemberTimeout(guildID string, userID string, until *time.Time, options ...discordgo.RequestOption) error
	GuildBanCreate(guildID, userID string, days int, options ...discordgo.RequestOption) error
	GuildBanDelete(guildID, userID string, options ...discordgo.RequestOption) error
}

// DiscordBot implements Platform for a Discord guild. The guild is the
// moderation scope; replies go back to the channel the command came from
// and welcome messages to channelID (or the guild's system channel).
type DiscordBot struct {
	mu        sync.RWMutex
	token     string
	channelID string
	username  string
	status    string
	session   DiscordSessionInterface
	handler   func(Event)
}

// NewDiscordBot creates a new Discord bot instance
func NewDiscordBot(token, channelID string) *DiscordBot {
	return &DiscordBot{
		token:     token,
		channelID: channelID,
		status:    StatusStarting,
	}
}

// Name returns "discord"
func (d *DiscordBot) Name() string { return "discord" }

// Username returns the bot's username once the gateway is ready
func (d *DiscordBot) Username() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.username
}

// Status returns the current connection state
func (d *DiscordBot) Status() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

func (d *DiscordBot) setStatus(status string) {
	d.mu.Lock()
	d.status = status
	d.mu.Unlock()
}

// Start establishes connection to Discord and begins listening for events
func (d *DiscordBot) Start(handler func(Event)) error {
	logger.WithFields(logrus.Fields{
		"token":   maskSecret(d.token),
		"channel": d.channelID,
	}).Info("starting-discord-bot")

	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentGuildMembers |
		discordgo.IntentMessageContent

	return d.attach(session, handler)
}

// attach registers gateway handlers on session and opens it
func (d *DiscordBot) attach(session DiscordSessionInterface, handler func(Event)) error {
	d.mu.Lock()
	d.session = session
	d.handler = handler
	d.mu.Unlock()

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		d.mu.Lock()
		if r.User != nil {
			d.username = r.User.Username
		}
		d.status = StatusRunning
		d.mu.Unlock()
		logger.WithField("bot_username", d.Username()).Info("discord-gateway-ready")
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		d.setStatus(StatusDisconnected)
		logger.Warn("discord-gateway-disconnected")
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		d.setStatus(StatusRunning)
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if ev, ok := discordMessageEvent(m); ok {
			d.dispatch(ev)
		}
	})
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if m.Member == nil || m.Member.User == nil {
			return
		}
		d.dispatch(Event{
			Kind:      EventNewMembers,
			Platform:  "discord",
			ChatID:    m.GuildID,
			Channel:   d.welcomeChannel(m.GuildID),
			Members:   []Member{discordMember(m.Member.User, m.Member)},
			Timestamp: time.Now(),
		})
	})

	if err := session.Open(); err != nil {
		d.setStatus(StatusDisconnected)
		return fmt.Errorf("failed to open discord connection: %w", err)
	}
	return nil
}

func (d *DiscordBot) dispatch(ev Event) {
	d.mu.RLock()
	handler := d.handler
	d.mu.RUnlock()

	logger.WithFields(logrus.Fields{
		"platform": "discord",
		"kind":     ev.Kind.String(),
		"guild_id": ev.ChatID,
		"channel":  ev.Channel,
		"user_id":  ev.Actor.ID,
	}).Debug("received-discord-event")

	if handler != nil {
		handler(ev)
	}
}

// welcomeChannel picks the configured channel, falling back to the guild's system channel
func (d *DiscordBot) welcomeChannel(guildID string) string {
	if d.channelID != "" {
		return d.channelID
	}
	session, err := d.client()
	if err != nil {
		return ""
	}
	guild, err := session.Guild(guildID)
	if err != nil || guild == nil {
		return ""
	}
	return guild.SystemChannelID
}

// discordMessageEvent classifies a guild message into an Event.
// Direct messages and bot authors are ignored.
func discordMessageEvent(m *discordgo.MessageCreate) (Event, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return Event{}, false
	}

	ev := Event{
		Platform:  "discord",
		ChatID:    m.GuildID,
		Channel:   m.ChannelID,
		Actor:     discordMember(m.Author, m.Member),
		Text:      m.Content,
		Timestamp: m.Timestamp,
	}

	cmd, ok := ParseCommand(m.Content)
	if !ok {
		ev.Kind = EventText
		return ev, true
	}
	ev.Kind = EventCommand
	ev.Command = cmd
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil {
		target := discordMember(ref.Author, ref.Member)
		ev.ReplyTarget = &target
	}
	return ev, true
}

func discordMember(u *discordgo.User, m *discordgo.Member) Member {
	member := Member{
		ID:          u.ID,
		DisplayName: u.Username,
		Handle:      u.Username,
		IsBot:       u.Bot,
	}
	if m != nil && m.Nick != "" {
		member.DisplayName = m.Nick
	}
	return member
}

func (d *DiscordBot) client() (DiscordSessionInterface, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.session == nil {
		return nil, fmt.Errorf("discord session not initialized")
	}
	return d.session, nil
}

func isDiscordNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusNotFound
}

// ListAdministrators returns the guild owner and every member holding a role
// with the Administrator permission
func (d *DiscordBot) ListAdministrators(ctx context.Context, guildID string) ([]Member, error) {
	session, err := d.client()
	if err != nil {
		return nil, err
	}

	guild, err := callWithContext(ctx, func() (*discordgo.Guild, error) {
		return session.Guild(guildID)
	})
	if err != nil {
		return nil, fmt.Errorf("discord get guild: %w", err)
	}

	adminRoles := make(map[string]struct{})
	for _, role := range guild.Roles {
		if role.Permissions&discordgo.PermissionAdministrator != 0 {
			adminRoles[role.ID] = struct{}{}
		}
	}

	var admins []Member
	after := ""
	for {
		page, err := callWithContext(ctx, func() ([]*discordgo.Member, error) {
			return session.GuildMembers(guildID, after, discordMembersPageSize)
		})
		if err != nil {
			return nil, fmt.Errorf("discord list guild members: %w", err)
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			if m.User.ID == guild.OwnerID || hasAnyRole(m.Roles, adminRoles) {
				admins = append(admins, discordMember(m.User, m))
			}
		}
		if len(page) < discordMembersPageSize {
			break
		}
		after = page[len(page)-1].User.ID
	}
	return admins, nil
}

func hasAnyRole(roles []string, set map[string]struct{}) bool {
	for _, r := range roles {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

// ResolveMemberByID looks a user up in the guild
func (d *DiscordBot) ResolveMemberByID(ctx context.Context, guildID, userID string) (Member, error) {
	session, err := d.client()
	if err != nil {
		return Member{}, err
	}
	m, err := callWithContext(ctx, func() (*discordgo.Member, error) {
		return session.GuildMember(guildID, userID)
	})
	if err != nil {
		if isDiscordNotFound(err) {
			return Member{}, ErrMemberNotFound
		}
		return Member{}, fmt.Errorf("discord get guild member: %w", err)
	}
	if m == nil || m.User == nil {
		return Member{}, ErrMemberNotFound
	}
	return discordMember(m.User, m), nil
}

// ResolveMemberByHandle searches the guild for an exact username match
func (d *DiscordBot) ResolveMemberByHandle(ctx context.Context, guildID, handle string) (Member, error) {
	session, err := d.client()
	if err != nil {
		return Member{}, err
	}
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return Member{}, ErrMemberNotFound
	}

	found, err := callWithContext(ctx, func() ([]*discordgo.Member, error) {
		return session.GuildMembersSearch(guildID, handle, 10)
	})
	if err != nil {
		return Member{}, fmt.Errorf("discord search guild members: %w", err)
	}
	for _, m := range found {
		if m.User != nil && strings.EqualFold(m.User.Username, handle) {
			return discordMember(m.User, m), nil
		}
	}
	return Member{}, ErrMemberNotFound
}

// ApplyRestriction uses member timeouts: muting times the member out for
// the longest period Discord allows, unmuting clears the timeout
func (d *DiscordBot) ApplyRestriction(ctx context.Context, guildID, userID string, allowSend bool) error {
	session, err := d.client()
	if err != nil {
		return err
	}
	var until *time.Time
	if !allowSend {
		t := time.Now().Add(constants.MaxDiscordTimeout - time.Minute)
		until = &t
	}
	_, err = callWithContext(ctx, func() (struct{}, error) {
		return struct{}{}, session.GuildMemberTimeout(guildID, userID, until)
	})
	if err != nil {
		return fmt.Errorf("discord member timeout: %w", err)
	}
	return nil
}

// BanMember bans the member without deleting message history
func (d *DiscordBot) BanMember(ctx context.Context, guildID, userID string) error {
	session, err := d.client()
	if err != nil {
		return err
	}
	_, err = callWithContext(ctx, func() (struct{}, error) {
		return struct{}{}, session.GuildBanCreate(guildID, userID, 0)
	})
	if err != nil {
		return fmt.Errorf("discord ban create: %w", err)
	}
	return nil
}

// UnbanMember removes a guild ban
func (d *DiscordBot) UnbanMember(ctx context.Context, guildID, userID string) error {
	session, err := d.client()
	if err != nil {
		return err
	}
	_, err = callWithContext(ctx, func() (struct{}, error) {
		return struct{}{}, session.GuildBanDelete(guildID, userID)
	})
	if err != nil && !isDiscordNotFound(err) {
		return fmt.Errorf("discord ban delete: %w", err)
	}
	return nil
}

// SendMessage sends a message to a Discord channel
func (d *DiscordBot) SendMessage(ctx context.Context, channel, message string) error {
	session, err := d.client()
	if err != nil {
		return err
	}
	if channel == "" {
		channel = d.channelID
	}
	if channel == "" {
		return fmt.Errorf("channel ID is required for Discord")
	}

	if len(message) > constants.MaxDiscordMessageLength {
		logger.WithFields(logrus.Fields{
			"original_length": len(message),
			"max_length":      constants.MaxDiscordMessageLength,
		}).Info("truncating-message-for-discord-limit")
		message = truncateText(message, constants.MaxDiscordMessageLength)
	}

	_, err = callWithContext(ctx, func() (*discordgo.Message, error) {
		return session.ChannelMessageSend(channel, message)
	})
	if err != nil {
		logger.WithFields(logrus.Fields{
			"channel": channel,
			"error":   err,
		}).Error("failed-to-send-message-to-discord")
		return fmt.Errorf("failed to send message to channel %s: %w", channel, err)
	}
	return nil
}

// SendDirect opens a DM channel with the user and sends the message there
func (d *DiscordBot) SendDirect(ctx context.Context, userID, message string) error {
	session, err := d.client()
	if err != nil {
		return err
	}
	ch, err := callWithContext(ctx, func() (*discordgo.Channel, error) {
		return session.UserChannelCreate(userID)
	})
	if err != nil {
		return fmt.Errorf("discord open DM with %s: %w", userID, err)
	}
	return d.SendMessage(ctx, ch.ID, message)
}

// Stop closes the Discord connection and cleans up resources
func (d *DiscordBot) Stop() error {
	d.mu.Lock()
	session := d.session
	d.session = nil
	d.status = StatusStopped
	d.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	logger.Info("discord-bot-stopped")
	return nil
}
