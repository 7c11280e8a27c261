package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/onioktairawan/lordadmin/internal/logger"
	"github.com/onioktairawan/lordadmin/pkg/constants"
	"github.com/sirupsen/logrus"
)

// telegramAPI is the subset of *tgbotapi.BotAPI the adapter uses
type telegramAPI interface {
	GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramBot implements Platform for Telegram using long polling
type TelegramBot struct {
	mu       sync.RWMutex
	token    string
	api      telegramAPI
	username string
	status   string
	handles  HandleDirectory
	handler  func(Event)
	cancel   context.CancelFunc
}

// NewTelegramBot creates a new Telegram adapter. handles resolves "@handle"
// arguments, since the Bot API has no lookup by username; it may be nil.
func NewTelegramBot(token string, handles HandleDirectory) *TelegramBot {
	return &TelegramBot{
		token:   token,
		handles: handles,
		status:  StatusStarting,
	}
}

// Name returns "telegram"
func (t *TelegramBot) Name() string { return "telegram" }

// Username returns the bot username reported by getMe
func (t *TelegramBot) Username() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.username
}

// Status returns the current connection state
func (t *TelegramBot) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *TelegramBot) setStatus(status string) {
	t.mu.Lock()
	t.status = status
	t.mu.Unlock()
}

// Start connects to Telegram and begins long polling for updates
func (t *TelegramBot) Start(handler func(Event)) error {
	logger.WithFields(logrus.Fields{
		"token": maskSecret(t.token),
	}).Info("starting-telegram-bot-with-long-polling")

	api, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		t.setStatus(StatusDisconnected)
		return fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"bot_username": api.Self.UserName,
		"bot_id":       api.Self.ID,
	}).Info("telegram-bot-initialized")

	t.run(api, api.Self.UserName, handler)
	return nil
}

// run starts the polling loop on an already authenticated client
func (t *TelegramBot) run(api telegramAPI, username string, handler func(Event)) {
	ctx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.api = api
	t.username = username
	t.handler = handler
	t.cancel = cancel
	t.status = StatusRunning
	t.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(constants.DefaultPollTimeout.Seconds())
	updates := api.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("telegram-long-polling-stopped")
				return
			case update, ok := <-updates:
				if !ok {
					logger.Warn("telegram-updates-channel-closed")
					t.setStatus(StatusDisconnected)
					return
				}
				if update.Message != nil {
					t.handleMessage(update.Message)
				}
			}
		}
	}()

	logger.Info("telegram-long-polling-connection-started")
}

// handleMessage converts a Telegram message and hands it to the handler
func (t *TelegramBot) handleMessage(message *tgbotapi.Message) {
	ev, ok := telegramEvent(message)
	if !ok {
		return
	}

	logger.WithFields(logrus.Fields{
		"platform":   "telegram",
		"kind":       ev.Kind.String(),
		"chat_id":    ev.ChatID,
		"user_id":    ev.Actor.ID,
		"username":   ev.Actor.Handle,
		"message_id": message.MessageID,
	}).Debug("received-telegram-message")

	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()
	if handler != nil {
		handler(ev)
	}
}

// telegramEvent classifies a Telegram message into an Event
func telegramEvent(message *tgbotapi.Message) (Event, bool) {
	if message == nil || message.Chat == nil {
		return Event{}, false
	}

	ev := Event{
		Platform:  "telegram",
		ChatID:    strconv.FormatInt(message.Chat.ID, 10),
		Text:      message.Text,
		Timestamp: time.Unix(int64(message.Date), 0),
	}
	if message.From != nil {
		ev.Actor = telegramMember(message.From)
	}

	if len(message.NewChatMembers) > 0 {
		ev.Kind = EventNewMembers
		for i := range message.NewChatMembers {
			ev.Members = append(ev.Members, telegramMember(&message.NewChatMembers[i]))
		}
		return ev, true
	}

	if message.Text == "" {
		return Event{}, false
	}

	if cmd, ok := ParseCommand(message.Text); ok {
		ev.Kind = EventCommand
		ev.Command = cmd
		if reply := message.ReplyToMessage; reply != nil && reply.From != nil && hasContent(reply) {
			target := telegramMember(reply.From)
			ev.ReplyTarget = &target
		}
		return ev, true
	}

	ev.Kind = EventText
	return ev, true
}

// hasContent reports whether m is something a member wrote. Service messages,
// including the root message every forum topic message replies to, carry
// neither text nor media.
func hasContent(m *tgbotapi.Message) bool {
	return m.Text != "" || m.Caption != "" || len(m.Photo) > 0 ||
		m.Animation != nil || m.Audio != nil || m.Document != nil ||
		m.Sticker != nil || m.Video != nil || m.VideoNote != nil ||
		m.Voice != nil || m.Contact != nil || m.Dice != nil ||
		m.Poll != nil || m.Venue != nil || m.Location != nil
}

func telegramMember(u *tgbotapi.User) Member {
	return Member{
		ID:          strconv.FormatInt(u.ID, 10),
		DisplayName: strings.TrimSpace(u.FirstName + " " + u.LastName),
		Handle:      u.UserName,
		IsBot:       u.IsBot,
	}
}

func (t *TelegramBot) client() (telegramAPI, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.api == nil {
		return nil, fmt.Errorf("telegram bot not initialized")
	}
	return t.api, nil
}

func parseTelegramID(kind, id string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s ID format %q: %w", kind, id, err)
	}
	return v, nil
}

// isTelegramNotFound reports API errors that mean "no such member"
func isTelegramNotFound(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "user not found") ||
		strings.Contains(msg, "member not found") ||
		strings.Contains(msg, "participant_id_invalid") ||
		strings.Contains(msg, "user_id_invalid")
}

// ListAdministrators returns the chat's administrators
func (t *TelegramBot) ListAdministrators(ctx context.Context, chatID string) ([]Member, error) {
	api, err := t.client()
	if err != nil {
		return nil, err
	}
	id, err := parseTelegramID("chat", chatID)
	if err != nil {
		return nil, err
	}

	admins, err := callWithContext(ctx, func() ([]tgbotapi.ChatMember, error) {
		return api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
			ChatConfig: tgbotapi.ChatConfig{ChatID: id},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("telegram get chat administrators: %w", err)
	}

	members := make([]Member, 0, len(admins))
	for _, a := range admins {
		if a.User == nil {
			continue
		}
		members = append(members, telegramMember(a.User))
	}
	return members, nil
}

// ResolveMemberByID looks a user up in the chat
func (t *TelegramBot) ResolveMemberByID(ctx context.Context, chatID, userID string) (Member, error) {
	api, err := t.client()
	if err != nil {
		return Member{}, err
	}
	cid, err := parseTelegramID("chat", chatID)
	if err != nil {
		return Member{}, err
	}
	uid, err := parseTelegramID("user", userID)
	if err != nil {
		return Member{}, ErrMemberNotFound
	}

	cm, err := callWithContext(ctx, func() (tgbotapi.ChatMember, error) {
		return api.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: cid, UserID: uid},
		})
	})
	if err != nil {
		if isTelegramNotFound(err) {
			return Member{}, ErrMemberNotFound
		}
		return Member{}, fmt.Errorf("telegram get chat member: %w", err)
	}
	if cm.User == nil {
		return Member{}, ErrMemberNotFound
	}
	// Banned members stay resolvable so that they can be unbanned by ID.
	if cm.Status == "left" {
		return Member{}, ErrMemberNotFound
	}
	return telegramMember(cm.User), nil
}

// ResolveMemberByHandle maps the handle through the handle directory and
// confirms the membership with getChatMember
func (t *TelegramBot) ResolveMemberByHandle(ctx context.Context, chatID, handle string) (Member, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" || t.handles == nil {
		return Member{}, ErrMemberNotFound
	}
	userID, ok := t.handles.LookupHandle(handle)
	if !ok {
		return Member{}, ErrMemberNotFound
	}
	return t.ResolveMemberByID(ctx, chatID, userID)
}

func (t *TelegramBot) request(ctx context.Context, action string, c tgbotapi.Chattable) error {
	api, err := t.client()
	if err != nil {
		return err
	}
	_, err = callWithContext(ctx, func() (*tgbotapi.APIResponse, error) {
		return api.Request(c)
	})
	if err != nil {
		logger.WithFields(logrus.Fields{
			"action": action,
			"error":  err,
		}).Error("telegram-request-failed")
		return fmt.Errorf("telegram %s: %w", action, err)
	}
	return nil
}

func memberConfig(chatID, userID string) (tgbotapi.ChatMemberConfig, error) {
	cid, err := parseTelegramID("chat", chatID)
	if err != nil {
		return tgbotapi.ChatMemberConfig{}, err
	}
	uid, err := parseTelegramID("user", userID)
	if err != nil {
		return tgbotapi.ChatMemberConfig{}, err
	}
	return tgbotapi.ChatMemberConfig{ChatID: cid, UserID: uid}, nil
}

// ApplyRestriction sets whether the member may send messages
func (t *TelegramBot) ApplyRestriction(ctx context.Context, chatID, userID string, allowSend bool) error {
	mc, err := memberConfig(chatID, userID)
	if err != nil {
		return err
	}
	perms := tgbotapi.ChatPermissions{
		CanSendMessages:       allowSend,
		CanSendMediaMessages:  allowSend,
		CanSendPolls:          allowSend,
		CanSendOtherMessages:  allowSend,
		CanAddWebPagePreviews: allowSend,
	}
	return t.request(ctx, "restrict chat member", tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: mc,
		Permissions:      &perms,
	})
}

// BanMember bans the member permanently
func (t *TelegramBot) BanMember(ctx context.Context, chatID, userID string) error {
	mc, err := memberConfig(chatID, userID)
	if err != nil {
		return err
	}
	return t.request(ctx, "ban chat member", tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: mc,
		UntilDate:        0, // forever
	})
}

// UnbanMember lifts a ban; users that are not banned are left alone
func (t *TelegramBot) UnbanMember(ctx context.Context, chatID, userID string) error {
	mc, err := memberConfig(chatID, userID)
	if err != nil {
		return err
	}
	return t.request(ctx, "unban chat member", tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: mc,
		OnlyIfBanned:     true,
	})
}

// SendMessage sends a message to a Telegram chat
func (t *TelegramBot) SendMessage(ctx context.Context, chatID, message string) error {
	api, err := t.client()
	if err != nil {
		return err
	}
	if chatID == "" {
		return fmt.Errorf("chat ID is required for Telegram")
	}
	id, err := parseTelegramID("chat", chatID)
	if err != nil {
		return err
	}

	if len(message) > constants.MaxTelegramMessageLength {
		logger.WithFields(logrus.Fields{
			"original_length": len(message),
			"max_length":      constants.MaxTelegramMessageLength,
		}).Info("truncating-message-for-telegram-limit")
		message = truncateText(message, constants.MaxTelegramMessageLength)
	}

	_, err = callWithContext(ctx, func() (tgbotapi.Message, error) {
		return api.Send(tgbotapi.NewMessage(id, message))
	})
	if err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"error":   err,
		}).Error("failed-to-send-message-to-telegram")
		return fmt.Errorf("failed to send message to chat %s: %w", chatID, err)
	}

	logger.WithField("chat_id", chatID).Debug("message-sent-to-telegram")
	return nil
}

// SendDirect messages a user privately. Telegram private chats share the
// user's ID, so this only works once the user has started the bot.
func (t *TelegramBot) SendDirect(ctx context.Context, userID, message string) error {
	return t.SendMessage(ctx, userID, message)
}

// Stop ends long polling and cleans up resources
func (t *TelegramBot) Stop() error {
	t.mu.Lock()
	cancel := t.cancel
	api := t.api
	t.api = nil
	t.cancel = nil
	t.status = StatusStopped
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if api != nil {
		api.StopReceivingUpdates()
	}

	logger.Info("telegram-bot-stopped")
	return nil
}
