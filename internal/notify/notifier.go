// Package notify fans audit messages out to chat administrators.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/onioktairawan/lordadmin/internal/bot"
	"github.com/onioktairawan/lordadmin/internal/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// AdminSource supplies the administrators of a chat
type AdminSource interface {
	Admins(ctx context.Context, chatID string) ([]bot.Member, error)
}

// DirectSender delivers a private message
type DirectSender interface {
	SendDirect(ctx context.Context, userID, text string) error
}

// Audit describes one committed moderation action
type Audit struct {
	ChatID string
	Actor  string // actor display name
	Action string // e.g. "banned"
	Target string // target label
}

// FormatAudit is the default audit text
func FormatAudit(a Audit) string {
	return fmt.Sprintf("[%s] %s %s %s", a.ChatID, a.Actor, a.Action, a.Target)
}

// Delivery counts the outcome of one fan-out
type Delivery struct {
	Sent   int
	Failed int
}

// Notifier sends one message per administrator, paced by a rate limiter.
// A failed delivery is logged and does not stop the others.
type Notifier struct {
	admins  AdminSource
	sender  DirectSender
	limiter *rate.Limiter
	timeout time.Duration
	format  func(Audit) string
}

// Option configures a Notifier
type Option func(*Notifier)

// WithFormat replaces the audit formatter
func WithFormat(f func(Audit) string) Option {
	return func(n *Notifier) { n.format = f }
}

// New creates a notifier sending at most perSecond messages per second
// with the given burst. timeout bounds each delivery.
func New(admins AdminSource, sender DirectSender, perSecond float64, burst int, timeout time.Duration, opts ...Option) *Notifier {
	n := &Notifier{
		admins:  admins,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		timeout: timeout,
		format:  FormatAudit,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify delivers the formatted audit to every administrator of a.ChatID
func (n *Notifier) Notify(ctx context.Context, a Audit) (Delivery, error) {
	return n.Broadcast(ctx, a.ChatID, n.format(a))
}

// Broadcast delivers text to every human administrator of chatID. It
// returns an error when the administrator set cannot be obtained or ctx
// ends, in which case deliveries not yet started are abandoned.
func (n *Notifier) Broadcast(ctx context.Context, chatID, text string) (Delivery, error) {
	var d Delivery

	admins, err := n.admins.Admins(ctx, chatID)
	if err != nil {
		return d, fmt.Errorf("resolve admins for notification: %w", err)
	}

	for _, admin := range admins {
		if admin.IsBot {
			continue
		}
		if err := n.limiter.Wait(ctx); err != nil {
			logger.WithFields(logrus.Fields{
				"chat_id":   chatID,
				"sent":      d.Sent,
				"remaining": len(admins) - d.Sent - d.Failed,
			}).Warn("admin-notify-abandoned")
			return d, err
		}

		if err := n.deliver(ctx, admin.ID, text); err != nil {
			d.Failed++
			logger.WithFields(logrus.Fields{
				"chat_id":  chatID,
				"admin_id": admin.ID,
				"error":    err,
			}).Warn("admin-notify-failed")
			continue
		}
		d.Sent++
	}

	logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"sent":    d.Sent,
		"failed":  d.Failed,
	}).Debug("admin-notify-done")
	return d, nil
}

func (n *Notifier) deliver(ctx context.Context, userID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	return n.sender.SendDirect(ctx, userID, text)
}
