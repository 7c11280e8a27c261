// Package auth decides whether a user administers a chat.
//
// Administrator sets come from the platform and are cached per chat for a
// fixed window. Concurrent misses for the same chat share one fetch.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/onioktairawan/lordadmin/internal/bot"
	"github.com/onioktairawan/lordadmin/internal/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// AdminLister is the platform call the gate depends on
type AdminLister interface {
	ListAdministrators(ctx context.Context, chatID string) ([]bot.Member, error)
}

type adminSet struct {
	members []bot.Member
	ids     map[string]struct{}
	expires time.Time
}

// Gate caches administrator sets per chat
type Gate struct {
	lister  AdminLister
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]*adminSet
	group singleflight.Group
}

// NewGate creates a gate. ttl is the validity window of a cached set and
// timeout bounds every ListAdministrators call.
func NewGate(lister AdminLister, ttl, timeout time.Duration) *Gate {
	return &Gate{
		lister:  lister,
		ttl:     ttl,
		timeout: timeout,
		now:     time.Now,
		cache:   make(map[string]*adminSet),
	}
}

func (g *Gate) cached(chatID string) (*adminSet, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set, ok := g.cache[chatID]
	if !ok || !g.now().Before(set.expires) {
		return nil, false
	}
	return set, true
}

// load returns the chat's administrator set, fetching it when the cached
// copy is missing or expired
func (g *Gate) load(ctx context.Context, chatID string) (*adminSet, error) {
	if set, ok := g.cached(chatID); ok {
		return set, nil
	}

	ch := g.group.DoChan(chatID, func() (interface{}, error) {
		// a flight that just finished may already have refreshed the entry
		if set, ok := g.cached(chatID); ok {
			return set, nil
		}

		// shared by every waiter, so detached from the first caller's cancellation
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		members, err := g.lister.ListAdministrators(fetchCtx, chatID)
		if err != nil {
			return nil, err
		}

		set := &adminSet{
			members: members,
			ids:     make(map[string]struct{}, len(members)),
			expires: g.now().Add(g.ttl),
		}
		for _, m := range members {
			set.ids[m.ID] = struct{}{}
		}

		g.mu.Lock()
		g.cache[chatID] = set
		g.mu.Unlock()

		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"admins":  len(members),
		}).Debug("admin-set-refreshed")
		return set, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("list administrators of %s: %w", chatID, res.Err)
		}
		return res.Val.(*adminSet), nil
	}
}

// Admins returns the current administrators of chatID
func (g *Gate) Admins(ctx context.Context, chatID string) ([]bot.Member, error) {
	set, err := g.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return append([]bot.Member(nil), set.members...), nil
}

// IsAdmin reports whether userID administers chatID. Any failure to obtain
// the administrator set answers false.
func (g *Gate) IsAdmin(ctx context.Context, chatID, userID string) bool {
	if userID == "" {
		return false
	}
	set, err := g.load(ctx, chatID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"user_id": userID,
			"error":   err,
		}).Warn("admin-check-failed-denying")
		return false
	}
	_, ok := set.ids[userID]
	return ok
}

// Invalidate drops the cached set for chatID
func (g *Gate) Invalidate(chatID string) {
	g.mu.Lock()
	delete(g.cache, chatID)
	g.mu.Unlock()
}
