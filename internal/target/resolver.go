// Package target works out which member a moderation command is about.
//
// Precedence, first match wins:
//
//  1. the author of the message the command replies to
//  2. a first argument starting with "@", looked up by handle
//  3. a first argument that parses as an integer, looked up by ID
//
// Anything else is a usage error.
package target

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/onioktairawan/lordadmin/internal/bot"
)

var (
	// ErrNoTarget means the invocation names nobody
	ErrNoTarget = errors.New("no target given")

	// ErrNotFound means the named member is not in the chat
	ErrNotFound = errors.New("target not found")
)

// HandleMarker prefixes a handle argument
const HandleMarker = "@"

// MemberDirectory resolves members on the platform
type MemberDirectory interface {
	ResolveMemberByHandle(ctx context.Context, chatID, handle string) (bot.Member, error)
	ResolveMemberByID(ctx context.Context, chatID, userID string) (bot.Member, error)
}

// Source tells which input mode produced a target
type Source int

const (
	SourceReply Source = iota
	SourceHandle
	SourceID
)

func (s Source) String() string {
	switch s {
	case SourceReply:
		return "reply"
	case SourceHandle:
		return "handle"
	case SourceID:
		return "id"
	}
	return "unknown"
}

// Result is a resolved target
type Result struct {
	Member bot.Member
	Source Source
}

// Resolver resolves command targets against a MemberDirectory
type Resolver struct {
	dir     MemberDirectory
	timeout time.Duration
}

// NewResolver creates a resolver whose lookups are bounded by timeout
func NewResolver(dir MemberDirectory, timeout time.Duration) *Resolver {
	return &Resolver{dir: dir, timeout: timeout}
}

// Resolve applies the precedence rules to reply and args. It returns
// ErrNoTarget, ErrNotFound, or a wrapped directory error.
func (r *Resolver) Resolve(ctx context.Context, chatID string, reply *bot.Member, args []string) (Result, error) {
	if reply != nil && reply.ID != "" {
		return Result{Member: *reply, Source: SourceReply}, nil
	}
	if len(args) == 0 {
		return Result{}, ErrNoTarget
	}

	arg := args[0]
	if strings.HasPrefix(arg, HandleMarker) {
		handle := strings.TrimPrefix(arg, HandleMarker)
		if handle == "" {
			return Result{}, ErrNoTarget
		}
		m, err := r.lookup(ctx, func(ctx context.Context) (bot.Member, error) {
			return r.dir.ResolveMemberByHandle(ctx, chatID, handle)
		})
		if err != nil {
			return Result{}, fmt.Errorf("resolve handle %q: %w", handle, err)
		}
		return Result{Member: m, Source: SourceHandle}, nil
	}

	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return Result{}, ErrNoTarget
	}
	userID := strconv.FormatInt(n, 10)
	m, err := r.lookup(ctx, func(ctx context.Context) (bot.Member, error) {
		return r.dir.ResolveMemberByID(ctx, chatID, userID)
	})
	if err != nil {
		return Result{}, fmt.Errorf("resolve id %s: %w", userID, err)
	}
	return Result{Member: m, Source: SourceID}, nil
}

func (r *Resolver) lookup(ctx context.Context, fn func(context.Context) (bot.Member, error)) (bot.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	m, err := fn(ctx)
	if errors.Is(err, bot.ErrMemberNotFound) {
		return bot.Member{}, ErrNotFound
	}
	return m, err
}
