package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/onioktairawan/lordadmin/internal/auth"
	"github.com/onioktairawan/lordadmin/internal/bot"
	"github.com/onioktairawan/lordadmin/internal/identity"
	"github.com/onioktairawan/lordadmin/internal/journal"
	"github.com/onioktairawan/lordadmin/internal/logger"
	"github.com/onioktairawan/lordadmin/internal/moderation"
	"github.com/onioktairawan/lordadmin/internal/notify"
	"github.com/onioktairawan/lordadmin/internal/target"
	"github.com/onioktairawan/lordadmin/pkg/constants"
	"github.com/sirupsen/logrus"
)

// handlerFunc runs a command body. Errors are turned into a single reply
// by the dispatcher.
type handlerFunc func(ctx context.Context, rt *platformRuntime, ev bot.Event) (outcome, error)

type command struct {
	privileged bool
	handle     handlerFunc
}

// outcome is what a successful command produces
type outcome struct {
	reply  string        // sent to the originating chat
	audit  *notify.Audit // fanned out to admins after the reply
	report string        // raw text fanned out to admins after the reply
}

// platformStores are the moderation stores of one platform. They exist
// before an adapter is registered so the journal can be replayed into them.
type platformStores struct {
	identities *identity.Store
	moderation *moderation.State
}

// Platform call names carried by CollaboratorError
const (
	actionResolveMember    = "resolve_member"
	actionApplyRestriction = "apply_restriction"
	actionBanMember        = "ban_member"
	actionUnbanMember      = "unban_member"
)

// chatQueue holds the events of one chat waiting for its worker. Guarded by
// Engine.workersMu.
type chatQueue struct {
	pending []bot.Event
}

// platformRuntime binds a registered adapter to its stores
type platformRuntime struct {
	*platformStores
	platform string
	adapter  bot.Platform
	gate     *auth.Gate
	resolver *target.Resolver
	notifier *notify.Notifier
}

// Engine dispatches inbound chat events to command handlers.
//
// Events of one chat are handled in order by a dedicated worker; chats run
// concurrently. Mutations of one user are serialized by a per-user lock held
// from the platform call through the state commit.
type Engine struct {
	config   *Config
	messages Messages
	journal  journal.Journal
	timeout  time.Duration // bound on every platform call
	ttl      time.Duration // admin set validity window

	mu       sync.RWMutex
	stores   map[string]*platformStores  // platform -> stores
	runtimes map[string]*platformRuntime // platform -> registered adapter
	commands map[string]command
	locks    *userLocks
	events   chan bot.Event

	workersMu sync.Mutex
	workers   map[string]*chatQueue // platform:chat -> pending events
	workerWG  sync.WaitGroup
	notifyWG  sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates a new Engine instance. A nil journal keeps state in memory only.
func NewEngine(config *Config, j journal.Journal) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	if j == nil {
		j = journal.NewMemory()
	}
	timeout := config.Moderation.CollaboratorTimeoutDuration()
	if timeout <= 0 {
		timeout = constants.DefaultCollaboratorTimeout
	}
	ttl := config.Moderation.AdminCacheTTLDuration()
	if ttl <= 0 {
		ttl = constants.DefaultAdminCacheTTL
	}

	e := &Engine{
		config:   config,
		messages: DefaultMessages().withOverrides(config.Messages),
		journal:  j,
		timeout:  timeout,
		ttl:      ttl,
		stores:   make(map[string]*platformStores),
		runtimes: make(map[string]*platformRuntime),
		locks:    newUserLocks(),
		events:   make(chan bot.Event, constants.EventChannelBufferSize),
		workers:  make(map[string]*chatQueue),
		ctx:      ctx,
		cancel:   cancel,
	}
	e.registerCommands()
	return e
}

func (e *Engine) registerCommands() {
	e.commands = map[string]command{
		"start":  {handle: staticReply(e.messages.Start)},
		"help":   {handle: staticReply(e.messages.Help)},
		"rules":  {handle: staticReply(e.messages.Rules)},
		"menu":   {handle: staticReply(e.messages.Menu)},
		"info":   {handle: e.handleInfo},
		"report": {handle: e.handleReport},

		"warn":   {privileged: true, handle: e.handleWarn},
		"mute":   {privileged: true, handle: e.restrictHandler(true)},
		"unmute": {privileged: true, handle: e.restrictHandler(false)},
		"kick":   {privileged: true, handle: e.handleKick},
		"ban":    {privileged: true, handle: e.handleBan},
		"unban":  {privileged: true, handle: e.handleUnban},
		"sg":     {privileged: true, handle: e.handleIdentities},
	}
}

func (e *Engine) storesFor(platform string) *platformStores {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.stores[platform]
	if !ok {
		st = &platformStores{
			identities: identity.NewStore(),
			moderation: moderation.NewState(),
		}
		e.stores[platform] = st
	}
	return st
}

// IdentityStore returns the identity store of platform. Adapters that
// resolve handles from observed members are built with it.
func (e *Engine) IdentityStore(platform string) *identity.Store {
	return e.storesFor(platform).identities
}

// ModerationState returns the moderation state of platform
func (e *Engine) ModerationState(platform string) *moderation.State {
	return e.storesFor(platform).moderation
}

// RegisterBotAdapter registers a platform adapter under adapter.Name()
func (e *Engine) RegisterBotAdapter(adapter bot.Platform) {
	name := adapter.Name()
	rate := e.config.Moderation.NotifyRate
	if rate <= 0 {
		rate = constants.DefaultNotifyRate
	}
	burst := e.config.Moderation.NotifyBurst
	if burst <= 0 {
		burst = constants.DefaultNotifyBurst
	}

	gate := auth.NewGate(adapter, e.ttl, e.timeout)
	rt := &platformRuntime{
		platformStores: e.storesFor(name),
		platform:       name,
		adapter:        adapter,
		gate:           gate,
		resolver:       target.NewResolver(adapter, e.timeout),
		notifier:       notify.New(gate, adapter, rate, burst, e.timeout, notify.WithFormat(e.messages.audit)),
	}

	e.mu.Lock()
	e.runtimes[name] = rt
	e.mu.Unlock()
}

func (e *Engine) runtimeFor(platform string) *platformRuntime {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runtimes[platform]
}

// Replay rebuilds the stores from the journal
func (e *Engine) Replay(ctx context.Context) error {
	count := 0
	err := e.journal.Replay(ctx, func(entry journal.Entry) error {
		e.apply(entry)
		count++
		return nil
	})
	if err != nil {
		return err
	}
	logger.WithField("entries", count).Info("journal-replayed")
	return nil
}

// apply folds one journal entry into the stores
func (e *Engine) apply(entry journal.Entry) {
	st := e.storesFor(entry.Platform)
	switch entry.Kind {
	case journal.KindObserve:
		st.identities.ObserveAt(bot.Member{
			ID:          entry.UserID,
			DisplayName: entry.DisplayName,
			Handle:      entry.Handle,
		}, entry.Timestamp)
	case journal.KindBan:
		st.moderation.BanAt(entry.ChatID, entry.UserID, entry.Label, entry.Timestamp)
	case journal.KindUnban:
		st.moderation.Unban(entry.ChatID, entry.UserID)
	case journal.KindRestrict:
		st.moderation.SetRestricted(entry.ChatID, entry.UserID, entry.Restricted)
	case journal.KindWarn:
		st.moderation.Warn(entry.ChatID, entry.UserID)
	default:
		logger.WithFields(logrus.Fields{
			"entry_id": entry.ID,
			"kind":     entry.Kind,
		}).Warn("unknown-journal-entry-kind")
	}
}

// Run replays the journal, starts every registered adapter and processes
// events until ctx is cancelled or Stop is called
func (e *Engine) Run(ctx context.Context) error {
	logger.Info("starting-lordadmin-engine")

	if err := e.Replay(ctx); err != nil {
		return fmt.Errorf("failed to replay journal: %w", err)
	}

	e.mu.RLock()
	runtimes := make([]*platformRuntime, 0, len(e.runtimes))
	for _, rt := range e.runtimes {
		runtimes = append(runtimes, rt)
	}
	e.mu.RUnlock()

	for _, rt := range runtimes {
		logger.WithField("bot_type", rt.platform).Info("starting-bot")
		go func(rt *platformRuntime) {
			defer func() {
				if r := recover(); r != nil {
					logger.WithFields(logrus.Fields{
						"bot_type": rt.platform,
						"panic":    r,
					}).Error("bot-start-panic-recovered")
				}
			}()
			if err := rt.adapter.Start(e.HandleBotEvent); err != nil {
				logger.WithFields(logrus.Fields{
					"bot_type": rt.platform,
					"error":    err,
				}).Error("failed-to-start-bot")
			}
		}(rt)
	}

	e.runEventLoop(ctx)
	return nil
}

// runEventLoop routes events to per-chat workers
func (e *Engine) runEventLoop(ctx context.Context) {
	logger.Info("engine-event-loop-started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("event-loop-shutting-down")
			return
		case <-e.ctx.Done():
			logger.Info("event-loop-shutting-down")
			return
		case ev := <-e.events:
			e.route(ev)
		}
	}
}

// HandleBotEvent is the callback adapters deliver events to
func (e *Engine) HandleBotEvent(ev bot.Event) {
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	}
}

// route appends ev to its chat's queue, starting a worker when the chat has
// none. It never waits on a worker, so a slow chat cannot hold up the others.
func (e *Engine) route(ev bot.Event) {
	key := ev.Platform + ":" + ev.ChatID

	e.workersMu.Lock()
	defer e.workersMu.Unlock()

	if e.ctx.Err() != nil {
		return
	}
	q, ok := e.workers[key]
	if !ok {
		q = &chatQueue{}
		e.workers[key] = q
		e.workerWG.Add(1)
		go e.runChatWorker(key, q)
	}
	if len(q.pending) >= constants.MaxChatQueueLength {
		logger.WithFields(logrus.Fields{
			"platform": ev.Platform,
			"chat_id":  ev.ChatID,
			"pending":  len(q.pending),
		}).Warn("chat-queue-full-event-dropped")
		return
	}
	q.pending = append(q.pending, ev)
}

// runChatWorker drains q in order. It exits and forgets key once the queue
// is empty; the next event for the chat starts a fresh worker.
func (e *Engine) runChatWorker(key string, q *chatQueue) {
	defer e.workerWG.Done()
	for {
		e.workersMu.Lock()
		if len(q.pending) == 0 || e.ctx.Err() != nil {
			delete(e.workers, key)
			e.workersMu.Unlock()
			return
		}
		ev := q.pending[0]
		q.pending[0] = bot.Event{}
		q.pending = q.pending[1:]
		e.workersMu.Unlock()

		e.HandleEvent(e.ctx, ev)
	}
}

// activeWorkers returns the number of chats with a running worker
func (e *Engine) activeWorkers() int {
	e.workersMu.Lock()
	defer e.workersMu.Unlock()
	return len(e.workers)
}

// HandleEvent processes one event synchronously. Admin notifications it
// triggers run in the background; see Wait.
func (e *Engine) HandleEvent(ctx context.Context, ev bot.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	log := logger.WithComponent("engine").WithFields(logrus.Fields{
		"event_id": ev.ID,
		"platform": ev.Platform,
		"chat_id":  ev.ChatID,
		"kind":     ev.Kind.String(),
		"user_id":  ev.Actor.ID,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("event-handler-panic-recovered")
		}
	}()

	rt := e.runtimeFor(ev.Platform)
	if rt == nil {
		log.Warn("no-adapter-for-platform")
		return
	}

	switch ev.Kind {
	case bot.EventNewMembers:
		e.handleNewMembers(ctx, rt, ev)
	case bot.EventCommand:
		e.handleCommand(ctx, rt, ev, log)
	default:
		e.observe(ctx, rt, ev.Actor)
	}
}

func (e *Engine) handleNewMembers(ctx context.Context, rt *platformRuntime, ev bot.Event) {
	for _, m := range ev.Members {
		e.observe(ctx, rt, m)
		name := m.DisplayName
		if name == "" {
			name = m.Label()
		}
		e.reply(ctx, rt, ev, e.messages.welcome(name))
	}
}

// handleCommand classifies, authorizes and runs a command. A rejected
// privileged command leaves every store untouched, identities included.
func (e *Engine) handleCommand(ctx context.Context, rt *platformRuntime, ev bot.Event, log *logrus.Entry) {
	cmd := ev.Command
	log = log.WithField("command", cmd.Name)

	if !cmd.AddressedTo(rt.adapter.Username()) {
		log.WithField("mention", cmd.Mention).Debug("command-for-other-bot-ignored")
		e.observe(ctx, rt, ev.Actor)
		return
	}

	c, ok := e.commands[cmd.Name]
	if !ok {
		log.Debug("unknown-command")
		e.observe(ctx, rt, ev.Actor)
		e.reply(ctx, rt, ev, e.messages.Unknown)
		return
	}

	if c.privileged && !rt.gate.IsAdmin(ctx, ev.ChatID, ev.Actor.ID) {
		log.Info("command-rejected-not-admin")
		e.reply(ctx, rt, ev, e.errorReply(cmd.Name, ErrNotAuthorized))
		return
	}

	e.observe(ctx, rt, ev.Actor)
	if ev.ReplyTarget != nil {
		e.observe(ctx, rt, *ev.ReplyTarget)
	}

	out, err := c.handle(ctx, rt, ev)
	if err != nil {
		log.WithField("error", err).Info("command-failed")
		var collab *CollaboratorError
		if errors.As(err, &collab) && collab.Action != actionResolveMember {
			// a refused sanction often means rights changed; refetch admins next time
			rt.gate.Invalidate(ev.ChatID)
		}
		e.reply(ctx, rt, ev, e.errorReply(cmd.Name, err))
		return
	}

	if out.reply != "" {
		e.reply(ctx, rt, ev, out.reply)
	}
	if out.audit != nil {
		log.WithField("target", out.audit.Target).Info("command-committed")
		a := *out.audit
		e.fanOut(rt, ev.ChatID, func(ctx context.Context) (notify.Delivery, error) {
			return rt.notifier.Notify(ctx, a)
		})
	}
	if out.report != "" {
		text := out.report
		e.fanOut(rt, ev.ChatID, func(ctx context.Context) (notify.Delivery, error) {
			return rt.notifier.Broadcast(ctx, ev.ChatID, text)
		})
	}
}

// errorReply maps a command error to its user-visible text
func (e *Engine) errorReply(name string, err error) string {
	var collab *CollaboratorError
	var notFound *NotFoundError
	switch {
	case errors.Is(err, ErrNotAuthorized):
		return e.messages.NotAuthorized
	case errors.Is(err, ErrUsage):
		if name == "unban" {
			return e.messages.UnbanUsage
		}
		return e.messages.targetUsage(name)
	case errors.Is(err, ErrTargetNotFound):
		return e.messages.TargetNotFound
	case errors.As(err, &notFound):
		return fmt.Sprintf(e.messages.UnbanNotFound, notFound.Query)
	case errors.As(err, &collab):
		return fmt.Sprintf(e.messages.ActionFailed, name)
	default:
		return e.messages.Failed
	}
}

// fanOut runs an admin delivery in the background. Deliveries not started
// when the engine stops are abandoned.
func (e *Engine) fanOut(rt *platformRuntime, chatID string, deliver func(ctx context.Context) (notify.Delivery, error)) {
	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("panic", r).Error("admin-notify-panic-recovered")
			}
		}()

		d, err := deliver(e.ctx)
		fields := logrus.Fields{
			"platform": rt.platform,
			"chat_id":  chatID,
			"sent":     d.Sent,
			"failed":   d.Failed,
		}
		if err != nil {
			fields["error"] = err
			logger.WithFields(fields).Warn("admin-notify-incomplete")
			return
		}
		logger.WithFields(fields).Info("admins-notified")
	}()
}

// Wait blocks until every background notification has finished
func (e *Engine) Wait() {
	e.notifyWG.Wait()
}

// reply sends text to the channel ev came from
func (e *Engine) reply(ctx context.Context, rt *platformRuntime, ev bot.Event, text string) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := rt.adapter.SendMessage(ctx, ev.ReplyChannel(), text); err != nil {
		logger.WithFields(logrus.Fields{
			"event_id": ev.ID,
			"platform": rt.platform,
			"channel":  ev.ReplyChannel(),
			"error":    err,
		}).Error("failed-to-send-reply")
	}
}

// call runs one platform mutation under the collaborator timeout
func (e *Engine) call(ctx context.Context, action string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return collaboratorError(action, err)
	}
	return nil
}

// record appends a journal entry. The in-memory commit already happened,
// so a failed append is logged and the command still succeeds.
func (e *Engine) record(ctx context.Context, rt *platformRuntime, kind journal.Kind, fill func(*journal.Entry)) {
	entry := journal.NewEntry(kind)
	entry.Platform = rt.platform
	fill(&entry)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	if err := e.journal.Append(ctx, entry); err != nil {
		logger.WithFields(logrus.Fields{
			"entry_id": entry.ID,
			"kind":     kind,
			"error":    err,
		}).Error("journal-append-failed")
	}
}

// observe records m in the identity store under the member's lock
func (e *Engine) observe(ctx context.Context, rt *platformRuntime, m bot.Member) {
	if m.ID == "" {
		return
	}
	unlock := e.locks.lock(userKey(rt.platform, m.ID))
	defer unlock()
	e.observeLocked(ctx, rt, m)
}

// observeLocked is observe for callers already holding the member's lock
func (e *Engine) observeLocked(ctx context.Context, rt *platformRuntime, m bot.Member) {
	_, known := rt.identities.Get(m.ID)
	_, changes := rt.identities.Observe(m)
	if known && len(changes) == 0 {
		return
	}
	if len(changes) > 0 {
		logger.WithFields(logrus.Fields{
			"platform": rt.platform,
			"user_id":  m.ID,
			"changes":  len(changes),
		}).Info("identity-changed")
	}
	e.record(ctx, rt, journal.KindObserve, func(entry *journal.Entry) {
		entry.UserID = m.ID
		entry.DisplayName = m.DisplayName
		entry.Handle = m.Handle
	})
}

// resolveTarget finds the member a command is about
func (e *Engine) resolveTarget(ctx context.Context, rt *platformRuntime, ev bot.Event) (bot.Member, error) {
	res, err := rt.resolver.Resolve(ctx, ev.ChatID, ev.ReplyTarget, ev.Command.Args)
	if err != nil {
		if errors.Is(err, ErrUsage) || errors.Is(err, ErrTargetNotFound) {
			return bot.Member{}, err
		}
		return bot.Member{}, collaboratorError(actionResolveMember, err)
	}
	logger.WithFields(logrus.Fields{
		"platform": rt.platform,
		"chat_id":  ev.ChatID,
		"user_id":  res.Member.ID,
		"source":   res.Source.String(),
	}).Debug("target-resolved")
	return res.Member, nil
}

// withTarget resolves the target and runs fn holding the target's lock.
// The target is observed only when fn succeeds.
func (e *Engine) withTarget(ctx context.Context, rt *platformRuntime, ev bot.Event, fn func(tgt bot.Member) (outcome, error)) (outcome, error) {
	tgt, err := e.resolveTarget(ctx, rt, ev)
	if err != nil {
		return outcome{}, err
	}

	unlock := e.locks.lock(userKey(rt.platform, tgt.ID))
	defer unlock()

	out, err := fn(tgt)
	if err != nil {
		return outcome{}, err
	}
	e.observeLocked(ctx, rt, tgt)
	return out, nil
}

func actorName(m bot.Member) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Label()
}

func newAudit(ev bot.Event, action, targetLabel string) *notify.Audit {
	return &notify.Audit{
		ChatID: ev.ChatID,
		Actor:  actorName(ev.Actor),
		Action: action,
		Target: targetLabel,
	}
}

func staticReply(text string) handlerFunc {
	return func(context.Context, *platformRuntime, bot.Event) (outcome, error) {
		return outcome{reply: text}, nil
	}
}

func (e *Engine) handleInfo(_ context.Context, rt *platformRuntime, _ bot.Event) (outcome, error) {
	status := bot.StatusRunning
	if sr, ok := rt.adapter.(bot.StatusReporter); ok {
		status = sr.Status()
	}
	return outcome{reply: fmt.Sprintf(e.messages.Info, status)}, nil
}

func (e *Engine) handleReport(_ context.Context, _ *platformRuntime, ev bot.Event) (outcome, error) {
	reported := ""
	if ev.ReplyTarget != nil {
		reported = ev.ReplyTarget.Label()
	}
	return outcome{
		reply:  e.messages.ReportSent,
		report: e.messages.report(actorName(ev.Actor), ev.ChatID, reported, ev.Command.Args),
	}, nil
}

func (e *Engine) handleWarn(ctx context.Context, rt *platformRuntime, ev bot.Event) (outcome, error) {
	return e.withTarget(ctx, rt, ev, func(tgt bot.Member) (outcome, error) {
		count := rt.moderation.Warn(ev.ChatID, tgt.ID)
		e.record(ctx, rt, journal.KindWarn, func(entry *journal.Entry) {
			entry.ChatID = ev.ChatID
			entry.UserID = tgt.ID
			entry.Actor = ev.Actor.ID
		})
		return outcome{
			reply: fmt.Sprintf(e.messages.Warned, tgt.Label(), count),
			audit: newAudit(ev, "warn", tgt.Label()),
		}, nil
	})
}

// restrictHandler builds /mute (restrict=true) and /unmute (restrict=false)
func (e *Engine) restrictHandler(restrict bool) handlerFunc {
	action, text := "unmute", e.messages.Unmuted
	if restrict {
		action, text = "mute", e.messages.Muted
	}

	return func(ctx context.Context, rt *platformRuntime, ev bot.Event) (outcome, error) {
		return e.withTarget(ctx, rt, ev, func(tgt bot.Member) (outcome, error) {
			err := e.call(ctx, actionApplyRestriction, func(ctx context.Context) error {
				return rt.adapter.ApplyRestriction(ctx, ev.ChatID, tgt.ID, !restrict)
			})
			if err != nil {
				return outcome{}, err
			}

			if rt.moderation.SetRestricted(ev.ChatID, tgt.ID, restrict) {
				e.record(ctx, rt, journal.KindRestrict, func(entry *journal.Entry) {
					entry.ChatID = ev.ChatID
					entry.UserID = tgt.ID
					entry.Restricted = restrict
					entry.Actor = ev.Actor.ID
				})
			}
			return outcome{
				reply: fmt.Sprintf(text, tgt.Label()),
				audit: newAudit(ev, action, tgt.Label()),
			}, nil
		})
	}
}

func (e *Engine) handleKick(ctx context.Context, rt *platformRuntime, ev bot.Event) (outcome, error) {
	return e.withTarget(ctx, rt, ev, func(tgt bot.Member) (outcome, error) {
		err := e.call(ctx, actionBanMember, func(ctx context.Context) error {
			return rt.adapter.BanMember(ctx, ev.ChatID, tgt.ID)
		})
		if err != nil {
			return outcome{}, err
		}

		if e.config.Moderation.KickMode == KickModePermanent {
			e.commitBan(ctx, rt, ev, tgt)
		} else {
			err := e.call(ctx, actionUnbanMember, func(ctx context.Context) error {
				return rt.adapter.UnbanMember(ctx, ev.ChatID, tgt.ID)
			})
			if err != nil {
				// the ban stands on the platform, so record it for /unban
				logger.WithFields(logrus.Fields{
					"platform": rt.platform,
					"chat_id":  ev.ChatID,
					"user_id":  tgt.ID,
					"error":    err,
				}).Warn("kick-unban-failed-member-stays-banned")
				e.commitBan(ctx, rt, ev, tgt)
				return outcome{
					reply: fmt.Sprintf(e.messages.KickUnbanFailed, tgt.Label()),
					audit: newAudit(ev, "ban", tgt.Label()),
				}, nil
			}
		}
		return outcome{
			reply: fmt.Sprintf(e.messages.Kicked, tgt.Label()),
			audit: newAudit(ev, "kick", tgt.Label()),
		}, nil
	})
}

func (e *Engine) handleBan(ctx context.Context, rt *platformRuntime, ev bot.Event) (outcome, error) {
	return e.withTarget(ctx, rt, ev, func(tgt bot.Member) (outcome, error) {
		err := e.call(ctx, actionBanMember, func(ctx context.Context) error {
			return rt.adapter.BanMember(ctx, ev.ChatID, tgt.ID)
		})
		if err != nil {
			return outcome{}, err
		}
		e.commitBan(ctx, rt, ev, tgt)
		return outcome{
			reply: fmt.Sprintf(e.messages.Banned, tgt.Label()),
			audit: newAudit(ev, "ban", tgt.Label()),
		}, nil
	})
}

// commitBan stores the ban record once the platform confirmed the ban.
// Caller must hold the target's lock.
func (e *Engine) commitBan(ctx context.Context, rt *platformRuntime, ev bot.Event, tgt bot.Member) {
	rec := rt.moderation.Ban(ev.ChatID, tgt.ID, tgt.Label())
	e.record(ctx, rt, journal.KindBan, func(entry *journal.Entry) {
		entry.ChatID = ev.ChatID
		entry.UserID = rec.UserID
		entry.Label = rec.Label
		entry.Actor = ev.Actor.ID
	})
}

// handleUnban lifts a ban named by user ID or label. Without arguments a
// reply target's ID is used.
func (e *Engine) handleUnban(ctx context.Context, rt *platformRuntime, ev bot.Event) (outcome, error) {
	var query string
	switch {
	case len(ev.Command.Args) > 0:
		query = ev.Command.Args[0]
	case ev.ReplyTarget != nil:
		query = ev.ReplyTarget.ID
	default:
		return outcome{}, ErrUsage
	}

	rec, ok := rt.moderation.Find(ev.ChatID, query)
	if !ok {
		return outcome{}, &NotFoundError{Query: query}
	}

	unlock := e.locks.lock(userKey(rt.platform, rec.UserID))
	defer unlock()

	// another command may have lifted the ban while we waited
	if rec, ok = rt.moderation.Find(ev.ChatID, rec.UserID); !ok {
		return outcome{}, &NotFoundError{Query: query}
	}

	err := e.call(ctx, actionUnbanMember, func(ctx context.Context) error {
		return rt.adapter.UnbanMember(ctx, ev.ChatID, rec.UserID)
	})
	if err != nil {
		return outcome{}, err
	}

	rt.moderation.Unban(ev.ChatID, rec.UserID)
	e.record(ctx, rt, journal.KindUnban, func(entry *journal.Entry) {
		entry.ChatID = ev.ChatID
		entry.UserID = rec.UserID
		entry.Label = rec.Label
		entry.Actor = ev.Actor.ID
	})
	return outcome{
		reply: fmt.Sprintf(e.messages.Unbanned, rec.Label),
		audit: newAudit(ev, "unban", rec.Label),
	}, nil
}

func (e *Engine) handleIdentities(_ context.Context, rt *platformRuntime, _ bot.Event) (outcome, error) {
	return outcome{reply: e.messages.identities(rt.identities.All())}, nil
}

// Stop gracefully stops the engine
func (e *Engine) Stop() error {
	logger.Info("stopping-lordadmin-engine")

	// Cancel context to stop event loop and workers. route checks the
	// context under workersMu, so no worker starts after this.
	e.workersMu.Lock()
	e.cancel()
	e.workersMu.Unlock()

	e.mu.RLock()
	runtimes := make([]*platformRuntime, 0, len(e.runtimes))
	for _, rt := range e.runtimes {
		runtimes = append(runtimes, rt)
	}
	e.mu.RUnlock()

	// Stop all bots
	for _, rt := range runtimes {
		logger.WithField("bot_type", rt.platform).Info("stopping-bot")
		if err := rt.adapter.Stop(); err != nil {
			logger.WithFields(logrus.Fields{
				"bot_type": rt.platform,
				"error":    err,
			}).Error("failed-to-stop-bot")
		}
	}

	e.workerWG.Wait()
	e.notifyWG.Wait()

	if err := e.journal.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	logger.Info("engine-stopped")
	return nil
}
