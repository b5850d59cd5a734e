package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jacobbrewer1/howl/pkg/clock"
	"github.com/Jacobbrewer1/howl/pkg/entities"
	"github.com/Jacobbrewer1/howl/pkg/events"
	"github.com/Jacobbrewer1/howl/pkg/logging"
	"github.com/Jacobbrewer1/howl/pkg/messages"
	"github.com/Jacobbrewer1/howl/pkg/registry"
	"github.com/Jacobbrewer1/howl/pkg/scheduler"
	"github.com/Jacobbrewer1/howl/pkg/transport"
)

// retryDelay is how long a timer driven transition waits before trying again after a store failure.
const retryDelay = time.Minute

// actorSystem is used in log room notices for timer driven transitions.
const actorSystem = "system"

// defaultStepTimeout bounds each call the engine makes to the transport or the publisher.
const defaultStepTimeout = 30 * time.Second

// Engine runs ticket transitions and the side effects each one triggers.
type Engine struct {
	l     *slog.Logger
	cfg   *entities.TicketingConfig
	reg   *registry.Registry
	sched *scheduler.Scheduler
	tr    transport.Transport
	pub   events.Publisher
	clock clock.Clock

	// stepTimeout bounds every collaborator call.
	stepTimeout time.Duration
}

// New creates an engine. A nil publisher drops lifecycle events.
func New(
	l *slog.Logger,
	cfg *entities.TicketingConfig,
	reg *registry.Registry,
	sched *scheduler.Scheduler,
	tr transport.Transport,
	pub events.Publisher,
	clk clock.Clock,
) *Engine {
	if pub == nil {
		pub = events.NewNopPublisher()
	}
	return &Engine{
		l:     l,
		cfg:   cfg,
		reg:   reg,
		sched: sched,
		tr:    tr,
		pub:   pub,
		clock: clk,

		stepTimeout: defaultStepTimeout,
	}
}

// step derives the context for a single collaborator call.
func (e *Engine) step(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.stepTimeout)
}

// Open creates a ticket for owner in a freshly provisioned room. If the owner already has an
// open ticket it is returned together with registry.ErrDuplicateOpenTicket.
func (e *Engine) Open(ctx context.Context, owner, selector, subject string) (*entities.Ticket, error) {
	l := e.l.With(slog.String(logging.KeyPrincipal, owner))

	category, ok := entities.ParseCategory(selector)
	if !ok {
		Transitions.WithLabelValues(transitionCreate, outcomeRejected).Inc()
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, selector)
	}

	if existing, ok := e.reg.FindByOwner(owner); ok {
		Transitions.WithLabelValues(transitionCreate, outcomeRejected).Inc()
		return existing, registry.ErrDuplicateOpenTicket
	}

	room, err := e.provision(ctx, l, category)
	if err != nil {
		Transitions.WithLabelValues(transitionCreate, outcomeFailed).Inc()
		return nil, err
	}
	l = l.With(slog.String(logging.KeyRoom, room))

	e.configureRoom(ctx, l, room, category, subject)
	for _, p := range e.invitees(owner) {
		stepCtx, cancel := e.step(ctx)
		err := e.tr.Invite(stepCtx, room, p)
		cancel()
		if err != nil {
			e.sideEffectFailed(l, "invite", err, slog.String("invitee", p))
		}
	}

	t, err := e.reg.Create(ctx, owner, room, category, subject, e.clock.Now())
	if err != nil {
		Transitions.WithLabelValues(transitionCreate, outcomeFailed).Inc()
		l.Error("Error registering ticket, abandoning room", slog.String(logging.KeyError, err.Error()))
		e.abandonRoom(ctx, l, room)
		return nil, err
	}
	l = l.With(slog.Int(logging.KeyTicket, t.ID))

	if e.cfg.Inactivity > 0 {
		e.sched.Schedule(scheduler.KindInactivity, registry.RefOf(t), e.cfg.Inactivity, e.AutoClose)
	}

	shownSubject := t.Subject
	if shownSubject == "" {
		shownSubject = "N/A"
	}
	e.notify(ctx, l, room, fmt.Sprintf(messages.TicketOpenedNotice, t.ID, owner, category.Title(), shownSubject))
	e.notifyLog(ctx, l, fmt.Sprintf(messages.LogRoomOpened, t.ID, category.Title(), owner, room))
	e.publish(ctx, l, events.TypeTicketCreated, t, owner)

	Transitions.WithLabelValues(transitionCreate, outcomeOK).Inc()
	e.refreshGauge()
	l.Info("Ticket opened", slog.String("category", string(category)))
	return t, nil
}

// provision creates the room, falling back to the plain private preset.
func (e *Engine) provision(ctx context.Context, l *slog.Logger, category entities.Category) (string, error) {
	name := RoomName(category)

	room, err := e.createRoom(ctx, transport.PresetTrustedPrivate, name)
	if err == nil {
		return room, nil
	}
	l.Warn("Error creating room with preferred preset, falling back",
		slog.String("preset", string(transport.PresetTrustedPrivate)),
		slog.String(logging.KeyError, err.Error()),
	)

	room, fallbackErr := e.createRoom(ctx, transport.PresetPrivate, name)
	if fallbackErr != nil {
		return "", fmt.Errorf("%w: %w", ErrRoomProvisioning, errors.Join(err, fallbackErr))
	}
	return room, nil
}

func (e *Engine) createRoom(ctx context.Context, preset transport.Preset, name string) (string, error) {
	ctx, cancel := e.step(ctx)
	defer cancel()
	return e.tr.CreateRoom(ctx, preset, name)
}

func (e *Engine) configureRoom(ctx context.Context, l *slog.Logger, room string, category entities.Category, subject string) {
	stepCtx, cancel := e.step(ctx)
	err := e.tr.SetRoomTopic(stepCtx, room, RoomTopic(category, subject))
	cancel()
	if err != nil {
		e.sideEffectFailed(l, "topic", err)
	}

	stepCtx, cancel = e.step(ctx)
	err = e.tr.SetPowerLevels(stepCtx, room, e.powerLevels())
	cancel()
	if err != nil {
		e.sideEffectFailed(l, "power_levels", err)
	}
}

func (e *Engine) powerLevels() transport.PowerLevels {
	users := map[string]int{e.tr.Self(): transport.PowerLevelAdmin}
	for _, a := range e.cfg.AdminPrincipals {
		if a != e.tr.Self() {
			users[a] = transport.PowerLevelModerator
		}
	}
	return transport.PowerLevels{
		Users:  users,
		Invite: transport.PowerLevelModerator,
		Kick:   transport.PowerLevelModerator,
		Ban:    transport.PowerLevelModerator,
		Events: map[string]int{
			"m.room.name":  transport.PowerLevelModerator,
			"m.room.topic": transport.PowerLevelModerator,
		},
	}
}

// invitees is the owner followed by every admin, without duplicates or the bot.
func (e *Engine) invitees(owner string) []string {
	seen := map[string]bool{e.tr.Self(): true}
	out := make([]string, 0, len(e.cfg.AdminPrincipals)+1)
	for _, p := range append([]string{owner}, e.cfg.AdminPrincipals...) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func (e *Engine) abandonRoom(ctx context.Context, l *slog.Logger, room string) {
	e.leaveAndDelete(ctx, l, room, "rollback_leave", "rollback_delete")
}

func (e *Engine) leaveAndDelete(ctx context.Context, l *slog.Logger, room, leaveStep, deleteStep string) {
	stepCtx, cancel := e.step(ctx)
	err := e.tr.LeaveRoom(stepCtx, room)
	cancel()
	if err != nil {
		e.sideEffectFailed(l, leaveStep, err)
	}

	stepCtx, cancel = e.step(ctx)
	err = e.tr.DeleteRoom(stepCtx, room)
	cancel()
	if err != nil {
		e.sideEffectFailed(l, deleteStep, err)
	}
}

// Close closes the ticket of the room the request came from, or the requester's own open
// ticket when the room has none. Only the owner or a principal with close authority may close.
func (e *Engine) Close(ctx context.Context, requester, room string) (*entities.Ticket, error) {
	t, ok := e.reg.FindByRoom(room)
	if !ok {
		t, ok = e.reg.FindByOwner(requester)
	}
	if !ok {
		Transitions.WithLabelValues(transitionClose, outcomeRejected).Inc()
		return nil, registry.ErrNotFound
	}

	// State first: a second close on a closed ticket is always InvalidTransition.
	if t.Status != entities.StatusOpen {
		Transitions.WithLabelValues(transitionClose, outcomeRejected).Inc()
		return t, fmt.Errorf("%w: ticket is %s", registry.ErrInvalidTransition, t.Status)
	}
	if t.Owner != requester && !e.hasCloseAuthority(ctx, t.Room, requester) {
		Transitions.WithLabelValues(transitionClose, outcomeRejected).Inc()
		return t, ErrUnauthorized
	}

	return e.close(ctx, registry.RefOf(t), requester, transitionClose)
}

// AutoClose is the inactivity timer callback.
func (e *Engine) AutoClose(ctx context.Context, ref registry.Ref) {
	l := e.l.With(slog.Int(logging.KeyTicket, ref.ID), slog.String(logging.KeyRoom, ref.Room))

	_, err := e.close(ctx, ref, "", transitionAutoClose)
	switch {
	case err == nil:
		TimerFirings.WithLabelValues(string(scheduler.KindInactivity), outcomeOK).Inc()
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, registry.ErrInvalidTransition):
		TimerFirings.WithLabelValues(string(scheduler.KindInactivity), outcomeNoop).Inc()
		l.Info("Inactivity timer fired for a ticket that is no longer open")
	case errors.Is(err, registry.ErrPersistence):
		TimerFirings.WithLabelValues(string(scheduler.KindInactivity), outcomeRetry).Inc()
		l.Warn("Error auto-closing ticket, retrying",
			slog.String(logging.KeyError, err.Error()),
			slog.Duration("retry_in", retryDelay),
		)
		e.sched.Schedule(scheduler.KindInactivity, ref, retryDelay, e.AutoClose)
	default:
		TimerFirings.WithLabelValues(string(scheduler.KindInactivity), outcomeFailed).Inc()
		l.Error("Error auto-closing ticket", slog.String(logging.KeyError, err.Error()))
	}
}

// close moves ref to closed. An empty actor means the inactivity timer.
func (e *Engine) close(ctx context.Context, ref registry.Ref, actor, kind string) (*entities.Ticket, error) {
	t, err := e.reg.Transition(ctx, ref, entities.StatusClosed, e.clock.Now())
	if err != nil {
		outcome := outcomeFailed
		if errors.Is(err, registry.ErrNotFound) || errors.Is(err, registry.ErrInvalidTransition) {
			outcome = outcomeNoop
		}
		Transitions.WithLabelValues(kind, outcome).Inc()
		return nil, err
	}
	l := e.l.With(
		slog.Int(logging.KeyTicket, t.ID),
		slog.String(logging.KeyRoom, t.Room),
		slog.String(logging.KeyPrincipal, t.Owner),
	)

	e.sched.Cancel(t.Room, scheduler.KindInactivity)
	e.sched.Schedule(scheduler.KindRetention, registry.RefOf(t), e.cfg.Retention, e.Expire)

	// A delete that ran since the transition has already reclaimed the room and said so.
	if cur, ok := e.reg.FindByRoom(t.Room); !ok || cur.ID != t.ID {
		e.sched.Cancel(t.Room, scheduler.KindRetention)
		Transitions.WithLabelValues(kind, outcomeOK).Inc()
		l.Info("Ticket deleted while closing, skipping close notices")
		return t, nil
	}

	retention := HumanDuration(e.cfg.Retention)
	logActor := actor
	if actor == "" {
		logActor = actorSystem
		e.notify(ctx, l, t.Room, fmt.Sprintf(messages.TicketAutoClosed, retention))
	} else {
		e.notify(ctx, l, t.Room, fmt.Sprintf(messages.TicketClosed, retention))
	}
	e.notifyLog(ctx, l, fmt.Sprintf(messages.LogRoomClosed, t.ID, logActor))

	if e.cfg.KickOnClose {
		for _, p := range e.invitees(t.Owner) {
			stepCtx, cancel := e.step(ctx)
			err := e.tr.Kick(stepCtx, t.Room, p, messages.KickReasonClosed)
			cancel()
			if err != nil && !errors.Is(err, transport.ErrNotMember) {
				e.sideEffectFailed(l, "kick_on_close", err, slog.String("target", p))
			}
		}
	}

	e.publish(ctx, l, events.TypeTicketClosed, t, actor)

	Transitions.WithLabelValues(kind, outcomeOK).Inc()
	e.refreshGauge()
	l.Info("Ticket closed", slog.String("by", logActor))
	return t, nil
}

// hasCloseAuthority reports whether principal may close or delete tickets in room.
func (e *Engine) hasCloseAuthority(ctx context.Context, room, principal string) bool {
	checkAdmins := e.cfg.CloseAuthority == entities.CloseAuthorityAdmins || e.cfg.CloseAuthority == entities.CloseAuthorityBoth
	checkPower := e.cfg.CloseAuthority == entities.CloseAuthorityPowerLevel || e.cfg.CloseAuthority == entities.CloseAuthorityBoth

	if checkAdmins && e.cfg.IsAdmin(principal) {
		return true
	}
	if !checkPower {
		return false
	}

	stepCtx, cancel := e.step(ctx)
	defer cancel()
	level, err := e.tr.PowerLevel(stepCtx, room, principal)
	if err != nil {
		e.l.Warn("Error getting power level",
			slog.String(logging.KeyRoom, room),
			slog.String(logging.KeyPrincipal, principal),
			slog.String(logging.KeyError, err.Error()),
		)
		return false
	}
	return level >= e.cfg.ClosePowerLevel
}

// Expire is the retention timer callback.
func (e *Engine) Expire(ctx context.Context, ref registry.Ref) {
	l := e.l.With(slog.Int(logging.KeyTicket, ref.ID), slog.String(logging.KeyRoom, ref.Room))

	// Removing the record first decides the race with any other deleter.
	gone, err := e.reg.Transition(ctx, ref, entities.StatusDeleted, e.clock.Now())
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, registry.ErrInvalidTransition):
		Transitions.WithLabelValues(transitionExpire, outcomeNoop).Inc()
		TimerFirings.WithLabelValues(string(scheduler.KindRetention), outcomeNoop).Inc()
		l.Info("Retention timer fired for a ticket that is no longer closed")
		return
	case errors.Is(err, registry.ErrPersistence):
		Transitions.WithLabelValues(transitionExpire, outcomeFailed).Inc()
		TimerFirings.WithLabelValues(string(scheduler.KindRetention), outcomeRetry).Inc()
		l.Warn("Error expiring ticket, retrying",
			slog.String(logging.KeyError, err.Error()),
			slog.Duration("retry_in", retryDelay),
		)
		e.sched.Schedule(scheduler.KindRetention, ref, retryDelay, e.Expire)
		return
	default:
		Transitions.WithLabelValues(transitionExpire, outcomeFailed).Inc()
		TimerFirings.WithLabelValues(string(scheduler.KindRetention), outcomeFailed).Inc()
		l.Error("Error expiring ticket", slog.String(logging.KeyError, err.Error()))
		return
	}

	e.reclaim(ctx, l, gone, "", messages.TicketDeleted)
	Transitions.WithLabelValues(transitionExpire, outcomeOK).Inc()
	TimerFirings.WithLabelValues(string(scheduler.KindRetention), outcomeOK).Inc()
}

// Delete removes a closed ticket ahead of its retention deadline.
func (e *Engine) Delete(ctx context.Context, requester, room string) (*entities.Ticket, error) {
	t, ok := e.reg.FindByRoom(room)
	if !ok {
		Transitions.WithLabelValues(transitionDelete, outcomeRejected).Inc()
		return nil, registry.ErrNotFound
	}
	if t.Status != entities.StatusClosed {
		Transitions.WithLabelValues(transitionDelete, outcomeRejected).Inc()
		return t, fmt.Errorf("%w: ticket is %s", registry.ErrInvalidTransition, t.Status)
	}
	if !e.hasCloseAuthority(ctx, room, requester) {
		Transitions.WithLabelValues(transitionDelete, outcomeRejected).Inc()
		return t, ErrUnauthorized
	}

	gone, err := e.reg.Transition(ctx, registry.RefOf(t), entities.StatusDeleted, e.clock.Now())
	if err != nil {
		Transitions.WithLabelValues(transitionDelete, outcomeFailed).Inc()
		return nil, err
	}

	l := e.l.With(slog.Int(logging.KeyTicket, gone.ID), slog.String(logging.KeyRoom, gone.Room))
	e.reclaim(ctx, l, gone, requester, fmt.Sprintf(messages.TicketDeletedByAdmin, requester))
	Transitions.WithLabelValues(transitionDelete, outcomeOK).Inc()
	return gone, nil
}

// reclaim runs the effects of reaching deleted. The record is already gone.
func (e *Engine) reclaim(ctx context.Context, l *slog.Logger, t *entities.Ticket, actor, notice string) {
	e.sched.CancelAll(t.Room)

	// Last trace of the room if reclaiming stops short.
	l.Warn("Reclaiming ticket room", slog.String(logging.KeyPrincipal, t.Owner))

	e.notify(ctx, l, t.Room, notice)
	e.leaveAndDelete(ctx, l, t.Room, "leave", "delete_room")

	e.notifyLog(ctx, l, fmt.Sprintf(messages.LogRoomDeleted, t.ID))
	e.publish(ctx, l, events.TypeTicketDeleted, t, actor)
	e.refreshGauge()
	l.Info("Ticket deleted")
}

// Status returns the ticket of room, or the requester's open ticket when the room has none.
func (e *Engine) Status(_ context.Context, requester, room string) (*entities.Ticket, error) {
	if t, ok := e.reg.FindByRoom(room); ok {
		return t, nil
	}
	if t, ok := e.reg.FindByOwner(requester); ok {
		return t, nil
	}
	return nil, registry.ErrNotFound
}

// RetentionRemaining is how long a closed ticket has left before it is deleted.
func (e *Engine) RetentionRemaining(t *entities.Ticket) time.Duration {
	remaining := e.cfg.Retention - e.clock.Now().Sub(t.ClosedAt.Time())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Recover schedules the deadlines of every loaded ticket. Deadlines that already passed fire promptly.
func (e *Engine) Recover(_ context.Context) {
	now := e.clock.Now()

	var open, closed int
	for _, t := range e.reg.Tickets() {
		ref := registry.RefOf(t)
		switch t.Status {
		case entities.StatusOpen:
			if e.cfg.Inactivity <= 0 {
				continue
			}
			delay := t.CreatedAt.Time().Add(e.cfg.Inactivity).Sub(now)
			e.sched.Schedule(scheduler.KindInactivity, ref, delay, e.AutoClose)
			open++
		case entities.StatusClosed:
			e.sched.Schedule(scheduler.KindRetention, ref, e.RetentionRemaining(t), e.Expire)
			closed++
		}
	}

	e.refreshGauge()
	e.l.Info("Ticket timers recovered", slog.Int("inactivity", open), slog.Int("retention", closed))
}

// RoomLink is the human join link for room, or the room id without a base URL.
func (e *Engine) RoomLink(room string) string {
	if link := e.cfg.RoomLink(room); link != "" {
		return link
	}
	return room
}

// Config is the ticketing policy the engine runs with.
func (e *Engine) Config() *entities.TicketingConfig {
	return e.cfg
}

func (e *Engine) notify(ctx context.Context, l *slog.Logger, room, text string) {
	ctx, cancel := e.step(ctx)
	defer cancel()
	if err := e.tr.SendMessage(ctx, room, text); err != nil {
		e.sideEffectFailed(l, "notice", err)
	}
}

func (e *Engine) notifyLog(ctx context.Context, l *slog.Logger, text string) {
	if e.cfg.LogRoom == "" {
		return
	}
	ctx, cancel := e.step(ctx)
	defer cancel()
	if err := e.tr.SendMessage(ctx, e.cfg.LogRoom, text); err != nil {
		e.sideEffectFailed(l, "log_room", err)
	}
}

func (e *Engine) publish(ctx context.Context, l *slog.Logger, typ events.Type, t *entities.Ticket, actor string) {
	ctx, cancel := e.step(ctx)
	defer cancel()
	if err := e.pub.Publish(ctx, events.NewTicketEnvelope(typ, t, actor, e.clock.Now())); err != nil {
		e.sideEffectFailed(l, "publish", err, slog.String("event", string(typ)))
	}
}

func (e *Engine) sideEffectFailed(l *slog.Logger, step string, err error, attrs ...any) {
	SideEffectFailures.WithLabelValues(step).Inc()
	args := append([]any{slog.String("step", step), slog.String(logging.KeyError, err.Error())}, attrs...)
	l.Warn("Best effort step failed", args...)
}

func (e *Engine) refreshGauge() {
	open, closed := e.reg.Counts()
	Tickets.WithLabelValues(string(entities.StatusOpen)).Set(float64(open))
	Tickets.WithLabelValues(string(entities.StatusClosed)).Set(float64(closed))
}
