package enforcer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Jacobbrewer1/howl/pkg/logging"
	"github.com/Jacobbrewer1/howl/pkg/messages"
	"github.com/Jacobbrewer1/howl/pkg/policy"
	"github.com/Jacobbrewer1/howl/pkg/transport"
)

// Outcome is what the enforcer did about a membership change.
type Outcome int

const (
	// OutcomeIgnored means the change was not an invite or a join.
	OutcomeIgnored Outcome = iota

	// OutcomeAllowed means the principal may be in the room, or the room is unrestricted.
	OutcomeAllowed

	// OutcomeKickedBanned means a banned principal was removed.
	OutcomeKickedBanned

	// OutcomeKickedNotAllowed means a principal outside the allowed set was removed.
	OutcomeKickedNotAllowed

	// OutcomeKickFailed means a removal was needed but the transport rejected it.
	OutcomeKickFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeAllowed:
		return "allowed"
	case OutcomeKickedBanned:
		return "kicked_banned"
	case OutcomeKickedNotAllowed:
		return "kicked_not_allowed"
	case OutcomeKickFailed:
		return "kick_failed"
	default:
		return "unknown"
	}
}

// Kicker removes principals from rooms.
type Kicker interface {
	Kick(ctx context.Context, room, principal, reason string) error
}

// Enforcer drives room membership toward what the policy allows.
type Enforcer struct {
	l      *slog.Logger
	policy *policy.Policy
	bans   policy.BanList
	kicker Kicker
	self   string
}

// New creates an enforcer. Self is never removed.
func New(l *slog.Logger, p *policy.Policy, bans policy.BanList, kicker Kicker, self string) *Enforcer {
	return &Enforcer{
		l:      l,
		policy: p,
		bans:   bans,
		kicker: kicker,
		self:   self,
	}
}

// HandleMembership reconciles one membership change. Removal failures are logged and not retried.
func (e *Enforcer) HandleMembership(ctx context.Context, ev *transport.MembershipEvent) Outcome {
	if ev.Membership != transport.MembershipInvite && ev.Membership != transport.MembershipJoin {
		return OutcomeIgnored
	}
	if ev.Target == e.self {
		return OutcomeAllowed
	}

	l := e.l.With(
		slog.String(logging.KeyRoom, ev.Room),
		slog.String(logging.KeyPrincipal, ev.Target),
		slog.String("membership", string(ev.Membership)),
	)

	if e.bans.Banned(ev.Target) {
		if !e.kick(ctx, l, ev, messages.KickReasonBanned) {
			return OutcomeKickFailed
		}
		l.Info("Removed banned principal")
		return OutcomeKickedBanned
	}

	if e.policy.AllowedPrincipals(ev.Room).Allows(ev.Target) {
		return OutcomeAllowed
	}

	if !e.kick(ctx, l, ev, messages.KickReasonNotAllowed) {
		return OutcomeKickFailed
	}
	l.Info("Removed principal not allowed in ticket room", slog.String("sender", ev.Sender))
	return OutcomeKickedNotAllowed
}

// kick reports whether the principal is out of the room afterwards.
func (e *Enforcer) kick(ctx context.Context, l *slog.Logger, ev *transport.MembershipEvent, reason string) bool {
	err := e.kicker.Kick(ctx, ev.Room, ev.Target, reason)
	switch {
	case err == nil, errors.Is(err, transport.ErrNotMember):
		return true
	default:
		l.Error("Error removing principal", slog.String(logging.KeyError, err.Error()))
		return false
	}
}
