package enforcer

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/Jacobbrewer1/howl/pkg/entities"
	"github.com/Jacobbrewer1/howl/pkg/policy"
	"github.com/Jacobbrewer1/howl/pkg/transport"
	"github.com/stretchr/testify/require"
)

type kick struct {
	room, principal, reason string
}

type recordingKicker struct {
	kicks []kick
	err   error
}

func (k *recordingKicker) Kick(_ context.Context, room, principal, reason string) error {
	k.kicks = append(k.kicks, kick{room: room, principal: principal, reason: reason})
	return k.err
}

type roomTickets map[string]*entities.Ticket

func (r roomTickets) FindByRoom(room string) (*entities.Ticket, bool) {
	t, ok := r[room]
	return t, ok
}

func newTestEnforcer(k Kicker) *Enforcer {
	tickets := roomTickets{
		"!ticket:x": {ID: 1, Owner: "@owner:x", Room: "!ticket:x", Status: entities.StatusOpen},
	}
	p := policy.New(tickets, []string{"@admin:x"}, "@bot:x")
	return New(slog.Default(), p, policy.NewBanList([]string{"@spambot:x"}), k, "@bot:x")
}

func TestEnforcer_HandleMembership(t *testing.T) {
	tests := []struct {
		name       string
		ev         transport.MembershipEvent
		want       Outcome
		wantKicked bool
	}{
		{
			name: "leave ignored",
			ev:   transport.MembershipEvent{Room: "!ticket:x", Target: "@eve:x", Membership: transport.MembershipLeave},
			want: OutcomeIgnored,
		},
		{
			name: "owner joins",
			ev:   transport.MembershipEvent{Room: "!ticket:x", Target: "@owner:x", Membership: transport.MembershipJoin},
			want: OutcomeAllowed,
		},
		{
			name: "admin invited",
			ev:   transport.MembershipEvent{Room: "!ticket:x", Target: "@admin:x", Membership: transport.MembershipInvite},
			want: OutcomeAllowed,
		},
		{
			name: "self",
			ev:   transport.MembershipEvent{Room: "!ticket:x", Target: "@bot:x", Membership: transport.MembershipJoin},
			want: OutcomeAllowed,
		},
		{
			name:       "stranger invited into ticket room",
			ev:         transport.MembershipEvent{Room: "!ticket:x", Target: "@eve:x", Sender: "@owner:x", Membership: transport.MembershipInvite},
			want:       OutcomeKickedNotAllowed,
			wantKicked: true,
		},
		{
			name: "stranger in lobby",
			ev:   transport.MembershipEvent{Room: "!lobby:x", Target: "@eve:x", Membership: transport.MembershipJoin},
			want: OutcomeAllowed,
		},
		{
			name:       "banned in lobby",
			ev:         transport.MembershipEvent{Room: "!lobby:x", Target: "@spambot:x", Membership: transport.MembershipJoin},
			want:       OutcomeKickedBanned,
			wantKicked: true,
		},
		{
			name:       "banned invited into ticket room",
			ev:         transport.MembershipEvent{Room: "!ticket:x", Target: "@spambot:x", Sender: "@admin:x", Membership: transport.MembershipInvite},
			want:       OutcomeKickedBanned,
			wantKicked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := new(recordingKicker)
			e := newTestEnforcer(k)

			ev := tt.ev
			require.Equal(t, tt.want, e.HandleMembership(context.Background(), &ev))
			if tt.wantKicked {
				require.Equal(t, []kick{{room: ev.Room, principal: ev.Target, reason: k.kicks[0].reason}}, k.kicks)
				require.NotEmpty(t, k.kicks[0].reason)
			} else {
				require.Empty(t, k.kicks)
			}
		})
	}
}

func TestEnforcer_RepeatedJoinsAreIdempotent(t *testing.T) {
	k := &recordingKicker{}
	e := newTestEnforcer(k)
	ev := &transport.MembershipEvent{Room: "!ticket:x", Target: "@eve:x", Membership: transport.MembershipJoin}

	require.Equal(t, OutcomeKickedNotAllowed, e.HandleMembership(context.Background(), ev))

	// The second kick finds them already gone.
	k.err = transport.ErrNotMember
	require.Equal(t, OutcomeKickedNotAllowed, e.HandleMembership(context.Background(), ev))
	require.Len(t, k.kicks, 2)
}

func TestEnforcer_KickFailure(t *testing.T) {
	k := &recordingKicker{err: errors.New("forbidden")}
	e := newTestEnforcer(k)

	out := e.HandleMembership(context.Background(), &transport.MembershipEvent{Room: "!ticket:x", Target: "@eve:x", Membership: transport.MembershipJoin})
	require.Equal(t, OutcomeKickFailed, out)
	require.Len(t, k.kicks, 1, "failures are not retried")
}
