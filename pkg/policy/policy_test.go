package policy

import (
	"testing"

	"github.com/Jacobbrewer1/howl/pkg/entities"
	"github.com/stretchr/testify/require"
)

type roomTickets map[string]*entities.Ticket

func (r roomTickets) FindByRoom(room string) (*entities.Ticket, bool) {
	t, ok := r[room]
	return t, ok
}

func TestPolicy_AllowedPrincipals(t *testing.T) {
	p := New(roomTickets{
		"!ticket:x": {ID: 1, Owner: "@owner:x", Room: "!ticket:x", Status: entities.StatusOpen},
	}, []string{"@admin:x", "@admin2:x"}, "@bot:x")

	tests := []struct {
		name       string
		room       string
		principal  string
		restricted bool
		allowed    bool
	}{
		{name: "owner", room: "!ticket:x", principal: "@owner:x", restricted: true, allowed: true},
		{name: "admin", room: "!ticket:x", principal: "@admin2:x", restricted: true, allowed: true},
		{name: "self", room: "!ticket:x", principal: "@bot:x", restricted: true, allowed: true},
		{name: "stranger", room: "!ticket:x", principal: "@eve:x", restricted: true, allowed: false},
		{name: "non ticket room", room: "!lobby:x", principal: "@eve:x", restricted: false, allowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := p.AllowedPrincipals(tt.room)
			require.Equal(t, tt.restricted, a.Restricted)
			require.Equal(t, tt.allowed, a.Allows(tt.principal))
		})
	}
}

func TestPolicy_UnrestrictedIsNotEmpty(t *testing.T) {
	p := New(roomTickets{}, nil, "")

	a := p.AllowedPrincipals("!lobby:x")
	require.False(t, a.Restricted)
	require.True(t, a.Allows("@anyone:x"))

	empty := Allowance{Restricted: true}
	require.False(t, empty.Allows("@anyone:x"))
}

func TestBanList(t *testing.T) {
	b := NewBanList([]string{"@spam:x", " ", " @troll:x "})
	require.True(t, b.Banned("@spam:x"))
	require.True(t, b.Banned("@troll:x"))
	require.False(t, b.Banned("@friend:x"))
	require.False(t, b.Banned(""))
}
