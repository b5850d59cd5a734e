package entities

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{in: "1", want: CategoryGeneral, ok: true},
		{in: "2", want: CategoryPurchase, ok: true},
		{in: "3", want: CategoryOther, ok: true},
		{in: "purchase", want: CategoryPurchase, ok: true},
		{in: " Other ", want: CategoryOther, ok: true},
		{in: "4", ok: false},
		{in: "", ok: false},
		{in: "billing", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCategory(tt.in)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_CanTransitionTo(t *testing.T) {
	require.True(t, StatusOpen.CanTransitionTo(StatusClosed))
	require.True(t, StatusClosed.CanTransitionTo(StatusDeleted))

	require.False(t, StatusOpen.CanTransitionTo(StatusOpen))
	require.False(t, StatusClosed.CanTransitionTo(StatusOpen))
	require.False(t, StatusOpen.CanTransitionTo(StatusDeleted))
	require.False(t, StatusDeleted.CanTransitionTo(StatusOpen))
	require.False(t, StatusDeleted.CanTransitionTo(StatusClosed))
	require.False(t, Status("").CanTransitionTo(StatusOpen))
}

func TestTicket_Name(t *testing.T) {
	tk := &Ticket{ID: 7, Category: CategoryPurchase}
	require.Equal(t, "Ticket #7 - Purchase", tk.Name())
}

func TestTicketingConfig(t *testing.T) {
	c := NewTicketingConfig()
	require.NoError(t, c.Validate())
	require.Equal(t, "", c.RoomLink("!a:b"))

	c.PublicBaseURL = "https://chat.example"
	require.Equal(t, "https://chat.example/#/room/!a:b", c.RoomLink("!a:b"))

	c.AdminPrincipals = []string{"@admin:example"}
	require.True(t, c.IsAdmin("@admin:example"))
	require.False(t, c.IsAdmin("@user:example"))

	c.CloseAuthority = "anyone"
	require.Error(t, c.Validate())
}
