package policy

import (
	"strings"

	"github.com/Jacobbrewer1/howl/pkg/entities"
)

// TicketFinder looks up the ticket bound to a room.
type TicketFinder interface {
	FindByRoom(room string) (*entities.Ticket, bool)
}

// Allowance is the result of asking who may be in a room.
type Allowance struct {
	// Restricted is false when the room has no ticket. Principals is then meaningless.
	Restricted bool

	// Principals are the only identities allowed in a restricted room.
	Principals map[string]struct{}
}

// Unrestricted is returned for rooms that are not ticket rooms.
var Unrestricted = Allowance{}

// Allows reports whether principal may be present.
func (a Allowance) Allows(principal string) bool {
	if !a.Restricted {
		return true
	}
	_, ok := a.Principals[principal]
	return ok
}

// Policy computes the allowed set for ticket rooms. It holds no state of its own.
type Policy struct {
	tickets TicketFinder
	admins  []string
	self    string
}

// New returns a policy that admits the ticket owner, the admins and self.
func New(tickets TicketFinder, admins []string, self string) *Policy {
	return &Policy{
		tickets: tickets,
		admins:  admins,
		self:    self,
	}
}

// AllowedPrincipals returns who may be present in room.
func (p *Policy) AllowedPrincipals(room string) Allowance {
	t, ok := p.tickets.FindByRoom(room)
	if !ok {
		return Unrestricted
	}

	set := make(map[string]struct{}, len(p.admins)+2)
	set[t.Owner] = struct{}{}
	for _, a := range p.admins {
		set[a] = struct{}{}
	}
	if p.self != "" {
		set[p.self] = struct{}{}
	}

	return Allowance{
		Restricted: true,
		Principals: set,
	}
}

// BanList is the process-wide set of principals that are never allowed anywhere.
type BanList map[string]struct{}

// NewBanList builds a ban list, ignoring blank entries.
func NewBanList(principals []string) BanList {
	b := make(BanList, len(principals))
	for _, p := range principals {
		p = strings.TrimSpace(p)
		if p != "" {
			b[p] = struct{}{}
		}
	}
	return b
}

// Banned reports whether principal is on the list.
func (b BanList) Banned(principal string) bool {
	_, ok := b[principal]
	return ok
}
