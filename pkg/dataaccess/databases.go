package dataaccess

import (
	"context"
	"errors"

	"github.com/Jacobbrewer1/howl/pkg/custom"
	"github.com/Jacobbrewer1/howl/pkg/entities"
)

const (
	ticketDalName = "ticket_dal"

	mongoDatabase = "howl"

	ticketsTable  = "tickets"
	countersTable = "counters"

	// ticketSequence is the name of the ticket id high-water mark.
	ticketSequence = "tickets"
)

// ErrNoTicket is returned when no persisted ticket matches the room.
var ErrNoTicket = errors.New("ticket not found")

// TicketDal is the durable ticket table. Only open and closed tickets are stored; deletion is a physical removal.
type TicketDal interface {
	// LoadTickets returns every persisted ticket ordered by id, and the highest ticket id ever allocated.
	LoadTickets(ctx context.Context) ([]*entities.Ticket, int, error)

	// InsertTicket stores a new ticket and raises the id high-water mark to its ID.
	InsertTicket(ctx context.Context, ticket *entities.Ticket) error

	// UpdateTicketStatus changes the status of the ticket in room.
	UpdateTicketStatus(ctx context.Context, room string, status entities.Status, closedAt custom.Datetime) error

	// DeleteTicket removes the ticket in room. Returns ErrNoTicket if there is none.
	DeleteTicket(ctx context.Context, room string) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store.
	Close(ctx context.Context) error
}
