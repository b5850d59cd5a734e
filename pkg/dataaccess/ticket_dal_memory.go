package dataaccess

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Jacobbrewer1/howl/pkg/custom"
	"github.com/Jacobbrewer1/howl/pkg/entities"
)

// memoryTicketDal keeps tickets in process memory. Nothing survives a restart.
type memoryTicketDal struct {
	mu        sync.Mutex
	tickets   map[string]*entities.Ticket
	highWater int
}

// NewMemoryTicketDal returns a store that lives only as long as the process.
func NewMemoryTicketDal() TicketDal {
	return &memoryTicketDal{
		tickets: make(map[string]*entities.Ticket),
	}
}

func (d *memoryTicketDal) LoadTickets(_ context.Context) ([]*entities.Ticket, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*entities.Ticket, 0, len(d.tickets))
	for _, t := range d.tickets {
		out = append(out, t.Clone())
	}
	slices.SortFunc(out, func(a, b *entities.Ticket) int { return cmp.Compare(a.ID, b.ID) })
	return out, d.highWater, nil
}

func (d *memoryTicketDal) InsertTicket(_ context.Context, ticket *entities.Ticket) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !ticket.Status.Persisted() {
		return fmt.Errorf("status %q cannot be stored", ticket.Status)
	}
	if _, ok := d.tickets[ticket.Room]; ok {
		return fmt.Errorf("room %s already stored", ticket.Room)
	}
	for _, t := range d.tickets {
		if t.ID == ticket.ID {
			return fmt.Errorf("ticket %d already stored", ticket.ID)
		}
		if ticket.Status == entities.StatusOpen && t.Status == entities.StatusOpen && t.Owner == ticket.Owner {
			return fmt.Errorf("owner %s already has an open ticket", ticket.Owner)
		}
	}

	d.tickets[ticket.Room] = ticket.Clone()
	if ticket.ID > d.highWater {
		d.highWater = ticket.ID
	}
	return nil
}

func (d *memoryTicketDal) UpdateTicketStatus(_ context.Context, room string, status entities.Status, closedAt custom.Datetime) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tickets[room]
	if !ok {
		return ErrNoTicket
	}
	t.Status = status
	t.ClosedAt = closedAt
	return nil
}

func (d *memoryTicketDal) DeleteTicket(_ context.Context, room string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.tickets[room]; !ok {
		return ErrNoTicket
	}
	delete(d.tickets, room)
	return nil
}

func (d *memoryTicketDal) Ping(_ context.Context) error {
	return nil
}

func (d *memoryTicketDal) Close(_ context.Context) error {
	return nil
}
