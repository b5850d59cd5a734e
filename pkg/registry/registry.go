package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Jacobbrewer1/howl/pkg/custom"
	"github.com/Jacobbrewer1/howl/pkg/dataaccess"
	"github.com/Jacobbrewer1/howl/pkg/entities"
	"github.com/Jacobbrewer1/howl/pkg/logging"
)

// Ref identifies a ticket without owning it. Timers hold a Ref and resolve it again before acting.
type Ref struct {
	ID   int
	Room string
}

// RefOf returns the reference to t.
func RefOf(t *entities.Ticket) Ref {
	return Ref{ID: t.ID, Room: t.Room}
}

// Registry is the single source of truth for ticket state. Every write goes to the
// durable store first and only then to memory, all under one lock.
type Registry struct {
	l   *slog.Logger
	dal dataaccess.TicketDal

	mu sync.RWMutex

	// byOwner holds open tickets only.
	byOwner map[string]*entities.Ticket

	// byRoom holds open and closed tickets.
	byRoom map[string]*entities.Ticket

	// lastID is the highest id ever allocated.
	lastID int
}

// New returns an empty registry over the store. Call Load before use.
func New(l *slog.Logger, dal dataaccess.TicketDal) *Registry {
	return &Registry{
		l:       l,
		dal:     dal,
		byOwner: make(map[string]*entities.Ticket),
		byRoom:  make(map[string]*entities.Ticket),
	}
}

// Load replaces the in-memory index with the contents of the store.
func (r *Registry) Load(ctx context.Context) error {
	tickets, highWater, err := r.dal.LoadTickets(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byOwner = make(map[string]*entities.Ticket, len(tickets))
	r.byRoom = make(map[string]*entities.Ticket, len(tickets))
	r.lastID = highWater

	for _, t := range tickets {
		if !t.Status.Persisted() {
			r.l.Warn("Skipping ticket with unexpected status",
				slog.Int(logging.KeyTicket, t.ID),
				slog.String("status", string(t.Status)),
			)
			continue
		}
		if t.Status == entities.StatusOpen {
			if prev, ok := r.byOwner[t.Owner]; ok {
				r.l.Warn("Owner has more than one open ticket in the store",
					slog.String(logging.KeyPrincipal, t.Owner),
					slog.Int("kept", prev.ID),
					slog.Int("unindexed", t.ID),
				)
			} else {
				r.byOwner[t.Owner] = t
			}
		}
		r.byRoom[t.Room] = t
		if t.ID > r.lastID {
			r.lastID = t.ID
		}
	}

	r.l.Info("Ticket registry loaded",
		slog.Int("tickets", len(r.byRoom)),
		slog.Int("last_id", r.lastID),
	)
	return nil
}

// Create allocates the next ticket id and records a new open ticket for the owner in room.
func (r *Registry) Create(ctx context.Context, owner, room string, category entities.Category, subject string, at time.Time) (*entities.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byOwner[owner]; ok {
		return nil, ErrDuplicateOpenTicket
	}
	if _, ok := r.byRoom[room]; ok {
		return nil, ErrDuplicateRoom
	}

	t := &entities.Ticket{
		ID:        r.lastID + 1,
		Owner:     owner,
		Room:      room,
		Category:  category,
		Subject:   subject,
		Status:    entities.StatusOpen,
		CreatedAt: custom.NewDatetime(at),
	}

	if err := r.dal.InsertTicket(ctx, t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	r.lastID = t.ID
	r.byOwner[owner] = t
	r.byRoom[room] = t
	return t.Clone(), nil
}

// Transition moves the referenced ticket one step forward. Moving to deleted removes the record.
// A zero ref.ID matches whichever ticket is in ref.Room.
func (r *Registry) Transition(ctx context.Context, ref Ref, next entities.Status, at time.Time) (*entities.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byRoom[ref.Room]
	if !ok || (ref.ID != 0 && t.ID != ref.ID) {
		return nil, ErrNotFound
	}
	if !t.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.Status, next)
	}

	if next == entities.StatusDeleted {
		if err := r.removeLocked(ctx, t); err != nil {
			return nil, err
		}
		gone := t.Clone()
		gone.Status = entities.StatusDeleted
		return gone, nil
	}

	closedAt := custom.NewDatetime(at)
	if err := r.dal.UpdateTicketStatus(ctx, t.Room, next, closedAt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	updated := t.Clone()
	updated.Status = next
	updated.ClosedAt = closedAt

	delete(r.byOwner, updated.Owner)
	r.byRoom[updated.Room] = updated
	return updated.Clone(), nil
}

// Remove deletes the ticket in room regardless of its status.
func (r *Registry) Remove(ctx context.Context, room string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byRoom[room]
	if !ok {
		return ErrNotFound
	}
	return r.removeLocked(ctx, t)
}

func (r *Registry) removeLocked(ctx context.Context, t *entities.Ticket) error {
	err := r.dal.DeleteTicket(ctx, t.Room)
	switch {
	case errors.Is(err, dataaccess.ErrNoTicket):
		r.l.Warn("Ticket was already missing from the store",
			slog.Int(logging.KeyTicket, t.ID),
			slog.String(logging.KeyRoom, t.Room),
		)
	case err != nil:
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if cur, ok := r.byOwner[t.Owner]; ok && cur.Room == t.Room {
		delete(r.byOwner, t.Owner)
	}
	delete(r.byRoom, t.Room)
	return nil
}

// FindByOwner returns the owner's open ticket.
func (r *Registry) FindByOwner(owner string) (*entities.Ticket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byOwner[owner]
	return t.Clone(), ok
}

// FindByRoom returns the open or closed ticket bound to room.
func (r *Registry) FindByRoom(room string) (*entities.Ticket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byRoom[room]
	return t.Clone(), ok
}

// Tickets returns a snapshot of every live ticket ordered by id.
func (r *Registry) Tickets() []*entities.Ticket {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entities.Ticket, 0, len(r.byRoom))
	for _, t := range r.byRoom {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts returns the number of open and closed tickets.
func (r *Registry) Counts() (open, closed int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.byRoom {
		switch t.Status {
		case entities.StatusOpen:
			open++
		case entities.StatusClosed:
			closed++
		}
	}
	return open, closed
}

// Ping checks the durable store.
func (r *Registry) Ping(ctx context.Context) error {
	return r.dal.Ping(ctx)
}
