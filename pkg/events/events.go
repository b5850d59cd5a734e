package events

import (
	"context"
	"time"

	"github.com/Jacobbrewer1/howl/pkg/entities"
	"github.com/google/uuid"
)

// Type is the routing key of a lifecycle event.
type Type string

const (
	TypeTicketCreated Type = "ticket.created"
	TypeTicketClosed  Type = "ticket.closed"
	TypeTicketDeleted Type = "ticket.deleted"
)

// Source names this service in event metadata.
const Source = "howl"

// Meta describes an event.
type Meta struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Envelope is what goes on the wire.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// TicketEvent is the payload of every lifecycle event.
type TicketEvent struct {
	Ticket *entities.Ticket `json:"ticket"`

	// Actor is the principal that caused the transition. Empty for timer driven transitions.
	Actor string `json:"actor,omitempty"`
}

// NewTicketEnvelope wraps a ticket transition.
func NewTicketEnvelope(t Type, ticket *entities.Ticket, actor string, at time.Time) Envelope {
	return Envelope{
		Meta: Meta{
			ID:         uuid.NewString(),
			Type:       t,
			Source:     Source,
			OccurredAt: at.UTC(),
		},
		Data: TicketEvent{
			Ticket: ticket,
			Actor:  actor,
		},
	}
}

// Publisher fans lifecycle events out to other services. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, msg Envelope) error
	Close() error
}

type nopPublisher struct{}

// NewNopPublisher returns a publisher that drops everything.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, Envelope) error {
	return nil
}

func (nopPublisher) Close() error {
	return nil
}
