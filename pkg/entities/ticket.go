package entities

import (
	"fmt"
	"strings"

	"github.com/Jacobbrewer1/howl/pkg/custom"
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	// StatusOpen is a ticket that is awaiting support.
	StatusOpen Status = "open"

	// StatusClosed is a ticket that has been closed and is waiting out its retention period.
	StatusClosed Status = "closed"

	// StatusDeleted is terminal. It is never persisted; reaching it removes the record.
	StatusDeleted Status = "deleted"
)

// rank orders the statuses. Transitions may only move to a higher rank.
func (s Status) rank() int {
	switch s {
	case StatusOpen:
		return 1
	case StatusClosed:
		return 2
	case StatusDeleted:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.rank() > 0
}

// CanTransitionTo reports whether moving from s to next is a single forward step.
func (s Status) CanTransitionTo(next Status) bool {
	return s.Valid() && next.rank() == s.rank()+1
}

// Persisted reports whether a ticket in this status has a durable record.
func (s Status) Persisted() bool {
	return s == StatusOpen || s == StatusClosed
}

// Category is the closed set of ticket categories.
type Category string

const (
	CategoryGeneral  Category = "general"
	CategoryPurchase Category = "purchase"
	CategoryOther    Category = "other"
)

// Categories lists the categories in menu order. The menu number is the index plus one.
var Categories = []Category{CategoryGeneral, CategoryPurchase, CategoryOther}

// ParseCategory resolves a numeric shorthand ("1".."3") or a canonical name.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, c := range Categories {
		if s == fmt.Sprintf("%d", i+1) || s == string(c) {
			return c, true
		}
	}
	return "", false
}

// Title returns the display name of the category.
func (c Category) Title() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// Ticket is a support request bound to exactly one room.
type Ticket struct {
	// ID is the number of the ticket. It is allocated once and never reused.
	ID int `json:"id" bson:"id"`

	// Owner is the principal that opened the ticket.
	Owner string `json:"owner" bson:"owner"`

	// Room is the room the ticket lives in. It never changes after creation.
	Room string `json:"room" bson:"room"`

	// Category is chosen when the ticket is opened.
	Category Category `json:"category" bson:"category"`

	// Subject is the optional free text given when the ticket was opened.
	Subject string `json:"subject,omitempty" bson:"subject,omitempty"`

	// Status is the lifecycle state.
	Status Status `json:"status" bson:"status"`

	// CreatedAt is the time that the ticket was created.
	CreatedAt custom.Datetime `json:"created_at" bson:"created_at"`

	// ClosedAt is unset while the ticket is open.
	ClosedAt custom.Datetime `json:"closed_at" bson:"closed_at"`
}

// Name is the human-readable name of the ticket, e.g. "Ticket #12 - Purchase".
func (t *Ticket) Name() string {
	return fmt.Sprintf("Ticket #%d - %s", t.ID, t.Category.Title())
}

// Clone returns a copy that is safe to hand out of the registry.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
