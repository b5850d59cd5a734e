package registry

import "errors"

var (
	// ErrDuplicateOpenTicket is returned when the owner already has an open ticket.
	ErrDuplicateOpenTicket = errors.New("owner already has an open ticket")

	// ErrDuplicateRoom is returned when the room has already been bound to a ticket.
	ErrDuplicateRoom = errors.New("room already belongs to a ticket")

	// ErrInvalidTransition is returned when a status change does not move exactly one step forward.
	ErrInvalidTransition = errors.New("invalid ticket transition")

	// ErrNotFound is returned when there is no ticket for the room.
	ErrNotFound = errors.New("ticket not found")

	// ErrPersistence is returned when the durable store rejected a write. Memory is left untouched.
	ErrPersistence = errors.New("ticket persistence failed")

	// ErrStorageUnavailable is returned when the durable store could not be read at startup.
	ErrStorageUnavailable = errors.New("ticket storage unavailable")
)
