package lifecycle

import "errors"

var (
	// ErrInvalidCategory is returned when the category selector does not name a category.
	ErrInvalidCategory = errors.New("invalid ticket category")

	// ErrUnauthorized is returned when the requester may not perform the action.
	ErrUnauthorized = errors.New("not authorized")

	// ErrRoomProvisioning is returned when no room could be created for a ticket.
	ErrRoomProvisioning = errors.New("room provisioning failed")
)
