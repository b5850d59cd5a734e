package request

import "errors"

var (
	ErrNotFound         = errors.New("Not found")
	ErrMethodNotAllowed = errors.New("Method not allowed")
	ErrInternalServer   = errors.New("Internal server error")
)
