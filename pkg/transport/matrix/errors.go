package matrix

import (
	"errors"
	"fmt"
)

// Error is a structured error response from the homeserver.
type Error struct {
	Code         string `json:"errcode"`
	Message      string `json:"error"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
	StatusCode   int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

const (
	CodeForbidden     = "M_FORBIDDEN"
	CodeNotFound      = "M_NOT_FOUND"
	CodeLimitExceeded = "M_LIMIT_EXCEEDED"
	CodeUnknownToken  = "M_UNKNOWN_TOKEN"
)

// IsCode reports whether err is a homeserver error with the given code.
func IsCode(err error, code string) bool {
	var mErr *Error
	if errors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}
