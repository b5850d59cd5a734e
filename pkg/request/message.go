package request

import "fmt"

// Message is the JSON body of every monitoring server response that is not a metric or health report.
type Message struct {
	Message string `json:"Message"`
}

// NewMessage formats a Message. Args are only applied when given, so a bare message may contain '%'.
func NewMessage(message string, args ...any) *Message {
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	return &Message{Message: message}
}
