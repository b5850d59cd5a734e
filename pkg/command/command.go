package command

import (
	"errors"
	"strings"
)

// Prefix marks messages addressed to the bot.
const Prefix = "!ticket"

// Name is a subcommand.
type Name string

const (
	NameHelp   Name = "help"
	NameOpen   Name = "open"
	NameClose  Name = "close"
	NameStatus Name = "status"
	NameDelete Name = "delete"
)

var (
	// ErrNotCommand is returned for text that is not addressed to the bot.
	ErrNotCommand = errors.New("not a ticket command")

	// ErrUnknownSubcommand is returned for a subcommand that does not exist.
	ErrUnknownSubcommand = errors.New("unknown subcommand")
)

// Command is a parsed ticket command.
type Command struct {
	Name Name

	// Category is the raw category selector given to open. It may be empty.
	Category string

	// Subject is the free text after the category, with its inner spacing kept.
	Subject string
}

// Parse reads "!ticket <subcommand> [category] [subject...]". A bare "!ticket" is a request for help.
func Parse(body string) (*Command, error) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, Prefix) {
		return nil, ErrNotCommand
	}
	rest := body[len(Prefix):]
	if rest != "" && !isSpace(rest[0]) {
		return nil, ErrNotCommand
	}

	sub, rest := nextField(rest)
	if sub == "" {
		return &Command{Name: NameHelp}, nil
	}

	cmd := &Command{Name: Name(strings.ToLower(sub))}
	switch cmd.Name {
	case NameOpen:
		cmd.Category, rest = nextField(rest)
		cmd.Subject = strings.TrimSpace(rest)
	case NameHelp, NameClose, NameStatus, NameDelete:
	default:
		return nil, ErrUnknownSubcommand
	}
	return cmd, nil
}

// nextField splits off the first whitespace separated field.
func nextField(s string) (field, rest string) {
	s = strings.TrimLeft(s, " \t\r\n")
	i := strings.IndexAny(s, " \t\r\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
