package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	// KeyError is the log key for errors.
	KeyError = "err"

	// KeyDal is the log key for the data access layer name.
	KeyDal = "dal"

	// KeyRoom is the log key for a room identifier.
	KeyRoom = "room"

	// KeyTicket is the log key for a ticket identifier.
	KeyTicket = "ticket_id"

	// KeyPrincipal is the log key for a principal identifier.
	KeyPrincipal = "principal"

	// KeyApp is the log key for the application name.
	KeyApp = "app"
)

// Name is the name of the application that is logging.
type Name string

// Config is the configuration for the common logger.
type Config struct {
	// Name is attached to every record.
	Name Name

	// Level is the minimum level that is written. Defaults to debug.
	Level slog.Level

	// AddSource adds the calling file and line to every record.
	AddSource bool
}

// NewConfig creates a logging configuration for the given application.
func NewConfig(name Name) *Config {
	level := slog.LevelDebug
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		if lvl, err := ParseLevel(env); err == nil {
			level = lvl
		}
	}

	return &Config{
		Name:      name,
		Level:     level,
		AddSource: true,
	}
}

// CommonLogger creates the JSON logger used across the application and sets it as the default.
func CommonLogger(c *Config) (*slog.Logger, error) {
	if c == nil {
		return nil, fmt.Errorf("logging config is nil")
	}
	if c.Name == "" {
		return nil, fmt.Errorf("logging config has no name")
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: c.AddSource,
		Level:     c.Level,
	})

	l := slog.New(h).With(slog.String(KeyApp, string(c.Name)))
	slog.SetDefault(l)
	return l, nil
}

// ParseLevel converts a textual level (debug, info, warn, error) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}
