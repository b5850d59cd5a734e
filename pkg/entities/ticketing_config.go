package entities

import (
	"fmt"
	"time"
)

// CloseAuthority selects who, other than the owner, may close a ticket.
type CloseAuthority string

const (
	// CloseAuthorityPowerLevel allows principals at or above ClosePowerLevel in the room.
	CloseAuthorityPowerLevel CloseAuthority = "power_level"

	// CloseAuthorityAdmins allows the configured admin principals.
	CloseAuthorityAdmins CloseAuthority = "admins"

	// CloseAuthorityBoth allows either.
	CloseAuthorityBoth CloseAuthority = "both"
)

const (
	// DefaultRetention is how long a closed ticket room is kept.
	DefaultRetention = 14 * 24 * time.Hour

	// DefaultInactivity is how long an open ticket may sit before it is closed automatically.
	DefaultInactivity = 10 * time.Minute

	// DefaultClosePowerLevel is the room power level that grants close authority.
	DefaultClosePowerLevel = 50
)

// TicketingConfig is the ticketing policy of the bot.
type TicketingConfig struct {
	// AdminPrincipals are invited to every ticket and always allowed in ticket rooms.
	AdminPrincipals []string `json:"admins" yaml:"admins"`

	// BannedPrincipals are removed from any room the bot sees them join.
	BannedPrincipals []string `json:"banned" yaml:"banned"`

	// LogRoom receives a summary of every new ticket. Empty disables it.
	LogRoom string `json:"log_room" yaml:"log_room"`

	// Retention is the delay between closing a ticket and deleting its room.
	Retention time.Duration `json:"retention" yaml:"retention"`

	// Inactivity is the delay after opening before the ticket is closed automatically. Zero disables it.
	Inactivity time.Duration `json:"inactivity" yaml:"inactivity"`

	// KickOnClose removes the owner and admins from the room as soon as the ticket closes.
	KickOnClose bool `json:"kick_on_close" yaml:"kick_on_close"`

	// CloseAuthority selects who besides the owner may close.
	CloseAuthority CloseAuthority `json:"close_authority" yaml:"close_authority"`

	// ClosePowerLevel is the power threshold used by the power_level authority.
	ClosePowerLevel int `json:"close_power_level" yaml:"close_power_level"`

	// PublicBaseURL is used to build room links for humans.
	PublicBaseURL string `json:"public_base_url" yaml:"public_base_url"`
}

// NewTicketingConfig returns the default ticketing policy.
func NewTicketingConfig() *TicketingConfig {
	return &TicketingConfig{
		Retention:       DefaultRetention,
		Inactivity:      DefaultInactivity,
		CloseAuthority:  CloseAuthorityBoth,
		ClosePowerLevel: DefaultClosePowerLevel,
	}
}

// Validate checks the policy for values the engine cannot work with.
func (c *TicketingConfig) Validate() error {
	if c.Retention < 0 {
		return fmt.Errorf("retention must not be negative, got %s", c.Retention)
	}
	if c.Inactivity < 0 {
		return fmt.Errorf("inactivity must not be negative, got %s", c.Inactivity)
	}
	switch c.CloseAuthority {
	case CloseAuthorityPowerLevel, CloseAuthorityAdmins, CloseAuthorityBoth:
	default:
		return fmt.Errorf("unknown close authority %q", c.CloseAuthority)
	}
	return nil
}

// IsAdmin reports whether principal is a configured admin.
func (c *TicketingConfig) IsAdmin(principal string) bool {
	for _, a := range c.AdminPrincipals {
		if a == principal {
			return true
		}
	}
	return false
}

// RoomLink builds the human-readable join link for a room, or "" without a base URL.
func (c *TicketingConfig) RoomLink(room string) string {
	if c.PublicBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/#/room/%s", c.PublicBaseURL, room)
}
