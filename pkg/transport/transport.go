package transport

import (
	"context"
	"errors"
)

// Preset is the visibility configuration requested when creating a room.
type Preset string

const (
	// PresetTrustedPrivate is a private room where invitees share the creator's power.
	PresetTrustedPrivate Preset = "trusted_private_chat"

	// PresetPrivate is a plain invite-only room.
	PresetPrivate Preset = "private_chat"
)

// Membership is the state of a principal in a room.
type Membership string

const (
	MembershipInvite Membership = "invite"
	MembershipJoin   Membership = "join"
	MembershipLeave  Membership = "leave"
	MembershipBan    Membership = "ban"
	MembershipKnock  Membership = "knock"
)

// Levels used when locking down a ticket room.
const (
	PowerLevelAdmin     = 100
	PowerLevelModerator = 50
)

// PowerLevels is the authority configuration applied to a room.
type PowerLevels struct {
	// Users maps principals to their level. Entries are merged over the room's existing levels.
	Users map[string]int

	Invite int
	Kick   int
	Ban    int

	// Events maps state event types to the level required to send them.
	Events map[string]int
}

// ErrNotMember is returned by Kick when the principal is not in the room.
var ErrNotMember = errors.New("principal is not in the room")

// Transport is the chat platform.
type Transport interface {
	// Self is the principal the bot acts as.
	Self() string

	// CreateRoom provisions a room and returns its identifier.
	CreateRoom(ctx context.Context, preset Preset, name string) (string, error)

	SetRoomTopic(ctx context.Context, room, topic string) error
	SetPowerLevels(ctx context.Context, room string, levels PowerLevels) error
	Invite(ctx context.Context, room, principal string) error
	Kick(ctx context.Context, room, principal, reason string) error
	LeaveRoom(ctx context.Context, room string) error

	// DeleteRoom reclaims the room. Platforms that cannot delete only forget it.
	DeleteRoom(ctx context.Context, room string) error

	SendMessage(ctx context.Context, room, text string) error

	// PowerLevel returns the authority level of principal in room.
	PowerLevel(ctx context.Context, room, principal string) (int, error)

	// Listen delivers *MembershipEvent and *CommandEvent values to events until ctx is done.
	Listen(ctx context.Context, events chan<- any) error

	// Ping checks that the platform is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// MembershipEvent reports a change to a principal's membership of a room.
type MembershipEvent struct {
	Room       string
	Target     string
	Sender     string
	Membership Membership
}

// CommandEvent is a message addressed to the bot.
type CommandEvent struct {
	// Room is where the command was issued.
	Room string

	// Sender is the requesting principal.
	Sender string

	// Body is the raw command text, e.g. "!ticket open 2 refund".
	Body string

	// Reply answers the requester. It is set by the transport.
	Reply func(ctx context.Context, text string) error

	// MustReply is set when the platform is waiting on an answer to every command.
	MustReply bool
}
