package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/howl/pkg/logging"
	"github.com/Jacobbrewer1/howl/pkg/messages"
	"github.com/Jacobbrewer1/howl/pkg/transport"
	"golang.org/x/time/rate"
)

const (
	// memberAllow is what an invited member may do in a ticket channel.
	memberAllow = discordgo.PermissionViewChannel |
		discordgo.PermissionSendMessages |
		discordgo.PermissionReadMessageHistory |
		discordgo.PermissionAttachFiles |
		discordgo.PermissionEmbedLinks

	// moderatorAllow is granted to principals with at least moderator power.
	moderatorAllow = memberAllow | discordgo.PermissionManageMessages

	// defaultPushTimeout is how long a gateway handler waits for room in the event buffer.
	defaultPushTimeout = 2 * time.Second
)

// Config holds the settings for a Discord bot.
type Config struct {
	Token         string
	ApplicationID string

	// GuildID is the guild tickets are created in.
	GuildID string

	// CategoryID is the channel category new ticket channels are placed under. Optional.
	CategoryID string

	// RequestsPerSecond limits outgoing REST calls. Zero disables the limit.
	RequestsPerSecond float64
}

// Client is a transport where rooms are guild text channels and membership is a
// member permission overwrite on the channel.
type Client struct {
	l       *slog.Logger
	cfg     Config
	s       *discordgo.Session
	limiter *rate.Limiter

	self string
	cmd  *discordgo.ApplicationCommand

	// events buffers translated gateway events until Listen forwards them.
	events      chan any
	pushTimeout time.Duration

	// notifier receives every raw gateway event for metrics.
	notifier chan any

	// members caches the member overwrites seen on each channel.
	mu      sync.Mutex
	members map[string]map[string]struct{}

	closeOnce sync.Once
}

var _ transport.Transport = (*Client)(nil)

// NewClient opens the gateway connection and registers the slash command in the guild.
func NewClient(l *slog.Logger, cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("bot token is required")
	}
	if cfg.GuildID == "" {
		return nil, errors.New("guild id is required")
	}

	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds | discordgo.IntentsGuildMembers)

	c := &Client{
		l:        l,
		cfg:      cfg,
		s:        dg,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		events:      make(chan any, 100),
		pushTimeout: defaultPushTimeout,
		notifier:    make(chan any, 100),
		members:     make(map[string]map[string]struct{}),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	dg.SetEventNotifier(c.notifier)
	dg.AddHandler(c.interactionHandler)
	dg.AddHandler(c.channelUpdateHandler)
	dg.AddHandler(c.memberAddHandler)

	go c.countEvents()

	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection to Discord: %w", err)
	}

	u, err := dg.User("@me")
	if err != nil {
		_ = dg.Close()
		return nil, fmt.Errorf("error getting bot user: %w", err)
	}
	c.self = u.ID

	appID := cfg.ApplicationID
	if appID == "" {
		appID = u.ID
	}
	c.cmd, err = dg.ApplicationCommandCreate(appID, cfg.GuildID, ticketCmd)
	if err != nil {
		_ = dg.Close()
		return nil, fmt.Errorf("error creating ticket command: %w", err)
	}

	return c, nil
}

func (c *Client) countEvents() {
	for e := range c.notifier {
		switch t := e.(type) {
		case *discordgo.Event:
			if t.Type != "" {
				GatewayEvents.WithLabelValues(t.Type).Inc()
			} else {
				GatewayEvents.WithLabelValues(strings.ToUpper(t.Operation.String())).Inc()
			}
		default:
			GatewayEvents.WithLabelValues("UNKNOWN").Inc()
		}
	}
}

func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

func (c *Client) Self() string {
	return c.self
}

// CreateRoom creates a text channel hidden from everyone but the bot. Discord has no
// room presets, so both presets give the same channel.
func (c *Client) CreateRoom(ctx context.Context, preset transport.Preset, name string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	ch, err := c.s.GuildChannelCreateComplex(c.cfg.GuildID, discordgo.GuildChannelCreateData{
		Name:     channelName(name),
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: c.cfg.CategoryID,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			// Deny @everyone from seeing the ticket.
			{
				ID:   c.cfg.GuildID,
				Type: discordgo.PermissionOverwriteTypeRole,
				Deny: discordgo.PermissionViewChannel,
			},
			{
				ID:    c.self,
				Type:  discordgo.PermissionOverwriteTypeMember,
				Allow: moderatorAllow | discordgo.PermissionManageChannels | discordgo.PermissionManageRoles,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("error creating channel: %w", err)
	}

	c.l.Debug("Channel created",
		slog.String(logging.KeyRoom, ch.ID),
		slog.String("preset", string(preset)),
	)
	return ch.ID, nil
}

// channelName turns "Ticket - General" into "ticket-general".
func channelName(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	if len(fields) == 0 {
		return "ticket"
	}
	return strings.Join(fields, "-")
}

func (c *Client) SetRoomTopic(ctx context.Context, room, topic string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, err := c.s.ChannelEditComplex(room, &discordgo.ChannelEdit{Topic: topic}); err != nil {
		return fmt.Errorf("error setting topic: %w", err)
	}
	return nil
}

// SetPowerLevels grants message management to users at moderator level or above.
// Discord channels have no per-action thresholds, so the rest of levels is not applied.
func (c *Client) SetPowerLevels(ctx context.Context, room string, levels transport.PowerLevels) error {
	var errs []error
	for user, lvl := range levels.Users {
		if lvl < transport.PowerLevelModerator || user == c.self {
			continue
		}
		if err := c.wait(ctx); err != nil {
			return err
		}
		if err := c.s.ChannelPermissionSet(room, user, discordgo.PermissionOverwriteTypeMember, moderatorAllow, 0); err != nil {
			errs = append(errs, fmt.Errorf("error granting %s: %w", user, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Client) Invite(ctx context.Context, room, principal string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if err := c.s.ChannelPermissionSet(room, principal, discordgo.PermissionOverwriteTypeMember, memberAllow, 0); err != nil {
		return fmt.Errorf("error inviting %s: %w", principal, err)
	}
	return nil
}

// Kick removes the member's overwrite on the channel. Kicking from the guild itself
// removes the member from the guild.
func (c *Client) Kick(ctx context.Context, room, principal, reason string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	if room == c.cfg.GuildID {
		if err := c.s.GuildMemberDeleteWithReason(c.cfg.GuildID, principal, reason); err != nil {
			return fmt.Errorf("error removing %s from guild: %w", principal, err)
		}
		return nil
	}

	ch, err := c.s.Channel(room)
	if err != nil {
		return fmt.Errorf("error getting channel: %w", err)
	}
	if !hasMemberOverwrite(ch, principal) {
		return transport.ErrNotMember
	}

	if err := c.s.ChannelPermissionDelete(room, principal); err != nil {
		return fmt.Errorf("error kicking %s: %w", principal, err)
	}
	return nil
}

func hasMemberOverwrite(ch *discordgo.Channel, principal string) bool {
	for _, o := range ch.PermissionOverwrites {
		if o.Type == discordgo.PermissionOverwriteTypeMember && o.ID == principal {
			return true
		}
	}
	return false
}

// LeaveRoom is a no-op. A bot cannot leave a channel of a guild it is in.
func (c *Client) LeaveRoom(_ context.Context, _ string) error {
	return nil
}

func (c *Client) DeleteRoom(ctx context.Context, room string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, err := c.s.ChannelDelete(room); err != nil {
		return fmt.Errorf("error deleting channel: %w", err)
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, room, text string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if _, err := c.s.ChannelMessageSend(room, text); err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}
	return nil
}

// PowerLevel maps channel permissions onto power levels: administrators are 100 and
// members who can manage the channel are 50.
func (c *Client) PowerLevel(ctx context.Context, room, principal string) (int, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	perms, err := c.s.UserChannelPermissions(principal, room)
	if err != nil {
		return 0, fmt.Errorf("error getting permissions: %w", err)
	}
	return powerLevel(perms), nil
}

func powerLevel(perms int64) int {
	switch {
	case perms&discordgo.PermissionAdministrator != 0:
		return transport.PowerLevelAdmin
	case perms&discordgo.PermissionManageChannels != 0:
		return transport.PowerLevelModerator
	default:
		return 0
	}
}

// Listen forwards translated gateway events until ctx is done.
func (c *Client) Listen(ctx context.Context, events chan<- any) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-c.events:
			select {
			case events <- e:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (c *Client) Ping(_ context.Context) error {
	if _, err := c.s.User("@me"); err != nil {
		return fmt.Errorf("error reaching Discord: %w", err)
	}
	return nil
}

// Close removes the slash command and closes the gateway connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cmd != nil {
			if dErr := c.s.ApplicationCommandDelete(c.cmd.ApplicationID, c.cfg.GuildID, c.cmd.ID); dErr != nil {
				c.l.Warn("Error deleting ticket command", slog.String(logging.KeyError, dErr.Error()))
			}
		}
		if cErr := c.s.Close(); cErr != nil {
			err = fmt.Errorf("error closing connection to Discord: %w", cErr)
		}
	})
	return err
}

// push queues e for Listen. When the buffer stays full for pushTimeout the event is
// dropped, and a command that is owed a reply is told to try again.
func (c *Client) push(e any) {
	select {
	case c.events <- e:
		return
	default:
	}

	t := time.NewTimer(c.pushTimeout)
	defer t.Stop()

	select {
	case c.events <- e:
		return
	case <-t.C:
	}

	c.l.Warn("Event buffer full, dropping event", slog.String("type", fmt.Sprintf("%T", e)))

	ev, ok := e.(*transport.CommandEvent)
	if !ok || !ev.MustReply || ev.Reply == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.pushTimeout)
	defer cancel()
	if err := ev.Reply(ctx, messages.ErrUserErrorProcessing); err != nil {
		c.l.Error("Error answering dropped command", slog.String(logging.KeyError, err.Error()))
	}
}
