package discord

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Jacobbrewer1/discordgo"
	"github.com/Jacobbrewer1/howl/pkg/command"
	"github.com/Jacobbrewer1/howl/pkg/entities"
	"github.com/Jacobbrewer1/howl/pkg/logging"
	"github.com/Jacobbrewer1/howl/pkg/transport"
)

var ticketCmd = &discordgo.ApplicationCommand{
	Name:        "ticket",
	Description: "Ticket system",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        string(command.NameOpen),
			Description: "Open a new ticket",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "category",
					Description: "What the ticket is about",
					Required:    true,
					Choices:     categoryChoices(),
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "subject",
					Description: "A short description",
					Required:    false,
				},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        string(command.NameClose),
			Description: "Close the ticket",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        string(command.NameStatus),
			Description: "Show your open ticket",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        string(command.NameDelete),
			Description: "Delete a closed ticket now (admins only)",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        string(command.NameHelp),
			Description: "Show the ticket categories",
		},
	},
}

func categoryChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(entities.Categories))
	for _, c := range entities.Categories {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  c.Title(),
			Value: string(c),
		})
	}
	return choices
}

// interactionHandler acknowledges the slash command straight away and queues it. The
// answer is sent later as a follow up.
func (c *Client) interactionHandler(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || i.GuildID != c.cfg.GuildID {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != ticketCmd.Name || len(data.Options) == 0 {
		return
	}

	sender := ""
	switch {
	case i.Member != nil && i.Member.User != nil:
		sender = i.Member.User.ID
	case i.User != nil:
		sender = i.User.ID
	default:
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		c.l.Error("Error acknowledging interaction", slog.String(logging.KeyError, err.Error()))
		return
	}

	interaction := i.Interaction
	c.push(&transport.CommandEvent{
		Room:   i.ChannelID,
		Sender: sender,
		Body:   commandBody(data.Options[0]),
		Reply: func(ctx context.Context, text string) error {
			if err := c.wait(ctx); err != nil {
				return err
			}
			_, err := s.FollowupMessageCreate(interaction, true, &discordgo.WebhookParams{
				Content: text,
			})
			return err
		},
		// The interaction was deferred and shows as pending until a followup arrives.
		MustReply: true,
	})
}

// commandBody renders a subcommand option as the text form the parser reads.
func commandBody(sub *discordgo.ApplicationCommandInteractionDataOption) string {
	parts := []string{command.Prefix, sub.Name}
	if sub.Name == string(command.NameOpen) {
		var category, subject string
		for _, o := range sub.Options {
			switch o.Name {
			case "category":
				category = o.StringValue()
			case "subject":
				subject = o.StringValue()
			}
		}
		parts = append(parts, category, subject)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// channelUpdateHandler reports member overwrites that were not on the channel before as invites.
func (c *Client) channelUpdateHandler(_ *discordgo.Session, e *discordgo.ChannelUpdate) {
	if e.Channel == nil || e.GuildID != c.cfg.GuildID {
		return
	}

	for _, target := range c.newMembers(e.Channel) {
		c.push(&transport.MembershipEvent{
			Room:       e.ID,
			Target:     target,
			Membership: transport.MembershipInvite,
		})
	}
}

// newMembers records the member overwrites of ch and returns those not seen before.
func (c *Client) newMembers(ch *discordgo.Channel) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	known := c.members[ch.ID]
	current := make(map[string]struct{})
	var added []string
	for _, o := range ch.PermissionOverwrites {
		if o.Type != discordgo.PermissionOverwriteTypeMember || o.ID == c.self {
			continue
		}
		current[o.ID] = struct{}{}
		if _, ok := known[o.ID]; !ok {
			added = append(added, o.ID)
		}
	}
	c.members[ch.ID] = current
	return added
}

// memberAddHandler reports guild joins. The guild is the room, so a ban removes them from the guild.
func (c *Client) memberAddHandler(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.Member == nil || e.Member.User == nil || e.GuildID != c.cfg.GuildID {
		return
	}
	c.push(&transport.MembershipEvent{
		Room:       e.GuildID,
		Target:     e.Member.User.ID,
		Membership: transport.MembershipJoin,
	})
}
