package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Jacobbrewer1/howl/pkg/command"
	"github.com/Jacobbrewer1/howl/pkg/logging"
	"github.com/Jacobbrewer1/howl/pkg/transport"
)

const syncBackoff = 5 * time.Second

// Listen long-polls the homeserver and forwards membership changes and commands.
// The first sync forwards the current membership of every joined room but none of
// its commands. Invites to the bot are accepted.
func (c *Client) Listen(ctx context.Context, events chan<- any) error {
	since := ""
	first := true

	for {
		if ctx.Err() != nil {
			return nil
		}

		resp, err := c.sync(ctx, since, !first)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if IsCode(err, CodeUnknownToken) {
				return fmt.Errorf("access token rejected: %w", err)
			}
			c.l.Error("Sync failed", slog.String(logging.KeyError, err.Error()))

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(syncBackoff):
			}
			continue
		}

		for room := range resp.Rooms.Invite {
			if _, err := c.doRequest(ctx, http.MethodPost, clientPath+"/join/"+url.PathEscape(room), struct{}{}, nil); err != nil {
				c.l.Warn("Failed to accept invite",
					slog.String(logging.KeyRoom, room),
					slog.String(logging.KeyError, err.Error()),
				)
			}
		}

		for room, joined := range resp.Rooms.Join {
			for _, ev := range joined.State.Events {
				if ev.Type != "m.room.member" {
					continue
				}
				if !forward(ctx, events, c.translate(room, ev)) {
					return nil
				}
			}
			for _, ev := range joined.Timeline.Events {
				out := c.translate(room, ev)
				// Commands from before the first sync are stale. Membership still gets reconciled.
				if _, isCommand := out.(*transport.CommandEvent); isCommand && first {
					continue
				}
				if !forward(ctx, events, out) {
					return nil
				}
			}
		}

		since = resp.NextBatch
		first = false
	}
}

// forward delivers e, if any. It reports false once ctx is done.
func forward(ctx context.Context, events chan<- any, e any) bool {
	if e == nil {
		return true
	}
	select {
	case events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) sync(ctx context.Context, since string, wait bool) (*syncResponse, error) {
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}
	if wait {
		q.Set("timeout", strconv.FormatInt(c.syncTimeout.Milliseconds(), 10))
	} else {
		q.Set("timeout", "0")
	}

	body, err := c.doRequest(ctx, http.MethodGet, clientPath+"/sync", nil, q)
	if err != nil {
		return nil, err
	}

	resp := new(syncResponse)
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, fmt.Errorf("error decoding sync: %w", err)
	}
	return resp, nil
}

// translate turns a timeline event into a transport event, or nil if it is of no interest.
func (c *Client) translate(room string, ev event) any {
	switch ev.Type {
	case "m.room.member":
		if ev.StateKey == nil {
			return nil
		}
		var m memberContent
		if err := json.Unmarshal(ev.Content, &m); err != nil {
			return nil
		}
		return &transport.MembershipEvent{
			Room:       room,
			Target:     *ev.StateKey,
			Sender:     ev.Sender,
			Membership: transport.Membership(m.Membership),
		}

	case "m.room.message":
		if ev.Sender == c.self {
			return nil
		}
		var m messageContent
		if err := json.Unmarshal(ev.Content, &m); err != nil {
			return nil
		}
		body := strings.TrimSpace(m.Body)
		if !isCommand(body) {
			return nil
		}
		return &transport.CommandEvent{
			Room:   room,
			Sender: ev.Sender,
			Body:   body,
			Reply: func(ctx context.Context, text string) error {
				return c.SendMessage(ctx, room, text)
			},
		}
	}
	return nil
}

// isCommand reports whether body is addressed to the bot. Unknown subcommands still are.
func isCommand(body string) bool {
	_, err := command.Parse(body)
	return !errors.Is(err, command.ErrNotCommand)
}
