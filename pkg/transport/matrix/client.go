package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Jacobbrewer1/howl/pkg/logging"
	"github.com/Jacobbrewer1/howl/pkg/transport"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	clientPath = "/_matrix/client/v3"

	maxResponseSize = 8 << 20

	// maxRetryAfter caps how long a rate limited request waits before its single retry.
	maxRetryAfter = 10 * time.Second

	defaultRequestTimeout = 30 * time.Second
)

// Config holds the settings for a homeserver connection.
type Config struct {
	// HomeserverURL is the base URL, e.g. "https://matrix.example.org".
	HomeserverURL string

	// AccessToken authenticates the bot.
	AccessToken string

	// UserID is the bot. Looked up with whoami when empty.
	UserID string

	// PurgeRooms uses the Synapse admin API to delete rooms. Otherwise rooms are only forgotten.
	PurgeRooms bool

	// RequestsPerSecond limits outgoing calls. Zero disables the limit.
	RequestsPerSecond float64

	// SyncTimeout is how long the homeserver holds a sync open. Defaults to 30 seconds.
	SyncTimeout time.Duration

	// RequestTimeout is how long a request may take on top of SyncTimeout. Defaults to 30 seconds.
	RequestTimeout time.Duration

	// HTTPClient defaults to a client limited to SyncTimeout plus RequestTimeout.
	HTTPClient *http.Client
}

// Client is a transport backed by the Matrix client-server API.
type Client struct {
	l           *slog.Logger
	baseURL     string
	token       string
	self        string
	purge       bool
	syncTimeout time.Duration
	httpClient  *http.Client
	limiter     *rate.Limiter
}

var _ transport.Transport = (*Client)(nil)

// NewClient connects to the homeserver and resolves the bot's identity.
func NewClient(ctx context.Context, l *slog.Logger, cfg Config) (*Client, error) {
	if cfg.HomeserverURL == "" {
		return nil, errors.New("homeserver url is required")
	}
	if _, err := url.Parse(cfg.HomeserverURL); err != nil {
		return nil, fmt.Errorf("invalid homeserver url %q: %w", cfg.HomeserverURL, err)
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("access token is required")
	}

	c := &Client{
		l:           l,
		baseURL:     strings.TrimRight(cfg.HomeserverURL, "/"),
		token:       cfg.AccessToken,
		self:        cfg.UserID,
		purge:       cfg.PurgeRooms,
		syncTimeout: cfg.SyncTimeout,
		httpClient:  cfg.HTTPClient,
		limiter:     rate.NewLimiter(rate.Inf, 1),
	}
	if c.syncTimeout <= 0 {
		c.syncTimeout = 30 * time.Second
	}
	if c.httpClient == nil {
		requestTimeout := cfg.RequestTimeout
		if requestTimeout <= 0 {
			requestTimeout = defaultRequestTimeout
		}
		c.httpClient = &http.Client{Timeout: c.syncTimeout + requestTimeout}
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	if c.self == "" {
		body, err := c.doRequest(ctx, http.MethodGet, clientPath+"/account/whoami", nil, nil)
		if err != nil {
			return nil, fmt.Errorf("error resolving bot identity: %w", err)
		}
		var who whoAmIResponse
		if err := json.Unmarshal(body, &who); err != nil {
			return nil, fmt.Errorf("error decoding whoami: %w", err)
		}
		c.self = who.UserID
	}

	return c, nil
}

// doRequest sends a request and returns the body of a 2xx response. Errors from the
// homeserver come back as *Error. A rate limited request is retried once.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, query url.Values) ([]byte, error) {
	resp, err := c.do(ctx, method, path, body, query)
	var mErr *Error
	if errors.As(err, &mErr) && mErr.Code == CodeLimitExceeded {
		wait := time.Duration(mErr.RetryAfterMs) * time.Millisecond
		if wait <= 0 || wait > maxRetryAfter {
			wait = maxRetryAfter
		}
		c.l.Warn("Rate limited by homeserver, retrying",
			slog.String("path", path),
			slog.Duration("wait", wait),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		return c.do(ctx, method, path, body, query)
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	mErr := new(Error)
	if err := json.Unmarshal(respBody, mErr); err != nil || mErr.Code == "" {
		return nil, fmt.Errorf("unexpected %d from %s %s: %s", resp.StatusCode, method, path, string(respBody))
	}
	mErr.StatusCode = resp.StatusCode
	return nil, mErr
}

func roomPath(room string, parts ...string) string {
	p := clientPath + "/rooms/" + url.PathEscape(room)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *Client) Self() string {
	return c.self
}

func (c *Client) CreateRoom(ctx context.Context, preset transport.Preset, name string) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, clientPath+"/createRoom", createRoomRequest{
		Preset:     string(preset),
		Name:       name,
		Visibility: "private",
	}, nil)
	if err != nil {
		return "", fmt.Errorf("error creating room: %w", err)
	}

	var resp createRoomResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("error decoding created room: %w", err)
	}

	c.l.Debug("Room created",
		slog.String(logging.KeyRoom, resp.RoomID),
		slog.String("preset", string(preset)),
	)
	return resp.RoomID, nil
}

func (c *Client) SetRoomTopic(ctx context.Context, room, topic string) error {
	_, err := c.doRequest(ctx, http.MethodPut, roomPath(room, "state", "m.room.topic", ""), topicContent{Topic: topic}, nil)
	if err != nil {
		return fmt.Errorf("error setting topic: %w", err)
	}
	return nil
}

// SetPowerLevels merges levels over the room's current power levels.
func (c *Client) SetPowerLevels(ctx context.Context, room string, levels transport.PowerLevels) error {
	path := roomPath(room, "state", "m.room.power_levels", "")

	current := make(map[string]any)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	switch {
	case IsCode(err, CodeNotFound):
	case err != nil:
		return fmt.Errorf("error getting power levels: %w", err)
	default:
		if err := json.Unmarshal(body, &current); err != nil {
			return fmt.Errorf("error decoding power levels: %w", err)
		}
	}

	users, _ := current["users"].(map[string]any)
	if users == nil {
		users = make(map[string]any)
	}
	for u, lvl := range levels.Users {
		users[u] = lvl
	}
	current["users"] = users

	events, _ := current["events"].(map[string]any)
	if events == nil {
		events = make(map[string]any)
	}
	for e, lvl := range levels.Events {
		events[e] = lvl
	}
	current["events"] = events

	current["invite"] = levels.Invite
	current["kick"] = levels.Kick
	current["ban"] = levels.Ban

	if _, err := c.doRequest(ctx, http.MethodPut, path, current, nil); err != nil {
		return fmt.Errorf("error setting power levels: %w", err)
	}
	return nil
}

func (c *Client) Invite(ctx context.Context, room, principal string) error {
	if _, err := c.doRequest(ctx, http.MethodPost, roomPath(room, "invite"), userRequest{UserID: principal}, nil); err != nil {
		return fmt.Errorf("error inviting %s: %w", principal, err)
	}
	return nil
}

// Kick removes principal. Kicking someone who already left returns transport.ErrNotMember.
func (c *Client) Kick(ctx context.Context, room, principal, reason string) error {
	_, err := c.doRequest(ctx, http.MethodPost, roomPath(room, "kick"), userRequest{UserID: principal, Reason: reason}, nil)
	if err == nil {
		return nil
	}
	if IsCode(err, CodeForbidden) && c.notMember(ctx, room, principal) {
		return transport.ErrNotMember
	}
	return fmt.Errorf("error kicking %s: %w", principal, err)
}

// notMember reports whether the member state of principal shows they are already gone.
func (c *Client) notMember(ctx context.Context, room, principal string) bool {
	body, err := c.doRequest(ctx, http.MethodGet, roomPath(room, "state", "m.room.member", principal), nil, nil)
	if IsCode(err, CodeNotFound) {
		return true
	}
	if err != nil {
		return false
	}
	var m memberContent
	if err := json.Unmarshal(body, &m); err != nil {
		return false
	}
	return m.Membership == string(transport.MembershipLeave) || m.Membership == string(transport.MembershipBan)
}

func (c *Client) LeaveRoom(ctx context.Context, room string) error {
	if _, err := c.doRequest(ctx, http.MethodPost, roomPath(room, "leave"), struct{}{}, nil); err != nil {
		return fmt.Errorf("error leaving room: %w", err)
	}
	return nil
}

// DeleteRoom purges the room through the Synapse admin API when enabled, otherwise forgets it.
func (c *Client) DeleteRoom(ctx context.Context, room string) error {
	if c.purge {
		path := "/_synapse/admin/v1/rooms/" + url.PathEscape(room)
		if _, err := c.doRequest(ctx, http.MethodDelete, path, map[string]bool{"purge": true}, nil); err != nil {
			return fmt.Errorf("error purging room: %w", err)
		}
		return nil
	}

	if _, err := c.doRequest(ctx, http.MethodPost, roomPath(room, "forget"), struct{}{}, nil); err != nil {
		return fmt.Errorf("error forgetting room: %w", err)
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, room, text string) error {
	path := roomPath(room, "send", "m.room.message", uuid.NewString())
	if _, err := c.doRequest(ctx, http.MethodPut, path, messageContent{MsgType: "m.text", Body: text}, nil); err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}
	return nil
}

func (c *Client) PowerLevel(ctx context.Context, room, principal string) (int, error) {
	body, err := c.doRequest(ctx, http.MethodGet, roomPath(room, "state", "m.room.power_levels", ""), nil, nil)
	if err != nil {
		return 0, fmt.Errorf("error getting power levels: %w", err)
	}

	var pl struct {
		Users        map[string]int `json:"users"`
		UsersDefault int            `json:"users_default"`
	}
	if err := json.Unmarshal(body, &pl); err != nil {
		return 0, fmt.Errorf("error decoding power levels: %w", err)
	}

	if lvl, ok := pl.Users[principal]; ok {
		return lvl, nil
	}
	return pl.UsersDefault, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodGet, "/_matrix/client/versions", nil, nil); err != nil {
		return fmt.Errorf("error reaching homeserver: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
