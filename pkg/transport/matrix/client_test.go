package matrix

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Jacobbrewer1/howl/pkg/transport"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), slog.Default(), Config{
		HomeserverURL: srv.URL,
		AccessToken:   "secret",
		UserID:        "@bot:x",
		SyncTimeout:   time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_WhoAmI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_matrix/client/v3/account/whoami", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{"user_id": "@howl:x"})
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), slog.Default(), Config{HomeserverURL: srv.URL, AccessToken: "secret"})
	require.NoError(t, err)
	require.Equal(t, "@howl:x", c.Self())
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(context.Background(), slog.Default(), Config{AccessToken: "x"})
	require.Error(t, err)

	_, err = NewClient(context.Background(), slog.Default(), Config{HomeserverURL: "http://localhost"})
	require.Error(t, err)
}

func TestClient_CreateRoom(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/_matrix/client/v3/createRoom", r.URL.Path)

		var req createRoomRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Preset == string(transport.PresetTrustedPrivate) {
			writeJSON(w, http.StatusBadRequest, Error{Code: "M_UNKNOWN", Message: "preset not allowed"})
			return
		}
		require.Equal(t, "Ticket - General", req.Name)
		writeJSON(w, http.StatusOK, createRoomResponse{RoomID: "!new:x"})
	}))

	_, err := c.CreateRoom(context.Background(), transport.PresetTrustedPrivate, "Ticket - General")
	var mErr *Error
	require.ErrorAs(t, err, &mErr)
	require.Equal(t, http.StatusBadRequest, mErr.StatusCode)

	room, err := c.CreateRoom(context.Background(), transport.PresetPrivate, "Ticket - General")
	require.NoError(t, err)
	require.Equal(t, "!new:x", room)
}

func TestClient_RetriesOnceWhenRateLimited(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusTooManyRequests, Error{Code: CodeLimitExceeded, RetryAfterMs: 5})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"event_id": "$e"})
	}))

	require.NoError(t, c.SendMessage(context.Background(), "!r:x", "hello"))
	require.Equal(t, int32(2), calls.Load())
}

func TestClient_PowerLevel(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/state/m.room.power_levels/"))
		writeJSON(w, http.StatusOK, map[string]any{
			"users":         map[string]int{"@mod:x": 50},
			"users_default": 0,
		})
	}))

	lvl, err := c.PowerLevel(context.Background(), "!r:x", "@mod:x")
	require.NoError(t, err)
	require.Equal(t, 50, lvl)

	lvl, err = c.PowerLevel(context.Background(), "!r:x", "@nobody:x")
	require.NoError(t, err)
	require.Zero(t, lvl)
}

func TestClient_SetPowerLevelsMerges(t *testing.T) {
	var put map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{
				"users":          map[string]int{"@bot:x": 100},
				"events_default": 0,
			})
		case http.MethodPut:
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, &put))
			writeJSON(w, http.StatusOK, map[string]string{"event_id": "$e"})
		}
	}))

	err := c.SetPowerLevels(context.Background(), "!r:x", transport.PowerLevels{
		Users:  map[string]int{"@admin:x": 50},
		Invite: 50,
		Kick:   50,
		Ban:    50,
		Events: map[string]int{"m.room.topic": 50},
	})
	require.NoError(t, err)

	users := put["users"].(map[string]any)
	require.EqualValues(t, 100, users["@bot:x"])
	require.EqualValues(t, 50, users["@admin:x"])
	require.EqualValues(t, 50, put["invite"])
	require.EqualValues(t, 0, put["events_default"])
	require.EqualValues(t, 50, put["events"].(map[string]any)["m.room.topic"])
}

func TestClient_KickNotMember(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/kick"):
			writeJSON(w, http.StatusForbidden, Error{Code: CodeForbidden, Message: "not in room"})
		case strings.Contains(r.URL.Path, "/state/m.room.member/"):
			writeJSON(w, http.StatusOK, memberContent{Membership: "leave"})
		}
	}))

	err := c.Kick(context.Background(), "!r:x", "@gone:x", "bye")
	require.ErrorIs(t, err, transport.ErrNotMember)
}

func TestClient_KickForbidden(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/kick"):
			writeJSON(w, http.StatusForbidden, Error{Code: CodeForbidden, Message: "not allowed"})
		case strings.Contains(r.URL.Path, "/state/m.room.member/"):
			writeJSON(w, http.StatusOK, memberContent{Membership: "join"})
		}
	}))

	err := c.Kick(context.Background(), "!r:x", "@admin:x", "bye")
	require.Error(t, err)
	require.NotErrorIs(t, err, transport.ErrNotMember)
	require.True(t, IsCode(err, CodeForbidden))
}

func TestClient_DeleteRoom(t *testing.T) {
	tests := []struct {
		name   string
		purge  bool
		method string
		path   string
	}{
		{name: "forget", purge: false, method: http.MethodPost, path: "/_matrix/client/v3/rooms/!r:x/forget"},
		{name: "purge", purge: true, method: http.MethodDelete, path: "/_synapse/admin/v1/rooms/!r:x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var method, path string
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				method, path = r.Method, r.URL.Path
				writeJSON(w, http.StatusOK, map[string]any{})
			}))
			c.purge = tt.purge

			require.NoError(t, c.DeleteRoom(context.Background(), "!r:x"))
			require.Equal(t, tt.method, method)
			require.Equal(t, tt.path, path)
		})
	}
}

func TestClient_Listen(t *testing.T) {
	var syncs atomic.Int32
	joined := make(chan string, 1)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/_matrix/client/v3/join/") {
			joined <- strings.TrimPrefix(r.URL.Path, "/_matrix/client/v3/join/")
			writeJSON(w, http.StatusOK, map[string]string{"room_id": "!dm:x"})
			return
		}

		n := syncs.Add(1)
		resp := map[string]any{"next_batch": "s" + strconv.Itoa(int(n))}
		switch n {
		case 1:
			// Backlog commands are ignored, membership is replayed.
			resp["rooms"] = map[string]any{
				"join": map[string]any{"!old:x": map[string]any{
					"state": map[string]any{"events": []any{
						map[string]any{"type": "m.room.name", "sender": "@bot:x", "state_key": "", "content": map[string]any{"name": "Ticket - General"}},
						map[string]any{"type": "m.room.member", "sender": "@spam:x", "state_key": "@spam:x", "content": map[string]any{"membership": "join"}},
					}},
					"timeline": map[string]any{"events": []any{
						map[string]any{"type": "m.room.message", "sender": "@u:x", "content": map[string]any{"msgtype": "m.text", "body": "!ticket open 1"}},
						map[string]any{"type": "m.room.member", "sender": "@u:x", "state_key": "@mallory:x", "content": map[string]any{"membership": "invite"}},
					}},
				}},
			}
		case 2:
			require.Equal(t, "s1", r.URL.Query().Get("since"))
			resp["rooms"] = map[string]any{
				"invite": map[string]any{"!dm:x": map[string]any{}},
				"join": map[string]any{"!r:x": map[string]any{"timeline": map[string]any{"events": []any{
					map[string]any{"type": "m.room.member", "sender": "@mod:x", "state_key": "@eve:x", "content": map[string]any{"membership": "invite"}},
					map[string]any{"type": "m.room.message", "sender": "@u:x", "content": map[string]any{"msgtype": "m.text", "body": "hello"}},
					map[string]any{"type": "m.room.message", "sender": "@u:x", "content": map[string]any{"msgtype": "m.text", "body": "!ticket status"}},
					map[string]any{"type": "m.room.message", "sender": "@bot:x", "content": map[string]any{"msgtype": "m.text", "body": "!ticket close"}},
				}}}},
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan any, 10)
	done := make(chan error, 1)
	go func() { done <- c.Listen(ctx, events) }()

	backlog := []transport.MembershipEvent{
		{Room: "!old:x", Target: "@spam:x", Sender: "@spam:x", Membership: transport.MembershipJoin},
		{Room: "!old:x", Target: "@mallory:x", Sender: "@u:x", Membership: transport.MembershipInvite},
	}
	for _, want := range backlog {
		m, ok := (<-events).(*transport.MembershipEvent)
		require.True(t, ok)
		require.Equal(t, want, *m)
	}

	first := <-events
	m, ok := first.(*transport.MembershipEvent)
	require.True(t, ok)
	require.Equal(t, transport.MembershipEvent{Room: "!r:x", Target: "@eve:x", Sender: "@mod:x", Membership: transport.MembershipInvite}, *m)

	second := <-events
	cmd, ok := second.(*transport.CommandEvent)
	require.True(t, ok)
	require.Equal(t, "!r:x", cmd.Room)
	require.Equal(t, "@u:x", cmd.Sender)
	require.Equal(t, "!ticket status", cmd.Body)
	require.NotNil(t, cmd.Reply)

	require.Equal(t, "!dm:x", <-joined)

	cancel()
	require.NoError(t, <-done)
}

func TestIsCommand(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{body: "!ticket", want: true},
		{body: "!ticket open 2", want: true},
		{body: "!tickets", want: false},
		{body: "ticket open", want: false},
		{body: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			require.Equal(t, tt.want, isCommand(tt.body))
		})
	}
}

func TestClient_RequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Hold the request open until the client gives up.
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), slog.Default(), Config{
		HomeserverURL:  srv.URL,
		AccessToken:    "secret",
		UserID:         "@bot:x",
		SyncTimeout:    10 * time.Millisecond,
		RequestTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, 60*time.Millisecond, c.httpClient.Timeout)

	done := make(chan error, 1)
	go func() { done <- c.SetRoomTopic(context.Background(), "!r:x", "topic") }()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("request to a stalled homeserver did not return")
	}
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	c, err := NewClient(context.Background(), slog.Default(), Config{
		HomeserverURL: "http://localhost",
		AccessToken:   "secret",
		UserID:        "@bot:x",
	})
	require.NoError(t, err)
	require.Equal(t, 30*time.Second+defaultRequestTimeout, c.httpClient.Timeout)
}
