// Package fake is an in-memory transport that records every call. It is used in tests.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/Jacobbrewer1/howl/pkg/transport"
)

// Method names recorded in Call.Method.
const (
	MethodCreateRoom     = "create_room"
	MethodSetRoomTopic   = "set_room_topic"
	MethodSetPowerLevels = "set_power_levels"
	MethodInvite         = "invite"
	MethodKick           = "kick"
	MethodLeaveRoom      = "leave_room"
	MethodDeleteRoom     = "delete_room"
	MethodSendMessage    = "send_message"
)

// Call is one recorded request.
type Call struct {
	Method    string
	Room      string
	Principal string

	// Text is the message, topic, kick reason or preset depending on the method.
	Text string
}

// Transport implements transport.Transport in memory.
type Transport struct {
	self string

	mu       sync.Mutex
	next     int
	calls    []Call
	levels   map[string]map[string]int
	members  map[string]map[string]bool
	fail     map[string]error
	failOnce map[string]error
	events   chan any
}

var _ transport.Transport = (*Transport)(nil)

// New returns a transport acting as self.
func New(self string) *Transport {
	return &Transport{
		self:     self,
		levels:   make(map[string]map[string]int),
		members:  make(map[string]map[string]bool),
		fail:     make(map[string]error),
		failOnce: make(map[string]error),
		events:   make(chan any, 16),
	}
}

// FailOn makes every call to method return err until cleared with a nil err.
func (f *Transport) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, method)
		return
	}
	f.fail[method] = err
}

// FailOnce makes the next call to method return err.
func (f *Transport) FailOnce(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnce[method] = err
}

// SetPowerLevel sets the level PowerLevel reports for principal in room.
func (f *Transport) SetPowerLevel(room, principal string, level int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.levels[room] == nil {
		f.levels[room] = make(map[string]int)
	}
	f.levels[room][principal] = level
}

// Emit queues an event for Listen.
func (f *Transport) Emit(ev any) {
	f.events <- ev
}

// Calls returns the recorded calls of method, or every call when method is empty.
func (f *Transport) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Call, 0, len(f.calls))
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Messages returns the text sent to room in order.
func (f *Transport) Messages(room string) []string {
	out := make([]string, 0)
	for _, c := range f.Calls(MethodSendMessage) {
		if c.Room == room {
			out = append(out, c.Text)
		}
	}
	return out
}

// IsMember reports whether principal was invited to room and not kicked since.
func (f *Transport) IsMember(room, principal string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[room][principal]
}

// record stores the call and returns the configured failure for method, if any.
func (f *Transport) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, c)
	if err, ok := f.failOnce[c.Method]; ok {
		delete(f.failOnce, c.Method)
		return err
	}
	return f.fail[c.Method]
}

func (f *Transport) Self() string {
	return f.self
}

func (f *Transport) CreateRoom(_ context.Context, preset transport.Preset, name string) (string, error) {
	if err := f.record(Call{Method: MethodCreateRoom, Text: string(preset), Principal: name}); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	room := fmt.Sprintf("!room%d:test", f.next)
	f.members[room] = map[string]bool{f.self: true}
	return room, nil
}

func (f *Transport) SetRoomTopic(_ context.Context, room, topic string) error {
	return f.record(Call{Method: MethodSetRoomTopic, Room: room, Text: topic})
}

func (f *Transport) SetPowerLevels(_ context.Context, room string, levels transport.PowerLevels) error {
	if err := f.record(Call{Method: MethodSetPowerLevels, Room: room}); err != nil {
		return err
	}
	for p, lvl := range levels.Users {
		f.SetPowerLevel(room, p, lvl)
	}
	return nil
}

func (f *Transport) Invite(_ context.Context, room, principal string) error {
	if err := f.record(Call{Method: MethodInvite, Room: room, Principal: principal}); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[room] == nil {
		f.members[room] = make(map[string]bool)
	}
	f.members[room][principal] = true
	return nil
}

func (f *Transport) Kick(_ context.Context, room, principal, reason string) error {
	if err := f.record(Call{Method: MethodKick, Room: room, Principal: principal, Text: reason}); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.members[room][principal] {
		return transport.ErrNotMember
	}
	delete(f.members[room], principal)
	return nil
}

func (f *Transport) LeaveRoom(_ context.Context, room string) error {
	return f.record(Call{Method: MethodLeaveRoom, Room: room})
}

func (f *Transport) DeleteRoom(_ context.Context, room string) error {
	return f.record(Call{Method: MethodDeleteRoom, Room: room})
}

func (f *Transport) SendMessage(_ context.Context, room, text string) error {
	return f.record(Call{Method: MethodSendMessage, Room: room, Text: text})
}

func (f *Transport) PowerLevel(_ context.Context, room, principal string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[room][principal], nil
}

func (f *Transport) Listen(ctx context.Context, events chan<- any) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-f.events:
			select {
			case events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (f *Transport) Ping(context.Context) error {
	return nil
}

func (f *Transport) Close() error {
	return nil
}
