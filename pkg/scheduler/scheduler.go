package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Jacobbrewer1/howl/pkg/clock"
	"github.com/Jacobbrewer1/howl/pkg/logging"
	"github.com/Jacobbrewer1/howl/pkg/registry"
)

// Kind is the deadline a timer tracks.
type Kind string

const (
	// KindInactivity closes an open ticket that was left untouched.
	KindInactivity Kind = "inactivity"

	// KindRetention deletes a closed ticket.
	KindRetention Kind = "retention"
)

// Func is run when a timer fires. The ref must be resolved again before acting on it.
type Func func(ctx context.Context, ref registry.Ref)

type key struct {
	room string
	kind Kind
}

type handle struct {
	ref       registry.Ref
	timer     clock.Timer
	cancelled bool
}

// Scheduler keeps at most one timer per room and kind. Callbacks run on their own
// goroutines and may overlap with each other and with the caller.
type Scheduler struct {
	l     *slog.Logger
	clock clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	timers  map[key]*handle
	stopped bool
}

// New returns a running scheduler.
func New(l *slog.Logger, clk clock.Clock) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		l:      l,
		clock:  clk,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[key]*handle),
	}
}

// Schedule runs fn for ref after delay, replacing any timer of the same kind for the room.
// A delay of zero or less fires promptly.
func (s *Scheduler) Schedule(kind Kind, ref registry.Ref, delay time.Duration, fn Func) {
	k := key{room: ref.Room, kind: kind}
	h := &handle{ref: ref}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	var oldTimer clock.Timer
	if old := s.timers[k]; old != nil {
		old.cancelled = true
		oldTimer = old.timer
	}
	s.timers[k] = h
	s.mu.Unlock()

	if oldTimer != nil {
		oldTimer.Stop()
	}

	s.l.Debug("Timer scheduled",
		slog.String(logging.KeyRoom, ref.Room),
		slog.Int(logging.KeyTicket, ref.ID),
		slog.String("kind", string(kind)),
		slog.Duration("delay", delay),
	)

	// The clock may run the callback before AfterFunc returns.
	t := s.clock.AfterFunc(delay, func() { s.fire(k, h, fn) })

	s.mu.Lock()
	h.timer = t
	s.mu.Unlock()
}

func (s *Scheduler) fire(k key, h *handle, fn Func) {
	s.mu.Lock()
	if s.stopped || h.cancelled || s.timers[k] != h {
		s.mu.Unlock()
		return
	}
	delete(s.timers, k)
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	fn(s.ctx, h.ref)
}

// Cancel stops the pending timer of kind for room. It reports whether one was pending.
func (s *Scheduler) Cancel(room string, kind Kind) bool {
	k := key{room: room, kind: kind}

	s.mu.Lock()
	h, ok := s.timers[k]
	var t clock.Timer
	if ok {
		h.cancelled = true
		t = h.timer
		delete(s.timers, k)
	}
	s.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	return ok
}

// CancelAll stops every pending timer for room.
func (s *Scheduler) CancelAll(room string) {
	s.Cancel(room, KindInactivity)
	s.Cancel(room, KindRetention)
}

// Pending reports whether a timer of kind is waiting for room.
func (s *Scheduler) Pending(room string, kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key{room: room, kind: kind}]
	return ok
}

// Len returns the number of pending timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer and waits for running callbacks to return.
// Callbacks see their context cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	pending := make([]clock.Timer, 0, len(s.timers))
	for _, h := range s.timers {
		h.cancelled = true
		if h.timer != nil {
			pending = append(pending, h.timer)
		}
	}
	s.timers = make(map[key]*handle)
	s.mu.Unlock()

	for _, t := range pending {
		t.Stop()
	}

	s.cancel()
	s.wg.Wait()
}
