package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a clock that only moves when Advance is called. Callbacks run on the
// goroutine calling Advance, in deadline order.
//
// Do not call Advance from inside a callback.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	f        func()
	stopped  bool
	fired    bool
}

// NewFake returns a fake clock set to initial.
func NewFake(initial time.Time) *Fake {
	c := &Fake{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	if d <= 0 {
		f()
		return &fakeTimer{fired: true}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{
		clock:    c,
		deadline: c.now.Add(d),
		f:        f,
	}
	c.waiters = append(c.waiters, t)
	c.changed.Broadcast()
	return t
}

func (t *fakeTimer) Stop() bool {
	if t.clock == nil {
		return false
	}
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.clock.changed.Broadcast()
	return true
}

// Advance moves the clock forward by d and runs every callback that has come due.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	// Callbacks may register new timers, so keep collecting until nothing is due.
	for {
		due := c.collect(target)
		if len(due) == 0 {
			return
		}
		for _, t := range due {
			t.f()
		}
	}
}

// Set moves the clock to t. Moving backwards does not fire anything.
func (c *Fake) Set(t time.Time) {
	c.mu.Lock()
	d := t.Sub(c.now)
	if d <= 0 {
		c.now = t
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.Advance(d)
}

func (c *Fake) collect(target time.Time) []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, remaining []*fakeTimer
	for _, t := range c.waiters {
		switch {
		case t.stopped:
		case !t.deadline.After(target):
			t.fired = true
			due = append(due, t)
		default:
			remaining = append(remaining, t)
		}
	}
	c.waiters = remaining

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	return due
}

// Pending returns the number of callbacks that have not run or been stopped.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *Fake) pendingLocked() int {
	n := 0
	for _, t := range c.waiters {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// WaitForTimers blocks until at least n callbacks are pending.
func (c *Fake) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}
