package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Jacobbrewer1/howl/pkg/clock"
	"github.com/Jacobbrewer1/howl/pkg/registry"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type recorder struct {
	mu    sync.Mutex
	fired []registry.Ref
}

func (r *recorder) fn(_ context.Context, ref registry.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, ref)
}

func (r *recorder) refs() []registry.Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]registry.Ref(nil), r.fired...)
}

func TestScheduler_Fires(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := New(slog.Default(), clk)
	defer s.Stop()

	rec := new(recorder)
	ref := registry.Ref{ID: 1, Room: "!a:x"}
	s.Schedule(KindInactivity, ref, 10*time.Minute, rec.fn)
	require.True(t, s.Pending("!a:x", KindInactivity))

	clk.Advance(9 * time.Minute)
	require.Empty(t, rec.refs())

	clk.Advance(time.Minute)
	require.Equal(t, []registry.Ref{ref}, rec.refs())
	require.False(t, s.Pending("!a:x", KindInactivity))
	require.Zero(t, s.Len())
}

func TestScheduler_ZeroDelayFiresPromptly(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := New(slog.Default(), clk)
	defer s.Stop()

	rec := new(recorder)
	s.Schedule(KindRetention, registry.Ref{ID: 2, Room: "!b:x"}, -time.Hour, rec.fn)
	require.Len(t, rec.refs(), 1)
	require.Zero(t, s.Len())
}

func TestScheduler_Cancel(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := New(slog.Default(), clk)
	defer s.Stop()

	rec := new(recorder)
	s.Schedule(KindInactivity, registry.Ref{ID: 1, Room: "!a:x"}, time.Minute, rec.fn)
	s.Schedule(KindRetention, registry.Ref{ID: 1, Room: "!a:x"}, time.Hour, rec.fn)
	require.Equal(t, 2, s.Len())

	require.True(t, s.Cancel("!a:x", KindInactivity))
	require.False(t, s.Cancel("!a:x", KindInactivity))
	require.True(t, s.Pending("!a:x", KindRetention))

	s.CancelAll("!a:x")
	clk.Advance(2 * time.Hour)
	require.Empty(t, rec.refs())
}

func TestScheduler_ReplacesSameKind(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := New(slog.Default(), clk)
	defer s.Stop()

	rec := new(recorder)
	s.Schedule(KindRetention, registry.Ref{ID: 1, Room: "!a:x"}, time.Minute, rec.fn)
	s.Schedule(KindRetention, registry.Ref{ID: 1, Room: "!a:x"}, time.Hour, rec.fn)
	require.Equal(t, 1, s.Len())

	clk.Advance(time.Minute)
	require.Empty(t, rec.refs(), "the replaced timer never fires")

	clk.Advance(time.Hour)
	require.Len(t, rec.refs(), 1)
}

func TestScheduler_Stop(t *testing.T) {
	clk := clock.NewFake(epoch)
	s := New(slog.Default(), clk)

	rec := new(recorder)
	s.Schedule(KindInactivity, registry.Ref{ID: 1, Room: "!a:x"}, time.Minute, rec.fn)
	s.Stop()
	s.Stop()

	clk.Advance(time.Hour)
	require.Empty(t, rec.refs())

	s.Schedule(KindInactivity, registry.Ref{ID: 1, Room: "!a:x"}, 0, rec.fn)
	require.Empty(t, rec.refs(), "nothing is scheduled after stop")
}

func TestScheduler_CallbackContextCancelledOnStop(t *testing.T) {
	s := New(slog.Default(), clock.Real())

	started := make(chan struct{})
	finished := make(chan struct{})
	s.Schedule(KindRetention, registry.Ref{ID: 1, Room: "!a:x"}, 0, func(ctx context.Context, _ registry.Ref) {
		close(started)
		<-ctx.Done()
		close(finished)
	})

	<-started
	s.Stop()

	select {
	case <-finished:
	default:
		t.Fatal("stop returned before the callback")
	}
}
