package registry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Jacobbrewer1/howl/pkg/custom"
	"github.com/Jacobbrewer1/howl/pkg/dataaccess"
	"github.com/Jacobbrewer1/howl/pkg/entities"
	"github.com/stretchr/testify/require"
)

var (
	now       = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	errBroken = errors.New("disk on fire")
)

// flakyDal fails the named operations.
type flakyDal struct {
	dataaccess.TicketDal
	failLoad, failInsert, failUpdate, failDelete bool
}

func (d *flakyDal) LoadTickets(ctx context.Context) ([]*entities.Ticket, int, error) {
	if d.failLoad {
		return nil, 0, errBroken
	}
	return d.TicketDal.LoadTickets(ctx)
}

func (d *flakyDal) InsertTicket(ctx context.Context, t *entities.Ticket) error {
	if d.failInsert {
		return errBroken
	}
	return d.TicketDal.InsertTicket(ctx, t)
}

func (d *flakyDal) UpdateTicketStatus(ctx context.Context, room string, s entities.Status, at custom.Datetime) error {
	if d.failUpdate {
		return errBroken
	}
	return d.TicketDal.UpdateTicketStatus(ctx, room, s, at)
}

func (d *flakyDal) DeleteTicket(ctx context.Context, room string) error {
	if d.failDelete {
		return errBroken
	}
	return d.TicketDal.DeleteTicket(ctx, room)
}

func newTestRegistry(t *testing.T) (*Registry, *flakyDal) {
	t.Helper()
	dal := &flakyDal{TicketDal: dataaccess.NewMemoryTicketDal()}
	r := New(slog.Default(), dal)
	require.NoError(t, r.Load(context.Background()))
	return r, dal
}

func TestRegistry_Create(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	first, err := r.Create(ctx, "@u1:x", "!room1:x", entities.CategoryPurchase, "", now)
	require.NoError(t, err)
	require.Equal(t, 1, first.ID)
	require.Equal(t, entities.StatusOpen, first.Status)
	require.True(t, first.ClosedAt.IsZero())

	_, err = r.Create(ctx, "@u1:x", "!room2:x", entities.CategoryGeneral, "", now)
	require.ErrorIs(t, err, ErrDuplicateOpenTicket)

	_, err = r.Create(ctx, "@u2:x", "!room1:x", entities.CategoryGeneral, "", now)
	require.ErrorIs(t, err, ErrDuplicateRoom)

	second, err := r.Create(ctx, "@u2:x", "!room2:x", entities.CategoryOther, "help", now)
	require.NoError(t, err)
	require.Equal(t, 2, second.ID)

	got, ok := r.FindByOwner("@u1:x")
	require.True(t, ok)
	require.Equal(t, "!room1:x", got.Room)

	got, ok = r.FindByRoom("!room2:x")
	require.True(t, ok)
	require.Equal(t, "@u2:x", got.Owner)
}

func TestRegistry_CreatePersistenceFailure(t *testing.T) {
	ctx := context.Background()
	r, dal := newTestRegistry(t)

	dal.failInsert = true
	_, err := r.Create(ctx, "@u1:x", "!room1:x", entities.CategoryGeneral, "", now)
	require.ErrorIs(t, err, ErrPersistence)
	require.ErrorIs(t, err, errBroken)

	_, ok := r.FindByOwner("@u1:x")
	require.False(t, ok)
	_, ok = r.FindByRoom("!room1:x")
	require.False(t, ok)

	dal.failInsert = false
	created, err := r.Create(ctx, "@u1:x", "!room1:x", entities.CategoryGeneral, "", now)
	require.NoError(t, err)
	require.Equal(t, 1, created.ID)
}

func TestRegistry_TransitionIsMonotonic(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	created, err := r.Create(ctx, "@u1:x", "!room1:x", entities.CategoryGeneral, "", now)
	require.NoError(t, err)
	ref := RefOf(created)

	_, err = r.Transition(ctx, ref, entities.StatusDeleted, now)
	require.ErrorIs(t, err, ErrInvalidTransition, "open cannot skip closed")

	closed, err := r.Transition(ctx, ref, entities.StatusClosed, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, entities.StatusClosed, closed.Status)
	require.Equal(t, now.Add(time.Minute), closed.ClosedAt.Time())

	_, ok := r.FindByOwner("@u1:x")
	require.False(t, ok, "closed tickets are not the owner's open ticket")
	_, ok = r.FindByRoom("!room1:x")
	require.True(t, ok)

	_, err = r.Transition(ctx, ref, entities.StatusOpen, now)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = r.Transition(ctx, ref, entities.StatusClosed, now)
	require.ErrorIs(t, err, ErrInvalidTransition)

	deleted, err := r.Transition(ctx, ref, entities.StatusDeleted, now)
	require.NoError(t, err)
	require.Equal(t, entities.StatusDeleted, deleted.Status)

	_, err = r.Transition(ctx, ref, entities.StatusClosed, now)
	require.ErrorIs(t, err, ErrNotFound, "nothing moves once deleted")
}

func TestRegistry_TransitionStaleRef(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	created, err := r.Create(ctx, "@u1:x", "!room1:x", entities.CategoryGeneral, "", now)
	require.NoError(t, err)

	_, err = r.Transition(ctx, Ref{ID: created.ID + 1, Room: created.Room}, entities.StatusClosed, now)
	require.ErrorIs(t, err, ErrNotFound)

	got, ok := r.FindByRoom(created.Room)
	require.True(t, ok)
	require.Equal(t, entities.StatusOpen, got.Status)
}

func TestRegistry_TransitionPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	r, dal := newTestRegistry(t)

	created, err := r.Create(ctx, "@u1:x", "!room1:x", entities.CategoryGeneral, "", now)
	require.NoError(t, err)

	dal.failUpdate = true
	_, err = r.Transition(ctx, RefOf(created), entities.StatusClosed, now)
	require.ErrorIs(t, err, ErrPersistence)

	got, ok := r.FindByOwner("@u1:x")
	require.True(t, ok)
	require.Equal(t, entities.StatusOpen, got.Status)
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, dal := newTestRegistry(t)

	_, err := r.Create(ctx, "@u1:x", "!room1:x", entities.CategoryGeneral, "", now)
	require.NoError(t, err)

	dal.failDelete = true
	require.ErrorIs(t, r.Remove(ctx, "!room1:x"), ErrPersistence)
	_, ok := r.FindByRoom("!room1:x")
	require.True(t, ok, "a failed delete leaves memory alone")

	dal.failDelete = false
	require.NoError(t, r.Remove(ctx, "!room1:x"))
	require.ErrorIs(t, r.Remove(ctx, "!room1:x"), ErrNotFound)

	_, ok = r.FindByOwner("@u1:x")
	require.False(t, ok)
	_, ok = r.FindByRoom("!room1:x")
	require.False(t, ok)
}

func TestRegistry_Load(t *testing.T) {
	ctx := context.Background()
	dal := dataaccess.NewMemoryTicketDal()

	seed := []*entities.Ticket{
		{ID: 3, Owner: "@u1:x", Room: "!a:x", Category: entities.CategoryGeneral, Status: entities.StatusOpen, CreatedAt: custom.NewDatetime(now)},
		{ID: 7, Owner: "@u2:x", Room: "!b:x", Category: entities.CategoryOther, Status: entities.StatusClosed, CreatedAt: custom.NewDatetime(now), ClosedAt: custom.NewDatetime(now)},
	}
	for _, tk := range seed {
		require.NoError(t, dal.InsertTicket(ctx, tk))
	}
	require.NoError(t, dal.DeleteTicket(ctx, "!b:x"))

	r := New(slog.Default(), dal)
	require.NoError(t, r.Load(ctx))

	open, closed := r.Counts()
	require.Equal(t, 1, open)
	require.Zero(t, closed)

	created, err := r.Create(ctx, "@u3:x", "!c:x", entities.CategoryGeneral, "", now)
	require.NoError(t, err)
	require.Equal(t, 8, created.ID, "ids of deleted tickets are not reused")

	require.Len(t, r.Tickets(), 2)
}

func TestRegistry_LoadStorageUnavailable(t *testing.T) {
	dal := &flakyDal{TicketDal: dataaccess.NewMemoryTicketDal(), failLoad: true}
	r := New(slog.Default(), dal)
	require.ErrorIs(t, r.Load(context.Background()), ErrStorageUnavailable)
}
