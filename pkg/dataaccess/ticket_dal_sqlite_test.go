package dataaccess

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/Jacobbrewer1/howl/pkg/custom"
	"github.com/Jacobbrewer1/howl/pkg/entities"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteDal(t *testing.T, path string) TicketDal {
	t.Helper()
	d, err := NewSQLiteTicketDal(context.Background(), slog.Default(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func TestSQLiteTicketDal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLiteDal(t, filepath.Join(t.TempDir(), "howl.db"))

	created := custom.NewDatetime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, d.InsertTicket(ctx, &entities.Ticket{
		ID:        1,
		Owner:     "@alice:example.org",
		Room:      "!a:example.org",
		Category:  entities.CategoryPurchase,
		Subject:   "refund",
		Status:    entities.StatusOpen,
		CreatedAt: created,
	}))

	tickets, highWater, err := d.LoadTickets(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, highWater)
	require.Len(t, tickets, 1)
	require.Equal(t, "@alice:example.org", tickets[0].Owner)
	require.Equal(t, entities.CategoryPurchase, tickets[0].Category)
	require.Equal(t, "refund", tickets[0].Subject)
	require.True(t, tickets[0].CreatedAt.Time().Equal(created.Time()))
	require.True(t, tickets[0].ClosedAt.IsZero())

	closed := custom.NewDatetime(created.Time().Add(time.Hour))
	require.NoError(t, d.UpdateTicketStatus(ctx, "!a:example.org", entities.StatusClosed, closed))

	tickets, _, err = d.LoadTickets(ctx)
	require.NoError(t, err)
	require.Equal(t, entities.StatusClosed, tickets[0].Status)
	require.True(t, tickets[0].ClosedAt.Time().Equal(closed.Time()))
}

func TestSQLiteTicketDal_HighWaterSurvivesDelete(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "howl.db")
	d, err := NewSQLiteTicketDal(ctx, slog.Default(), path)
	require.NoError(t, err)

	for i, room := range []string{"!a:x", "!b:x"} {
		require.NoError(t, d.InsertTicket(ctx, &entities.Ticket{
			ID:        i + 1,
			Owner:     room + "-owner",
			Room:      room,
			Category:  entities.CategoryGeneral,
			Status:    entities.StatusOpen,
			CreatedAt: custom.NewDatetime(time.Now()),
		}))
	}

	require.NoError(t, d.DeleteTicket(ctx, "!b:x"))
	require.ErrorIs(t, d.DeleteTicket(ctx, "!b:x"), ErrNoTicket)
	require.NoError(t, d.Close(ctx))

	reopened := newTestSQLiteDal(t, path)
	tickets, highWater, err := reopened.LoadTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	require.Equal(t, 2, highWater)
}

func TestSQLiteTicketDal_Constraints(t *testing.T) {
	ctx := context.Background()
	d := newTestSQLiteDal(t, filepath.Join(t.TempDir(), "howl.db"))

	open := func(id int, owner, room string) *entities.Ticket {
		return &entities.Ticket{
			ID:        id,
			Owner:     owner,
			Room:      room,
			Category:  entities.CategoryOther,
			Status:    entities.StatusOpen,
			CreatedAt: custom.NewDatetime(time.Now()),
		}
	}

	require.NoError(t, d.InsertTicket(ctx, open(1, "@bob:x", "!r1:x")))
	require.Error(t, d.InsertTicket(ctx, open(2, "@bob:x", "!r2:x")), "second open ticket for owner")
	require.Error(t, d.InsertTicket(ctx, open(3, "@carol:x", "!r1:x")), "room reused")

	deleted := open(4, "@dave:x", "!r4:x")
	deleted.Status = entities.StatusDeleted
	require.Error(t, d.InsertTicket(ctx, deleted))

	require.ErrorIs(t, d.UpdateTicketStatus(ctx, "!missing:x", entities.StatusClosed, custom.NewDatetime(time.Now())), ErrNoTicket)
	require.NoError(t, d.Ping(ctx))
}
