package dataaccess

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Jacobbrewer1/howl/pkg/custom"
	"github.com/Jacobbrewer1/howl/pkg/dataaccess/connection"
	"github.com/Jacobbrewer1/howl/pkg/dataaccess/monitoring"
	"github.com/Jacobbrewer1/howl/pkg/entities"
	"github.com/Jacobbrewer1/howl/pkg/logging"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const backendSQLite = "sqlite"

// sqliteSchema is applied to every new connection.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tickets (
	ticket_id  INTEGER PRIMARY KEY,
	owner      TEXT    NOT NULL,
	room       TEXT    NOT NULL UNIQUE,
	category   TEXT    NOT NULL,
	subject    TEXT    NOT NULL DEFAULT '',
	status     TEXT    NOT NULL CHECK (status IN ('open', 'closed')),
	created_at INTEGER NOT NULL,
	closed_at  INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS tickets_open_owner ON tickets (owner) WHERE status = 'open';

CREATE TABLE IF NOT EXISTS ticket_sequence (
	name  TEXT    PRIMARY KEY,
	value INTEGER NOT NULL
);
`

type sqliteTicketDal struct {
	// l is the logger.
	l *slog.Logger

	// pool is the connection pool.
	pool *sqlitex.Pool
}

// NewSQLiteTicketDal opens (creating if needed) the ticket database at path.
func NewSQLiteTicketDal(ctx context.Context, l *slog.Logger, path string) (TicketDal, error) {
	l = l.With(slog.String(logging.KeyDal, ticketDalName))

	db := &connection.SQLite{
		Path:   path,
		Schema: sqliteSchema,
		Logger: l,
	}

	pool, err := db.Connect(ctx)
	if err != nil {
		return nil, err
	}

	return &sqliteTicketDal{
		l:    l,
		pool: pool,
	}, nil
}

func (d *sqliteTicketDal) LoadTickets(ctx context.Context) (tickets []*entities.Ticket, highWater int, err error) {
	done := monitoring.Observe(ticketDalName, "load_tickets", backendSQLite, ticketsTable)
	defer func() { done(err) }()

	conn, err := d.pool.Take(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("error taking connection: %w", err)
	}
	defer d.pool.Put(conn)

	tickets = make([]*entities.Ticket, 0)
	err = sqlitex.Execute(conn,
		`SELECT ticket_id, owner, room, category, subject, status, created_at, closed_at
		 FROM tickets ORDER BY ticket_id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tickets = append(tickets, scanTicket(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, 0, fmt.Errorf("error selecting tickets: %w", err)
	}

	err = sqlitex.Execute(conn,
		`SELECT MAX(
			COALESCE((SELECT value FROM ticket_sequence WHERE name = ?), 0),
			COALESCE((SELECT MAX(ticket_id) FROM tickets), 0)
		)`,
		&sqlitex.ExecOptions{
			Args: []any{ticketSequence},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				highWater = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		return nil, 0, fmt.Errorf("error selecting ticket sequence: %w", err)
	}

	d.l.Debug("Loaded tickets", slog.Int("count", len(tickets)), slog.Int("high_water", highWater))
	return tickets, highWater, nil
}

func scanTicket(stmt *sqlite.Stmt) *entities.Ticket {
	return &entities.Ticket{
		ID:        stmt.ColumnInt(0),
		Owner:     stmt.ColumnText(1),
		Room:      stmt.ColumnText(2),
		Category:  entities.Category(stmt.ColumnText(3)),
		Subject:   stmt.ColumnText(4),
		Status:    entities.Status(stmt.ColumnText(5)),
		CreatedAt: custom.FromUnixNano(stmt.ColumnInt64(6)),
		ClosedAt:  custom.FromUnixNano(stmt.ColumnInt64(7)),
	}
}

func (d *sqliteTicketDal) InsertTicket(ctx context.Context, ticket *entities.Ticket) (err error) {
	done := monitoring.Observe(ticketDalName, "insert_ticket", backendSQLite, ticketsTable)
	defer func() { done(err) }()

	conn, err := d.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("error taking connection: %w", err)
	}
	defer d.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`INSERT INTO ticket_sequence (name, value) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET value = MAX(value, excluded.value)`,
		&sqlitex.ExecOptions{
			Args: []any{ticketSequence, ticket.ID},
		})
	if err != nil {
		return fmt.Errorf("error updating ticket sequence: %w", err)
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO tickets (ticket_id, owner, room, category, subject, status, created_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				ticket.ID,
				ticket.Owner,
				ticket.Room,
				string(ticket.Category),
				ticket.Subject,
				string(ticket.Status),
				ticket.CreatedAt.UnixNano(),
				ticket.ClosedAt.UnixNano(),
			},
		})
	if err != nil {
		return fmt.Errorf("error inserting ticket: %w", err)
	}
	return nil
}

func (d *sqliteTicketDal) UpdateTicketStatus(ctx context.Context, room string, status entities.Status, closedAt custom.Datetime) (err error) {
	done := monitoring.Observe(ticketDalName, "update_ticket_status", backendSQLite, ticketsTable)
	defer func() { done(err) }()

	conn, err := d.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("error taking connection: %w", err)
	}
	defer d.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE tickets SET status = ?, closed_at = ? WHERE room = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(status), closedAt.UnixNano(), room},
		})
	if err != nil {
		return fmt.Errorf("error updating ticket: %w", err)
	}
	if conn.Changes() == 0 {
		return ErrNoTicket
	}
	return nil
}

func (d *sqliteTicketDal) DeleteTicket(ctx context.Context, room string) (err error) {
	done := monitoring.Observe(ticketDalName, "delete_ticket", backendSQLite, ticketsTable)
	defer func() { done(err) }()

	conn, err := d.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("error taking connection: %w", err)
	}
	defer d.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM tickets WHERE room = ?`, &sqlitex.ExecOptions{
		Args: []any{room},
	})
	if err != nil {
		return fmt.Errorf("error deleting ticket: %w", err)
	}
	if conn.Changes() == 0 {
		return ErrNoTicket
	}
	return nil
}

func (d *sqliteTicketDal) Ping(ctx context.Context) (err error) {
	done := monitoring.Observe(ticketDalName, "ping", backendSQLite, "-")
	defer func() { done(err) }()

	conn, err := d.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("error taking connection: %w", err)
	}
	defer d.pool.Put(conn)

	return sqlitex.ExecuteTransient(conn, "SELECT 1", nil)
}

func (d *sqliteTicketDal) Close(_ context.Context) error {
	if err := d.pool.Close(); err != nil {
		return fmt.Errorf("error closing sqlite: %w", err)
	}
	return nil
}
