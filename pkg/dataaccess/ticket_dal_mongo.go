package dataaccess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Jacobbrewer1/howl/pkg/custom"
	"github.com/Jacobbrewer1/howl/pkg/dataaccess/monitoring"
	"github.com/Jacobbrewer1/howl/pkg/entities"
	"github.com/Jacobbrewer1/howl/pkg/logging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const backendMongo = "mongo"

type mongoTicketDal struct {
	// l is the logger.
	l *slog.Logger

	// client is the database.
	client *mongo.Client
}

// NewMongoTicketDal creates a ticket data access layer backed by Mongo and ensures its indexes exist.
func NewMongoTicketDal(ctx context.Context, l *slog.Logger, client *mongo.Client) (TicketDal, error) {
	if client == nil {
		return nil, errors.New("mongo client is nil")
	}

	d := &mongoTicketDal{
		l:      l.With(slog.String(logging.KeyDal, ticketDalName)),
		client: client,
	}

	// One row per room, and at most one open ticket per owner.
	_, err := d.tickets().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "room", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "owner", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": entities.StatusOpen}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating ticket indexes: %w", err)
	}

	return d, nil
}

func (d *mongoTicketDal) tickets() *mongo.Collection {
	return d.client.Database(mongoDatabase).Collection(ticketsTable)
}

func (d *mongoTicketDal) counters() *mongo.Collection {
	return d.client.Database(mongoDatabase).Collection(countersTable)
}

func (d *mongoTicketDal) LoadTickets(ctx context.Context) (tickets []*entities.Ticket, highWater int, err error) {
	done := monitoring.Observe(ticketDalName, "load_tickets", backendMongo, ticketsTable)
	defer func() { done(err) }()

	cur, err := d.tickets().Find(ctx, bson.M{
		"status": bson.M{"$in": []entities.Status{entities.StatusOpen, entities.StatusClosed}},
	}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, 0, fmt.Errorf("error finding tickets: %w", err)
	}

	tickets = make([]*entities.Ticket, 0)
	if err := cur.All(ctx, &tickets); err != nil {
		return nil, 0, fmt.Errorf("error decoding tickets: %w", err)
	}

	var seq struct {
		Value int `bson:"value"`
	}
	err = d.counters().FindOne(ctx, bson.M{"_id": ticketSequence}).Decode(&seq)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		err = nil
	case err != nil:
		return nil, 0, fmt.Errorf("error getting ticket sequence: %w", err)
	}

	highWater = seq.Value
	for _, t := range tickets {
		if t.ID > highWater {
			highWater = t.ID
		}
	}

	d.l.Debug("Loaded tickets", slog.Int("count", len(tickets)), slog.Int("high_water", highWater))
	return tickets, highWater, nil
}

func (d *mongoTicketDal) InsertTicket(ctx context.Context, ticket *entities.Ticket) (err error) {
	done := monitoring.Observe(ticketDalName, "insert_ticket", backendMongo, ticketsTable)
	defer func() { done(err) }()

	// Raise the high-water mark first. A failed insert leaves a gap, never a reused id.
	opts := options.Update().SetUpsert(true)
	if _, err = d.counters().UpdateOne(ctx,
		bson.M{"_id": ticketSequence},
		bson.M{"$max": bson.M{"value": ticket.ID}},
		opts,
	); err != nil {
		return fmt.Errorf("error updating ticket sequence: %w", err)
	}

	if _, err = d.tickets().InsertOne(ctx, ticket); err != nil {
		return fmt.Errorf("error inserting ticket: %w", err)
	}
	return nil
}

func (d *mongoTicketDal) UpdateTicketStatus(ctx context.Context, room string, status entities.Status, closedAt custom.Datetime) (err error) {
	done := monitoring.Observe(ticketDalName, "update_ticket_status", backendMongo, ticketsTable)
	defer func() { done(err) }()

	res, err := d.tickets().UpdateOne(ctx,
		bson.M{"room": room},
		bson.M{"$set": bson.M{"status": status, "closed_at": closedAt}},
	)
	if err != nil {
		return fmt.Errorf("error updating ticket: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNoTicket
	}
	return nil
}

func (d *mongoTicketDal) DeleteTicket(ctx context.Context, room string) (err error) {
	done := monitoring.Observe(ticketDalName, "delete_ticket", backendMongo, ticketsTable)
	defer func() { done(err) }()

	res, err := d.tickets().DeleteOne(ctx, bson.M{"room": room})
	if err != nil {
		return fmt.Errorf("error deleting ticket: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNoTicket
	}
	return nil
}

func (d *mongoTicketDal) Ping(ctx context.Context) (err error) {
	done := monitoring.Observe(ticketDalName, "ping", backendMongo, "-")
	defer func() { done(err) }()

	if err = d.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("error pinging mongo: %w", err)
	}
	return nil
}

func (d *mongoTicketDal) Close(ctx context.Context) error {
	if err := d.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("error disconnecting from mongo: %w", err)
	}
	return nil
}
