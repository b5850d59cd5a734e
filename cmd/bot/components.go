package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jacobbrewer1/howl/cmd/bot/config"
	"github.com/Jacobbrewer1/howl/pkg/dataaccess"
	"github.com/Jacobbrewer1/howl/pkg/dataaccess/connection"
	"github.com/Jacobbrewer1/howl/pkg/events"
	"github.com/Jacobbrewer1/howl/pkg/transport"
	"github.com/Jacobbrewer1/howl/pkg/transport/discord"
	"github.com/Jacobbrewer1/howl/pkg/transport/matrix"
)

func openStore(ctx context.Context, l *slog.Logger) (dataaccess.TicketDal, error) {
	switch config.Store {
	case config.StoreSQLite:
		return dataaccess.NewSQLiteTicketDal(ctx, l, config.SQLitePath)
	case config.StoreMongo:
		mongoConn := new(connection.MongoDB)
		mongoConn.ConnectionString = config.MongoUri

		client, err := mongoConn.Connect(ctx)
		if err != nil {
			return nil, err
		}
		l.Debug("Connected to MongoDB", slog.String("key", config.EnvMongoUri))
		return dataaccess.NewMongoTicketDal(ctx, l, client)
	case config.StoreMemory:
		l.Warn("Using the in-memory store, tickets will not survive a restart")
		return dataaccess.NewMemoryTicketDal(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", config.Store)
	}
}

func newTransport(ctx context.Context, l *slog.Logger) (transport.Transport, error) {
	switch config.Transport {
	case config.TransportMatrix:
		return matrix.NewClient(ctx, l, matrix.Config{
			HomeserverURL:     config.MatrixHomeserver,
			AccessToken:       config.MatrixAccessToken,
			UserID:            config.MatrixUserID,
			PurgeRooms:        config.MatrixPurgeRooms,
			RequestsPerSecond: config.RequestsPerSecond,
			SyncTimeout:       30 * time.Second,
		})
	case config.TransportDiscord:
		return discord.NewClient(l, discord.Config{
			Token:             config.BotToken,
			ApplicationID:     config.ApplicationId,
			GuildID:           config.GuildId,
			CategoryID:        config.TicketCategoryId,
			RequestsPerSecond: config.RequestsPerSecond,
		})
	default:
		return nil, fmt.Errorf("unknown transport %q", config.Transport)
	}
}

func newPublisher(l *slog.Logger) (events.Publisher, error) {
	if config.AmqpUrl == "" {
		l.Debug("No event broker configured, lifecycle events are dropped", slog.String("key", config.EnvAmqpUrl))
		return events.NewNopPublisher(), nil
	}
	return events.NewAMQPPublisher(config.AmqpUrl, config.AmqpExchange, l)
}
