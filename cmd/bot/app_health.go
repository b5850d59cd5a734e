package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexliesenfeld/health"
)

func (a *App) healthCheck() Controller {
	checker := health.NewChecker(
		// Set a TTL of 1 second for the results of the checks.
		health.WithCacheDuration(1*time.Second),

		// Set a timeout of 2 seconds for the checks.
		health.WithTimeout(2*time.Second),

		// Monitor the health of the ticket store.
		health.WithCheck(health.Check{
			Name: "ticket_store",
			Check: func(ctx context.Context) error {
				if err := a.reg.Ping(ctx); err != nil {
					return fmt.Errorf("failed to ping ticket store: %w", err)
				}
				return nil
			},
			Timeout: 2 * time.Second,
			StatusListener: func(ctx context.Context, name string, state health.CheckState) {
				a.Log().Info("Ticket store health check status changed",
					slog.String("name", name),
					slog.String("state", string(state.Status)),
				)
			},
		}),

		// Monitor the health of the chat platform.
		health.WithPeriodicCheck(15*time.Second, 5*time.Second, health.Check{
			Name: "transport",
			Check: func(ctx context.Context) error {
				if err := a.Transport().Ping(ctx); err != nil {
					return fmt.Errorf("failed to ping chat platform: %w", err)
				}
				return nil
			},
			Timeout: 3 * time.Second,
			StatusListener: func(ctx context.Context, name string, state health.CheckState) {
				a.Log().Info("Transport health check status changed",
					slog.String("name", name),
					slog.String("state", string(state.Status)),
				)
			},
		}),
	)

	return Controller(health.NewHandler(checker))
}
