package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Jacobbrewer1/howl/cmd/bot/config"
	"github.com/Jacobbrewer1/howl/cmd/bot/monitoring"
	"github.com/Jacobbrewer1/howl/pkg/clock"
	"github.com/Jacobbrewer1/howl/pkg/command"
	"github.com/Jacobbrewer1/howl/pkg/dataaccess"
	"github.com/Jacobbrewer1/howl/pkg/enforcer"
	"github.com/Jacobbrewer1/howl/pkg/entities"
	"github.com/Jacobbrewer1/howl/pkg/events"
	"github.com/Jacobbrewer1/howl/pkg/lifecycle"
	"github.com/Jacobbrewer1/howl/pkg/logging"
	"github.com/Jacobbrewer1/howl/pkg/policy"
	"github.com/Jacobbrewer1/howl/pkg/registry"
	"github.com/Jacobbrewer1/howl/pkg/request"
	"github.com/Jacobbrewer1/howl/pkg/scheduler"
	"github.com/Jacobbrewer1/howl/pkg/transport"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// PathMetrics is the path for metrics.
	PathMetrics = "/metrics"

	// PathHealth is the path for health check.
	PathHealth = "/health"

	shutdownTimeout = 10 * time.Second
)

// IApp is the interface for the application.
type IApp interface {
	// Log returns the logger.
	Log() *slog.Logger

	// Engine returns the ticket lifecycle engine.
	Engine() *lifecycle.Engine

	// Transport returns the chat platform.
	Transport() transport.Transport
}

type App struct {
	// is the logger.
	*slog.Logger

	// r is the router for the application.
	r *mux.Router

	// svr is the server for the application.
	svr *http.Server

	// clock drives every ticket deadline.
	clock clock.Clock

	// store is the durable ticket table.
	store dataaccess.TicketDal

	// tr is the chat platform.
	tr transport.Transport

	// pub fans lifecycle events out.
	pub events.Publisher

	reg      *registry.Registry
	sched    *scheduler.Scheduler
	engine   *lifecycle.Engine
	enforcer *enforcer.Enforcer

	// handleCommand routes commands to their controllers.
	handleCommand func(ctx context.Context, ev *transport.CommandEvent)

	// eventNotifier is the channel the transport delivers events on. It is buffered to prevent blocking.
	eventNotifier chan any
}

// NewApp creates a new instance of App.
func NewApp(l *slog.Logger, r *mux.Router, clk clock.Clock) *App {
	return &App{
		Logger:        l,
		r:             r,
		clock:         clk,
		eventNotifier: make(chan any, 100),
	}
}

func (a *App) Log() *slog.Logger {
	return a.Logger
}

func (a *App) Engine() *lifecycle.Engine {
	return a.engine
}

func (a *App) Transport() transport.Transport {
	return a.tr
}

func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.setup(ctx); err != nil {
		// Release whatever was opened before the failure.
		if shutdownErr := a.ShutdownHook(); shutdownErr != nil {
			a.Error("Error shutting down application", slog.String(logging.KeyError, shutdownErr.Error()))
		}
		return err
	}

	a.generateServer()
	a.setupRoutes()
	a.runServer()

	// Deadlines that passed while the bot was down fire now.
	a.engine.Recover(ctx)

	go a.eventListener(ctx)

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- a.tr.Listen(ctx, a.eventNotifier)
	}()

	a.Info("Bot is now running.", slog.String("transport", config.Transport), slog.String("self", a.tr.Self()))

	var runErr error
	select {
	case <-ctx.Done():
		a.Info("Received shutdown signal")
	case err := <-listenErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("error listening for events: %w", err)
		}
	}
	stop()

	if err := a.ShutdownHook(); err != nil {
		a.Error("Error shutting down application", slog.String(logging.KeyError, err.Error()))
	}
	return runErr
}

// setup opens the store, loads the tickets and connects to the platform.
func (a *App) setup(ctx context.Context) error {
	store, err := openStore(ctx, a.Logger)
	if err != nil {
		return fmt.Errorf("error opening store: %w", err)
	}
	a.store = store

	a.reg = registry.New(a.Logger, store)
	if err := a.reg.Load(ctx); err != nil {
		return fmt.Errorf("error loading tickets: %w", err)
	}

	tr, err := newTransport(ctx, a.Logger)
	if err != nil {
		return fmt.Errorf("error connecting to %s: %w", config.Transport, err)
	}
	a.tr = tr

	pub, err := newPublisher(a.Logger)
	if err != nil {
		return fmt.Errorf("error creating event publisher: %w", err)
	}
	a.pub = pub

	a.assemble(config.Ticketing)
	return nil
}

// assemble builds the ticketing components over the store, registry and transport.
func (a *App) assemble(cfg *entities.TicketingConfig) {
	a.sched = scheduler.New(a.Logger, a.clock)
	a.engine = lifecycle.New(a.Logger, cfg, a.reg, a.sched, a.tr, a.pub, a.clock)

	self := a.tr.Self()
	a.enforcer = enforcer.New(
		a.Logger,
		policy.New(a.reg, cfg.AdminPrincipals, self),
		policy.NewBanList(cfg.BannedPrincipals),
		a.tr,
		self,
	)

	a.handleCommand = commandHandler(a, map[command.Name]commandController{
		command.NameHelp:   helpCmdController,
		command.NameOpen:   openCmdController,
		command.NameClose:  closeCmdController,
		command.NameStatus: statusCmdController,
		command.NameDelete: deleteCmdController,
	})
}

func (a *App) ShutdownHook() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error

	// Stop the timers first so nothing acts on a closing transport.
	if a.sched != nil {
		a.sched.Stop()
	}

	if a.svr != nil {
		if err := a.svr.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down monitoring server: %w", err))
		}
	}

	if a.tr != nil {
		if err := a.tr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing transport: %w", err))
		}
	}

	if a.pub != nil {
		if err := a.pub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing event publisher: %w", err))
		}
	}

	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("error closing store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) runServer() {
	go func() {
		a.Info("Starting monitoring server", slog.String("addr", a.svr.Addr))
		if err := a.svr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Error("Error starting monitoring server", slog.String(logging.KeyError, err.Error()))
			a.Warn("Monitoring server will not be available")
		}
	}()
}

func (a *App) setupRoutes() {
	// PathMetrics is the path for metrics.
	a.r.HandleFunc(PathMetrics, promhttp.Handler().ServeHTTP).Methods(http.MethodGet)

	// PathHealth is the path for health check.
	a.r.HandleFunc(PathHealth, middlewareHttp(a, a.healthCheck())).Methods(http.MethodGet)

	// NotFoundHandler is the handler for 404.
	a.r.NotFoundHandler = request.NotFoundHandler(a.Logger)

	// MethodNotAllowedHandler is the handler for 405.
	a.r.MethodNotAllowedHandler = request.MethodNotAllowedHandler(a.Logger)
}

func (a *App) generateServer() {
	a.svr = &http.Server{
		Addr:              ":" + config.MonitoringPort,
		Handler:           a.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// eventListener is the single worker. Commands and membership events are handled one at a time.
func (a *App) eventListener(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-a.eventNotifier:
			a.handleEvent(ctx, e)
		}
	}
}

func (a *App) handleEvent(ctx context.Context, e any) {
	switch t := e.(type) {
	case *transport.CommandEvent:
		monitoring.TotalEvents.WithLabelValues("command").Inc()
		a.handleCommand(ctx, t)
	case *transport.MembershipEvent:
		monitoring.TotalEvents.WithLabelValues("membership").Inc()
		outcome := a.enforcer.HandleMembership(ctx, t)
		monitoring.MembershipCorrections.WithLabelValues(outcome.String()).Inc()
	default:
		a.Error("Unknown event type", slog.String("type", fmt.Sprintf("%T", e)))
		monitoring.TotalEvents.WithLabelValues("unknown").Inc()
	}
}
