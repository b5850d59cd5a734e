package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/Jacobbrewer1/howl/cmd/bot/monitoring"
	"github.com/Jacobbrewer1/howl/pkg/command"
	"github.com/Jacobbrewer1/howl/pkg/logging"
	"github.com/Jacobbrewer1/howl/pkg/messages"
	"github.com/Jacobbrewer1/howl/pkg/request"
	"github.com/Jacobbrewer1/howl/pkg/transport"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// commandController handles one subcommand and returns the reply for the requester.
// Rejections are replies, not errors. An empty reply sends nothing.
type commandController func(ctx context.Context, a IApp, ev *transport.CommandEvent, cmd *command.Command) (string, error)

const (
	resultOK       = "ok"
	resultError    = "error"
	resultRejected = "rejected"
)

type Controller func(w http.ResponseWriter, r *http.Request)

func middlewareHttp(a IApp, handler Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		cw := request.NewClientWriter(w)

		// Recover from any panics that occur in the handler.
		defer func() {
			if rec := recover(); rec != nil {
				a.Log().Error("Panic in handler",
					slog.String(logging.KeyError, fmt.Sprintf("%v", rec)),
					slog.String("stack", string(debug.Stack())),
				)
				cw.WriteHeader(http.StatusInternalServerError)
				if err := json.NewEncoder(cw).Encode(request.NewMessage(request.ErrInternalServer.Error())); err != nil {
					a.Log().Error("Error encoding response", slog.String(logging.KeyError, err.Error()))
				}
			}
		}()

		var path string
		route := mux.CurrentRoute(r)
		if route != nil { // The route may be nil if the request is not routed.
			var err error
			path, err = route.GetPathTemplate()
			if err != nil {
				// An error here is only returned if the route does not define a path.
				a.Log().Error("Error getting path template", slog.String(logging.KeyError, err.Error()))
				path = r.URL.Path
			}
		} else {
			path = r.URL.Path
		}

		defer func() {
			// Run after the handler, as the status code is not known until then.
			monitoring.HttpTotalRequests.WithLabelValues(path, r.Method, fmt.Sprintf("%d", cw.StatusCode())).Inc()
			monitoring.HttpRequestDuration.WithLabelValues(path, r.Method, fmt.Sprintf("%d", cw.StatusCode())).Observe(time.Since(now).Seconds())
		}()

		handler(cw, r)
	}
}

// commandHandler parses command text and routes it to the controller for its subcommand.
func commandHandler(a IApp, controllers map[command.Name]commandController) func(ctx context.Context, ev *transport.CommandEvent) {
	return func(ctx context.Context, ev *transport.CommandEvent) {
		l := a.Log().With(
			slog.String(logging.KeyRoom, ev.Room),
			slog.String(logging.KeyPrincipal, ev.Sender),
		)

		cmd, err := command.Parse(ev.Body)
		switch {
		case errors.Is(err, command.ErrNotCommand):
			return
		case errors.Is(err, command.ErrUnknownSubcommand):
			monitoring.TotalCommands.WithLabelValues("unknown", resultRejected).Inc()
			respond(ctx, a, ev, messages.Usage)
			return
		case err != nil:
			l.Error("Error parsing command", slog.String(logging.KeyError, err.Error()))
			respondError(ctx, a, ev)
			return
		}

		name := string(cmd.Name)
		l.Debug("Handling command " + name)

		controller, ok := controllers[cmd.Name]
		if !ok {
			l.Error(fmt.Sprintf("No controller found for command %s", name), slog.String("command", name))
			respondError(ctx, a, ev)
			return
		}

		t := prometheus.NewTimer(monitoring.CommandDuration.WithLabelValues(name))
		reply, err := controller(ctx, a, ev, cmd)
		t.ObserveDuration()

		if err != nil {
			monitoring.TotalCommands.WithLabelValues(name, resultError).Inc()
			l.Error(fmt.Sprintf("Error processing command %s", name), slog.String(logging.KeyError, err.Error()))
			respondError(ctx, a, ev)
			return
		}
		monitoring.TotalCommands.WithLabelValues(name, resultOK).Inc()

		if reply == "" && ev.MustReply {
			reply = messages.Done
		}
		if reply != "" {
			respond(ctx, a, ev, reply)
		}
	}
}
