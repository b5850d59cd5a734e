package main

import (
	"context"
	"log/slog"

	"github.com/Jacobbrewer1/howl/pkg/logging"
	"github.com/Jacobbrewer1/howl/pkg/messages"
	"github.com/Jacobbrewer1/howl/pkg/transport"
)

func respondError(ctx context.Context, a IApp, ev *transport.CommandEvent) {
	respond(ctx, a, ev, messages.ErrUserErrorProcessing)
}

// respond answers the requester, in the room the command came from when the transport gave no reply path.
func respond(ctx context.Context, a IApp, ev *transport.CommandEvent, content string) {
	var err error
	if ev.Reply != nil {
		err = ev.Reply(ctx, content)
	} else {
		err = a.Transport().SendMessage(ctx, ev.Room, content)
	}
	if err != nil {
		a.Log().Error("Error responding to command",
			slog.String(logging.KeyRoom, ev.Room),
			slog.String(logging.KeyPrincipal, ev.Sender),
			slog.String(logging.KeyError, err.Error()),
		)
	}
}
