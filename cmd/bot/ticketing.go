package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Jacobbrewer1/howl/pkg/command"
	"github.com/Jacobbrewer1/howl/pkg/entities"
	"github.com/Jacobbrewer1/howl/pkg/lifecycle"
	"github.com/Jacobbrewer1/howl/pkg/messages"
	"github.com/Jacobbrewer1/howl/pkg/registry"
	"github.com/Jacobbrewer1/howl/pkg/transport"
)

func helpCmdController(_ context.Context, _ IApp, _ *transport.CommandEvent, _ *command.Command) (string, error) {
	return messages.CategoryMenu, nil
}

func openCmdController(ctx context.Context, a IApp, ev *transport.CommandEvent, cmd *command.Command) (string, error) {
	if cmd.Category == "" {
		return messages.CategoryMenu, nil
	}

	t, err := a.Engine().Open(ctx, ev.Sender, cmd.Category, cmd.Subject)
	switch {
	case errors.Is(err, lifecycle.ErrInvalidCategory):
		return messages.InvalidCategory, nil
	case errors.Is(err, registry.ErrDuplicateOpenTicket):
		room := ""
		if t != nil {
			room = a.Engine().RoomLink(t.Room)
		}
		return fmt.Sprintf(messages.AlreadyOpen, room), nil
	case errors.Is(err, lifecycle.ErrRoomProvisioning):
		return messages.RoomProvisioningFailed, nil
	case err != nil:
		return "", fmt.Errorf("error opening ticket: %w", err)
	}

	reply := fmt.Sprintf(messages.TicketCreated, t.ID, t.Room)
	if link := a.Engine().Config().RoomLink(t.Room); link != "" {
		reply += "\n" + fmt.Sprintf(messages.JoinLink, link)
	}
	return reply, nil
}

func closeCmdController(ctx context.Context, a IApp, ev *transport.CommandEvent, _ *command.Command) (string, error) {
	t, err := a.Engine().Close(ctx, ev.Sender, ev.Room)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return messages.NoOpenTicket, nil
	case errors.Is(err, registry.ErrInvalidTransition):
		return messages.AlreadyClosed, nil
	case errors.Is(err, lifecycle.ErrUnauthorized):
		return messages.NotAuthorized, nil
	case err != nil:
		return "", fmt.Errorf("error closing ticket: %w", err)
	}

	// The ticket room has already been told.
	if t.Room == ev.Room {
		return "", nil
	}
	return fmt.Sprintf(messages.TicketClosed, lifecycle.HumanDuration(a.Engine().Config().Retention)), nil
}

func statusCmdController(ctx context.Context, a IApp, ev *transport.CommandEvent, _ *command.Command) (string, error) {
	t, err := a.Engine().Status(ctx, ev.Sender, ev.Room)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return messages.NoOpenTickets, nil
	case err != nil:
		return "", fmt.Errorf("error getting ticket status: %w", err)
	}

	link := a.Engine().RoomLink(t.Room)
	if t.Status == entities.StatusClosed {
		remaining := lifecycle.HumanDuration(a.Engine().RetentionRemaining(t))
		return fmt.Sprintf(messages.StatusClosed, t.ID, link, remaining), nil
	}
	return fmt.Sprintf(messages.StatusOpen, t.ID, link), nil
}

func deleteCmdController(ctx context.Context, a IApp, ev *transport.CommandEvent, _ *command.Command) (string, error) {
	_, err := a.Engine().Delete(ctx, ev.Sender, ev.Room)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return messages.NoTicketInRoom, nil
	case errors.Is(err, registry.ErrInvalidTransition):
		return messages.DeleteNotClosed, nil
	case errors.Is(err, lifecycle.ErrUnauthorized):
		return messages.DeleteNotAllowed, nil
	case err != nil:
		return "", fmt.Errorf("error deleting ticket: %w", err)
	}

	// The room is gone, and the notice was sent before it went.
	return "", nil
}
