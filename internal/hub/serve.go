package hub

import (
	"context"
	"ctchen222/passplay/internal/game"
	"ctchen222/passplay/internal/table"
	"ctchen222/passplay/internal/validator"
	"ctchen222/passplay/pkg/proto"
	"encoding/json"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Serve follows tableID on conn until the connection drops or the hub stops.
// The watcher first receives the current table, then an update per table
// event. Commands are only carried out when canCommand is set.
func (h *Hub) Serve(ctx context.Context, tableID string, conn Connection, canCommand bool) {
	w := newWatcher(tableID, conn, canCommand)
	ctx, span := tracer.Start(ctx, "hub.Serve", trace.WithAttributes(
		attribute.String("table.id", tableID),
		attribute.String("watcher.id", w.id),
		attribute.Bool("watcher.can_command", canCommand),
	))
	defer span.End()

	go w.writePump(ctx)

	select {
	case h.register <- w:
	case <-h.done:
		close(w.send)
		return
	}

	st, err := h.tables.Get(ctx, tableID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Could not load table")
		h.reply(w, proto.Error(err.Error()))
	} else {
		h.snapshot(w, st)
	}

	w.readPump(ctx, h.handleMessage)

	select {
	case h.unregister <- w:
	case <-h.done:
	}
}

// reply sends msg to w alone.
func (h *Hub) reply(w *watcher, msg proto.ServerMessage) {
	select {
	case h.direct <- directMessage{to: w, msg: msg}:
	case <-h.done:
	}
}

// snapshot sends st to w unless a newer table already reached it.
func (h *Hub) snapshot(w *watcher, st table.State) {
	select {
	case h.direct <- directMessage{to: w, msg: proto.Update("", st, nil), snapshot: true}:
	case <-h.done:
	}
}

// handleMessage handles a message from a watcher. It acts as a dispatcher.
func (h *Hub) handleMessage(ctx context.Context, w *watcher, raw []byte) {
	ctx, span := tracer.Start(ctx, "hub.handleMessage", trace.WithAttributes(
		attribute.String("table.id", w.tableID),
		attribute.String("watcher.id", w.id),
	))
	defer span.End()

	var message proto.ClientMessage
	if err := json.Unmarshal(raw, &message); err != nil {
		slog.WarnContext(ctx, "Error unmarshalling message", "watcher.id", w.id, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Error unmarshalling message")
		h.reply(w, proto.Error("malformed message"))
		return
	}

	if err := validator.GetValidator().Struct(message); err != nil {
		slog.WarnContext(ctx, "Invalid message from watcher", "watcher.id", w.id, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid message format")
		h.reply(w, proto.Error(validator.Describe(err)))
		return
	}
	span.SetAttributes(attribute.String("message.type", message.Type))

	if !w.canCommand {
		span.SetStatus(codes.Error, "Watcher may not command")
		h.reply(w, proto.Error("a table token is required to play"))
		return
	}

	var err error
	switch message.Type {
	case proto.TypePlace:
		_, err = h.tables.Place(ctx, w.tableID, *message.Slot)
	case proto.TypeReset:
		_, err = h.tables.Reset(ctx, w.tableID)
	}

	var moveErr *game.MoveError
	switch {
	case errors.As(err, &moveErr):
		h.reply(w, proto.Rejected(moveErr))
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "Command failed")
		h.reply(w, proto.Error(err.Error()))
	}
}
