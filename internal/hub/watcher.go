package hub

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection is an interface that abstracts the websocket connection.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	Close() error
}

type frame struct {
	kind int
	data []byte
}

// watcher is one websocket connection following a table. Only the hub loop
// sends on or closes send; only writePump writes to conn.
type watcher struct {
	id         string
	tableID    string
	conn       Connection
	canCommand bool
	send       chan frame

	// Owned by the Run loop.
	updated bool
}

func newWatcher(tableID string, conn Connection, canCommand bool) *watcher {
	return &watcher{
		id:         uuid.New().String(),
		tableID:    tableID,
		conn:       conn,
		canCommand: canCommand,
		send:       make(chan frame, 16),
	}
}

// writePump writes queued frames until send is closed, then closes the
// connection so the read side stops too.
func (w *watcher) writePump(ctx context.Context) {
	for f := range w.send {
		if err := w.conn.WriteMessage(f.kind, f.data); err != nil {
			slog.WarnContext(ctx, "Failed to write to watcher, assuming disconnect", "watcher.id", w.id, "table.id", w.tableID, "error", err)
			w.conn.Close()
			// Keep draining until the hub drops the watcher.
			for range w.send {
			}
			return
		}
	}
	w.conn.Close()
}

// readPump hands every message from the connection to handle until the
// connection fails.
func (w *watcher) readPump(ctx context.Context, handle func(context.Context, *watcher, []byte)) {
	for {
		kind, msg, err := w.conn.ReadMessage()
		if err != nil {
			slog.DebugContext(ctx, "Watcher connection closed", "watcher.id", w.id, "table.id", w.tableID, "error", err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		handle(ctx, w, msg)
	}
}
