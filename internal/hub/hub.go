package hub

import (
	"context"
	"ctchen222/passplay/internal/events"
	"ctchen222/passplay/internal/table"
	"ctchen222/passplay/pkg/proto"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var heartbeatInterval = 10 * time.Second

var tracer = otel.Tracer("hub")

// TableService is the part of the table service the hub forwards commands to.
type TableService interface {
	Get(ctx context.Context, id string) (table.State, error)
	Place(ctx context.Context, id string, slot int) (table.State, error)
	Reset(ctx context.Context, id string) (table.State, error)
}

type directMessage struct {
	to  *watcher
	msg proto.ServerMessage
	// snapshot marks the table read when the watcher joined. It is dropped
	// if an event update already reached the watcher, being older than it.
	snapshot bool
}

// Hub fans table events out to the websocket watchers of each table.
type Hub struct {
	subscriber events.Subscriber
	tables     TableService

	// Owned by the Run loop.
	watchers map[string]map[*watcher]struct{}

	register   chan *watcher
	unregister chan *watcher
	direct     chan directMessage
	done       chan struct{}
}

// NewHub creates a new hub.
func NewHub(subscriber events.Subscriber, tables TableService) *Hub {
	return &Hub{
		subscriber: subscriber,
		tables:     tables,
		watchers:   make(map[string]map[*watcher]struct{}),
		register:   make(chan *watcher),
		unregister: make(chan *watcher),
		direct:     make(chan directMessage),
		done:       make(chan struct{}),
	}
}

// Run subscribes to table events and serves watchers until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	feed, unsubscribe, err := h.subscriber.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	defer unsubscribe()
	slog.InfoContext(ctx, "Event subscriber started", "channel", events.EventsChannel)

	pingTicker := time.NewTicker(heartbeatInterval)
	defer pingTicker.Stop()
	defer h.dropAll()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Hub stopping")
			return nil

		case w := <-h.register:
			if h.watchers[w.tableID] == nil {
				h.watchers[w.tableID] = make(map[*watcher]struct{})
			}
			h.watchers[w.tableID][w] = struct{}{}
			slog.DebugContext(ctx, "Watcher registered", "watcher.id", w.id, "table.id", w.tableID)

		case w := <-h.unregister:
			h.drop(w)
			slog.DebugContext(ctx, "Watcher unregistered", "watcher.id", w.id, "table.id", w.tableID)

		case d := <-h.direct:
			if _, ok := h.watchers[d.to.tableID][d.to]; !ok {
				continue
			}
			if d.snapshot && d.to.updated {
				slog.DebugContext(ctx, "Dropping stale snapshot", "watcher.id", d.to.id, "table.id", d.to.tableID)
				continue
			}
			h.enqueue(ctx, d.to, encode(ctx, d.msg))

		case event, ok := <-feed:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("hub: event feed closed")
			}
			h.dispatch(ctx, event)

		case <-pingTicker.C:
			for _, ws := range h.watchers {
				for w := range ws {
					h.enqueue(ctx, w, frame{kind: websocket.PingMessage})
				}
			}
		}
	}
}

// dispatch sends event to the watchers of its table.
func (h *Hub) dispatch(ctx context.Context, event events.Event) {
	ctx, span := tracer.Start(ctx, "hub.handleEvent", trace.WithAttributes(
		attribute.String("event.type", event.Type),
	))
	defer span.End()

	payload, err := event.Table()
	if err != nil {
		slog.ErrorContext(ctx, "Could not unmarshal table event payload", "event.type", event.Type, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Could not unmarshal table event payload")
		return
	}
	span.SetAttributes(attribute.String("table.id", payload.TableID))

	ws := h.watchers[payload.TableID]
	if len(ws) == 0 {
		return
	}

	if event.Type == events.TypeTableClosed {
		f := encode(ctx, proto.Closed(payload.TableID))
		for w := range ws {
			h.enqueue(ctx, w, f)
			h.drop(w)
		}
		return
	}

	st, err := table.NewState(payload.TableID, payload.Board, payload.Cue)
	if err != nil {
		slog.ErrorContext(ctx, "Table event carries an invalid board", "table.id", payload.TableID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid board in event")
		return
	}
	f := encode(ctx, proto.Update(event.Type, st, payload.Slot))
	for w := range ws {
		w.updated = true
		h.enqueue(ctx, w, f)
	}
}

// enqueue queues f for w, dropping w when its buffer is full.
func (h *Hub) enqueue(ctx context.Context, w *watcher, f frame) {
	select {
	case w.send <- f:
	default:
		slog.WarnContext(ctx, "Watcher too slow, dropping it", "watcher.id", w.id, "table.id", w.tableID)
		h.drop(w)
	}
}

func (h *Hub) drop(w *watcher) {
	ws, ok := h.watchers[w.tableID]
	if !ok {
		return
	}
	if _, ok := ws[w]; !ok {
		return
	}
	delete(ws, w)
	close(w.send)
	if len(ws) == 0 {
		delete(h.watchers, w.tableID)
	}
}

func (h *Hub) dropAll() {
	for _, ws := range h.watchers {
		for w := range ws {
			h.drop(w)
		}
	}
}

func encode(ctx context.Context, msg proto.ServerMessage) frame {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.ErrorContext(ctx, "Error marshalling message", "message.type", msg.Type, "error", err)
		return frame{kind: websocket.TextMessage, data: []byte(`{"type":"error"}`)}
	}
	return frame{kind: websocket.TextMessage, data: data}
}
