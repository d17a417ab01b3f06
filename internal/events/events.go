package events

import (
	"context"
	"ctchen222/passplay/internal/game"
	"encoding/json"
)

// Pub/Sub channel constants
const (
	EventsChannel = "channel:events"
)

// Event types
const (
	TypeMarkPlaced   = "mark_placed"
	TypeMoveRejected = "move_rejected"
	TypeGameOver     = "game_over"
	TypeTableReset   = "table_reset"
	TypeTableClosed  = "table_closed"
)

// Event represents a table change published via Pub/Sub.
type Event struct {
	Type    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// TablePayload is the payload of every table event: the table as it stands
// after the change, and the feedback cue for the attempt that caused it.
type TablePayload struct {
	TableID string       `json:"table_id"`
	Board   game.Board   `json:"board"`
	Next    game.Mark    `json:"next,omitempty"`
	Outcome game.Outcome `json:"outcome"`
	Cue     game.Cue     `json:"cue,omitempty"`
	Slot    *int         `json:"slot,omitempty"`
}

// NewEvent wraps payload into an Event of the given type.
func NewEvent(eventType string, payload TablePayload) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: raw}, nil
}

// Table decodes the payload of a table event.
func (e Event) Table() (TablePayload, error) {
	var p TablePayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

//go:generate mockgen -destination=mocks/mock_events.go -package=mocks ctchen222/passplay/internal/events Publisher,Subscriber

// Publisher sends events to every subscriber.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber receives published events until ctx is done or the returned
// close function is called.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Event, func() error, error)
}

// Broker is both ends of the event bus.
type Broker interface {
	Publisher
	Subscriber
}
