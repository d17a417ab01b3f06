package proto

import (
	"ctchen222/passplay/internal/game"
	"ctchen222/passplay/internal/table"
)

// Client message types.
const (
	TypePlace = "place"
	TypeReset = "reset"
)

// Server message types.
const (
	TypeUpdate = "update"
	TypeError  = "error"
	TypeClosed = "closed"
)

// ClientMessage represents a command sent by a table watcher.
type ClientMessage struct {
	Type string `json:"type" validate:"required,oneof=place reset"`
	Slot *int   `json:"slot,omitempty" validate:"required_if=Type place"`
}

// ServerMessage represents a message from the server to a table watcher.
type ServerMessage struct {
	Type   string       `json:"type"`
	Event  string       `json:"event,omitempty"`
	Table  *table.State `json:"table,omitempty"`
	Slot   *int         `json:"slot,omitempty"`
	Reason game.Reason  `json:"reason,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Update carries the table as it stands after event.
func Update(event string, st table.State, slot *int) ServerMessage {
	return ServerMessage{Type: TypeUpdate, Event: event, Table: &st, Slot: slot}
}

// Rejected tells the sender why its placement was refused.
func Rejected(err *game.MoveError) ServerMessage {
	slot := err.Slot
	return ServerMessage{Type: TypeError, Slot: &slot, Reason: err.Reason, Error: err.Error()}
}

// Error reports a command that could not be carried out.
func Error(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Error: message}
}

// Closed tells watchers the table is gone.
func Closed(tableID string) ServerMessage {
	return ServerMessage{Type: TypeClosed, Table: &table.State{ID: tableID}}
}
