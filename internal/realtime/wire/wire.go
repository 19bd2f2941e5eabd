// Package wire holds the realtime protocol shared by server transports and
// clients: control frames that travel next to board events, messages a
// WebSocket client may send, and the event-stream framing used by the SSE
// fallback.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/event"
)

// Server to client control types. Board events use the event catalog types.
const (
	TypeWelcome      = "welcome"
	TypePong         = "pong"
	TypePresenceList = "presence.list"
	TypeRoomJoined   = "room.joined"
	TypeRoomLeft     = "room.left"
	TypeError        = "error"
	TypeReset        = "reset"
)

// Client to server message types.
const (
	ClientPing     = "ping"
	ClientJoin     = "join"
	ClientLeave    = "leave"
	ClientPresence = "presence"
)

// ClientMessage is a message sent by a WebSocket client.
type ClientMessage struct {
	Type string `json:"type"`
	Room string `json:"room,omitempty"`
}

// Control is a server to client frame that is not a board event.
type Control struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Welcome opens every stream. Epoch and LastEventID together are the
// server's current cursor.
type Welcome struct {
	ConnectionID uuid.UUID `json:"connectionId"`
	Room         string    `json:"room"`
	Epoch        uuid.UUID `json:"epoch"`
	LastEventID  uint64    `json:"lastEventId"`
}

func (w Welcome) Cursor() event.Cursor {
	return event.Cursor{Epoch: w.Epoch, ID: w.LastEventID}
}

type PresenceList struct {
	Room  string           `json:"room"`
	Users []event.Presence `json:"users"`
}

type RoomChange struct {
	Room string `json:"room"`
}

type Error struct {
	Message string `json:"message"`
}

// Reset tells a resuming client that events were missed and the board must
// be refetched.
type Reset struct {
	Epoch       uuid.UUID `json:"epoch"`
	LastEventID uint64    `json:"lastEventId"`
}

func (r Reset) Cursor() event.Cursor {
	return event.Cursor{Epoch: r.Epoch, ID: r.LastEventID}
}

// EncodeControl marshals a control frame.
func EncodeControl(typ string, payload any) ([]byte, error) {
	b, err := json.Marshal(Control{Type: typ, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("wire.EncodeControl: %w", err)
	}
	return b, nil
}

// Frame is a decoded server to client message. Exactly one of Event and
// Payload is meaningful: board events decode into Event, control frames
// keep their raw payload for the caller to unmarshal by Type.
type Frame struct {
	Type    string
	Event   *event.Envelope
	Payload json.RawMessage
}

// IsEvent reports whether the frame carries a board event.
func (f Frame) IsEvent() bool { return f.Event != nil }

// DecodeFrame parses a server to client message.
func DecodeFrame(b []byte) (Frame, error) {
	var head struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return Frame{}, fmt.Errorf("wire.DecodeFrame: %w", err)
	}

	if !event.Known(event.Type(head.Type)) {
		return Frame{Type: head.Type, Payload: head.Payload}, nil
	}

	env, err := event.Decode(b)
	if err != nil {
		return Frame{}, fmt.Errorf("wire.DecodeFrame: %w", err)
	}
	return Frame{Type: head.Type, Event: &env}, nil
}
