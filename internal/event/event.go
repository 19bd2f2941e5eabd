// Package event defines the closed catalog of board events pushed to
// connected clients. Each event kind is a distinct payload type; the
// Envelope codec maps the wire "type" tag back to that payload type.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
)

type Type string

const (
	TypeCardCreated      Type = "card.created"
	TypeCardUpdated      Type = "card.updated"
	TypeCardMoved        Type = "card.moved"
	TypeCardDeleted      Type = "card.deleted"
	TypeVoteAdded        Type = "vote.added"
	TypeVoteRemoved      Type = "vote.removed"
	TypeCommentAdded     Type = "comment.added"
	TypeCommentUpdated   Type = "comment.updated"
	TypeCommentDeleted   Type = "comment.deleted"
	TypeColumnCreated    Type = "column.created"
	TypeColumnUpdated    Type = "column.updated"
	TypeColumnDeleted    Type = "column.deleted"
	TypeColumnsReordered Type = "columns.reordered"
	TypePollCreated      Type = "poll.created"
	TypePollUpdated      Type = "poll.updated"
	TypePollDeleted      Type = "poll.deleted"
	TypePollVoted        Type = "poll.voted"
	TypePresenceJoined   Type = "presence.joined"
	TypePresenceLeft     Type = "presence.left"
)

// ErrUnknownType is returned when decoding an envelope whose type tag is not
// part of the catalog.
var ErrUnknownType = errors.New("event: unknown type") //nolint:gochecknoglobals // sentinel error

// Payload is implemented only by the payload types of this package.
type Payload interface {
	Type() Type
	sealed()
}

type CardCreated struct{ domain.Card }
type CardUpdated struct{ domain.Card }

type CardMoved struct {
	CardID       uuid.UUID `json:"cardId"`
	FromColumnID uuid.UUID `json:"fromColumnId"`
	ToColumnID   uuid.UUID `json:"toColumnId"`
	Position     int       `json:"position"`
}

type CardDeleted struct {
	CardID uuid.UUID `json:"cardId"`
}

type VoteAdded struct{ domain.Vote }

type VoteRemoved struct {
	CardID uuid.UUID `json:"cardId"`
	UserID uuid.UUID `json:"userId"`
}

type CommentAdded struct{ domain.Comment }
type CommentUpdated struct{ domain.Comment }

type CommentDeleted struct {
	CommentID uuid.UUID `json:"commentId"`
	CardID    uuid.UUID `json:"cardId"`
}

type ColumnCreated struct{ domain.Column }
type ColumnUpdated struct{ domain.Column }

type ColumnDeleted struct {
	ColumnID uuid.UUID `json:"columnId"`
}

type ColumnsReordered struct {
	Columns []domain.Column `json:"columns"`
}

type PollCreated struct{ domain.Poll }
type PollUpdated struct{ domain.Poll }

type PollDeleted struct {
	PollID uuid.UUID `json:"pollId"`
	CardID uuid.UUID `json:"cardId"`
}

// PollVoted carries the poll's votes (empty for secret polls) and the
// recomputed tallies so clients never count on their own.
type PollVoted struct {
	PollID     uuid.UUID         `json:"pollId"`
	CardID     uuid.UUID         `json:"cardId"`
	Votes      []domain.PollVote `json:"votes"`
	Counts     map[uuid.UUID]int `json:"counts"`
	TotalVotes int               `json:"totalVotes"`
}

// Presence identifies a live connection of a user.
type Presence struct {
	UserID       uuid.UUID `json:"userId"`
	Name         string    `json:"name"`
	ConnectionID uuid.UUID `json:"connectionId"`
}

type PresenceJoined struct{ Presence }
type PresenceLeft struct{ Presence }

func (CardCreated) Type() Type      { return TypeCardCreated }
func (CardUpdated) Type() Type      { return TypeCardUpdated }
func (CardMoved) Type() Type        { return TypeCardMoved }
func (CardDeleted) Type() Type      { return TypeCardDeleted }
func (VoteAdded) Type() Type        { return TypeVoteAdded }
func (VoteRemoved) Type() Type      { return TypeVoteRemoved }
func (CommentAdded) Type() Type     { return TypeCommentAdded }
func (CommentUpdated) Type() Type   { return TypeCommentUpdated }
func (CommentDeleted) Type() Type   { return TypeCommentDeleted }
func (ColumnCreated) Type() Type    { return TypeColumnCreated }
func (ColumnUpdated) Type() Type    { return TypeColumnUpdated }
func (ColumnDeleted) Type() Type    { return TypeColumnDeleted }
func (ColumnsReordered) Type() Type { return TypeColumnsReordered }
func (PollCreated) Type() Type      { return TypePollCreated }
func (PollUpdated) Type() Type      { return TypePollUpdated }
func (PollDeleted) Type() Type      { return TypePollDeleted }
func (PollVoted) Type() Type        { return TypePollVoted }
func (PresenceJoined) Type() Type   { return TypePresenceJoined }
func (PresenceLeft) Type() Type     { return TypePresenceLeft }

func (CardCreated) sealed()      {}
func (CardUpdated) sealed()      {}
func (CardMoved) sealed()        {}
func (CardDeleted) sealed()      {}
func (VoteAdded) sealed()        {}
func (VoteRemoved) sealed()      {}
func (CommentAdded) sealed()     {}
func (CommentUpdated) sealed()   {}
func (CommentDeleted) sealed()   {}
func (ColumnCreated) sealed()    {}
func (ColumnUpdated) sealed()    {}
func (ColumnDeleted) sealed()    {}
func (ColumnsReordered) sealed() {}
func (PollCreated) sealed()      {}
func (PollUpdated) sealed()      {}
func (PollDeleted) sealed()      {}
func (PollVoted) sealed()        {}
func (PresenceJoined) sealed()   {}
func (PresenceLeft) sealed()     {}

// decoders maps each type tag to a decoder of its payload.
var decoders = map[Type]func(json.RawMessage) (Payload, error){ //nolint:gochecknoglobals // static catalog
	TypeCardCreated:      decodeAs[CardCreated],
	TypeCardUpdated:      decodeAs[CardUpdated],
	TypeCardMoved:        decodeAs[CardMoved],
	TypeCardDeleted:      decodeAs[CardDeleted],
	TypeVoteAdded:        decodeAs[VoteAdded],
	TypeVoteRemoved:      decodeAs[VoteRemoved],
	TypeCommentAdded:     decodeAs[CommentAdded],
	TypeCommentUpdated:   decodeAs[CommentUpdated],
	TypeCommentDeleted:   decodeAs[CommentDeleted],
	TypeColumnCreated:    decodeAs[ColumnCreated],
	TypeColumnUpdated:    decodeAs[ColumnUpdated],
	TypeColumnDeleted:    decodeAs[ColumnDeleted],
	TypeColumnsReordered: decodeAs[ColumnsReordered],
	TypePollCreated:      decodeAs[PollCreated],
	TypePollUpdated:      decodeAs[PollUpdated],
	TypePollDeleted:      decodeAs[PollDeleted],
	TypePollVoted:        decodeAs[PollVoted],
	TypePresenceJoined:   decodeAs[PresenceJoined],
	TypePresenceLeft:     decodeAs[PresenceLeft],
}

func decodeAs[P Payload](raw json.RawMessage) (Payload, error) {
	var p P
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Known reports whether t is part of the catalog.
func Known(t Type) bool {
	_, ok := decoders[t]
	return ok
}

// Envelope wraps one payload for a single fan-out. ID is assigned by the
// delivering node and increases monotonically per node; it is zero until
// then. Epoch names the hub process that assigned ID: ids from different
// epochs are not comparable.
type Envelope struct {
	ID        uint64    `json:"id,omitempty"`
	Epoch     uuid.UUID `json:"epoch,omitzero"`
	Type      Type      `json:"type"`
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// New wraps p in an envelope stamped with the current time.
func New(p Payload) Envelope {
	return Envelope{Type: p.Type(), Payload: p, Timestamp: time.Now().UTC()}
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var wire struct {
		ID        uint64          `json:"id"`
		Epoch     uuid.UUID       `json:"epoch"`
		Type      Type            `json:"type"`
		Payload   json.RawMessage `json:"payload"`
		Timestamp time.Time       `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return fmt.Errorf("event.Envelope.UnmarshalJSON: %w", err)
	}

	decode, ok := decoders[wire.Type]
	if !ok {
		return fmt.Errorf("event.Envelope.UnmarshalJSON: %q: %w", wire.Type, ErrUnknownType)
	}

	payload, err := decode(wire.Payload)
	if err != nil {
		return fmt.Errorf("event.Envelope.UnmarshalJSON: %s payload: %w", wire.Type, err)
	}

	e.ID = wire.ID
	e.Epoch = wire.Epoch
	e.Type = wire.Type
	e.Payload = payload
	e.Timestamp = wire.Timestamp
	return nil
}

// Encode marshals an envelope to its wire form.
func Encode(e Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("event.Encode: %w", err)
	}
	return b, nil
}

// Decode parses an envelope from its wire form.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
