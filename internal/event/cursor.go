package event

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidCursor is returned by ParseCursor for malformed input.
var ErrInvalidCursor = errors.New("event: invalid cursor") //nolint:gochecknoglobals // sentinel error

// Cursor is a position in one hub's event sequence. It travels as the SSE
// event id and as the resume parameter, formatted "<epoch>:<id>".
type Cursor struct {
	Epoch uuid.UUID
	ID    uint64
}

// Cursor returns the position of e.
func (e Envelope) Cursor() Cursor {
	return Cursor{Epoch: e.Epoch, ID: e.ID}
}

// IsZero reports whether c names no position at all.
func (c Cursor) IsZero() bool {
	return c.Epoch == uuid.Nil && c.ID == 0
}

func (c Cursor) String() string {
	if c.IsZero() {
		return ""
	}
	return c.Epoch.String() + ":" + strconv.FormatUint(c.ID, 10)
}

// ParseCursor reads a cursor written by Cursor.String. A bare number is
// accepted with a nil epoch, which no hub will recognize as its own.
func ParseCursor(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	epochPart, idPart, found := strings.Cut(s, ":")
	if !found {
		epochPart, idPart = "", s
	}

	var c Cursor
	if epochPart != "" {
		epoch, err := uuid.Parse(epochPart)
		if err != nil {
			return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
		}
		c.Epoch = epoch
	}

	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	c.ID = id
	return c, nil
}
