package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	MaxCardTitleLen       = 200
	MaxCardDescriptionLen = 2000
)

// Card is an idea living in exactly one column. Position is dense within the
// column: the cards of a column always occupy 0..N-1.
type Card struct {
	ID          uuid.UUID   `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	ColumnID    uuid.UUID   `json:"columnId"`
	CreatedBy   uuid.UUID   `json:"createdBy"`
	Position    int         `json:"position"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Creator     UserSummary `json:"creator"`
	Votes       []Vote      `json:"votes"`
	Comments    []Comment   `json:"comments"`
	Polls       []Poll      `json:"polls"`
}

// CardMove describes a committed move; it is the card.moved delta.
type CardMove struct {
	CardID       uuid.UUID
	FromColumnID uuid.UUID
	ToColumnID   uuid.UUID
	FromPosition int
	Position     int
}

// CardRepository persists cards. Reads return cards with creator, votes,
// comments and polls populated. Create, Delete and Move rewrite sibling
// positions atomically.
type CardRepository interface {
	// Create appends the card at the end of its column and sets c.Position.
	Create(ctx context.Context, c *Card) error
	GetByID(ctx context.Context, id uuid.UUID) (*Card, error)
	List(ctx context.Context) ([]*Card, error)
	ListByColumn(ctx context.Context, columnID uuid.UUID) ([]*Card, error)
	CountByColumn(ctx context.Context, columnID uuid.UUID) (int, error)
	Update(ctx context.Context, c *Card) error
	// Delete removes the card and closes the gap it leaves in its column.
	Delete(ctx context.Context, id uuid.UUID) (*Card, error)
	Move(ctx context.Context, id, toColumnID uuid.UUID, toPosition int) (*CardMove, error)
}

// VisibleTo returns a copy of the card with every nested poll redacted for
// viewer. See Poll.VisibleTo.
func (c *Card) VisibleTo(viewer uuid.UUID) Card {
	out := *c
	if c.Polls == nil {
		return out
	}
	out.Polls = make([]Poll, len(c.Polls))
	for i := range c.Polls {
		out.Polls[i] = c.Polls[i].VisibleTo(viewer)
	}
	return out
}
