package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const MaxColumnNameLen = 100

// Column is an ordered bucket of cards. Columns occupy positions 0..M-1
// across the board.
type Column struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ColumnPosition is one entry of a complete reorder request.
type ColumnPosition struct {
	ID       uuid.UUID `json:"id"`
	Position int       `json:"position"`
}

type ColumnRepository interface {
	// Create appends the column at the end of the board and sets c.Position.
	Create(ctx context.Context, c *Column) error
	GetByID(ctx context.Context, id uuid.UUID) (*Column, error)
	List(ctx context.Context) ([]*Column, error)
	Update(ctx context.Context, c *Column) error
	// Delete fails with ErrValidation while the column still owns cards.
	Delete(ctx context.Context, id uuid.UUID) error
	// Reorder applies a complete ordering and returns all columns sorted by
	// position. The id set must equal the stored id set.
	Reorder(ctx context.Context, order []ColumnPosition) ([]*Column, error)
}
