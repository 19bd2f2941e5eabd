package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Vote is unique per (CardID, UserID).
type Vote struct {
	ID        uuid.UUID `json:"id"`
	CardID    uuid.UUID `json:"cardId"`
	UserID    uuid.UUID `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type VoteRepository interface {
	// Create fails with ErrConflict when the user already voted on the card.
	Create(ctx context.Context, v *Vote) error
	Get(ctx context.Context, cardID, userID uuid.UUID) (*Vote, error)
	Delete(ctx context.Context, cardID, userID uuid.UUID) error
	ListByCard(ctx context.Context, cardID uuid.UUID) ([]Vote, error)
}
