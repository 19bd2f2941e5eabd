package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const MaxCommentLen = 2000

type Comment struct {
	ID        uuid.UUID   `json:"id"`
	Body      string      `json:"body"`
	CardID    uuid.UUID   `json:"cardId"`
	CreatedBy uuid.UUID   `json:"createdBy"`
	Author    UserSummary `json:"author"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type CommentRepository interface {
	Create(ctx context.Context, c *Comment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Comment, error)
	ListByCard(ctx context.Context, cardID uuid.UUID) ([]Comment, error)
	Update(ctx context.Context, c *Comment) error
	Delete(ctx context.Context, id uuid.UUID) error
}
