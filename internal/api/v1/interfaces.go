package v1

import (
	"context"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/board"
	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/realtime"
)

// BoardService is the mutation and query surface of the board.
// *board.Service satisfies this interface.
type BoardService interface {
	Board(ctx context.Context, viewer uuid.UUID) (*board.Snapshot, error)

	ListColumns(ctx context.Context) ([]*domain.Column, error)
	CreateColumn(ctx context.Context, name string) (*domain.Column, error)
	UpdateColumn(ctx context.Context, id uuid.UUID, name string) (*domain.Column, error)
	DeleteColumn(ctx context.Context, id uuid.UUID) error
	ReorderColumns(ctx context.Context, order []domain.ColumnPosition) ([]*domain.Column, error)

	CreateCard(ctx context.Context, actor uuid.UUID, in board.CreateCardInput) (*domain.Card, error)
	GetCard(ctx context.Context, viewer, id uuid.UUID) (*domain.Card, error)
	UpdateCard(ctx context.Context, actor, id uuid.UUID, in board.UpdateCardInput) (*domain.Card, error)
	DeleteCard(ctx context.Context, actor, id uuid.UUID) error
	MoveCard(ctx context.Context, actor, id, toColumnID uuid.UUID, position int) (*domain.Card, error)

	AddVote(ctx context.Context, actor, cardID uuid.UUID) (*domain.Vote, error)
	RemoveVote(ctx context.Context, actor, cardID uuid.UUID) error

	ListComments(ctx context.Context, cardID uuid.UUID) ([]domain.Comment, error)
	CreateComment(ctx context.Context, actor, cardID uuid.UUID, body string) (*domain.Comment, error)
	UpdateComment(ctx context.Context, actor, id uuid.UUID, body string) (*domain.Comment, error)
	DeleteComment(ctx context.Context, actor, id uuid.UUID) error

	CreatePoll(ctx context.Context, actor, cardID uuid.UUID, in board.CreatePollInput) (*domain.Poll, error)
	GetPoll(ctx context.Context, viewer, id uuid.UUID) (*domain.Poll, error)
	UpdatePoll(ctx context.Context, actor, id uuid.UUID, in board.UpdatePollInput) (*domain.Poll, error)
	DeletePoll(ctx context.Context, actor, id uuid.UUID) error
	VotePoll(ctx context.Context, actor, pollID uuid.UUID, optionIDs []uuid.UUID) (*domain.Poll, error)
	RemovePollVote(ctx context.Context, actor, pollID uuid.UUID) (*domain.Poll, error)
}

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	Register(ctx context.Context, email, password, name string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// RealtimeStats reports live connection counts. *realtime.Hub satisfies
// this interface.
type RealtimeStats interface {
	Stats(ctx context.Context) (realtime.Stats, error)
}
