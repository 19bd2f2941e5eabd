package board

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/event"
)

func (s *Service) ListComments(ctx context.Context, cardID uuid.UUID) ([]domain.Comment, error) {
	if _, err := s.store.Cards().GetByID(ctx, cardID); err != nil {
		return nil, notFound(err, "card")
	}
	comments, err := s.store.Comments().ListByCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("board.Service.ListComments: %w", err)
	}
	return comments, nil
}

func (s *Service) CreateComment(ctx context.Context, actor, cardID uuid.UUID, body string) (*domain.Comment, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	body, err := requireText("body", body, domain.MaxCommentLen)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Cards().GetByID(ctx, cardID); err != nil {
		return nil, notFound(err, "card")
	}

	now := s.now()
	comment := &domain.Comment{
		ID:        uuid.New(),
		Body:      body,
		CardID:    cardID,
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Comments().Create(ctx, comment); err != nil {
		return nil, notFound(err, "card")
	}

	created, err := s.store.Comments().GetByID(ctx, comment.ID)
	if err != nil {
		return nil, fmt.Errorf("board.Service.CreateComment: reload: %w", err)
	}

	s.events.Broadcast(ctx, event.CommentAdded{Comment: *created})
	return created, nil
}

func (s *Service) UpdateComment(ctx context.Context, actor, id uuid.UUID, body string) (*domain.Comment, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	body, err := requireText("body", body, domain.MaxCommentLen)
	if err != nil {
		return nil, err
	}

	comment, err := s.ownedComment(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	comment.Body = body
	comment.UpdatedAt = s.now()

	if err := s.store.Comments().Update(ctx, comment); err != nil {
		return nil, notFound(err, "comment")
	}

	s.events.Broadcast(ctx, event.CommentUpdated{Comment: *comment})
	return comment, nil
}

func (s *Service) DeleteComment(ctx context.Context, actor, id uuid.UUID) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	comment, err := s.ownedComment(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.store.Comments().Delete(ctx, id); err != nil {
		return notFound(err, "comment")
	}

	s.events.Broadcast(ctx, event.CommentDeleted{CommentID: id, CardID: comment.CardID})
	return nil
}

func (s *Service) ownedComment(ctx context.Context, actor, id uuid.UUID) (*domain.Comment, error) {
	comment, err := s.store.Comments().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "comment")
	}
	if comment.CreatedBy != actor {
		return nil, domain.Errorf(domain.ErrForbidden, "only the comment's author may change it")
	}
	return comment, nil
}
