package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/event"
)

// AddVote records actor's vote on a card. A second vote by the same user
// fails with a validation error.
func (s *Service) AddVote(ctx context.Context, actor, cardID uuid.UUID) (*domain.Vote, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if _, err := s.store.Cards().GetByID(ctx, cardID); err != nil {
		return nil, notFound(err, "card")
	}

	vote := &domain.Vote{
		ID:        uuid.New(),
		CardID:    cardID,
		UserID:    actor,
		CreatedAt: s.now(),
	}
	if err := s.store.Votes().Create(ctx, vote); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.Invalid("already voted")
		}
		return nil, notFound(err, "card")
	}

	s.events.Broadcast(ctx, event.VoteAdded{Vote: *vote})
	return vote, nil
}

// RemoveVote withdraws actor's vote on a card.
func (s *Service) RemoveVote(ctx context.Context, actor, cardID uuid.UUID) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if _, err := s.store.Cards().GetByID(ctx, cardID); err != nil {
		return notFound(err, "card")
	}

	if err := s.store.Votes().Delete(ctx, cardID, actor); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Invalid("not voted")
		}
		return fmt.Errorf("board.Service.RemoveVote: %w", err)
	}

	s.events.Broadcast(ctx, event.VoteRemoved{CardID: cardID, UserID: actor})
	return nil
}
