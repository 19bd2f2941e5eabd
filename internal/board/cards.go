package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/event"
)

type CreateCardInput struct {
	Title       string
	Description string
	ColumnID    uuid.UUID
}

// UpdateCardInput holds optional replacements; nil fields are left as is.
type UpdateCardInput struct {
	Title       *string
	Description *string
}

func (s *Service) CreateCard(ctx context.Context, actor uuid.UUID, in CreateCardInput) (*domain.Card, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	title, err := requireText("title", in.Title, domain.MaxCardTitleLen)
	if err != nil {
		return nil, err
	}
	description, err := requireText("description", in.Description, domain.MaxCardDescriptionLen)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Columns().GetByID(ctx, in.ColumnID); err != nil {
		return nil, notFound(err, "column")
	}

	now := s.now()
	card := &domain.Card{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		ColumnID:    in.ColumnID,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Cards().Create(ctx, card); err != nil {
		return nil, notFound(err, "column")
	}

	created, err := s.store.Cards().GetByID(ctx, card.ID)
	if err != nil {
		return nil, fmt.Errorf("board.Service.CreateCard: reload: %w", err)
	}

	s.events.Broadcast(ctx, event.CardCreated{Card: created.VisibleTo(uuid.Nil)})
	return created, nil
}

func (s *Service) GetCard(ctx context.Context, viewer, id uuid.UUID) (*domain.Card, error) {
	card, err := s.store.Cards().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "card")
	}
	visible := card.VisibleTo(viewer)
	return &visible, nil
}

func (s *Service) UpdateCard(ctx context.Context, actor, id uuid.UUID, in UpdateCardInput) (*domain.Card, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	card, err := s.ownedCard(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		if card.Title, err = requireText("title", *in.Title, domain.MaxCardTitleLen); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		if card.Description, err = requireText("description", *in.Description, domain.MaxCardDescriptionLen); err != nil {
			return nil, err
		}
	}
	card.UpdatedAt = s.now()

	if err := s.store.Cards().Update(ctx, card); err != nil {
		return nil, notFound(err, "card")
	}

	updated, err := s.store.Cards().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "card")
	}

	s.events.Broadcast(ctx, event.CardUpdated{Card: updated.VisibleTo(uuid.Nil)})
	visible := updated.VisibleTo(actor)
	return &visible, nil
}

func (s *Service) DeleteCard(ctx context.Context, actor, id uuid.UUID) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if _, err := s.ownedCard(ctx, actor, id); err != nil {
		return err
	}

	if _, err := s.store.Cards().Delete(ctx, id); err != nil {
		return notFound(err, "card")
	}

	s.events.Broadcast(ctx, event.CardDeleted{CardID: id})
	return nil
}

// MoveCard places a card at position within toColumnID. Any signed-in user
// may move cards; siblings in both columns are renumbered atomically.
func (s *Service) MoveCard(ctx context.Context, actor, id, toColumnID uuid.UUID, position int) (*domain.Card, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if position < 0 {
		return nil, domain.Invalid("position must be >= 0")
	}

	if _, err := s.store.Columns().GetByID(ctx, toColumnID); err != nil {
		return nil, notFound(err, "column")
	}

	move, err := s.store.Cards().Move(ctx, id, toColumnID, position)
	if err != nil {
		return nil, notFound(err, "card")
	}

	moved, err := s.store.Cards().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "card")
	}

	s.events.Broadcast(ctx, event.CardMoved{
		CardID:       move.CardID,
		FromColumnID: move.FromColumnID,
		ToColumnID:   move.ToColumnID,
		Position:     move.Position,
	})
	visible := moved.VisibleTo(actor)
	return &visible, nil
}

// ownedCard loads a card and checks that actor created it.
func (s *Service) ownedCard(ctx context.Context, actor, id uuid.UUID) (*domain.Card, error) {
	card, err := s.store.Cards().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "card")
	}
	if card.CreatedBy != actor {
		return nil, domain.Errorf(domain.ErrForbidden, "only the card's creator may change it")
	}
	return card, nil
}

// notFound gives a store ErrNotFound a client-safe message naming what was
// missing. Other errors pass through.
func notFound(err error, what string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Errorf(domain.ErrNotFound, "%s not found", what)
	}
	return err
}
