package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/event"
)

type CreatePollInput struct {
	Question      string
	Options       []string
	AllowMultiple bool
	IsSecret      bool
	EndsAt        *time.Time
}

// UpdatePollInput holds optional replacements. ClearEndsAt removes the
// deadline.
type UpdatePollInput struct {
	Question    *string
	IsActive    *bool
	EndsAt      *time.Time
	ClearEndsAt bool
}

// CreatePoll attaches a poll to a card. Only the card's creator may add one
// and a card holds at most one active poll.
func (s *Service) CreatePoll(ctx context.Context, actor, cardID uuid.UUID, in CreatePollInput) (*domain.Poll, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	question, err := requireText("question", in.Question, domain.MaxPollQuestionLen)
	if err != nil {
		return nil, err
	}
	if len(in.Options) < domain.MinPollOptions || len(in.Options) > domain.MaxPollOptions {
		return nil, domain.Invalid("a poll needs %d to %d options", domain.MinPollOptions, domain.MaxPollOptions)
	}

	now := s.now()
	if in.EndsAt != nil && !in.EndsAt.After(now) {
		return nil, domain.Invalid("endsAt must be in the future")
	}

	card, err := s.store.Cards().GetByID(ctx, cardID)
	if err != nil {
		return nil, notFound(err, "card")
	}
	if card.CreatedBy != actor {
		return nil, domain.Errorf(domain.ErrForbidden, "only the card's creator may add a poll")
	}
	for _, p := range card.Polls {
		if p.IsActive {
			return nil, domain.Invalid("card already has an active poll")
		}
	}

	poll := &domain.Poll{
		ID:            uuid.New(),
		Question:      question,
		CardID:        cardID,
		CreatedBy:     actor,
		AllowMultiple: in.AllowMultiple,
		IsSecret:      in.IsSecret,
		IsActive:      true,
		EndsAt:        in.EndsAt,
		CreatedAt:     now,
		UpdatedAt:     now,
		Options:       make([]domain.PollOption, 0, len(in.Options)),
	}
	for i, text := range in.Options {
		text, err := requireText(fmt.Sprintf("option %d", i+1), text, domain.MaxPollOptionLen)
		if err != nil {
			return nil, err
		}
		poll.Options = append(poll.Options, domain.PollOption{
			ID:       uuid.New(),
			PollID:   poll.ID,
			Text:     text,
			Position: i,
			Votes:    []domain.PollVote{},
		})
	}

	if err := s.store.Polls().Create(ctx, poll); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.Invalid("card already has an active poll")
		}
		return nil, notFound(err, "card")
	}

	created, err := s.store.Polls().GetByID(ctx, poll.ID)
	if err != nil {
		return nil, fmt.Errorf("board.Service.CreatePoll: reload: %w", err)
	}

	s.events.Broadcast(ctx, event.PollCreated{Poll: created.VisibleTo(uuid.Nil)})
	visible := created.VisibleTo(actor)
	return &visible, nil
}

// GetPoll returns a poll with voter identities hidden from viewer when the
// poll is secret.
func (s *Service) GetPoll(ctx context.Context, viewer, id uuid.UUID) (*domain.Poll, error) {
	poll, err := s.store.Polls().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "poll")
	}
	visible := poll.VisibleTo(viewer)
	return &visible, nil
}

func (s *Service) UpdatePoll(ctx context.Context, actor, id uuid.UUID, in UpdatePollInput) (*domain.Poll, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	poll, err := s.ownedPoll(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if in.Question != nil {
		if poll.Question, err = requireText("question", *in.Question, domain.MaxPollQuestionLen); err != nil {
			return nil, err
		}
	}
	if in.IsActive != nil {
		poll.IsActive = *in.IsActive
	}
	switch {
	case in.ClearEndsAt:
		poll.EndsAt = nil
	case in.EndsAt != nil:
		poll.EndsAt = in.EndsAt
	}
	poll.UpdatedAt = s.now()

	if err := s.store.Polls().Update(ctx, poll); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.Invalid("card already has an active poll")
		}
		return nil, notFound(err, "poll")
	}

	updated, err := s.store.Polls().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "poll")
	}

	s.events.Broadcast(ctx, event.PollUpdated{Poll: updated.VisibleTo(uuid.Nil)})
	visible := updated.VisibleTo(actor)
	return &visible, nil
}

func (s *Service) DeletePoll(ctx context.Context, actor, id uuid.UUID) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	poll, err := s.ownedPoll(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.store.Polls().Delete(ctx, id); err != nil {
		return notFound(err, "poll")
	}

	s.events.Broadcast(ctx, event.PollDeleted{PollID: id, CardID: poll.CardID})
	return nil
}

// VotePoll replaces actor's selection on a poll with optionIDs and returns
// the poll with fresh tallies.
func (s *Service) VotePoll(ctx context.Context, actor, pollID uuid.UUID, optionIDs []uuid.UUID) (*domain.Poll, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	poll, err := s.store.Polls().GetByID(ctx, pollID)
	if err != nil {
		return nil, notFound(err, "poll")
	}
	if !poll.AcceptsVotes(s.now()) {
		return nil, domain.Invalid("poll is closed")
	}

	selected := dedupe(optionIDs)
	if len(selected) == 0 {
		return nil, domain.Invalid("select at least one option")
	}
	if !poll.AllowMultiple && len(selected) > 1 {
		return nil, domain.Invalid("poll allows a single option")
	}
	for _, id := range selected {
		if !poll.HasOption(id) {
			return nil, domain.Invalid("option %s does not belong to this poll", id)
		}
	}

	if err := s.store.Polls().ReplaceVotes(ctx, pollID, actor, selected); err != nil {
		return nil, notFound(err, "poll")
	}

	return s.afterPollVote(ctx, actor, pollID)
}

// RemovePollVote withdraws all of actor's votes on a poll.
func (s *Service) RemovePollVote(ctx context.Context, actor, pollID uuid.UUID) (*domain.Poll, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	removed, err := s.store.Polls().DeleteVotes(ctx, pollID, actor)
	if err != nil {
		return nil, notFound(err, "poll")
	}
	if removed == 0 {
		return nil, domain.Invalid("no vote to remove")
	}

	return s.afterPollVote(ctx, actor, pollID)
}

func (s *Service) afterPollVote(ctx context.Context, actor, pollID uuid.UUID) (*domain.Poll, error) {
	poll, err := s.store.Polls().GetByID(ctx, pollID)
	if err != nil {
		return nil, notFound(err, "poll")
	}

	public := poll.VisibleTo(uuid.Nil)
	s.events.Broadcast(ctx, event.PollVoted{
		PollID:     poll.ID,
		CardID:     poll.CardID,
		Votes:      public.AllVotes(),
		Counts:     poll.Counts(),
		TotalVotes: poll.TotalVotes,
	})

	visible := poll.VisibleTo(actor)
	return &visible, nil
}

func (s *Service) ownedPoll(ctx context.Context, actor, id uuid.UUID) (*domain.Poll, error) {
	poll, err := s.store.Polls().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "poll")
	}
	if poll.CreatedBy != actor {
		return nil, domain.Errorf(domain.ErrForbidden, "only the poll's owner may change it")
	}
	return poll, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
