package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
)

// --- Users ---

type UserRepo struct {
	s *Store
}

func (r *UserRepo) Create(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return fmt.Errorf("memory.UserRepo.Create: %w", domain.ErrConflict)
		}
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("memory.UserRepo.GetByID: %w", domain.ErrNotFound)
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("memory.UserRepo.GetByEmail: %w", domain.ErrNotFound)
}

// --- Votes ---

type VoteRepo struct {
	s *Store
}

func (r *VoteRepo) Create(_ context.Context, v *domain.Vote) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.cards[v.CardID]; !ok {
		return fmt.Errorf("memory.VoteRepo.Create: card: %w", domain.ErrNotFound)
	}
	key := voteKey{cardID: v.CardID, userID: v.UserID}
	if _, exists := r.s.votes[key]; exists {
		return fmt.Errorf("memory.VoteRepo.Create: %w", domain.ErrConflict)
	}
	r.s.votes[key] = *v
	return nil
}

func (r *VoteRepo) Get(_ context.Context, cardID, userID uuid.UUID) (*domain.Vote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	v, ok := r.s.votes[voteKey{cardID: cardID, userID: userID}]
	if !ok {
		return nil, fmt.Errorf("memory.VoteRepo.Get: %w", domain.ErrNotFound)
	}
	return &v, nil
}

func (r *VoteRepo) Delete(_ context.Context, cardID, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := voteKey{cardID: cardID, userID: userID}
	if _, ok := r.s.votes[key]; !ok {
		return fmt.Errorf("memory.VoteRepo.Delete: %w", domain.ErrNotFound)
	}
	delete(r.s.votes, key)
	return nil
}

func (r *VoteRepo) ListByCard(_ context.Context, cardID uuid.UUID) ([]domain.Vote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]domain.Vote, 0)
	for k, v := range r.s.votes {
		if k.cardID == cardID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- Comments ---

type CommentRepo struct {
	s *Store
}

func (r *CommentRepo) Create(_ context.Context, c *domain.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.cards[c.CardID]; !ok {
		return fmt.Errorf("memory.CommentRepo.Create: card: %w", domain.ErrNotFound)
	}
	c.Author = r.s.summary(c.CreatedBy)
	r.s.comments[c.ID] = *c
	return nil
}

func (r *CommentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.comments[id]
	if !ok {
		return nil, fmt.Errorf("memory.CommentRepo.GetByID: %w", domain.ErrNotFound)
	}
	c.Author = r.s.summary(c.CreatedBy)
	return &c, nil
}

func (r *CommentRepo) ListByCard(_ context.Context, cardID uuid.UUID) ([]domain.Comment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.s.commentsOf(cardID), nil
}

func (r *CommentRepo) Update(_ context.Context, c *domain.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.comments[c.ID]
	if !ok {
		return fmt.Errorf("memory.CommentRepo.Update: %w", domain.ErrNotFound)
	}
	stored.Body = c.Body
	stored.UpdatedAt = c.UpdatedAt
	r.s.comments[c.ID] = stored
	return nil
}

func (r *CommentRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.comments[id]; !ok {
		return fmt.Errorf("memory.CommentRepo.Delete: %w", domain.ErrNotFound)
	}
	delete(r.s.comments, id)
	return nil
}

// --- Polls ---

type PollRepo struct {
	s *Store
}

func (r *PollRepo) Create(_ context.Context, p *domain.Poll) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.cards[p.CardID]; !ok {
		return fmt.Errorf("memory.PollRepo.Create: card: %w", domain.ErrNotFound)
	}
	for _, existing := range r.s.polls {
		if existing.CardID == p.CardID && existing.IsActive {
			return fmt.Errorf("memory.PollRepo.Create: active poll exists: %w", domain.ErrConflict)
		}
	}

	stored := *p
	stored.Options = make([]domain.PollOption, len(p.Options))
	for i, opt := range p.Options {
		opt.Votes = nil
		stored.Options[i] = opt
	}
	r.s.polls[p.ID] = stored
	return nil
}

func (r *PollRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Poll, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.polls[id]
	if !ok {
		return nil, fmt.Errorf("memory.PollRepo.GetByID: %w", domain.ErrNotFound)
	}
	return r.s.hydratePoll(p), nil
}

func (r *PollRepo) ListByCard(_ context.Context, cardID uuid.UUID) ([]domain.Poll, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.s.pollsOf(cardID), nil
}

func (r *PollRepo) Update(_ context.Context, p *domain.Poll) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.polls[p.ID]
	if !ok {
		return fmt.Errorf("memory.PollRepo.Update: %w", domain.ErrNotFound)
	}
	if p.IsActive && !stored.IsActive {
		for id, other := range r.s.polls {
			if id != p.ID && other.CardID == stored.CardID && other.IsActive {
				return fmt.Errorf("memory.PollRepo.Update: active poll exists: %w", domain.ErrConflict)
			}
		}
	}
	stored.Question = p.Question
	stored.IsActive = p.IsActive
	stored.EndsAt = p.EndsAt
	stored.UpdatedAt = p.UpdatedAt
	r.s.polls[p.ID] = stored
	return nil
}

func (r *PollRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.polls[id]; !ok {
		return fmt.Errorf("memory.PollRepo.Delete: %w", domain.ErrNotFound)
	}
	delete(r.s.polls, id)
	delete(r.s.pollVotes, id)
	return nil
}

func (r *PollRepo) ReplaceVotes(_ context.Context, pollID, userID uuid.UUID, optionIDs []uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.polls[pollID]
	if !ok {
		return fmt.Errorf("memory.PollRepo.ReplaceVotes: %w", domain.ErrNotFound)
	}
	for _, id := range optionIDs {
		if !p.HasOption(id) {
			return fmt.Errorf("memory.PollRepo.ReplaceVotes: %w", domain.Invalid("option %s does not belong to poll", id))
		}
	}

	kept := r.s.pollVotes[pollID][:0:0]
	for _, v := range r.s.pollVotes[pollID] {
		if v.UserID != userID {
			kept = append(kept, v)
		}
	}
	now := time.Now().UTC()
	for _, id := range optionIDs {
		kept = append(kept, domain.PollVote{
			ID:        uuid.New(),
			PollID:    pollID,
			OptionID:  id,
			UserID:    userID,
			CreatedAt: now,
		})
	}
	r.s.pollVotes[pollID] = kept
	return nil
}

func (r *PollRepo) DeleteVotes(_ context.Context, pollID, userID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.polls[pollID]; !ok {
		return 0, fmt.Errorf("memory.PollRepo.DeleteVotes: %w", domain.ErrNotFound)
	}

	kept := r.s.pollVotes[pollID][:0:0]
	removed := 0
	for _, v := range r.s.pollVotes[pollID] {
		if v.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	r.s.pollVotes[pollID] = kept
	return removed, nil
}
