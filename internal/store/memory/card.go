package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/ordering"
)

type CardRepo struct {
	s *Store
}

func (r *CardRepo) Create(_ context.Context, c *domain.Card) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.columns[c.ColumnID]; !ok {
		return fmt.Errorf("memory.CardRepo.Create: column: %w", domain.ErrNotFound)
	}

	c.Position = ordering.Append(r.s.countCards(c.ColumnID))
	stored := *c
	stored.Votes, stored.Comments, stored.Polls = nil, nil, nil
	r.s.cards[c.ID] = stored
	return nil
}

func (r *CardRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.cards[id]
	if !ok {
		return nil, fmt.Errorf("memory.CardRepo.GetByID: %w", domain.ErrNotFound)
	}
	return r.s.hydrateCard(c), nil
}

func (r *CardRepo) List(_ context.Context) ([]*domain.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*domain.Card, 0, len(r.s.cards))
	for _, c := range r.s.cards {
		out = append(out, r.s.hydrateCard(c))
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := r.s.columns[out[i].ColumnID].Position, r.s.columns[out[j].ColumnID].Position
		if ci != cj {
			return ci < cj
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (r *CardRepo) ListByColumn(_ context.Context, columnID uuid.UUID) ([]*domain.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*domain.Card, 0)
	for _, c := range r.s.cards {
		if c.ColumnID == columnID {
			out = append(out, r.s.hydrateCard(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *CardRepo) CountByColumn(_ context.Context, columnID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.s.countCards(columnID), nil
}

func (r *CardRepo) Update(_ context.Context, c *domain.Card) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.cards[c.ID]
	if !ok {
		return fmt.Errorf("memory.CardRepo.Update: %w", domain.ErrNotFound)
	}
	stored.Title = c.Title
	stored.Description = c.Description
	stored.UpdatedAt = c.UpdatedAt
	r.s.cards[c.ID] = stored
	return nil
}

func (r *CardRepo) Delete(_ context.Context, id uuid.UUID) (*domain.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.cards[id]
	if !ok {
		return nil, fmt.Errorf("memory.CardRepo.Delete: %w", domain.ErrNotFound)
	}
	deleted := r.s.hydrateCard(c)

	delete(r.s.cards, id)
	for k := range r.s.votes {
		if k.cardID == id {
			delete(r.s.votes, k)
		}
	}
	for cid, cm := range r.s.comments {
		if cm.CardID == id {
			delete(r.s.comments, cid)
		}
	}
	for pid, p := range r.s.polls {
		if p.CardID == id {
			delete(r.s.polls, pid)
			delete(r.s.pollVotes, pid)
		}
	}

	r.applyPlan(ordering.Remove(ordering.Placement{Scope: c.ColumnID, Position: c.Position}), uuid.Nil)
	return deleted, nil
}

func (r *CardRepo) Move(_ context.Context, id, toColumnID uuid.UUID, toPosition int) (*domain.CardMove, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.cards[id]
	if !ok {
		return nil, fmt.Errorf("memory.CardRepo.Move: %w", domain.ErrNotFound)
	}
	if _, ok := r.s.columns[toColumnID]; !ok {
		return nil, fmt.Errorf("memory.CardRepo.Move: column: %w", domain.ErrNotFound)
	}

	from := ordering.Placement{Scope: c.ColumnID, Position: c.Position}
	plan, err := ordering.Move(from, ordering.Placement{Scope: toColumnID, Position: toPosition}, r.s.countCards(toColumnID))
	if err != nil {
		return nil, fmt.Errorf("memory.CardRepo.Move: %w", err)
	}

	r.applyPlan(plan, id)
	c.ColumnID = plan.Target.Scope
	c.Position = plan.Target.Position
	r.s.cards[id] = c

	return &domain.CardMove{
		CardID:       id,
		FromColumnID: from.Scope,
		ToColumnID:   toColumnID,
		FromPosition: from.Position,
		Position:     toPosition,
	}, nil
}

// applyPlan shifts every card except skip. Callers hold s.mu.
func (r *CardRepo) applyPlan(plan ordering.Plan, skip uuid.UUID) {
	for cid, other := range r.s.cards {
		if cid == skip {
			continue
		}
		if pos := plan.Reposition(other.ColumnID, other.Position); pos != other.Position {
			other.Position = pos
			r.s.cards[cid] = other
		}
	}
}
