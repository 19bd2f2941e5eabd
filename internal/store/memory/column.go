package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/ordering"
)

type ColumnRepo struct {
	s *Store
}

func (r *ColumnRepo) Create(_ context.Context, c *domain.Column) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c.Position = ordering.Append(len(r.s.columns))
	r.s.columns[c.ID] = *c
	return nil
}

func (r *ColumnRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Column, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.columns[id]
	if !ok {
		return nil, fmt.Errorf("memory.ColumnRepo.GetByID: %w", domain.ErrNotFound)
	}
	return &c, nil
}

func (r *ColumnRepo) List(_ context.Context) ([]*domain.Column, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.sorted(), nil
}

func (r *ColumnRepo) Update(_ context.Context, c *domain.Column) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.columns[c.ID]
	if !ok {
		return fmt.Errorf("memory.ColumnRepo.Update: %w", domain.ErrNotFound)
	}
	stored.Name = c.Name
	stored.UpdatedAt = c.UpdatedAt
	r.s.columns[c.ID] = stored
	return nil
}

func (r *ColumnRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.columns[id]
	if !ok {
		return fmt.Errorf("memory.ColumnRepo.Delete: %w", domain.ErrNotFound)
	}
	if n := r.s.countCards(id); n > 0 {
		return fmt.Errorf("memory.ColumnRepo.Delete: %w", domain.Invalid("column still has %d cards", n))
	}

	delete(r.s.columns, id)
	plan := ordering.Remove(ordering.Placement{Scope: ordering.BoardScope, Position: c.Position})
	for cid, other := range r.s.columns {
		other.Position = plan.Reposition(ordering.BoardScope, other.Position)
		r.s.columns[cid] = other
	}
	return nil
}

func (r *ColumnRepo) Reorder(_ context.Context, order []domain.ColumnPosition) ([]*domain.Column, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing := make([]uuid.UUID, 0, len(r.s.columns))
	for id := range r.s.columns {
		existing = append(existing, id)
	}

	positions, err := ordering.Reorder(existing, order)
	if err != nil {
		return nil, fmt.Errorf("memory.ColumnRepo.Reorder: %w", err)
	}

	for id, pos := range positions {
		c := r.s.columns[id]
		c.Position = pos
		r.s.columns[id] = c
	}
	return r.sorted(), nil
}

// sorted returns copies of all columns by position. Callers hold s.mu.
func (r *ColumnRepo) sorted() []*domain.Column {
	out := make([]*domain.Column, 0, len(r.s.columns))
	for _, c := range r.s.columns {
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
