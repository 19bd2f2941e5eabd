package board

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/event"
)

func (s *Service) ListColumns(ctx context.Context) ([]*domain.Column, error) {
	columns, err := s.store.Columns().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("board.Service.ListColumns: %w", err)
	}
	return columns, nil
}

func (s *Service) CreateColumn(ctx context.Context, name string) (*domain.Column, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	name, err := requireText("name", name, domain.MaxColumnNameLen)
	if err != nil {
		return nil, err
	}

	now := s.now()
	col := &domain.Column{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Columns().Create(ctx, col); err != nil {
		return nil, fmt.Errorf("board.Service.CreateColumn: %w", err)
	}

	s.events.Broadcast(ctx, event.ColumnCreated{Column: *col})
	return col, nil
}

func (s *Service) UpdateColumn(ctx context.Context, id uuid.UUID, name string) (*domain.Column, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	name, err := requireText("name", name, domain.MaxColumnNameLen)
	if err != nil {
		return nil, err
	}

	col, err := s.store.Columns().GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "column")
	}
	col.Name = name
	col.UpdatedAt = s.now()

	if err := s.store.Columns().Update(ctx, col); err != nil {
		return nil, notFound(err, "column")
	}

	s.events.Broadcast(ctx, event.ColumnUpdated{Column: *col})
	return col, nil
}

// DeleteColumn removes an empty column. Columns that still own cards are
// rejected.
func (s *Service) DeleteColumn(ctx context.Context, id uuid.UUID) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if _, err := s.store.Columns().GetByID(ctx, id); err != nil {
		return notFound(err, "column")
	}

	n, err := s.store.Cards().CountByColumn(ctx, id)
	if err != nil {
		return fmt.Errorf("board.Service.DeleteColumn: count cards: %w", err)
	}
	if n > 0 {
		return domain.Invalid("column still has %d cards", n)
	}

	if err := s.store.Columns().Delete(ctx, id); err != nil {
		return notFound(err, "column")
	}

	s.events.Broadcast(ctx, event.ColumnDeleted{ColumnID: id})
	return nil
}

// ReorderColumns applies a complete ordering. A partial, duplicated or
// foreign id set is rejected before any position changes.
func (s *Service) ReorderColumns(ctx context.Context, order []domain.ColumnPosition) ([]*domain.Column, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if len(order) == 0 {
		return nil, domain.Invalid("columns must not be empty")
	}

	columns, err := s.store.Columns().Reorder(ctx, order)
	if err != nil {
		return nil, notFound(err, "column")
	}

	payload := event.ColumnsReordered{Columns: make([]domain.Column, len(columns))}
	for i, c := range columns {
		payload.Columns[i] = *c
	}
	s.events.Broadcast(ctx, payload)
	return columns, nil
}
