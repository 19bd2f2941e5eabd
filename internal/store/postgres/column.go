package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/ordering"
)

type ColumnRepo struct {
	pool *pgxpool.Pool
}

const columnSelect = `SELECT id, name, position, created_at, updated_at FROM columns`

func (r *ColumnRepo) Create(ctx context.Context, c *domain.Column) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, columnsLockKey); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM columns`).Scan(&count); err != nil {
			return err
		}
		c.Position = ordering.Append(count)

		_, err := tx.Exec(ctx,
			`INSERT INTO columns (id, name, position, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.Name, c.Position, c.CreatedAt, c.UpdatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("columnRepo.Create: %w", err)
	}
	return nil
}

func (r *ColumnRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Column, error) {
	var c domain.Column
	err := r.pool.QueryRow(ctx, columnSelect+` WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Position, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("columnRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("columnRepo.GetByID: %w", err)
	}
	return &c, nil
}

func (r *ColumnRepo) List(ctx context.Context) ([]*domain.Column, error) {
	cols, err := listColumns(ctx, r.pool)
	if err != nil {
		return nil, fmt.Errorf("columnRepo.List: %w", err)
	}
	return cols, nil
}

func (r *ColumnRepo) Update(ctx context.Context, c *domain.Column) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE columns SET name = $1, updated_at = $2 WHERE id = $3`,
		c.Name, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("columnRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("columnRepo.Update: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *ColumnRepo) Delete(ctx context.Context, id uuid.UUID) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, columnsLockKey); err != nil {
			return err
		}

		var position int
		err := tx.QueryRow(ctx, `SELECT position FROM columns WHERE id = $1 FOR UPDATE`, id).Scan(&position)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		var cards int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM cards WHERE column_id = $1`, id).Scan(&cards); err != nil {
			return err
		}
		if cards > 0 {
			return domain.Invalid("column still has %d cards", cards)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM columns WHERE id = $1`, id); err != nil {
			return err
		}
		plan := ordering.Remove(ordering.Placement{Scope: ordering.BoardScope, Position: position})
		return columnPositions.apply(ctx, tx, plan, uuid.Nil)
	})
	if err != nil {
		return fmt.Errorf("columnRepo.Delete: %w", err)
	}
	return nil
}

func (r *ColumnRepo) Reorder(ctx context.Context, order []domain.ColumnPosition) ([]*domain.Column, error) {
	var out []*domain.Column
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, columnsLockKey); err != nil {
			return err
		}

		current, err := listColumns(ctx, tx)
		if err != nil {
			return err
		}
		existing := make([]uuid.UUID, len(current))
		for i, c := range current {
			existing[i] = c.ID
		}

		positions, err := ordering.Reorder(existing, order)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for id, pos := range positions {
			batch.Queue(`UPDATE columns SET position = $1 WHERE id = $2`, pos, id)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		out, err = listColumns(ctx, tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("columnRepo.Reorder: %w", err)
	}
	return out, nil
}

func listColumns(ctx context.Context, q querier) ([]*domain.Column, error) {
	rows, err := q.Query(ctx, columnSelect+` ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Column, 0)
	for rows.Next() {
		var c domain.Column
		if err := rows.Scan(&c.ID, &c.Name, &c.Position, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
