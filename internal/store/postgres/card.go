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

type CardRepo struct {
	pool *pgxpool.Pool
}

const cardSelect = `SELECT c.id, c.title, c.description, c.column_id, c.created_by, c.position,
       c.created_at, c.updated_at, u.name, u.email
FROM cards c
JOIN users u ON u.id = c.created_by
LEFT JOIN columns col ON col.id = c.column_id`

func (r *CardRepo) Create(ctx context.Context, c *domain.Card) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockColumns(ctx, tx, c.ColumnID); err != nil {
			return err
		}

		count, err := countCards(ctx, tx, c.ColumnID)
		if err != nil {
			return err
		}
		c.Position = ordering.Append(count)

		_, err = tx.Exec(ctx,
			`INSERT INTO cards (id, title, description, column_id, created_by, position, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.Title, c.Description, c.ColumnID, c.CreatedBy, c.Position, c.CreatedAt, c.UpdatedAt)
		if isForeignKeyViolation(err) {
			return fmt.Errorf("creator: %w", domain.ErrNotFound)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("cardRepo.Create: %w", err)
	}
	return nil
}

func (r *CardRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	c, err := getCard(ctx, r.pool, id)
	if err != nil {
		return nil, fmt.Errorf("cardRepo.GetByID: %w", err)
	}
	return c, nil
}

func (r *CardRepo) List(ctx context.Context) ([]*domain.Card, error) {
	cards, err := listCards(ctx, r.pool, `TRUE`)
	if err != nil {
		return nil, fmt.Errorf("cardRepo.List: %w", err)
	}
	return cards, nil
}

func (r *CardRepo) ListByColumn(ctx context.Context, columnID uuid.UUID) ([]*domain.Card, error) {
	cards, err := listCards(ctx, r.pool, `c.column_id = $1`, columnID)
	if err != nil {
		return nil, fmt.Errorf("cardRepo.ListByColumn: %w", err)
	}
	return cards, nil
}

func (r *CardRepo) CountByColumn(ctx context.Context, columnID uuid.UUID) (int, error) {
	n, err := countCards(ctx, r.pool, columnID)
	if err != nil {
		return 0, fmt.Errorf("cardRepo.CountByColumn: %w", err)
	}
	return n, nil
}

func (r *CardRepo) Update(ctx context.Context, c *domain.Card) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE cards SET title = $1, description = $2, updated_at = $3 WHERE id = $4`,
		c.Title, c.Description, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("cardRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cardRepo.Update: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *CardRepo) Delete(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	var deleted *domain.Card
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		at, err := lockCard(ctx, tx, id)
		if err != nil {
			return err
		}

		deleted, err = getCard(ctx, tx, id)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM cards WHERE id = $1`, id); err != nil {
			return err
		}
		return cardPositions.apply(ctx, tx, ordering.Remove(at), id)
	})
	if err != nil {
		return nil, fmt.Errorf("cardRepo.Delete: %w", err)
	}
	return deleted, nil
}

func (r *CardRepo) Move(ctx context.Context, id, toColumnID uuid.UUID, toPosition int) (*domain.CardMove, error) {
	var move *domain.CardMove
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		from, err := lockCard(ctx, tx, id, toColumnID)
		if err != nil {
			return err
		}

		count, err := countCards(ctx, tx, toColumnID)
		if err != nil {
			return err
		}

		plan, err := ordering.Move(from, ordering.Placement{Scope: toColumnID, Position: toPosition}, count)
		if err != nil {
			return err
		}
		if err := cardPositions.apply(ctx, tx, plan, id); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE cards SET column_id = $1, position = $2 WHERE id = $3`,
			plan.Target.Scope, plan.Target.Position, id); err != nil {
			return err
		}

		move = &domain.CardMove{
			CardID:       id,
			FromColumnID: from.Scope,
			ToColumnID:   toColumnID,
			FromPosition: from.Position,
			Position:     toPosition,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cardRepo.Move: %w", err)
	}
	return move, nil
}

// lockCard returns the card's placement after locking the card row and then
// the column rows it may touch. Moves pass the destination column as well.
func lockCard(ctx context.Context, tx pgx.Tx, id uuid.UUID, alsoColumns ...uuid.UUID) (ordering.Placement, error) {
	var at ordering.Placement
	err := tx.QueryRow(ctx, `SELECT column_id, position FROM cards WHERE id = $1`, id).
		Scan(&at.Scope, &at.Position)
	if errors.Is(err, pgx.ErrNoRows) {
		return at, domain.ErrNotFound
	}
	if err != nil {
		return at, err
	}

	if err := lockColumns(ctx, tx, append(alsoColumns, at.Scope)...); err != nil {
		return at, err
	}

	// Re-read under the column lock; a concurrent move may have committed.
	err = tx.QueryRow(ctx, `SELECT column_id, position FROM cards WHERE id = $1 FOR UPDATE`, id).
		Scan(&at.Scope, &at.Position)
	if errors.Is(err, pgx.ErrNoRows) {
		return at, domain.ErrNotFound
	}
	return at, err
}

func countCards(ctx context.Context, q querier, columnID uuid.UUID) (int, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT count(*) FROM cards WHERE column_id = $1`, columnID).Scan(&n)
	return n, err
}

func getCard(ctx context.Context, q querier, id uuid.UUID) (*domain.Card, error) {
	cards, err := listCards(ctx, q, `c.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, domain.ErrNotFound
	}
	return cards[0], nil
}

// listCards reads cards matching where in board order with relations loaded.
func listCards(ctx context.Context, q querier, where string, args ...any) ([]*domain.Card, error) {
	rows, err := q.Query(ctx, cardSelect+` WHERE `+where+` ORDER BY col.position, c.position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := make([]*domain.Card, 0)
	for rows.Next() {
		var c domain.Card
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.ColumnID, &c.CreatedBy, &c.Position,
			&c.CreatedAt, &c.UpdatedAt, &c.Creator.Name, &c.Creator.Email); err != nil {
			return nil, err
		}
		c.Creator.ID = c.CreatedBy
		cards = append(cards, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := hydrate(ctx, q, cards); err != nil {
		return nil, err
	}
	return cards, nil
}
