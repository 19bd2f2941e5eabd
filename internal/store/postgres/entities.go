package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/ideaboard/internal/domain"
)

// --- Votes ---

type VoteRepo struct {
	pool *pgxpool.Pool
}

func (r *VoteRepo) Create(ctx context.Context, v *domain.Vote) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO votes (id, card_id, user_id, created_at) VALUES ($1, $2, $3, $4)`,
		v.ID, v.CardID, v.UserID, v.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("voteRepo.Create: %w", domain.ErrConflict)
	case isForeignKeyViolation(err):
		return fmt.Errorf("voteRepo.Create: card: %w", domain.ErrNotFound)
	case err != nil:
		return fmt.Errorf("voteRepo.Create: %w", err)
	}
	return nil
}

func (r *VoteRepo) Get(ctx context.Context, cardID, userID uuid.UUID) (*domain.Vote, error) {
	var v domain.Vote
	err := r.pool.QueryRow(ctx,
		`SELECT id, card_id, user_id, created_at FROM votes WHERE card_id = $1 AND user_id = $2`,
		cardID, userID,
	).Scan(&v.ID, &v.CardID, &v.UserID, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("voteRepo.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("voteRepo.Get: %w", err)
	}
	return &v, nil
}

func (r *VoteRepo) Delete(ctx context.Context, cardID, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM votes WHERE card_id = $1 AND user_id = $2`, cardID, userID)
	if err != nil {
		return fmt.Errorf("voteRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("voteRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *VoteRepo) ListByCard(ctx context.Context, cardID uuid.UUID) ([]domain.Vote, error) {
	votes, err := votesByCard(ctx, r.pool, []uuid.UUID{cardID})
	if err != nil {
		return nil, fmt.Errorf("voteRepo.ListByCard: %w", err)
	}
	return nonNil(votes[cardID]), nil
}

// --- Comments ---

type CommentRepo struct {
	pool *pgxpool.Pool
}

func (r *CommentRepo) Create(ctx context.Context, c *domain.Comment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO comments (id, body, card_id, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Body, c.CardID, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("commentRepo.Create: card: %w", domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("commentRepo.Create: %w", err)
	}

	stored, err := r.GetByID(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("commentRepo.Create: %w", err)
	}
	c.Author = stored.Author
	return nil
}

func (r *CommentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Comment, error) {
	comments, err := commentsByCard(ctx, r.pool, `c.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("commentRepo.GetByID: %w", err)
	}
	if len(comments) == 0 {
		return nil, fmt.Errorf("commentRepo.GetByID: %w", domain.ErrNotFound)
	}
	return &comments[0], nil
}

func (r *CommentRepo) ListByCard(ctx context.Context, cardID uuid.UUID) ([]domain.Comment, error) {
	comments, err := commentsByCard(ctx, r.pool, `c.card_id = $1`, cardID)
	if err != nil {
		return nil, fmt.Errorf("commentRepo.ListByCard: %w", err)
	}
	return comments, nil
}

func (r *CommentRepo) Update(ctx context.Context, c *domain.Comment) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE comments SET body = $1, updated_at = $2 WHERE id = $3`, c.Body, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("commentRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("commentRepo.Update: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *CommentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("commentRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("commentRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

// --- Polls ---

type PollRepo struct {
	pool *pgxpool.Pool
}

func (r *PollRepo) Create(ctx context.Context, p *domain.Poll) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var cardID uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM cards WHERE id = $1 FOR UPDATE`, p.CardID).Scan(&cardID)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("card: %w", domain.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var active bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM polls WHERE card_id = $1 AND is_active)`, p.CardID,
		).Scan(&active); err != nil {
			return err
		}
		if active {
			return fmt.Errorf("active poll exists: %w", domain.ErrConflict)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO polls (id, question, card_id, created_by, allow_multiple, is_secret, is_active, ends_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.ID, p.Question, p.CardID, p.CreatedBy, p.AllowMultiple, p.IsSecret, p.IsActive,
			p.EndsAt, p.CreatedAt, p.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("active poll exists: %w", domain.ErrConflict)
			}
			return err
		}

		batch := &pgx.Batch{}
		for _, opt := range p.Options {
			batch.Queue(`INSERT INTO poll_options (id, poll_id, text, position) VALUES ($1, $2, $3, $4)`,
				opt.ID, p.ID, opt.Text, opt.Position)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("pollRepo.Create: %w", err)
	}
	return nil
}

func (r *PollRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	polls, err := loadPolls(ctx, r.pool, `p.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("pollRepo.GetByID: %w", err)
	}
	if len(polls) == 0 {
		return nil, fmt.Errorf("pollRepo.GetByID: %w", domain.ErrNotFound)
	}
	return polls[0], nil
}

func (r *PollRepo) ListByCard(ctx context.Context, cardID uuid.UUID) ([]domain.Poll, error) {
	polls, err := loadPolls(ctx, r.pool, `p.card_id = $1`, cardID)
	if err != nil {
		return nil, fmt.Errorf("pollRepo.ListByCard: %w", err)
	}
	out := make([]domain.Poll, len(polls))
	for i, p := range polls {
		out[i] = *p
	}
	return out, nil
}

func (r *PollRepo) Update(ctx context.Context, p *domain.Poll) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE polls SET question = $1, is_active = $2, ends_at = $3, updated_at = $4 WHERE id = $5`,
		p.Question, p.IsActive, p.EndsAt, p.UpdatedAt, p.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("pollRepo.Update: active poll exists: %w", domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("pollRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pollRepo.Update: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *PollRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM polls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pollRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pollRepo.Delete: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *PollRepo) ReplaceVotes(ctx context.Context, pollID, userID uuid.UUID, optionIDs []uuid.UUID) error {
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM polls WHERE id = $1 FOR UPDATE`, pollID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		if len(optionIDs) > 0 {
			var owned int
			if err := tx.QueryRow(ctx,
				`SELECT count(*) FROM poll_options WHERE poll_id = $1 AND id = ANY($2)`, pollID, optionIDs,
			).Scan(&owned); err != nil {
				return err
			}
			if owned != countDistinct(optionIDs) {
				return domain.Invalid("option does not belong to poll")
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM poll_votes WHERE poll_id = $1 AND user_id = $2`, pollID, userID); err != nil {
			return err
		}

		now := time.Now().UTC()
		batch := &pgx.Batch{}
		for _, optionID := range optionIDs {
			batch.Queue(
				`INSERT INTO poll_votes (id, poll_id, option_id, user_id, created_at) VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (poll_id, option_id, user_id) DO NOTHING`,
				uuid.New(), pollID, optionID, userID, now)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("pollRepo.ReplaceVotes: %w", err)
	}
	return nil
}

func (r *PollRepo) DeleteVotes(ctx context.Context, pollID, userID uuid.UUID) (int, error) {
	var removed int
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM polls WHERE id = $1`, pollID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM poll_votes WHERE poll_id = $1 AND user_id = $2`, pollID, userID)
		if err != nil {
			return err
		}
		removed = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pollRepo.DeleteVotes: %w", err)
	}
	return removed, nil
}

func countDistinct(ids []uuid.UUID) int {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}
