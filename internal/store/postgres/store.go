// Package postgres implements the board repositories on PostgreSQL. Every
// write that moves sibling positions runs in one transaction, and the
// position uniqueness constraints are deferred to commit so a shift can pass
// through transient duplicates.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/ideaboard/internal/domain"
)

//go:embed schema.sql
var schema string

// columnsLockKey serializes column inserts, deletes and reorders.
const columnsLockKey int64 = 0x1deab0a2d

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool     *pgxpool.Pool
	users    *UserRepo
	columns  *ColumnRepo
	cards    *CardRepo
	votes    *VoteRepo
	comments *CommentRepo
	polls    *PollRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:     pool,
		users:    &UserRepo{pool: pool},
		columns:  &ColumnRepo{pool: pool},
		cards:    &CardRepo{pool: pool},
		votes:    &VoteRepo{pool: pool},
		comments: &CommentRepo{pool: pool},
		polls:    &PollRepo{pool: pool},
	}, nil
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.Store.Migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres.Store.Ping: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Users() domain.UserRepository       { return s.users }
func (s *Store) Columns() domain.ColumnRepository   { return s.columns }
func (s *Store) Cards() domain.CardRepository       { return s.cards }
func (s *Store) Votes() domain.VoteRepository       { return s.votes }
func (s *Store) Comments() domain.CommentRepository { return s.comments }
func (s *Store) Polls() domain.PollRepository       { return s.polls }

// inTx runs fn in a transaction, committing when fn returns nil.
func inTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, pool, fn)
}

// lockColumns locks the given column rows in id order and fails with
// ErrNotFound when any is missing.
func lockColumns(ctx context.Context, tx pgx.Tx, ids ...uuid.UUID) error {
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	unique := make([]uuid.UUID, 0, len(want))
	for id := range want {
		unique = append(unique, id)
	}

	rows, err := tx.Query(ctx,
		`SELECT id FROM columns WHERE id = ANY($1) ORDER BY id FOR UPDATE`, unique)
	if err != nil {
		return err
	}
	defer rows.Close()

	found := 0
	for rows.Next() {
		found++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if found != len(unique) {
		return fmt.Errorf("column: %w", domain.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// Truncate empties every board table. It exists for integration tests.
func (s *Store) Truncate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		`TRUNCATE poll_votes, poll_options, polls, comments, votes, cards, columns, users`); err != nil {
		return fmt.Errorf("postgres.Store.Truncate: %w", err)
	}
	return nil
}
