package postgres

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
)

// hydrate attaches votes, comments and polls to cards with one query per
// relation.
func hydrate(ctx context.Context, q querier, cards []*domain.Card) error {
	if len(cards) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}

	votes, err := votesByCard(ctx, q, ids)
	if err != nil {
		return err
	}
	comments, err := commentsByCard(ctx, q, `c.card_id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	polls, err := loadPolls(ctx, q, `p.card_id = ANY($1)`, ids)
	if err != nil {
		return err
	}

	byCard := make(map[uuid.UUID][]domain.Poll)
	for _, p := range polls {
		byCard[p.CardID] = append(byCard[p.CardID], *p)
	}
	commentsOf := make(map[uuid.UUID][]domain.Comment)
	for _, cm := range comments {
		commentsOf[cm.CardID] = append(commentsOf[cm.CardID], cm)
	}

	for _, c := range cards {
		c.Votes = nonNil(votes[c.ID])
		c.Comments = nonNil(commentsOf[c.ID])
		c.Polls = nonNil(byCard[c.ID])
	}
	return nil
}

func votesByCard(ctx context.Context, q querier, cardIDs []uuid.UUID) (map[uuid.UUID][]domain.Vote, error) {
	rows, err := q.Query(ctx,
		`SELECT id, card_id, user_id, created_at FROM votes
		 WHERE card_id = ANY($1) ORDER BY created_at, id`, cardIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.Vote)
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.ID, &v.CardID, &v.UserID, &v.CreatedAt); err != nil {
			return nil, err
		}
		out[v.CardID] = append(out[v.CardID], v)
	}
	return out, rows.Err()
}

func commentsByCard(ctx context.Context, q querier, where string, args ...any) ([]domain.Comment, error) {
	rows, err := q.Query(ctx,
		`SELECT c.id, c.body, c.card_id, c.created_by, c.created_at, c.updated_at, u.name, u.email
		 FROM comments c JOIN users u ON u.id = c.created_by
		 WHERE `+where+` ORDER BY c.created_at, c.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Comment, 0)
	for rows.Next() {
		var cm domain.Comment
		if err := rows.Scan(&cm.ID, &cm.Body, &cm.CardID, &cm.CreatedBy, &cm.CreatedAt, &cm.UpdatedAt,
			&cm.Author.Name, &cm.Author.Email); err != nil {
			return nil, err
		}
		cm.Author.ID = cm.CreatedBy
		out = append(out, cm)
	}
	return out, rows.Err()
}

// loadPolls reads the polls matching where together with their options and
// votes, tallied.
func loadPolls(ctx context.Context, q querier, where string, args ...any) ([]*domain.Poll, error) {
	rows, err := q.Query(ctx,
		`SELECT p.id, p.question, p.card_id, p.created_by, p.allow_multiple, p.is_secret, p.is_active,
		        p.ends_at, p.created_at, p.updated_at
		 FROM polls p WHERE `+where+` ORDER BY p.created_at, p.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		polls []*domain.Poll
		ids   []uuid.UUID
	)
	index := make(map[uuid.UUID]*domain.Poll)
	for rows.Next() {
		var p domain.Poll
		if err := rows.Scan(&p.ID, &p.Question, &p.CardID, &p.CreatedBy, &p.AllowMultiple, &p.IsSecret,
			&p.IsActive, &p.EndsAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Options = make([]domain.PollOption, 0)
		polls = append(polls, &p)
		ids = append(ids, p.ID)
		index[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(polls) == 0 {
		return polls, nil
	}

	optRows, err := q.Query(ctx,
		`SELECT id, poll_id, text, position FROM poll_options
		 WHERE poll_id = ANY($1) ORDER BY poll_id, position`, ids)
	if err != nil {
		return nil, err
	}
	defer optRows.Close()

	for optRows.Next() {
		opt := domain.PollOption{Votes: make([]domain.PollVote, 0)}
		if err := optRows.Scan(&opt.ID, &opt.PollID, &opt.Text, &opt.Position); err != nil {
			return nil, err
		}
		p := index[opt.PollID]
		p.Options = append(p.Options, opt)
	}
	if err := optRows.Err(); err != nil {
		return nil, err
	}
	optRows.Close()

	voteRows, err := q.Query(ctx,
		`SELECT id, poll_id, option_id, user_id, created_at FROM poll_votes
		 WHERE poll_id = ANY($1) ORDER BY created_at, id`, ids)
	if err != nil {
		return nil, err
	}
	defer voteRows.Close()

	for voteRows.Next() {
		var v domain.PollVote
		if err := voteRows.Scan(&v.ID, &v.PollID, &v.OptionID, &v.UserID, &v.CreatedAt); err != nil {
			return nil, err
		}
		p := index[v.PollID]
		for i := range p.Options {
			if p.Options[i].ID == v.OptionID {
				p.Options[i].Votes = append(p.Options[i].Votes, v)
				break
			}
		}
	}
	if err := voteRows.Err(); err != nil {
		return nil, err
	}

	for _, p := range polls {
		sort.SliceStable(p.Options, func(i, j int) bool { return p.Options[i].Position < p.Options[j].Position })
		p.Tally()
	}
	return polls, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return make([]T, 0)
	}
	return s
}
