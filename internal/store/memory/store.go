// Package memory is an in-process implementation of the board repositories.
// A single mutex serializes every operation, so each call is atomic the way
// a database transaction is.
package memory

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
)

type voteKey struct {
	cardID uuid.UUID
	userID uuid.UUID
}

type Store struct {
	mu        sync.Mutex
	users     map[uuid.UUID]domain.User
	columns   map[uuid.UUID]domain.Column
	cards     map[uuid.UUID]domain.Card
	votes     map[voteKey]domain.Vote
	comments  map[uuid.UUID]domain.Comment
	polls     map[uuid.UUID]domain.Poll // options carry no votes
	pollVotes map[uuid.UUID][]domain.PollVote

	userRepo    *UserRepo
	columnRepo  *ColumnRepo
	cardRepo    *CardRepo
	voteRepo    *VoteRepo
	commentRepo *CommentRepo
	pollRepo    *PollRepo
}

func New() *Store {
	s := &Store{
		users:     make(map[uuid.UUID]domain.User),
		columns:   make(map[uuid.UUID]domain.Column),
		cards:     make(map[uuid.UUID]domain.Card),
		votes:     make(map[voteKey]domain.Vote),
		comments:  make(map[uuid.UUID]domain.Comment),
		polls:     make(map[uuid.UUID]domain.Poll),
		pollVotes: make(map[uuid.UUID][]domain.PollVote),
	}
	s.userRepo = &UserRepo{s: s}
	s.columnRepo = &ColumnRepo{s: s}
	s.cardRepo = &CardRepo{s: s}
	s.voteRepo = &VoteRepo{s: s}
	s.commentRepo = &CommentRepo{s: s}
	s.pollRepo = &PollRepo{s: s}
	return s
}

func (s *Store) Close() {}

func (s *Store) Users() domain.UserRepository       { return s.userRepo }
func (s *Store) Columns() domain.ColumnRepository   { return s.columnRepo }
func (s *Store) Cards() domain.CardRepository       { return s.cardRepo }
func (s *Store) Votes() domain.VoteRepository       { return s.voteRepo }
func (s *Store) Comments() domain.CommentRepository { return s.commentRepo }
func (s *Store) Polls() domain.PollRepository       { return s.pollRepo }

// summary resolves a user id to its public identity. Callers hold s.mu.
func (s *Store) summary(id uuid.UUID) domain.UserSummary {
	if u, ok := s.users[id]; ok {
		return u.Summary()
	}
	return domain.UserSummary{ID: id}
}

// hydrateCard returns a copy of the stored card with relations populated.
// Callers hold s.mu.
func (s *Store) hydrateCard(c domain.Card) *domain.Card {
	out := c
	out.Creator = s.summary(c.CreatedBy)

	out.Votes = make([]domain.Vote, 0)
	for k, v := range s.votes {
		if k.cardID == c.ID {
			out.Votes = append(out.Votes, v)
		}
	}
	sort.Slice(out.Votes, func(i, j int) bool { return out.Votes[i].CreatedAt.Before(out.Votes[j].CreatedAt) })

	out.Comments = s.commentsOf(c.ID)
	out.Polls = s.pollsOf(c.ID)
	return &out
}

func (s *Store) commentsOf(cardID uuid.UUID) []domain.Comment {
	out := make([]domain.Comment, 0)
	for _, cm := range s.comments {
		if cm.CardID == cardID {
			cm.Author = s.summary(cm.CreatedBy)
			out = append(out, cm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) pollsOf(cardID uuid.UUID) []domain.Poll {
	out := make([]domain.Poll, 0)
	for _, p := range s.polls {
		if p.CardID == cardID {
			out = append(out, *s.hydratePoll(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// hydratePoll attaches votes to options and tallies them. Callers hold s.mu.
func (s *Store) hydratePoll(p domain.Poll) *domain.Poll {
	out := p
	out.Options = make([]domain.PollOption, len(p.Options))
	for i, opt := range p.Options {
		opt.Votes = make([]domain.PollVote, 0)
		for _, v := range s.pollVotes[p.ID] {
			if v.OptionID == opt.ID {
				opt.Votes = append(opt.Votes, v)
			}
		}
		out.Options[i] = opt
	}
	sort.Slice(out.Options, func(i, j int) bool { return out.Options[i].Position < out.Options[j].Position })
	out.Tally()
	return &out
}

// countCards returns the number of cards in a column. Callers hold s.mu.
func (s *Store) countCards(columnID uuid.UUID) int {
	n := 0
	for _, c := range s.cards {
		if c.ColumnID == columnID {
			n++
		}
	}
	return n
}
