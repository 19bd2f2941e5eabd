package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	MinPollOptions     = 2
	MaxPollOptions     = 10
	MaxPollQuestionLen = 500
	MaxPollOptionLen   = 200
)

type Poll struct {
	ID            uuid.UUID    `json:"id"`
	Question      string       `json:"question"`
	CardID        uuid.UUID    `json:"cardId"`
	CreatedBy     uuid.UUID    `json:"createdBy"`
	AllowMultiple bool         `json:"allowMultiple"`
	IsSecret      bool         `json:"isSecret"`
	IsActive      bool         `json:"isActive"`
	EndsAt        *time.Time   `json:"endsAt,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	Options       []PollOption `json:"options"`
	TotalVotes    int          `json:"totalVotes"`
}

type PollOption struct {
	ID        uuid.UUID  `json:"id"`
	PollID    uuid.UUID  `json:"pollId"`
	Text      string     `json:"text"`
	Position  int        `json:"position"`
	VoteCount int        `json:"voteCount"`
	Votes     []PollVote `json:"votes"`
}

type PollVote struct {
	ID        uuid.UUID `json:"id"`
	PollID    uuid.UUID `json:"pollId"`
	OptionID  uuid.UUID `json:"optionId"`
	UserID    uuid.UUID `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// AcceptsVotes reports whether the poll is open at now.
func (p *Poll) AcceptsVotes(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	return p.EndsAt == nil || now.Before(*p.EndsAt)
}

func (p *Poll) HasOption(id uuid.UUID) bool {
	for i := range p.Options {
		if p.Options[i].ID == id {
			return true
		}
	}
	return false
}

// Tally recomputes per-option and total vote counts from the vote lists.
// TotalVotes counts distinct voters.
func (p *Poll) Tally() {
	voters := make(map[uuid.UUID]struct{})
	for i := range p.Options {
		p.Options[i].VoteCount = len(p.Options[i].Votes)
		for _, v := range p.Options[i].Votes {
			voters[v.UserID] = struct{}{}
		}
	}
	p.TotalVotes = len(voters)
}

// AllVotes flattens the votes of every option.
func (p *Poll) AllVotes() []PollVote {
	out := make([]PollVote, 0)
	for i := range p.Options {
		out = append(out, p.Options[i].Votes...)
	}
	return out
}

// Counts maps option id to its vote count.
func (p *Poll) Counts() map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(p.Options))
	for i := range p.Options {
		out[p.Options[i].ID] = p.Options[i].VoteCount
	}
	return out
}

// VisibleTo returns a copy of the poll as viewer may see it. For secret
// polls, anyone but the owner sees only their own votes; counts are kept.
// Pass uuid.Nil to strip every voter identity, as broadcasts do.
func (p *Poll) VisibleTo(viewer uuid.UUID) Poll {
	out := *p
	out.Options = make([]PollOption, len(p.Options))
	for i, opt := range p.Options {
		out.Options[i] = opt
		votes := make([]PollVote, 0, len(opt.Votes))
		for _, v := range opt.Votes {
			if !p.IsSecret || (viewer != uuid.Nil && (viewer == p.CreatedBy || viewer == v.UserID)) {
				votes = append(votes, v)
			}
		}
		out.Options[i].Votes = votes
	}
	return out
}

type PollRepository interface {
	// Create inserts the poll with its options. It fails with ErrConflict when
	// the card already has an active poll.
	Create(ctx context.Context, p *Poll) error
	GetByID(ctx context.Context, id uuid.UUID) (*Poll, error)
	ListByCard(ctx context.Context, cardID uuid.UUID) ([]Poll, error)
	Update(ctx context.Context, p *Poll) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ReplaceVotes swaps the user's votes on the poll for optionIDs in one
	// transaction.
	ReplaceVotes(ctx context.Context, pollID, userID uuid.UUID, optionIDs []uuid.UUID) error
	// DeleteVotes removes all of the user's votes on the poll and returns how
	// many were removed.
	DeleteVotes(ctx context.Context, pollID, userID uuid.UUID) (int, error)
}
