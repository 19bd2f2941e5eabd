// Package board implements the mutation service for the shared idea board.
// Every operation enforces ownership and domain rules, commits through the
// store, re-reads the canonical entity and then hands an event to the
// broadcaster. Mutations run one at a time per Service so that events are
// broadcast in commit order. Broadcasting never fails the operation.
package board

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/event"
)

// Store abstracts the repository accessor pattern.
// *postgres.Store and *memory.Store satisfy this interface.
type Store interface {
	Users() domain.UserRepository
	Columns() domain.ColumnRepository
	Cards() domain.CardRepository
	Votes() domain.VoteRepository
	Comments() domain.CommentRepository
	Polls() domain.PollRepository
}

// Broadcaster delivers a committed change to every live connection.
// *realtime.Hub satisfies this interface.
type Broadcaster interface {
	Broadcast(ctx context.Context, p event.Payload)
}

// Snapshot is the full board as one viewer may see it.
type Snapshot struct {
	Columns []*domain.Column `json:"columns"`
	Cards   []*domain.Card   `json:"cards"`
}

type Service struct {
	store  Store
	events Broadcaster
	now    func() time.Time

	// commitMu is held from a mutation's commit until its event is queued,
	// so events reach the broadcaster in commit order. Clients replay moves
	// relative to the current placement and depend on that order.
	commitMu sync.Mutex
}

func NewService(store Store, events Broadcaster) *Service {
	return &Service{
		store:  store,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Board returns every column and card, with secret poll votes redacted for
// viewer. viewer may be uuid.Nil for anonymous readers.
func (s *Service) Board(ctx context.Context, viewer uuid.UUID) (*Snapshot, error) {
	columns, err := s.store.Columns().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("board.Service.Board: columns: %w", err)
	}

	cards, err := s.store.Cards().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("board.Service.Board: cards: %w", err)
	}

	for i, c := range cards {
		visible := c.VisibleTo(viewer)
		cards[i] = &visible
	}

	return &Snapshot{Columns: columns, Cards: cards}, nil
}

// requireText trims s and checks it is non-empty and at most limit runes.
func requireText(field, s string, limit int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", domain.Invalid("%s must not be empty", field)
	}
	if utf8.RuneCountInString(s) > limit {
		return "", domain.Invalid("%s must be at most %d characters", field, limit)
	}
	return s, nil
}
