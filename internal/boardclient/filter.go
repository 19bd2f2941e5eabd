package boardclient

import (
	"strings"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
)

// Filter selects the visible subset of the board. The zero Filter shows
// every card.
type Filter struct {
	// Query matches case-insensitively against title, description and
	// creator name.
	Query string
	// ColumnID restricts the view to one column when set.
	ColumnID uuid.UUID
	// Creators restricts the view to cards created by any of these users.
	Creators map[uuid.UUID]bool
	// Hidden columns are left out entirely.
	Hidden map[uuid.UUID]bool
}

// Active reports whether f hides anything.
func (f Filter) Active() bool {
	return strings.TrimSpace(f.Query) != "" || f.ColumnID != uuid.Nil || len(f.Creators) > 0 || len(f.Hidden) > 0
}

// Match reports whether card passes the filter.
func (f Filter) Match(card *domain.Card) bool {
	if f.Hidden[card.ColumnID] {
		return false
	}
	if f.ColumnID != uuid.Nil && card.ColumnID != f.ColumnID {
		return false
	}
	if len(f.Creators) > 0 && !f.Creators[card.CreatedBy] {
		return false
	}

	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(card.Title), q) ||
		strings.Contains(strings.ToLower(card.Description), q) ||
		strings.Contains(strings.ToLower(card.Creator.Name), q)
}

// Visible returns the cards that pass f, keeping their order. The input is
// not modified.
func (f Filter) Visible(cards []domain.Card) []domain.Card {
	out := make([]domain.Card, 0, len(cards))
	for i := range cards {
		if f.Match(&cards[i]) {
			out = append(out, cards[i])
		}
	}
	return out
}

// Visible applies f to the store's current cards.
func (s *Store) Visible(f Filter) []domain.Card {
	return f.Visible(s.Cards())
}
