// Package ordering computes position rewrites that keep sibling positions a
// dense, zero-based sequence. Cards are ranked per column, columns per board.
//
// The package is pure: it produces Shift plans that a store executes inside
// one transaction and that in-memory holders apply directly. Every shift
// range excludes the item being placed, so a plan can be applied to all
// siblings before the item's own placement is written.
package ordering

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/gosuda/ideaboard/internal/domain"
)

// Unbounded marks an open-ended upper bound of a shift range.
const Unbounded = math.MaxInt

// BoardScope is the scope of column positions.
var BoardScope = uuid.Nil //nolint:gochecknoglobals // fixed scope id

// Placement is a slot within a scope.
type Placement struct {
	Scope    uuid.UUID
	Position int
}

// Shift moves every item in Scope whose position is within [From, To] by Delta.
type Shift struct {
	Scope uuid.UUID
	From  int
	To    int
	Delta int
}

// Covers reports whether an item at (scope, pos) is affected by s.
func (s Shift) Covers(scope uuid.UUID, pos int) bool {
	return scope == s.Scope && pos >= s.From && pos <= s.To
}

// Apply returns the position of an item at (scope, pos) after s.
func (s Shift) Apply(scope uuid.UUID, pos int) int {
	if s.Covers(scope, pos) {
		return pos + s.Delta
	}
	return pos
}

// Plan is an ordered list of shifts plus the final placement of the item
// being moved. Target is the zero Placement for removals.
type Plan struct {
	Shifts []Shift
	Target Placement
}

// Noop reports whether the plan leaves every position unchanged.
func (p Plan) Noop() bool {
	return len(p.Shifts) == 0
}

// Reposition returns the position of a sibling at (scope, pos) after all
// shifts of p.
func (p Plan) Reposition(scope uuid.UUID, pos int) int {
	for _, s := range p.Shifts {
		pos = s.Apply(scope, pos)
	}
	return pos
}

// Append returns the position for a new item in a scope holding count items.
func Append(count int) int {
	return count
}

// Remove closes the gap left by an item removed from at.
func Remove(at Placement) Plan {
	return Plan{
		Shifts: []Shift{{Scope: at.Scope, From: at.Position + 1, To: Unbounded, Delta: -1}},
	}
}

// Move plans moving an item from one placement to another. destCount is the
// number of items currently in the destination scope, including the moved
// item when the move stays within one scope.
//
// Across scopes, siblings after the old slot close up and siblings at or
// after the new slot make room. Within a scope, only the range between the
// two slots shifts by one toward the vacated slot.
func Move(from, to Placement, destCount int) (Plan, error) {
	if to.Position < 0 {
		return Plan{}, domain.Invalid("position must be >= 0")
	}

	if from.Scope != to.Scope {
		if to.Position > destCount {
			return Plan{}, domain.Invalid("position %d out of range 0..%d", to.Position, destCount)
		}
		return Plan{
			Shifts: []Shift{
				{Scope: from.Scope, From: from.Position + 1, To: Unbounded, Delta: -1},
				{Scope: to.Scope, From: to.Position, To: Unbounded, Delta: 1},
			},
			Target: to,
		}, nil
	}

	if to.Position > destCount-1 {
		return Plan{}, domain.Invalid("position %d out of range 0..%d", to.Position, destCount-1)
	}

	switch {
	case from.Position < to.Position:
		return Plan{
			Shifts: []Shift{{Scope: to.Scope, From: from.Position + 1, To: to.Position, Delta: -1}},
			Target: to,
		}, nil
	case from.Position > to.Position:
		return Plan{
			Shifts: []Shift{{Scope: to.Scope, From: to.Position, To: from.Position - 1, Delta: 1}},
			Target: to,
		}, nil
	default:
		return Plan{Target: to}, nil
	}
}

// Reorder validates a complete ordering against the existing id set and
// returns the dense position assigned to each id. Entries are ranked by
// their submitted position; ties keep submission order.
func Reorder(existing []uuid.UUID, order []domain.ColumnPosition) (map[uuid.UUID]int, error) {
	if len(order) != len(existing) {
		return nil, domain.Invalid("reorder must list all %d columns, got %d", len(existing), len(order))
	}

	known := make(map[uuid.UUID]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}

	seen := make(map[uuid.UUID]struct{}, len(order))
	for _, entry := range order {
		if _, ok := known[entry.ID]; !ok {
			return nil, domain.Invalid("unknown column %s", entry.ID)
		}
		if _, dup := seen[entry.ID]; dup {
			return nil, domain.Invalid("column %s listed twice", entry.ID)
		}
		seen[entry.ID] = struct{}{}
	}

	sorted := make([]domain.ColumnPosition, len(order))
	copy(sorted, order)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})

	out := make(map[uuid.UUID]int, len(sorted))
	for i, entry := range sorted {
		out[entry.ID] = i
	}
	return out, nil
}

// Dense reports whether positions is a permutation of 0..len-1.
func Dense(positions []int) bool {
	seen := make([]bool, len(positions))
	for _, p := range positions {
		if p < 0 || p >= len(positions) || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}
