package ordering_test

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/ideaboard/internal/domain"
	"github.com/gosuda/ideaboard/internal/ordering"
)

// item is a positioned sibling used to simulate a store applying plans.
type item struct {
	name  string
	scope uuid.UUID
	pos   int
}

type board struct {
	items []*item
}

func (b *board) add(name string, scope uuid.UUID) *item {
	it := &item{name: name, scope: scope, pos: ordering.Append(b.count(scope))}
	b.items = append(b.items, it)
	return it
}

func (b *board) count(scope uuid.UUID) int {
	n := 0
	for _, it := range b.items {
		if it.scope == scope {
			n++
		}
	}
	return n
}

func (b *board) move(t *testing.T, it *item, to ordering.Placement) error {
	t.Helper()
	from := ordering.Placement{Scope: it.scope, Position: it.pos}
	plan, err := ordering.Move(from, to, b.count(to.Scope))
	if err != nil {
		return err
	}
	for _, other := range b.items {
		if other != it {
			other.pos = plan.Reposition(other.scope, other.pos)
		}
	}
	it.scope = plan.Target.Scope
	it.pos = plan.Target.Position
	return nil
}

func (b *board) remove(it *item) {
	plan := ordering.Remove(ordering.Placement{Scope: it.scope, Position: it.pos})
	kept := b.items[:0]
	for _, other := range b.items {
		if other == it {
			continue
		}
		other.pos = plan.Reposition(other.scope, other.pos)
		kept = append(kept, other)
	}
	b.items = kept
}

func (b *board) order(scope uuid.UUID) []string {
	var in []*item
	for _, it := range b.items {
		if it.scope == scope {
			in = append(in, it)
		}
	}
	sort.Slice(in, func(i, j int) bool { return in[i].pos < in[j].pos })
	names := make([]string, len(in))
	for i, it := range in {
		names[i] = it.name
	}
	return names
}

func (b *board) positions(scope uuid.UUID) []int {
	var out []int
	for _, it := range b.items {
		if it.scope == scope {
			out = append(out, it.pos)
		}
	}
	return out
}

func TestMove_SameScope(t *testing.T) {
	t.Parallel()

	col := uuid.New()

	tests := []struct {
		name string
		from int
		to   int
		want []string
	}{
		{name: "down", from: 0, to: 3, want: []string{"B", "C", "D", "A", "E"}},
		{name: "up", from: 4, to: 1, want: []string{"A", "E", "B", "C", "D"}},
		{name: "to front", from: 2, to: 0, want: []string{"C", "A", "B", "D", "E"}},
		{name: "to back", from: 1, to: 4, want: []string{"A", "C", "D", "E", "B"}},
		{name: "noop", from: 2, to: 2, want: []string{"A", "B", "C", "D", "E"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b := &board{}
			var items []*item
			for _, n := range []string{"A", "B", "C", "D", "E"} {
				items = append(items, b.add(n, col))
			}

			require.NoError(t, b.move(t, items[tc.from], ordering.Placement{Scope: col, Position: tc.to}))
			assert.Equal(t, tc.want, b.order(col))
			assert.True(t, ordering.Dense(b.positions(col)))
		})
	}
}

func TestMove_AcrossScopes(t *testing.T) {
	t.Parallel()

	colA := uuid.New()
	colB := uuid.New()

	b := &board{}
	var a []*item
	for _, n := range []string{"a0", "a1", "a2", "a3", "a4"} {
		a = append(a, b.add(n, colA))
	}
	for _, n := range []string{"b0", "b1", "b2"} {
		b.add(n, colB)
	}

	require.NoError(t, b.move(t, a[2], ordering.Placement{Scope: colB, Position: 1}))

	assert.Equal(t, []string{"a0", "a1", "a3", "a4"}, b.order(colA))
	assert.Equal(t, []string{"b0", "a2", "b1", "b2"}, b.order(colB))
	assert.True(t, ordering.Dense(b.positions(colA)))
	assert.True(t, ordering.Dense(b.positions(colB)))
	assert.Equal(t, 1, a[2].pos)
}

func TestMove_Bounds(t *testing.T) {
	t.Parallel()

	colA := uuid.New()
	colB := uuid.New()

	tests := []struct {
		name      string
		from      ordering.Placement
		to        ordering.Placement
		destCount int
		wantErr   bool
	}{
		{name: "negative", from: ordering.Placement{Scope: colA}, to: ordering.Placement{Scope: colB, Position: -1}, destCount: 3, wantErr: true},
		{name: "append across", from: ordering.Placement{Scope: colA}, to: ordering.Placement{Scope: colB, Position: 3}, destCount: 3},
		{name: "past end across", from: ordering.Placement{Scope: colA}, to: ordering.Placement{Scope: colB, Position: 4}, destCount: 3, wantErr: true},
		{name: "empty destination", from: ordering.Placement{Scope: colA}, to: ordering.Placement{Scope: colB}, destCount: 0},
		{name: "last slot within", from: ordering.Placement{Scope: colA}, to: ordering.Placement{Scope: colA, Position: 2}, destCount: 3},
		{name: "past end within", from: ordering.Placement{Scope: colA}, to: ordering.Placement{Scope: colA, Position: 3}, destCount: 3, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ordering.Move(tc.from, tc.to, tc.destCount)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrValidation))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestMove_NoopPlan(t *testing.T) {
	t.Parallel()

	col := uuid.New()
	plan, err := ordering.Move(ordering.Placement{Scope: col, Position: 1}, ordering.Placement{Scope: col, Position: 1}, 3)
	require.NoError(t, err)
	assert.True(t, plan.Noop())
	assert.Equal(t, ordering.Placement{Scope: col, Position: 1}, plan.Target)
}

func TestScenario_BacklogReorderAndDelete(t *testing.T) {
	t.Parallel()

	backlog := uuid.New()
	b := &board{}
	a := b.add("A", backlog)
	b.add("B", backlog)
	c := b.add("C", backlog)

	assert.Equal(t, []int{0, 1, 2}, b.positions(backlog))

	require.NoError(t, b.move(t, c, ordering.Placement{Scope: backlog, Position: 0}))
	assert.Equal(t, []string{"C", "A", "B"}, b.order(backlog))

	b.remove(a)
	assert.Equal(t, []string{"C", "B"}, b.order(backlog))
	assert.True(t, ordering.Dense(b.positions(backlog)))
}

func TestDensePositions_RandomOperations(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic test input
	scopes := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	b := &board{}

	for step := range 2000 {
		switch op := rng.Intn(3); {
		case op == 0 || len(b.items) == 0:
			b.add("x", scopes[rng.Intn(len(scopes))])
		case op == 1:
			it := b.items[rng.Intn(len(b.items))]
			to := scopes[rng.Intn(len(scopes))]
			limit := b.count(to)
			if to == it.scope {
				limit--
			}
			require.NoError(t, b.move(t, it, ordering.Placement{Scope: to, Position: rng.Intn(limit + 1)}), "step %d", step)
		default:
			b.remove(b.items[rng.Intn(len(b.items))])
		}

		for _, s := range scopes {
			require.True(t, ordering.Dense(b.positions(s)), "step %d: positions %v", step, b.positions(s))
		}
	}
}

func TestReorder(t *testing.T) {
	t.Parallel()

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	existing := []uuid.UUID{a, b, c}

	t.Run("complete ordering", func(t *testing.T) {
		t.Parallel()

		got, err := ordering.Reorder(existing, []domain.ColumnPosition{
			{ID: a, Position: 2}, {ID: b, Position: 0}, {ID: c, Position: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, map[uuid.UUID]int{b: 0, c: 1, a: 2}, got)
	})

	t.Run("sparse positions are compacted", func(t *testing.T) {
		t.Parallel()

		got, err := ordering.Reorder(existing, []domain.ColumnPosition{
			{ID: a, Position: 10}, {ID: b, Position: 5}, {ID: c, Position: 7},
		})
		require.NoError(t, err)
		assert.Equal(t, map[uuid.UUID]int{b: 0, c: 1, a: 2}, got)
	})

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()

		_, err := ordering.Reorder(existing, []domain.ColumnPosition{{ID: a}, {ID: b, Position: 1}})
		require.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("extra id", func(t *testing.T) {
		t.Parallel()

		_, err := ordering.Reorder(existing, []domain.ColumnPosition{
			{ID: a}, {ID: b, Position: 1}, {ID: c, Position: 2}, {ID: uuid.New(), Position: 3},
		})
		require.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("foreign id replacing a known one", func(t *testing.T) {
		t.Parallel()

		_, err := ordering.Reorder(existing, []domain.ColumnPosition{
			{ID: a}, {ID: b, Position: 1}, {ID: uuid.New(), Position: 2},
		})
		require.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("duplicate id", func(t *testing.T) {
		t.Parallel()

		_, err := ordering.Reorder(existing, []domain.ColumnPosition{
			{ID: a}, {ID: a, Position: 1}, {ID: b, Position: 2},
		})
		require.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestDense(t *testing.T) {
	t.Parallel()

	assert.True(t, ordering.Dense(nil))
	assert.True(t, ordering.Dense([]int{2, 0, 1}))
	assert.False(t, ordering.Dense([]int{0, 2}))
	assert.False(t, ordering.Dense([]int{0, 0}))
	assert.False(t, ordering.Dense([]int{-1, 0}))
}
