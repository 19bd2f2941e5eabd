package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gosuda/ideaboard/internal/ordering"
)

// positioned names a table whose rows carry a dense position, optionally
// scoped by a parent column.
type positioned struct {
	table string
	scope string // empty when the whole table is one scope
}

var (
	cardPositions   = positioned{table: "cards", scope: "column_id"}   //nolint:gochecknoglobals // table metadata
	columnPositions = positioned{table: "columns"}                     //nolint:gochecknoglobals // table metadata
)

// shiftSQL renders s as one UPDATE. Rows with id skip are left alone.
func (p positioned) shiftSQL(s ordering.Shift, skip uuid.UUID) (string, []any) {
	var b strings.Builder
	args := []any{s.Delta, s.From}

	b.WriteString("UPDATE ")
	b.WriteString(p.table)
	b.WriteString(" SET position = position + $1 WHERE position >= $2")

	if s.To != ordering.Unbounded {
		args = append(args, s.To)
		b.WriteString(" AND position <= $" + strconv.Itoa(len(args)))
	}
	if p.scope != "" {
		args = append(args, s.Scope)
		b.WriteString(" AND " + p.scope + " = $" + strconv.Itoa(len(args)))
	}
	if skip != uuid.Nil {
		args = append(args, skip)
		b.WriteString(" AND id <> $" + strconv.Itoa(len(args)))
	}
	return b.String(), args
}

// apply executes every shift of plan inside tx.
func (p positioned) apply(ctx context.Context, tx pgx.Tx, plan ordering.Plan, skip uuid.UUID) error {
	for _, s := range plan.Shifts {
		sql, args := p.shiftSQL(s, skip)
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("shift %s: %w", p.table, err)
		}
	}
	return nil
}
