package postgres

import (
	"fmt"
	"strings"

	"github.com/imperfectform/predictbot/internal/domain"
)

// selectBuilder accumulates WHERE clauses with positional arguments.
type selectBuilder struct {
	base  string
	where []string
	args  []any
}

func newSelect(base string) *selectBuilder {
	return &selectBuilder{base: base}
}

// whereArg adds a clause whose single "?" becomes the next $n placeholder.
func (b *selectBuilder) whereArg(clause string, arg any) *selectBuilder {
	b.args = append(b.args, arg)
	b.where = append(b.where, strings.Replace(clause, "?", fmt.Sprintf("$%d", len(b.args)), 1))
	return b
}

// build appends ORDER BY and the pagination in opts.
func (b *selectBuilder) build(timeColumn, orderBy string, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		b.whereArg(timeColumn+" >= ?", *opts.Since)
	}
	if opts.Until != nil {
		b.whereArg(timeColumn+" <= ?", *opts.Until)
	}
	q := b.base
	if len(b.where) > 0 {
		q += " WHERE " + strings.Join(b.where, " AND ")
	}
	q += " ORDER BY " + orderBy
	if opts.Limit > 0 {
		b.args = append(b.args, opts.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(b.args))
	}
	if opts.Offset > 0 {
		b.args = append(b.args, opts.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(b.args))
	}
	return q, b.args
}
