// Package operator implements the row transformations a job can apply.
// Every operator is a pure function of its input table and never mutates it.
package operator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zerverless/tabular/internal/predicate"
	"github.com/zerverless/tabular/internal/table"
)

type Operation string

const (
	OpDedup  Operation = "dedup"
	OpUnique Operation = "unique"
	OpFilter Operation = "filter"
)

// Operations lists the supported operations in display order.
var Operations = []Operation{OpDedup, OpUnique, OpFilter}

func (o Operation) Valid() bool {
	switch o {
	case OpDedup, OpUnique, OpFilter:
		return true
	}
	return false
}

// Params carries operation-specific arguments.
type Params struct {
	Column  string         `json:"column,omitempty"`
	Filters predicate.Spec `json:"filters,omitempty"`
}

var ErrEmptyFilter = errors.New("filter conditions cannot be empty")

// Apply runs op over t.
func Apply(t *table.Table, op Operation, p Params) (*table.Table, error) {
	switch op {
	case OpDedup:
		return Dedup(t), nil
	case OpUnique:
		return Unique(t, p.Column)
	case OpFilter:
		return Filter(t, p.Filters)
	default:
		return nil, fmt.Errorf("unsupported operation: %s", op)
	}
}

// Dedup keeps the first occurrence of each distinct row.
func Dedup(t *table.Table) *table.Table {
	seen := make(map[string]struct{}, len(t.Rows))
	out := make([]table.Row, 0, len(t.Rows))

	for _, r := range t.Rows {
		sig := signature(r)
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, r)
	}
	return t.WithRows(out)
}

// Unique keeps the first row for each distinct value of column. Rows that
// have no cell at that column are dropped.
func Unique(t *table.Table, column string) (*table.Table, error) {
	idx, ok := t.ColumnIndex(column)
	if !ok {
		return nil, &table.ColumnNotFoundError{Column: column}
	}

	seen := make(map[table.Cell]struct{})
	out := make([]table.Row, 0)

	for _, r := range t.Rows {
		v, ok := r.At(idx)
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, r)
	}
	return t.WithRows(out), nil
}

// Filter keeps rows satisfying every condition in spec, in original order.
func Filter(t *table.Table, spec predicate.Spec) (*table.Table, error) {
	if len(spec) == 0 {
		return nil, ErrEmptyFilter
	}

	bounds, err := predicate.Compile(spec, t)
	if err != nil {
		return nil, err
	}

	out := make([]table.Row, 0)
	for _, r := range t.Rows {
		ok, err := predicate.MatchAll(bounds, r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return t.WithRows(out), nil
}

// signature encodes a row so that two rows share a signature only when
// they have the same number of cells with identical contents.
func signature(r table.Row) string {
	var b strings.Builder
	for _, c := range r {
		b.WriteString(strconv.Itoa(len(c)))
		b.WriteByte(':')
		b.WriteString(string(c))
	}
	return b.String()
}
