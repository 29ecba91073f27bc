package predicate

import (
	"sort"

	"github.com/zerverless/tabular/internal/table"
)

// Bound is a validated condition pinned to a column position.
type Bound struct {
	Index     int
	Condition Condition
}

// Match reports whether r satisfies the condition.
func (b Bound) Match(r table.Row) (bool, error) {
	cell, ok := r.At(b.Index)
	return Evaluate(cell, ok, b.Condition)
}

// Compile resolves every condition in spec against t's header and returns
// them ordered by column position, so short-circuit evaluation does not
// depend on map iteration order.
func Compile(spec Spec, t *table.Table) ([]Bound, error) {
	columns := sortedColumns(spec)

	for _, column := range columns {
		if _, ok := t.ColumnIndex(column); !ok {
			return nil, &table.ColumnNotFoundError{Column: column}
		}
	}

	bounds := make([]Bound, 0, len(spec))
	for _, column := range columns {
		c := spec[column]
		c.Column = column
		if err := c.Validate(); err != nil {
			return nil, err
		}
		i, _ := t.ColumnIndex(column)
		bounds = append(bounds, Bound{Index: i, Condition: c})
	}

	sort.SliceStable(bounds, func(i, j int) bool {
		return bounds[i].Index < bounds[j].Index
	})
	return bounds, nil
}

// MatchAll reports whether r satisfies every bound, stopping at the first
// condition that does not hold.
func MatchAll(bounds []Bound, r table.Row) (bool, error) {
	for _, b := range bounds {
		ok, err := b.Match(r)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// ValidateSpec checks operator and operand shapes for every entry without
// needing a header. Used at submission time.
func ValidateSpec(spec Spec) error {
	for _, column := range sortedColumns(spec) {
		c := spec[column]
		c.Column = column
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func sortedColumns(spec Spec) []string {
	columns := make([]string, 0, len(spec))
	for column := range spec {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}
