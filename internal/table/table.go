package table

import (
	"fmt"
	"strconv"
	"strings"
)

// Cell is a single raw value. Numeric interpretation happens lazily at
// comparison time, never at read time.
type Cell string

// Number parses the cell as a float64.
func (c Cell) Number() (float64, bool) {
	s := strings.TrimSpace(string(c))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (c Cell) String() string {
	return string(c)
}

// Row may be physically shorter than the header it belongs to when read
// from CSV. Missing trailing cells are reported by At, never padded.
type Row []Cell

// At returns the cell at index i and whether the row actually has it.
func (r Row) At(i int) (Cell, bool) {
	if i < 0 || i >= len(r) {
		return "", false
	}
	return r[i], true
}

func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = string(c)
	}
	return out
}

// NewRow builds a row from raw strings.
func NewRow(values ...string) Row {
	r := make(Row, len(values))
	for i, v := range values {
		r[i] = Cell(v)
	}
	return r
}

type Table struct {
	Header []string
	Rows   []Row
}

func New(header []string, rows ...Row) *Table {
	return &Table{Header: header, Rows: rows}
}

// ColumnIndex returns the position of name in the header. When a header
// repeats a name the first occurrence wins.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, h := range t.Header {
		if h == name {
			return i, true
		}
	}
	return -1, false
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// WithRows returns a table sharing t's header with a new row set.
func (t *Table) WithRows(rows []Row) *Table {
	header := make([]string, len(t.Header))
	copy(header, t.Header)
	return &Table{Header: header, Rows: rows}
}

// Record maps header names to cell values; missing cells become "".
func (t *Table) Record(r Row) map[string]string {
	rec := make(map[string]string, len(t.Header))
	for i, h := range t.Header {
		if _, seen := rec[h]; seen {
			continue
		}
		c, _ := r.At(i)
		rec[h] = string(c)
	}
	return rec
}

// ColumnNotFoundError is returned when an operation names a column that is
// not in the header.
type ColumnNotFoundError struct {
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column '%s' not found in file", e.Column)
}
