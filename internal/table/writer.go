package table

import (
	"encoding/csv"
	"io"
)

// emptyRecord is written for a record that csv.Writer would emit as a blank
// line, which readers skip.
const emptyRecord = "\"\"\n"

// WriteCSV serializes t as CSV. Short rows are written as-is, except that a
// row with no cells or a single empty cell is written as one quoted empty
// field.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	write := func(rec []string) error {
		if len(rec) > 1 || (len(rec) == 1 && rec[0] != "") {
			return cw.Write(rec)
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		_, err := io.WriteString(w, emptyRecord)
		return err
	}

	if err := write(t.Header); err != nil {
		return err
	}
	for _, r := range t.Rows {
		if err := write(r.Strings()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RowReader streams rows from a CSV source one at a time.
type RowReader struct {
	cr     *csv.Reader
	header []string
}

// NewRowReader reads the header of r and prepares to stream its rows.
func NewRowReader(r io.Reader) (*RowReader, error) {
	cr := newCSVReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, &FormatError{Err: errNoHeader}
	}
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	return &RowReader{cr: cr, header: header}, nil
}

func (rr *RowReader) Header() []string {
	return rr.header
}

// Next returns the next row or io.EOF.
func (rr *RowReader) Next() (Row, error) {
	rec, err := rr.cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FormatError{Err: err}
	}
	return NewRow(rec...), nil
}
