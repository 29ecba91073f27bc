package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromExt maps a file extension (with or without the dot) to a Format.
func FormatFromExt(ext string) (Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "csv":
		return FormatCSV, true
	case "xlsx":
		return FormatXLSX, true
	default:
		return "", false
	}
}

// FormatError reports a source that cannot be parsed as a table.
type FormatError struct {
	Source string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("invalid tabular format: %v", e.Err)
	}
	return fmt.Sprintf("invalid tabular format in %s: %v", e.Source, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

var errNoHeader = errors.New("missing header row")

// ReadFile opens path and parses it according to its extension.
func ReadFile(path string) (*Table, error) {
	format, ok := FormatFromExt(filepath.Ext(path))
	if !ok {
		return nil, &FormatError{Source: filepath.Base(path), Err: fmt.Errorf("unsupported extension %q", filepath.Ext(path))}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	t, err := Read(f, format)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) && fe.Source == "" {
			fe.Source = filepath.Base(path)
		}
		return nil, err
	}
	return t, nil
}

// Read parses r as the given format.
func Read(r io.Reader, format Format) (*Table, error) {
	switch format {
	case FormatCSV:
		return readCSV(r)
	case FormatXLSX:
		return readXLSX(r)
	default:
		return nil, &FormatError{Err: fmt.Errorf("unsupported format %q", format)}
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM drops a leading UTF-8 byte order mark, common in files exported
// from Windows spreadsheet tools.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	return br
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(skipBOM(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	return cr
}

func readCSV(r io.Reader) (*Table, error) {
	cr := newCSVReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &FormatError{Err: errNoHeader}
	}
	if err != nil {
		return nil, &FormatError{Err: fmt.Errorf("read header: %w", err)}
	}

	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &FormatError{Err: err}
		}
		t.Rows = append(t.Rows, NewRow(rec...))
	}
	return t, nil
}

func readXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &FormatError{Err: fmt.Errorf("open workbook: %w", err)}
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		return nil, &FormatError{Err: errors.New("workbook has no active sheet")}
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &FormatError{Err: fmt.Errorf("read sheet %s: %w", sheet, err)}
	}
	if len(rows) == 0 {
		return nil, &FormatError{Err: errNoHeader}
	}

	// Sheets have no ragged rows: empty cells read back as "".
	t := &Table{Header: rows[0]}
	for _, rec := range rows[1:] {
		t.Rows = append(t.Rows, padRow(NewRow(rec...), len(t.Header)))
	}
	return t, nil
}

func padRow(r Row, width int) Row {
	for len(r) < width {
		r = append(r, "")
	}
	return r
}

// ReadHeader parses only the header of a source. It is used to validate
// uploads without loading the whole file.
func ReadHeader(r io.Reader, format Format) ([]string, error) {
	if format == FormatXLSX {
		t, err := readXLSX(r)
		if err != nil {
			return nil, err
		}
		return t.Header, nil
	}

	header, err := newCSVReader(r).Read()
	if err == io.EOF {
		return nil, &FormatError{Err: errNoHeader}
	}
	if err != nil {
		return nil, &FormatError{Err: fmt.Errorf("read header: %w", err)}
	}
	return header, nil
}
