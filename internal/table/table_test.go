package table

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestCell_Number(t *testing.T) {
	tests := []struct {
		in   Cell
		want float64
		ok   bool
	}{
		{"30", 30, true},
		{"30.0", 30, true},
		{" 42 ", 42, true},
		{"-1.5e2", -150, true},
		{"thirty", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.in.Number()
		if ok != tt.ok || got != tt.want {
			t.Errorf("Cell(%q).Number() = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRow_At(t *testing.T) {
	r := NewRow("a", "b")
	if c, ok := r.At(1); !ok || c != "b" {
		t.Errorf("At(1) = %q, %v", c, ok)
	}
	if _, ok := r.At(2); ok {
		t.Error("expected missing trailing cell")
	}
	if _, ok := r.At(-1); ok {
		t.Error("expected negative index to be missing")
	}
}

func TestTable_ColumnIndexFirstWins(t *testing.T) {
	tbl := New([]string{"a", "b", "a"})
	if i, ok := tbl.ColumnIndex("a"); !ok || i != 0 {
		t.Errorf("expected 0, got %d", i)
	}
	if _, ok := tbl.ColumnIndex("z"); ok {
		t.Error("expected z to be absent")
	}
}

func TestTable_Record(t *testing.T) {
	tbl := New([]string{"k", "v"})
	rec := tbl.Record(NewRow("a"))
	if rec["k"] != "a" || rec["v"] != "" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestReadCSV_ShortRowsAndBOM(t *testing.T) {
	src := "\xEF\xBB\xBFk,v,w\na,1,x\nb\nc,3\n"
	tbl, err := Read(strings.NewReader(src), FormatCSV)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if !reflect.DeepEqual(tbl.Header, []string{"k", "v", "w"}) {
		t.Errorf("unexpected header %v", tbl.Header)
	}
	if tbl.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", tbl.Len())
	}
	if len(tbl.Rows[1]) != 1 {
		t.Errorf("expected short row to stay short, got %v", tbl.Rows[1])
	}
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := Read(strings.NewReader(""), FormatCSV)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestReadFile_UnsupportedExtension(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "table-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "data.xls")
	os.WriteFile(path, []byte("k,v\n"), 0644)

	_, err = ReadFile(path)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if fe.Source != "data.xls" {
		t.Errorf("expected source data.xls, got %s", fe.Source)
	}
}

func TestReadFile_XLSX(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "table-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	f.SetSheetRow(sheet, "A1", &[]any{"name", "age"})
	f.SetSheetRow(sheet, "A2", &[]any{"ann", 30})
	f.SetSheetRow(sheet, "A3", &[]any{"bob"})
	path := filepath.Join(tmpDir, "people.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	f.Close()

	tbl, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(tbl.Header, []string{"name", "age"}) {
		t.Errorf("unexpected header %v", tbl.Header)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(tbl.Rows))
	}
	if tbl.Rows[0][1] != "30" {
		t.Errorf("expected numeric cell stringified, got %q", tbl.Rows[0][1])
	}
	if len(tbl.Rows[1]) != 2 || tbl.Rows[1][1] != "" {
		t.Errorf("expected short sheet row padded with empty cell, got %q", tbl.Rows[1])
	}
}

func TestReadFile_XLSXStyledNumbers(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "table-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	f.SetSheetRow(sheet, "A1", &[]any{"item", "price", "rate"})
	f.SetSheetRow(sheet, "A2", &[]any{"widget", 1234.5, 0.5})
	thousands, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		t.Fatalf("new style: %v", err)
	}
	percent, err := f.NewStyle(&excelize.Style{NumFmt: 9})
	if err != nil {
		t.Fatalf("new style: %v", err)
	}
	f.SetCellStyle(sheet, "B2", "B2", thousands)
	f.SetCellStyle(sheet, "C2", "C2", percent)
	path := filepath.Join(tmpDir, "prices.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	f.Close()

	tbl, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if tbl.Rows[0][1] != "1234.5" {
		t.Errorf("expected raw value 1234.5, got %q", tbl.Rows[0][1])
	}
	if n, ok := tbl.Rows[0][1].Number(); !ok || n != 1234.5 {
		t.Errorf("expected styled cell to parse as 1234.5, got %v %v", n, ok)
	}
	if tbl.Rows[0][2] != "0.5" {
		t.Errorf("expected raw value 0.5, got %q", tbl.Rows[0][2])
	}
}

func TestReadFile_XLSXBlankRowsPadded(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "table-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	f.SetSheetRow(sheet, "A1", &[]any{"k", "n", "t"})
	f.SetCellValue(sheet, "A2", "a")
	f.SetCellValue(sheet, "C2", "x")
	f.SetCellValue(sheet, "A3", "b")
	f.SetSheetRow(sheet, "A5", &[]any{"c", 1, "y"})
	path := filepath.Join(tmpDir, "sparse.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	f.Close()

	tbl, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []Row{
		NewRow("a", "", "x"),
		NewRow("b", "", ""),
		NewRow("", "", ""),
		NewRow("c", "1", "y"),
	}
	if !reflect.DeepEqual(tbl.Rows, want) {
		t.Errorf("unexpected rows %q", tbl.Rows)
	}
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	tbl := New([]string{"k", "v"}, NewRow("a", "1"), NewRow("b, c", "2"), NewRow("d"))

	var buf bytes.Buffer
	if err := WriteCSV(&buf, tbl); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Read(&buf, FormatCSV)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !reflect.DeepEqual(got, tbl) {
		t.Errorf("round trip mismatch: %+v vs %+v", got, tbl)
	}
}

func TestRowReader(t *testing.T) {
	rr, err := NewRowReader(strings.NewReader("k,v\na,1\nb,2\n"))
	if err != nil {
		t.Fatalf("new row reader: %v", err)
	}
	if !reflect.DeepEqual(rr.Header(), []string{"k", "v"}) {
		t.Errorf("unexpected header %v", rr.Header())
	}

	var n int
	for {
		_, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		n++
	}
	if n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
}
