package operator

import (
	"errors"
	"reflect"
	"testing"

	"github.com/zerverless/tabular/internal/predicate"
	"github.com/zerverless/tabular/internal/table"
)

func sample() *table.Table {
	return table.New([]string{"k", "v"},
		table.NewRow("a", "1"),
		table.NewRow("b", "2"),
		table.NewRow("a", "1"),
	)
}

func rows(values ...[]string) []table.Row {
	out := make([]table.Row, len(values))
	for i, v := range values {
		out[i] = table.NewRow(v...)
	}
	return out
}

func TestScenario(t *testing.T) {
	want := rows([]string{"a", "1"}, []string{"b", "2"})

	if got := Dedup(sample()); !reflect.DeepEqual(got.Rows, want) {
		t.Errorf("dedup: got %v", got.Rows)
	}

	got, err := Unique(sample(), "k")
	if err != nil {
		t.Fatalf("unique: %v", err)
	}
	if !reflect.DeepEqual(got.Rows, want) {
		t.Errorf("unique: got %v", got.Rows)
	}

	got, err = Filter(sample(), predicate.Spec{"v": {Operator: predicate.OpGt, Value: "1"}})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if !reflect.DeepEqual(got.Rows, rows([]string{"b", "2"})) {
		t.Errorf("filter: got %v", got.Rows)
	}
}

func TestDedup_Idempotent(t *testing.T) {
	in := table.New([]string{"x", "y"},
		table.NewRow("1", "2"),
		table.NewRow("1"),
		table.NewRow("1", ""),
		table.NewRow("1", "2"),
		table.NewRow("1"),
		table.NewRow("12", ""),
		table.NewRow("1", "2"),
	)

	once := Dedup(in)
	twice := Dedup(once)
	if !reflect.DeepEqual(once.Rows, twice.Rows) {
		t.Errorf("dedup not idempotent: %v vs %v", once.Rows, twice.Rows)
	}

	want := rows([]string{"1", "2"}, []string{"1"}, []string{"1", ""}, []string{"12", ""})
	if !reflect.DeepEqual(once.Rows, want) {
		t.Errorf("got %v, want %v", once.Rows, want)
	}
}

func TestDedup_DoesNotMutateInput(t *testing.T) {
	in := sample()
	before := len(in.Rows)
	Dedup(in)
	if len(in.Rows) != before {
		t.Errorf("input mutated: %d rows, want %d", len(in.Rows), before)
	}
}

func TestUnique_FirstRowPerValue(t *testing.T) {
	in := table.New([]string{"city", "name"},
		table.NewRow("paris", "ann"),
		table.NewRow("rome", "bob"),
		table.NewRow("paris", "cid"),
		table.NewRow(),
		table.NewRow("rome", "dee"),
	)

	got, err := Unique(in, "city")
	if err != nil {
		t.Fatalf("unique: %v", err)
	}
	want := rows([]string{"paris", "ann"}, []string{"rome", "bob"})
	if !reflect.DeepEqual(got.Rows, want) {
		t.Errorf("got %v, want %v", got.Rows, want)
	}
}

func TestUnique_ColumnNotFound(t *testing.T) {
	_, err := Unique(sample(), "missing")
	var cnf *table.ColumnNotFoundError
	if !errors.As(err, &cnf) {
		t.Errorf("expected ColumnNotFoundError, got %v", err)
	}
}

func TestFilter_Errors(t *testing.T) {
	if _, err := Filter(sample(), nil); !errors.Is(err, ErrEmptyFilter) {
		t.Errorf("expected ErrEmptyFilter, got %v", err)
	}

	_, err := Filter(sample(), predicate.Spec{"nope": {Value: "1"}})
	var cnf *table.ColumnNotFoundError
	if !errors.As(err, &cnf) {
		t.Errorf("expected ColumnNotFoundError, got %v", err)
	}

	_, err = Filter(sample(), predicate.Spec{"k": {Operator: predicate.OpLt, Value: "5"}})
	var tm *predicate.TypeMismatchError
	if !errors.As(err, &tm) {
		t.Errorf("expected TypeMismatchError, got %v", err)
	}
}

func TestFilter_ImpossibleConditionIsEmpty(t *testing.T) {
	got, err := Filter(sample(), predicate.Spec{"v": {Operator: predicate.OpGt, Value: 1000.0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Rows) != 0 {
		t.Errorf("expected empty result, got %v", got.Rows)
	}
}

func TestFilter_ConjunctionAndShortRows(t *testing.T) {
	in := table.New([]string{"name", "age", "tags"},
		table.NewRow("ann", "30", "red,blue"),
		table.NewRow("bob", "30.0"),
		table.NewRow("cid", "41", "Blue"),
		table.NewRow("dee", "thirty", "blue"),
	)

	got, err := Filter(in, predicate.Spec{
		"age":  {Operator: predicate.OpEq, Value: "30"},
		"tags": {Operator: predicate.OpContains, Value: "BLUE"},
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}

	want := rows([]string{"ann", "30", "red,blue"})
	if !reflect.DeepEqual(got.Rows, want) {
		t.Errorf("got %v, want %v", got.Rows, want)
	}
}

func TestFilter_OutputSatisfiesSpec(t *testing.T) {
	in := table.New([]string{"n"})
	for _, v := range []string{"5", "12", "7", "30", "1", "12"} {
		in.Rows = append(in.Rows, table.NewRow(v))
	}
	spec := predicate.Spec{"n": {Operator: predicate.OpGte, Value: "7"}}

	got, err := Filter(in, spec)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	bounds, _ := predicate.Compile(spec, in)
	for _, r := range got.Rows {
		if ok, _ := predicate.MatchAll(bounds, r); !ok {
			t.Errorf("row %v does not satisfy spec", r)
		}
	}
	if len(got.Rows) != 4 {
		t.Errorf("expected 4 rows, got %d", len(got.Rows))
	}
}

func TestApply(t *testing.T) {
	if _, err := Apply(sample(), "sort", Params{}); err == nil {
		t.Error("expected error for unsupported operation")
	}
	got, err := Apply(sample(), OpUnique, Params{Column: "v"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(got.Rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(got.Rows))
	}
}
