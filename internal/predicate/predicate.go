// Package predicate evaluates a single typed comparison against a cell.
// A comparison is numeric only when both the cell and the operand parse as
// numbers; otherwise it uses string semantics.
package predicate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/zerverless/tabular/internal/table"
)

type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
)

// Condition is one column's filter. Value is a scalar, or a list for "in".
type Condition struct {
	Column   string   `json:"-"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Spec maps column names to conditions. All entries must hold for a row to match.
type Spec map[string]Condition

func (o Operator) orDefault() Operator {
	if o == "" {
		return OpEq
	}
	return o
}

func (o Operator) known() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpLt, OpGte, OpLte, OpContains, OpIn:
		return true
	}
	return false
}

func (o Operator) ordered() bool {
	switch o {
	case OpGt, OpLt, OpGte, OpLte:
		return true
	}
	return false
}

// Validate checks the operator and operand shape without looking at data.
func (c Condition) Validate() error {
	op := c.Operator.orDefault()
	if !op.known() {
		return &UnsupportedOperatorError{Column: c.Column, Operator: string(c.Operator)}
	}
	if c.Value == nil {
		return &InvalidOperandError{Column: c.Column, Operator: op, Reason: "value is required"}
	}
	if op == OpIn {
		if _, ok := operandList(c.Value); !ok {
			return &InvalidOperandError{Column: c.Column, Operator: op, Reason: "operator requires a list of values"}
		}
	}
	return nil
}

// Evaluate reports whether cell satisfies c. present is false when the row
// has no cell at the condition's column; such rows never match.
func Evaluate(cell table.Cell, present bool, c Condition) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	if !present {
		return false, nil
	}

	op := c.Operator.orDefault()
	value := string(cell)

	switch op {
	case OpContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(operandString(c.Value))), nil

	case OpIn:
		list, _ := operandList(c.Value)
		for _, v := range list {
			if value == operandString(v) {
				return true, nil
			}
		}
		return false, nil
	}

	cellNum, cellOK := cell.Number()
	opNum, opOK := operandNumber(c.Value)
	numeric := cellOK && opOK

	if op.ordered() && !numeric {
		return false, &TypeMismatchError{Column: c.Column, Operator: op, Cell: value, Operand: operandString(c.Value)}
	}

	switch op {
	case OpEq:
		if numeric {
			return cellNum == opNum, nil
		}
		return value == operandString(c.Value), nil
	case OpNe:
		if numeric {
			return cellNum != opNum, nil
		}
		return value != operandString(c.Value), nil
	case OpGt:
		return cellNum > opNum, nil
	case OpLt:
		return cellNum < opNum, nil
	case OpGte:
		return cellNum >= opNum, nil
	case OpLte:
		return cellNum <= opNum, nil
	}

	return false, &UnsupportedOperatorError{Column: c.Column, Operator: string(op)}
}

func operandList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// operandString renders an operand the way it would appear in a cell.
func operandString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func operandNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		return table.Cell(x).Number()
	}
	return 0, false
}
