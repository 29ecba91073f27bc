package predicate

import "fmt"

// UnsupportedOperatorError is returned for an operator outside the known set.
type UnsupportedOperatorError struct {
	Column   string
	Operator string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operator %q for column '%s'", e.Operator, e.Column)
}

// InvalidOperandError is returned when the operand is absent or has the
// wrong shape for its operator.
type InvalidOperandError struct {
	Column   string
	Operator Operator
	Reason   string
}

func (e *InvalidOperandError) Error() string {
	return fmt.Sprintf("invalid value for %s on column '%s': %s", e.Operator, e.Column, e.Reason)
}

// TypeMismatchError is returned when an ordered comparison meets a value
// that is not numeric.
type TypeMismatchError struct {
	Column   string
	Operator Operator
	Cell     string
	Operand  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("cannot use '%s' operator on non-numeric value in column '%s' (cell=%q, value=%q)",
		e.Operator, e.Column, e.Cell, e.Operand)
}
