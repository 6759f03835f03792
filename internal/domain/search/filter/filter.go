// Package filter describes structured candidate constraints independent of the search backend.
package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is a comparison operator.
type Op string

// Supported operators.
const (
	OpEq  Op = "="
	OpGTE Op = ">="
	OpLTE Op = "<="
)

// MaxClauses bounds the size of a single expression.
const MaxClauses = 32

// Clause is a single constraint on a metadata field.
// Eq clauses compare strings; GTE/LTE clauses compare numbers.
type Clause struct {
	field string
	op    Op
	str   string
	num   float64
}

// Eq creates an exact string equality clause.
func Eq(field, value string) (Clause, error) {
	if field == "" {
		return Clause{}, fmt.Errorf("filter field is required")
	}
	if value == "" {
		return Clause{}, fmt.Errorf("match value is required for field %q", field)
	}
	return Clause{field: field, op: OpEq, str: value}, nil
}

// GTE creates an inclusive lower bound clause.
func GTE(field string, v float64) (Clause, error) {
	return numeric(field, OpGTE, v)
}

// LTE creates an inclusive upper bound clause.
func LTE(field string, v float64) (Clause, error) {
	return numeric(field, OpLTE, v)
}

func numeric(field string, op Op, v float64) (Clause, error) {
	if field == "" {
		return Clause{}, fmt.Errorf("filter field is required")
	}
	return Clause{field: field, op: op, num: v}, nil
}

// Field returns the metadata field name.
func (c Clause) Field() string { return c.field }

// Op returns the comparison operator.
func (c Clause) Op() Op { return c.op }

// Value returns the string operand of an Eq clause.
func (c Clause) Value() string { return c.str }

// Number returns the numeric operand of a range clause.
func (c Clause) Number() float64 { return c.num }

// IsNumeric reports whether the clause compares numbers.
func (c Clause) IsNumeric() bool { return c.op == OpGTE || c.op == OpLTE }

func (c Clause) String() string {
	if c.IsNumeric() {
		return c.field + " " + string(c.op) + " " + strconv.FormatFloat(c.num, 'g', -1, 64)
	}
	return c.field + " " + string(c.op) + " " + strconv.Quote(c.str)
}

// Expression is a conjunction of clauses. The zero value matches everything.
type Expression struct {
	must []Clause
}

// NewExpression validates and creates an Expression.
func NewExpression(clauses ...Clause) (Expression, error) {
	if len(clauses) > MaxClauses {
		return Expression{}, fmt.Errorf("too many filter clauses (max %d)", MaxClauses)
	}
	out := make([]Clause, len(clauses))
	copy(out, clauses)
	return Expression{must: out}, nil
}

// Must returns the clauses, all of which must hold.
func (e Expression) Must() []Clause { return e.must }

// IsEmpty reports whether the expression has no clauses.
func (e Expression) IsEmpty() bool { return len(e.must) == 0 }

// Lookup returns the first clause on field.
func (e Expression) Lookup(field string) (Clause, bool) {
	for _, c := range e.must {
		if c.field == field {
			return c, true
		}
	}
	return Clause{}, false
}

func (e Expression) String() string {
	if e.IsEmpty() {
		return "*"
	}
	parts := make([]string, len(e.must))
	for i, c := range e.must {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}
