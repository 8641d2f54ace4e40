// Package gate implements the boolean DSL that guards phase advancement:
// a tokenizer, a recursive-descent parser, and a short-circuiting
// evaluator over pluggable check providers.
package gate

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a parsed gate expression node.
type Expr interface {
	// Source renders the node back to canonical expression text.
	Source() string
}

// AndExpr is a left-associative conjunction.
type AndExpr struct {
	Left, Right Expr
}

func (e *AndExpr) Source() string {
	return e.Left.Source() + " AND " + e.Right.Source()
}

// OrExpr is a left-associative disjunction.
type OrExpr struct {
	Left, Right Expr
}

func (e *OrExpr) Source() string {
	return e.Left.Source() + " OR " + e.Right.Source()
}

// NotExpr inverts its operand.
type NotExpr struct {
	Expr Expr
}

func (e *NotExpr) Source() string {
	return "NOT " + e.Expr.Source()
}

// CheckExpr is one named check atom, optionally with arguments.
type CheckExpr struct {
	Name string // lowercased
	Args []string
}

func (e *CheckExpr) Source() string {
	if len(e.Args) == 0 {
		return e.Name
	}
	return e.Name + "(" + strings.Join(e.Args, ", ") + ")"
}

// ThresholdExpr is the bracketed comparison form, e.g.
// evidence[coverage] >= 80.
type ThresholdExpr struct {
	Subject string // lowercased
	Field   string // lowercased
	Op      string // >= > <= < == !=
	Value   float64
}

func (e *ThresholdExpr) Source() string {
	return fmt.Sprintf("%s[%s] %s %s", e.Subject, e.Field, e.Op, formatNumber(e.Value))
}

// Compare applies the threshold operator to an observed value.
func (e *ThresholdExpr) Compare(observed float64) bool {
	switch e.Op {
	case ">=":
		return observed >= e.Value
	case ">":
		return observed > e.Value
	case "<=":
		return observed <= e.Value
	case "<":
		return observed < e.Value
	case "==":
		return observed == e.Value
	case "!=":
		return observed != e.Value
	}
	return false
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
