// Package query translates declarative filter/sort expressions, whose
// variables are schema field names, into parameterized SQL over the EAV join.
// Every referenced variable is validated against the live schema before any
// storage access; literals are always bound as parameters.
package query

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedFilter is returned when a filter's wire shape cannot be
	// parsed. Malformed input never reaches storage.
	ErrMalformedFilter = errors.New("malformed filter expression")

	// ErrUnknownField is returned when a filter or orderBy references a field
	// name absent from the schema.
	ErrUnknownField = errors.New("unknown field reference in query")

	// ErrMissingAccount is returned when a query is compiled without an
	// account scope.
	ErrMissingAccount = errors.New("query requires an account scope")

	// ErrEmptySearchTerm is returned when a name search is given a blank term.
	ErrEmptySearchTerm = errors.New("search term must not be empty")
)

// Op enumerates the closed operator set of the filter language.
type Op int

const (
	OpAnd Op = iota
	OpOr
	OpEq
	OpNe
	OpLt
	OpAnyOf
	OpNotEmpty
)

// String returns the wire name of the operator.
func (o Op) String() string {
	switch o {
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpAnyOf:
		return "isAnyOf"
	case OpNotEmpty:
		return "isNotEmpty"
	default:
		return "unknown"
	}
}

// Expr is one node of a filter expression. Boolean nodes (and/or) carry
// children; comparison nodes carry a variable, and depending on the operator a
// literal or literal list.
type Expr struct {
	Op       Op
	Children []*Expr // and, or

	Var      string        // comparison operand: a schema field name
	Literal  interface{}   // ==, !=, <
	Literals []interface{} // isAnyOf
}

// And combines expressions conjunctively.
func And(children ...*Expr) *Expr { return &Expr{Op: OpAnd, Children: children} }

// Or combines expressions disjunctively.
func Or(children ...*Expr) *Expr { return &Expr{Op: OpOr, Children: children} }

// Eq compares a field against a literal for equality.
func Eq(field string, literal interface{}) *Expr {
	return &Expr{Op: OpEq, Var: field, Literal: literal}
}

// Ne compares a field against a literal for inequality.
func Ne(field string, literal interface{}) *Expr {
	return &Expr{Op: OpNe, Var: field, Literal: literal}
}

// Lt is the ordered less-than comparison.
func Lt(field string, literal interface{}) *Expr {
	return &Expr{Op: OpLt, Var: field, Literal: literal}
}

// AnyOf is the set-membership comparison.
func AnyOf(field string, literals ...interface{}) *Expr {
	return &Expr{Op: OpAnyOf, Var: field, Literals: literals}
}

// NotEmpty matches resources with a present, non-null value for the field.
func NotEmpty(field string) *Expr { return &Expr{Op: OpNotEmpty, Var: field} }

// Vars returns every field name the expression references, in first-use order
// without duplicates.
func (e *Expr) Vars() []string {
	var out []string
	seen := make(map[string]bool)
	e.collectVars(seen, &out)
	return out
}

func (e *Expr) collectVars(seen map[string]bool, out *[]string) {
	if e == nil {
		return
	}
	switch e.Op {
	case OpAnd, OpOr:
		for _, c := range e.Children {
			c.collectVars(seen, out)
		}
	case OpEq, OpNe, OpLt, OpAnyOf, OpNotEmpty:
		if !seen[e.Var] {
			seen[e.Var] = true
			*out = append(*out, e.Var)
		}
	}
}

// Direction orders an orderBy entry.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// String returns the wire name of the direction.
func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// UnmarshalJSON parses "asc"/"desc".
func (d *Direction) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: direction: %v", ErrMalformedFilter, err)
	}
	switch s {
	case "asc":
		*d = Ascending
	case "desc":
		*d = Descending
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrMalformedFilter, s)
	}
	return nil
}

// MarshalJSON emits "asc"/"desc".
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// OrderBy is one sort key: a schema field name and a direction.
type OrderBy struct {
	Var       string    `json:"var"`
	Direction Direction `json:"direction"`
}

// variable is the wire shape of a field reference operand.
type variable struct {
	Var string `json:"var"`
}

// UnmarshalJSON parses the declarative wire format:
//
//	{"and": [expr, ...]}
//	{"or": [expr, ...]}
//	{"==": [{"var": "Name"}, "ACME"]}
//	{"!=": [{"var": "Status"}, "..."]}
//	{"<":  [{"var": "Total"}, 100]}
//	{"isAnyOf": [{"var": "Status"}, ["...", "..."]]}
//	{"isNotEmpty": {"var": "Vendor"}}
//
// Any other operator or shape is rejected; an unrecognized operator is never
// inferred from the value shape.
func (e *Expr) UnmarshalJSON(b []byte) error {
	var node map[string]json.RawMessage
	if err := json.Unmarshal(b, &node); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFilter, err)
	}
	if len(node) != 1 {
		return fmt.Errorf("%w: expected exactly one operator, got %d", ErrMalformedFilter, len(node))
	}
	for op, raw := range node {
		switch op {
		case "and", "or":
			var children []*Expr
			if err := json.Unmarshal(raw, &children); err != nil {
				return fmt.Errorf("%w: %s operands: %v", ErrMalformedFilter, op, err)
			}
			if len(children) == 0 {
				return fmt.Errorf("%w: %s requires at least one operand", ErrMalformedFilter, op)
			}
			if op == "and" {
				e.Op = OpAnd
			} else {
				e.Op = OpOr
			}
			e.Children = children
		case "==", "!=", "<":
			v, lit, err := parseComparison(op, raw)
			if err != nil {
				return err
			}
			switch op {
			case "==":
				e.Op = OpEq
			case "!=":
				e.Op = OpNe
			case "<":
				e.Op = OpLt
			}
			e.Var = v
			e.Literal = lit
		case "isAnyOf":
			var pair []json.RawMessage
			if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
				return fmt.Errorf("%w: isAnyOf expects [var, literals]", ErrMalformedFilter)
			}
			v, err := parseVariable(pair[0])
			if err != nil {
				return err
			}
			var lits []interface{}
			if err := json.Unmarshal(pair[1], &lits); err != nil {
				return fmt.Errorf("%w: isAnyOf literals: %v", ErrMalformedFilter, err)
			}
			e.Op = OpAnyOf
			e.Var = v
			e.Literals = lits
		case "isNotEmpty":
			v, err := parseVariable(raw)
			if err != nil {
				return err
			}
			e.Op = OpNotEmpty
			e.Var = v
		default:
			return fmt.Errorf("%w: unknown operator %q", ErrMalformedFilter, op)
		}
	}
	return nil
}

func parseComparison(op string, raw json.RawMessage) (string, interface{}, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
		return "", nil, fmt.Errorf("%w: %s expects [var, literal]", ErrMalformedFilter, op)
	}
	v, err := parseVariable(pair[0])
	if err != nil {
		return "", nil, err
	}
	var lit interface{}
	if err := json.Unmarshal(pair[1], &lit); err != nil {
		return "", nil, fmt.Errorf("%w: %s literal: %v", ErrMalformedFilter, op, err)
	}
	return v, lit, nil
}

func parseVariable(raw json.RawMessage) (string, error) {
	var v variable
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: operand must be a {\"var\": ...} reference: %v", ErrMalformedFilter, err)
	}
	if v.Var == "" {
		return "", fmt.Errorf("%w: empty var reference", ErrMalformedFilter)
	}
	return v.Var, nil
}

// ParseFilter decodes a filter expression from its wire form.
func ParseFilter(b []byte) (*Expr, error) {
	var e Expr
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
