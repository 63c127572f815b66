package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/procura-hq/procura/internal/resource/schema"
	"github.com/procura-hq/procura/internal/resource/value"
)

// Compiled is a ready-to-execute parameterized statement selecting matching
// resource ids.
type Compiled struct {
	SQL  string
	Args []interface{}
}

// Options tunes result paging.
type Options struct {
	Limit  int
	Offset int
}

// InvalidVars returns every variable referenced by the filter or orderBy list
// that does not resolve to a field name on the schema, in first-use order.
// A non-empty result means the whole query must be rejected before touching
// storage.
func InvalidVars(s *schema.Schema, filter *Expr, order []OrderBy) []string {
	var vars []string
	if filter != nil {
		vars = filter.Vars()
	}
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		seen[v] = true
	}
	for _, o := range order {
		if !seen[o.Var] {
			seen[o.Var] = true
			vars = append(vars, o.Var)
		}
	}

	var invalid []string
	for _, v := range vars {
		if _, ok := s.FieldByName(v); !ok {
			invalid = append(invalid, v)
		}
	}
	return invalid
}

// compiler accumulates SQL fragments and bound parameters. All literal
// operands go through param(); nothing user-supplied is ever interpolated
// into the statement text.
type compiler struct {
	schema  *schema.Schema
	args    []interface{}
	aliases map[string]int // field name -> join index
	joins   []string
}

func (c *compiler) param(v interface{}) string {
	c.args = append(c.args, v)
	return fmt.Sprintf("$%d", len(c.args))
}

// join returns the field_values alias for a field, adding the EAV join on
// first use. The field id is bound as a parameter.
func (c *compiler) join(f *schema.SchemaField) string {
	if idx, ok := c.aliases[f.Name]; ok {
		return fmt.Sprintf("fv%d", idx)
	}
	idx := len(c.aliases)
	c.aliases[f.Name] = idx
	fieldParam := c.param(f.ID)
	c.joins = append(c.joins,
		fmt.Sprintf("LEFT JOIN resource_fields rf%d ON rf%d.resource_id = r.id AND rf%d.field_id = %s", idx, idx, idx, fieldParam),
		fmt.Sprintf("LEFT JOIN field_values fv%d ON fv%d.id = rf%d.value_id", idx, idx, idx))
	return fmt.Sprintf("fv%d", idx)
}

// Compile validates the filter and orderBy against the schema and builds the
// parameterized statement. Unknown variables reject the whole query; the
// account scope is mandatory.
func Compile(accountID uuid.UUID, s *schema.Schema, filter *Expr, order []OrderBy, opts Options) (*Compiled, error) {
	if accountID == uuid.Nil {
		return nil, ErrMissingAccount
	}
	if invalid := InvalidVars(s, filter, order); len(invalid) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, strings.Join(invalid, ", "))
	}

	c := &compiler{schema: s, aliases: make(map[string]int)}

	where := []string{
		fmt.Sprintf("r.account_id = %s", c.param(accountID)),
		fmt.Sprintf("r.type = %s", c.param(s.ResourceType.String())),
	}
	if filter != nil {
		pred, err := c.compileExpr(filter)
		if err != nil {
			return nil, err
		}
		where = append(where, pred)
	}

	orderClauses := make([]string, 0, len(order)+1)
	for _, o := range order {
		f, _ := s.FieldByName(o.Var)
		alias := c.join(f)
		dir := "ASC"
		if o.Direction == Descending {
			dir = "DESC"
		}
		orderClauses = append(orderClauses,
			fmt.Sprintf("%s.%s %s NULLS LAST", alias, value.Column(f.Type.Kind()), dir))
	}
	orderClauses = append(orderClauses, "r.key ASC")

	// resource_fields holds one current-value row per (resource, field), so
	// each join contributes at most one row and no DISTINCT is needed.
	var b strings.Builder
	b.WriteString("SELECT r.id FROM resources r")
	for _, j := range c.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(where, " AND "))
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(orderClauses, ", "))
	if opts.Limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %s", c.param(opts.Limit)))
	}
	if opts.Offset > 0 {
		b.WriteString(fmt.Sprintf(" OFFSET %s", c.param(opts.Offset)))
	}

	return &Compiled{SQL: b.String(), Args: c.args}, nil
}

// compileExpr emits the predicate for one node. Every operator is a distinct,
// explicit code path; no operator is inferred from the literal's shape.
func (c *compiler) compileExpr(e *Expr) (string, error) {
	switch e.Op {
	case OpAnd, OpOr:
		sep := " AND "
		if e.Op == OpOr {
			sep = " OR "
		}
		parts := make([]string, 0, len(e.Children))
		for _, child := range e.Children {
			p, err := c.compileExpr(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		if len(parts) == 0 {
			return "", fmt.Errorf("%w: %s with no operands", ErrMalformedFilter, e.Op)
		}
		return "(" + strings.Join(parts, sep) + ")", nil
	case OpEq:
		return c.compileEq(e)
	case OpNe:
		return c.compileNe(e)
	case OpLt:
		return c.compileLt(e)
	case OpAnyOf:
		return c.compileAnyOf(e)
	case OpNotEmpty:
		return c.compileNotEmpty(e)
	default:
		return "", fmt.Errorf("%w: unknown operator %d", ErrMalformedFilter, e.Op)
	}
}

func (c *compiler) field(name string) *schema.SchemaField {
	f, _ := c.schema.FieldByName(name)
	return f
}

func (c *compiler) compileEq(e *Expr) (string, error) {
	f := c.field(e.Var)
	arg, err := literalArg(f, e.Literal)
	if err != nil {
		return "", err
	}
	alias := c.join(f)
	return fmt.Sprintf("%s.%s = %s", alias, value.Column(f.Type.Kind()), c.param(arg)), nil
}

func (c *compiler) compileNe(e *Expr) (string, error) {
	f := c.field(e.Var)
	arg, err := literalArg(f, e.Literal)
	if err != nil {
		return "", err
	}
	alias := c.join(f)
	// IS DISTINCT FROM keeps resources whose value is missing or null: "not
	// approved" includes resources with no status at all.
	return fmt.Sprintf("%s.%s IS DISTINCT FROM %s", alias, value.Column(f.Type.Kind()), c.param(arg)), nil
}

func (c *compiler) compileLt(e *Expr) (string, error) {
	f := c.field(e.Var)
	switch f.Type.Kind() {
	case value.KindNumber, value.KindDate, value.KindString:
	default:
		return "", fmt.Errorf("%w: field %q (%s) does not support <", ErrMalformedFilter, f.Name, f.Type)
	}
	arg, err := literalArg(f, e.Literal)
	if err != nil {
		return "", err
	}
	alias := c.join(f)
	return fmt.Sprintf("%s.%s < %s", alias, value.Column(f.Type.Kind()), c.param(arg)), nil
}

func (c *compiler) compileAnyOf(e *Expr) (string, error) {
	f := c.field(e.Var)
	if len(e.Literals) == 0 {
		return "", fmt.Errorf("%w: isAnyOf on %q requires at least one literal", ErrMalformedFilter, f.Name)
	}
	alias := c.join(f)

	if f.Type.Kind() == value.KindOptionSet {
		ids := make([]string, 0, len(e.Literals))
		for _, lit := range e.Literals {
			arg, err := literalArg(f, lit)
			if err != nil {
				return "", err
			}
			ids = append(ids, arg.(uuid.UUID).String())
		}
		// Array overlap: the stored set contains any of the candidates.
		return fmt.Sprintf("%s.option_ids && %s::uuid[]", alias, c.param(pq.Array(ids))), nil
	}

	args := make([]interface{}, 0, len(e.Literals))
	for _, lit := range e.Literals {
		arg, err := literalArg(f, lit)
		if err != nil {
			return "", err
		}
		args = append(args, arg)
	}
	return fmt.Sprintf("%s.%s = ANY(%s)", alias, value.Column(f.Type.Kind()), c.param(pq.Array(args))), nil
}

func (c *compiler) compileNotEmpty(e *Expr) (string, error) {
	f := c.field(e.Var)
	alias := c.join(f)
	present := fmt.Sprintf("%s.id IS NOT NULL AND %s.is_null = FALSE", alias, alias)
	switch f.Type.Kind() {
	case value.KindString:
		return fmt.Sprintf("(%s AND %s.string_value <> '')", present, alias), nil
	case value.KindOptionSet:
		return fmt.Sprintf("(%s AND cardinality(%s.option_ids) > 0)", present, alias), nil
	case value.KindFileSet:
		return fmt.Sprintf("(%s AND cardinality(%s.file_ids) > 0)", present, alias), nil
	default:
		return fmt.Sprintf("(%s AND %s.%s IS NOT NULL)", present, alias, value.Column(f.Type.Kind())), nil
	}
}

// literalArg coerces a wire literal to the bound-parameter type for the
// field's declared kind. Option literals may be option ids or option names;
// names resolve against the field's current option list.
func literalArg(f *schema.SchemaField, lit interface{}) (interface{}, error) {
	k := f.Type.Kind()
	switch k {
	case value.KindString:
		s, ok := lit.(string)
		if !ok {
			return nil, literalErr(f, lit, "string")
		}
		return s, nil
	case value.KindNumber:
		switch n := lit.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		default:
			return nil, literalErr(f, lit, "number")
		}
	case value.KindBoolean:
		b, ok := lit.(bool)
		if !ok {
			return nil, literalErr(f, lit, "boolean")
		}
		return b, nil
	case value.KindDate:
		s, ok := lit.(string)
		if !ok {
			return nil, literalErr(f, lit, "YYYY-MM-DD date")
		}
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, literalErr(f, lit, "YYYY-MM-DD date")
		}
		return t, nil
	case value.KindOption, value.KindOptionSet:
		s, ok := lit.(string)
		if !ok {
			return nil, literalErr(f, lit, "option id or name")
		}
		if id, err := uuid.Parse(s); err == nil {
			return id, nil
		}
		for _, o := range f.Options {
			if o.Name == s {
				return o.ID, nil
			}
		}
		return nil, fmt.Errorf("%w: %q is not an option of field %q", ErrMalformedFilter, s, f.Name)
	case value.KindUser, value.KindResource, value.KindFile, value.KindFileSet:
		s, ok := lit.(string)
		if !ok {
			return nil, literalErr(f, lit, "uuid")
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, literalErr(f, lit, "uuid")
		}
		return id, nil
	case value.KindAddress, value.KindContact:
		return nil, fmt.Errorf("%w: field %q (%s) is not comparable", ErrMalformedFilter, f.Name, f.Type)
	default:
		return nil, fmt.Errorf("%w: field %q has unknown kind", ErrMalformedFilter, f.Name)
	}
}

func literalErr(f *schema.SchemaField, lit interface{}, want string) error {
	return fmt.Errorf("%w: field %q expects a %s literal, got %T", ErrMalformedFilter, f.Name, want, lit)
}
