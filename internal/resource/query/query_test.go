package query

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procura-hq/procura/internal/resource"
	"github.com/procura-hq/procura/internal/resource/schema"
	"github.com/procura-hq/procura/internal/resource/template"
)

var (
	approvedID = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	draftID    = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
)

func newQuerySchema(t *testing.T) *schema.Schema {
	t.Helper()
	s := &schema.Schema{ID: uuid.New(), AccountID: uuid.New(), ResourceType: resource.TypeOrder}
	sec := s.AddSection("General")
	rt := resource.TypeVendor
	fields := []*schema.SchemaField{
		{Name: "Name", Type: schema.FieldText},
		{Name: "Total", Type: schema.FieldMoney},
		{Name: "Active", Type: schema.FieldCheckbox},
		{Name: "Due", Type: schema.FieldDate},
		{Name: "Vendor", Type: schema.FieldResource, ResourceType: &rt},
		{Name: "Status", Type: schema.FieldSelect, Options: []schema.Option{
			{ID: draftID, Name: "Draft"},
			{ID: approvedID, Name: "Approved"},
		}},
		{Name: "Tags", Type: schema.FieldMultiSelect, Options: []schema.Option{
			{ID: uuid.New(), Name: "Rush"},
			{ID: uuid.New(), Name: "Backorder"},
		}},
	}
	for _, f := range fields {
		require.NoError(t, s.AddField(sec.ID, f))
	}
	return s
}

func TestParseFilterWireFormat(t *testing.T) {
	raw := []byte(`{"and": [
		{"==": [{"var": "Name"}, "ACME"]},
		{"or": [
			{"<": [{"var": "Total"}, 100]},
			{"isAnyOf": [{"var": "Status"}, ["Approved", "Draft"]]}
		]},
		{"isNotEmpty": {"var": "Vendor"}}
	]}`)
	e, err := ParseFilter(raw)
	require.NoError(t, err)
	require.Equal(t, OpAnd, e.Op)
	require.Len(t, e.Children, 3)
	assert.Equal(t, OpEq, e.Children[0].Op)
	assert.Equal(t, "Name", e.Children[0].Var)
	assert.Equal(t, "ACME", e.Children[0].Literal)
	assert.Equal(t, OpOr, e.Children[1].Op)
	assert.Equal(t, OpNotEmpty, e.Children[2].Op)
	assert.ElementsMatch(t, []string{"Name", "Total", "Status", "Vendor"}, e.Vars())
}

func TestParseFilterRejectsMalformedShapes(t *testing.T) {
	cases := []string{
		`{"==": [{"var": "Name"}, "a"], "!=": [{"var": "Name"}, "b"]}`, // two operators
		`{"like": [{"var": "Name"}, "a"]}`,                             // unknown operator
		`{"==": [{"var": "Name"}]}`,                                    // missing literal
		`{"==": ["Name", "a"]}`,                                        // operand not a var ref
		`{"and": []}`,                                                  // empty conjunction
		`{"isAnyOf": [{"var": "Status"}, "Approved"]}`,                 // literals not a list
		`{"isNotEmpty": "Vendor"}`,                                     // operand not a var ref
	}
	for _, raw := range cases {
		_, err := ParseFilter([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedFilter, raw)
	}
}

func TestInvalidVars(t *testing.T) {
	s := newQuerySchema(t)
	filter := And(Eq("Name", "ACME"), Eq("Warehouse", "W1"))
	order := []OrderBy{{Var: "Zone"}, {Var: "Total"}}
	assert.Equal(t, []string{"Warehouse", "Zone"}, InvalidVars(s, filter, order))
	assert.Empty(t, InvalidVars(s, Eq("Name", "x"), nil))
}

func TestCompileRejectsUnknownFieldForEveryOperator(t *testing.T) {
	s := newQuerySchema(t)
	account := uuid.New()
	exprs := []*Expr{
		Eq("Ghost", "x"),
		Ne("Ghost", "x"),
		Lt("Ghost", 1),
		AnyOf("Ghost", "x"),
		NotEmpty("Ghost"),
		And(Eq("Name", "ok"), Or(NotEmpty("Ghost"))),
	}
	for _, e := range exprs {
		_, err := Compile(account, s, e, nil, Options{})
		assert.ErrorIs(t, err, ErrUnknownField, "op %s", e.Op)
	}

	_, err := Compile(account, s, nil, []OrderBy{{Var: "Ghost"}}, Options{})
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestCompileRequiresAccountScope(t *testing.T) {
	s := newQuerySchema(t)
	_, err := Compile(uuid.Nil, s, Eq("Name", "x"), nil, Options{})
	assert.ErrorIs(t, err, ErrMissingAccount)
}

func TestCompileParameterizesEveryLiteral(t *testing.T) {
	s := newQuerySchema(t)
	filter := And(
		Eq("Name", "ACME'; DROP TABLE resources;--"),
		Lt("Total", 250.0),
		Eq("Active", true),
		Lt("Due", "2024-12-31"),
	)
	compiled, err := Compile(uuid.New(), s, filter, []OrderBy{{Var: "Total", Direction: Descending}}, Options{Limit: 10})
	require.NoError(t, err)

	assert.NotContains(t, compiled.SQL, "ACME", "literals must be bound, not interpolated")
	assert.NotContains(t, compiled.SQL, "2024-12-31")
	assert.Contains(t, compiled.SQL, "r.account_id = $1")
	assert.Contains(t, compiled.SQL, "r.type = $2")
	assert.Contains(t, compiled.SQL, "number_value DESC NULLS LAST")
	assert.Contains(t, compiled.SQL, "r.key ASC")
	assert.Contains(t, compiled.Args, "ACME'; DROP TABLE resources;--")
	assert.Contains(t, compiled.Args, 250.0)
}

func TestCompileOptionLiteralsAcceptIDOrName(t *testing.T) {
	s := newQuerySchema(t)

	byName, err := Compile(uuid.New(), s, Eq("Status", "Approved"), nil, Options{})
	require.NoError(t, err)
	assert.Contains(t, byName.Args, approvedID)

	byID, err := Compile(uuid.New(), s, Eq("Status", approvedID.String()), nil, Options{})
	require.NoError(t, err)
	assert.Contains(t, byID.Args, approvedID)

	_, err = Compile(uuid.New(), s, Eq("Status", "Nonexistent"), nil, Options{})
	assert.ErrorIs(t, err, ErrMalformedFilter)
}

func TestCompileOperatorShapes(t *testing.T) {
	s := newQuerySchema(t)
	account := uuid.New()

	ne, err := Compile(account, s, Ne("Status", "Draft"), nil, Options{})
	require.NoError(t, err)
	assert.Contains(t, ne.SQL, "IS DISTINCT FROM")

	anyOf, err := Compile(account, s, AnyOf("Status", "Draft", "Approved"), nil, Options{})
	require.NoError(t, err)
	assert.Contains(t, anyOf.SQL, "= ANY(")

	overlap, err := Compile(account, s, AnyOf("Tags", "Rush"), nil, Options{})
	require.NoError(t, err)
	assert.Contains(t, overlap.SQL, "&&")

	notEmpty, err := Compile(account, s, NotEmpty("Name"), nil, Options{})
	require.NoError(t, err)
	assert.Contains(t, notEmpty.SQL, "is_null = FALSE")
	assert.Contains(t, notEmpty.SQL, "string_value <> ''")

	_, err = Compile(account, s, Lt("Active", true), nil, Options{})
	assert.ErrorIs(t, err, ErrMalformedFilter, "checkbox does not support <")
}

func TestCompileLiteralTypeMismatch(t *testing.T) {
	s := newQuerySchema(t)
	cases := []*Expr{
		Eq("Name", 12),
		Eq("Total", "abc"),
		Eq("Active", "yes"),
		Lt("Due", "31/12/2024"),
		Eq("Vendor", "not-a-uuid"),
	}
	for _, e := range cases {
		_, err := Compile(uuid.New(), s, e, nil, Options{})
		assert.ErrorIs(t, err, ErrMalformedFilter, "field %s", e.Var)
	}
}

func TestCompileJoinsEachFieldOnce(t *testing.T) {
	s := newQuerySchema(t)
	filter := And(NotEmpty("Name"), Ne("Name", "x"))
	compiled, err := Compile(uuid.New(), s, filter, []OrderBy{{Var: "Name"}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(compiled.SQL, "LEFT JOIN resource_fields"))
}

func TestCompileNameSearch(t *testing.T) {
	s := template.SystemSchema(resource.TypeVendor)
	s.AccountID = uuid.New()
	account := uuid.New()

	exact, err := CompileNameSearch(account, s, "ACME Corp", SearchOptions{Mode: SearchExact})
	require.NoError(t, err)
	assert.Contains(t, exact.SQL, "fv.string_value = $")
	assert.NotContains(t, exact.SQL, "similarity")
	assert.Contains(t, exact.Args, "ACME Corp")
	assert.Contains(t, exact.Args, DefaultSearchTake)

	fuzzy, err := CompileNameSearch(account, s, "acm", SearchOptions{Mode: SearchFuzzy, Take: 5})
	require.NoError(t, err)
	assert.Contains(t, fuzzy.SQL, "similarity(fv.string_value, $4) >= $5")
	assert.Contains(t, fuzzy.SQL, "ORDER BY similarity(fv.string_value, $4) DESC")
	assert.Contains(t, fuzzy.Args, 5)
	assert.Contains(t, fuzzy.Args, DefaultSearchMinSimilarity)
}

func TestCompileNameSearchValidation(t *testing.T) {
	s := template.SystemSchema(resource.TypeVendor)

	_, err := CompileNameSearch(uuid.Nil, s, "x", SearchOptions{})
	assert.ErrorIs(t, err, ErrMissingAccount)

	_, err = CompileNameSearch(uuid.New(), s, "   ", SearchOptions{})
	assert.ErrorIs(t, err, ErrEmptySearchTerm)

	bare := &schema.Schema{ID: uuid.New(), ResourceType: resource.TypeVendor}
	bare.AddSection("General")
	_, err = CompileNameSearch(uuid.New(), bare, "x", SearchOptions{})
	assert.ErrorIs(t, err, ErrUnknownField)
}
