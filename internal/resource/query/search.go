package query

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/procura-hq/procura/internal/resource/schema"
	"github.com/procura-hq/procura/internal/resource/template"
)

// Search defaults. The similarity cutoff is pg_trgm's default; both are
// caller-overridable.
const (
	DefaultSearchTake          = 15
	DefaultSearchMinSimilarity = 0.3
)

// SearchMode selects between equality and trigram matching.
type SearchMode int

const (
	// SearchExact matches the term by equality.
	SearchExact SearchMode = iota
	// SearchFuzzy matches by trigram similarity, ordered best-first.
	SearchFuzzy
)

// SearchOptions tunes a name search.
type SearchOptions struct {
	Mode          SearchMode
	MinSimilarity float64 // fuzzy only; 0 means DefaultSearchMinSimilarity
	Take          int     // 0 means DefaultSearchTake
}

// CompileNameSearch builds the narrow lookup query behind autocomplete and
// de-duplication: it matches only string fields bound to the type's name and
// number templates, requires a non-empty term, and in fuzzy mode ranks by
// trigram similarity descending.
func CompileNameSearch(accountID uuid.UUID, s *schema.Schema, term string, opts SearchOptions) (*Compiled, error) {
	if accountID == uuid.Nil {
		return nil, ErrMissingAccount
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrEmptySearchTerm
	}

	fieldIDs := searchableFieldIDs(s)
	if len(fieldIDs) == 0 {
		return nil, fmt.Errorf("%w: %s schema has no name or number field", ErrUnknownField, s.ResourceType)
	}

	take := opts.Take
	if take <= 0 {
		take = DefaultSearchTake
	}
	minSim := opts.MinSimilarity
	if minSim <= 0 {
		minSim = DefaultSearchMinSimilarity
	}

	c := &compiler{schema: s, aliases: make(map[string]int)}
	base := fmt.Sprintf(
		"SELECT r.id FROM resources r"+
			" JOIN resource_fields rf ON rf.resource_id = r.id AND rf.field_id = ANY(%s::uuid[])"+
			" JOIN field_values fv ON fv.id = rf.value_id"+
			" WHERE r.account_id = %s AND r.type = %s"+
			" AND fv.is_null = FALSE AND fv.string_value <> ''",
		c.param(pq.Array(fieldIDs)),
		c.param(accountID),
		c.param(s.ResourceType.String()))

	var b strings.Builder
	b.WriteString(base)
	switch opts.Mode {
	case SearchExact:
		b.WriteString(fmt.Sprintf(" AND fv.string_value = %s", c.param(term)))
		b.WriteString(" ORDER BY r.key ASC")
	case SearchFuzzy:
		termParam := c.param(term)
		b.WriteString(fmt.Sprintf(" AND similarity(fv.string_value, %s) >= %s", termParam, c.param(minSim)))
		b.WriteString(fmt.Sprintf(" ORDER BY similarity(fv.string_value, %s) DESC, r.key ASC", termParam))
	default:
		return nil, fmt.Errorf("%w: unknown search mode %d", ErrMalformedFilter, opts.Mode)
	}
	b.WriteString(fmt.Sprintf(" LIMIT %s", c.param(take)))

	return &Compiled{SQL: b.String(), Args: c.args}, nil
}

// searchableFieldIDs resolves the allow-list of template-bound lookup fields
// for the schema's type. Only templates that resolve and are string-typed
// participate; nothing else on the schema is searchable by this entry point.
func searchableFieldIDs(s *schema.Schema) []string {
	templates := []schema.FieldTemplate{
		template.NameField(s.ResourceType),
		template.NumberField(s.ResourceType),
	}
	var ids []string
	for _, tpl := range templates {
		f, err := s.Field(tpl)
		if err != nil {
			continue
		}
		if f.Type != schema.FieldText && f.Type != schema.FieldTextarea {
			continue
		}
		ids = append(ids, f.ID.String())
	}
	return ids
}
