package schema

import (
	"github.com/procura-hq/procura/internal/resource"
)

// SkipFunc excludes a required field from the missing-fields check when its
// applicability is conditional on resource state, e.g. a running toggle that
// suppresses required-field checks once already active.
type SkipFunc func(f *SchemaField, r *resource.Resource) bool

// SkipWhenChecked skips every required field once the given checkbox field is
// currently true on the resource. An unresolvable reference skips nothing.
func SkipWhenChecked(s *Schema, ref FieldReference) SkipFunc {
	toggle, err := s.Field(ref)
	if err != nil {
		return func(*SchemaField, *resource.Resource) bool { return false }
	}
	return func(_ *SchemaField, r *resource.Resource) bool {
		v, ok := r.Value(toggle.ID)
		return ok && !v.IsNull() && v.BoolVal
	}
}

// MissingRequiredFields returns every required field that has no current,
// non-null value on the resource, excluding fields any skip predicate matches.
func MissingRequiredFields(s *Schema, r *resource.Resource, skip ...SkipFunc) []*SchemaField {
	var missing []*SchemaField
fields:
	for _, f := range s.AllFields() {
		if !f.IsRequired {
			continue
		}
		for _, sk := range skip {
			if sk(f, r) {
				continue fields
			}
		}
		v, ok := r.Value(f.ID)
		if !ok || v.IsNull() {
			missing = append(missing, f)
		}
	}
	return missing
}

// IsMissingRequiredFields reports whether any required field lacks a current
// value. Advisory: used to gate actions, not to abort them.
func IsMissingRequiredFields(s *Schema, r *resource.Resource, skip ...SkipFunc) bool {
	return len(MissingRequiredFields(s, r, skip...)) > 0
}
