package schema

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/procura-hq/procura/internal/resource"
	"github.com/procura-hq/procura/internal/resource/value"
)

var (
	// ErrFieldNotFound is returned when a field reference cannot be resolved
	// against the schema.
	ErrFieldNotFound = errors.New("field not found on schema")

	// ErrOptionNotFound is returned when an option reference cannot be
	// resolved against a field's option list.
	ErrOptionNotFound = errors.New("option not found on field")

	// ErrSectionNotFound is returned when a section id does not exist.
	ErrSectionNotFound = errors.New("section not found on schema")

	// ErrSectionNotEmpty is returned when removing a section that still
	// contains fields.
	ErrSectionNotEmpty = errors.New("section still contains fields")

	// ErrDuplicateFieldName is returned when adding a field whose name is
	// already taken on the schema. Field names must be unique because the
	// query language addresses fields by name.
	ErrDuplicateFieldName = errors.New("field name already exists on schema")

	// ErrInvalidField is returned when a field definition violates a
	// structural invariant.
	ErrInvalidField = errors.New("invalid field definition")
)

// FieldTemplate is the stable, cross-version identity of a system-originated
// field. Business logic references well-known fields through these so a tenant
// renaming or reordering its schema never redirects the logic to the wrong
// field.
type FieldTemplate string

// OptionTemplate is the stable identity of a well-known option, e.g. the
// approved status of an order.
type OptionTemplate string

// FieldReference addresses a field either by tenant-scoped id (FieldID) or by
// stable template id (FieldTemplate). Template-bound lookups have no fallback:
// they resolve against the current schema or fail.
type FieldReference interface {
	fieldRef()
}

// FieldID is a raw tenant-scoped field id used as a FieldReference.
type FieldID uuid.UUID

func (FieldID) fieldRef()       {}
func (FieldTemplate) fieldRef() {}

// OptionReference addresses an option by raw id or stable template id.
type OptionReference interface {
	optionRef()
}

// OptionID is a raw tenant-scoped option id used as an OptionReference.
type OptionID uuid.UUID

func (OptionID) optionRef()       {}
func (OptionTemplate) optionRef() {}

// Option is one selectable choice on a Select or MultiSelect field. Options
// carrying a template id represent well-known states that survive tenant
// renaming.
type Option struct {
	ID         uuid.UUID      `json:"id"`
	TemplateID OptionTemplate `json:"template_id,omitempty"`
	Name       string         `json:"name"`
}

// SchemaField is one field definition on a schema.
type SchemaField struct {
	ID             uuid.UUID      `json:"id"`
	TemplateID     FieldTemplate  `json:"template_id,omitempty"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Type           FieldType      `json:"type"`
	ResourceType   *resource.Type `json:"resource_type,omitempty"` // set iff Type == FieldResource
	Options        []Option       `json:"options,omitempty"`       // non-empty iff Type.HasOptions()
	DefaultValue   *value.Value   `json:"default_value,omitempty"`
	DefaultToToday bool           `json:"default_to_today,omitempty"` // Date fields only
	IsRequired     bool           `json:"is_required,omitempty"`
}

// Option resolves an option reference against the field's option list.
func (f *SchemaField) Option(ref OptionReference) (*Option, error) {
	switch r := ref.(type) {
	case OptionID:
		id := uuid.UUID(r)
		for i := range f.Options {
			if f.Options[i].ID == id {
				return &f.Options[i], nil
			}
		}
		return nil, fmt.Errorf("%w: field %q, option id %s", ErrOptionNotFound, f.Name, id)
	case OptionTemplate:
		for i := range f.Options {
			if f.Options[i].TemplateID == r {
				return &f.Options[i], nil
			}
		}
		return nil, fmt.Errorf("%w: field %q, option template %q", ErrOptionNotFound, f.Name, r)
	default:
		return nil, fmt.Errorf("%w: field %q, unsupported reference %T", ErrOptionNotFound, f.Name, ref)
	}
}

// Validate checks the field's structural invariants.
func (f *SchemaField) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: field %s has no name", ErrInvalidField, f.ID)
	}
	if f.Type.HasOptions() && len(f.Options) == 0 {
		return fmt.Errorf("%w: %s field %q has no options", ErrInvalidField, f.Type, f.Name)
	}
	if !f.Type.HasOptions() && len(f.Options) > 0 {
		return fmt.Errorf("%w: %s field %q must not carry options", ErrInvalidField, f.Type, f.Name)
	}
	if f.Type == FieldResource && f.ResourceType == nil {
		return fmt.Errorf("%w: resource field %q has no target type", ErrInvalidField, f.Name)
	}
	if f.Type != FieldResource && f.ResourceType != nil {
		return fmt.Errorf("%w: %s field %q must not carry a target type", ErrInvalidField, f.Type, f.Name)
	}
	if f.DefaultToToday && f.Type != FieldDate {
		return fmt.Errorf("%w: %s field %q cannot default to today", ErrInvalidField, f.Type, f.Name)
	}
	if f.DefaultValue != nil && f.DefaultValue.Kind != f.Type.Kind() {
		return fmt.Errorf("%w: %s field %q default is a %s value", ErrInvalidField, f.Type, f.Name, f.DefaultValue.Kind)
	}
	return nil
}

// Section is an ordered group of fields on a schema.
type Section struct {
	ID     uuid.UUID      `json:"id"`
	Name   string         `json:"name"`
	Fields []*SchemaField `json:"fields"`
}

// Schema is the field/section definition governing one resource type for one
// account. System schemas (IsSystem) are the immutable baselines custom
// schemas are derived from.
type Schema struct {
	ID           uuid.UUID     `json:"id"`
	AccountID    uuid.UUID     `json:"account_id,omitempty"` // zero for system schemas
	ResourceType resource.Type `json:"resource_type"`
	IsSystem     bool          `json:"is_system,omitempty"`
	Sections     []*Section    `json:"sections"`
}

// AllFields returns the flattened, deduplicated field set regardless of
// section placement, in section-then-field order.
func (s *Schema) AllFields() []*SchemaField {
	seen := make(map[uuid.UUID]bool)
	var fields []*SchemaField
	for _, sec := range s.Sections {
		for _, f := range sec.Fields {
			if seen[f.ID] {
				continue
			}
			seen[f.ID] = true
			fields = append(fields, f)
		}
	}
	return fields
}

// Field resolves a field reference. Raw ids resolve by tenant id; templates
// resolve by stable template id. There is no fallback between the two: a
// template lookup that misses fails, so business logic never silently lands on
// the wrong field after a tenant edits the schema.
func (s *Schema) Field(ref FieldReference) (*SchemaField, error) {
	switch r := ref.(type) {
	case FieldID:
		id := uuid.UUID(r)
		for _, f := range s.AllFields() {
			if f.ID == id {
				return f, nil
			}
		}
		return nil, fmt.Errorf("%w: %s schema, field id %s", ErrFieldNotFound, s.ResourceType, id)
	case FieldTemplate:
		for _, f := range s.AllFields() {
			if f.TemplateID == r {
				return f, nil
			}
		}
		return nil, fmt.Errorf("%w: %s schema, field template %q", ErrFieldNotFound, s.ResourceType, r)
	default:
		return nil, fmt.Errorf("%w: unsupported reference %T", ErrFieldNotFound, ref)
	}
}

// FieldByName resolves a field by display name. Used by the query compiler,
// whose variables are field names.
func (s *Schema) FieldByName(name string) (*SchemaField, bool) {
	for _, f := range s.AllFields() {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// FieldOption resolves a field reference and then an option reference against
// that field.
func (s *Schema) FieldOption(fieldRef FieldReference, optionRef OptionReference) (*SchemaField, *Option, error) {
	f, err := s.Field(fieldRef)
	if err != nil {
		return nil, nil, err
	}
	o, err := f.Option(optionRef)
	if err != nil {
		return nil, nil, err
	}
	return f, o, nil
}

// MustField is the fail-fast variant of Field for call sites where absence is
// a programming error, e.g. resolving hardcoded template references against
// the system's own schema.
func (s *Schema) MustField(ref FieldReference) *SchemaField {
	f, err := s.Field(ref)
	if err != nil {
		panic(err)
	}
	return f
}

// MustFieldOption is the fail-fast variant of FieldOption.
func (s *Schema) MustFieldOption(fieldRef FieldReference, optionRef OptionReference) (*SchemaField, *Option) {
	f, o, err := s.FieldOption(fieldRef, optionRef)
	if err != nil {
		panic(err)
	}
	return f, o
}

// Section returns the section with the given id.
func (s *Schema) Section(id uuid.UUID) (*Section, error) {
	for _, sec := range s.Sections {
		if sec.ID == id {
			return sec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, id)
}

// AddSection appends a new empty section.
func (s *Schema) AddSection(name string) *Section {
	sec := &Section{ID: uuid.New(), Name: name}
	s.Sections = append(s.Sections, sec)
	return sec
}

// RenameSection changes a section's display name.
func (s *Schema) RenameSection(id uuid.UUID, name string) error {
	sec, err := s.Section(id)
	if err != nil {
		return err
	}
	sec.Name = name
	return nil
}

// MoveSection repositions a section. Positions past the end clamp to the end.
func (s *Schema) MoveSection(id uuid.UUID, position int) error {
	idx := -1
	for i, sec := range s.Sections {
		if sec.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrSectionNotFound, id)
	}
	sec := s.Sections[idx]
	s.Sections = append(s.Sections[:idx], s.Sections[idx+1:]...)
	if position < 0 {
		position = 0
	}
	if position > len(s.Sections) {
		position = len(s.Sections)
	}
	s.Sections = append(s.Sections[:position], append([]*Section{sec}, s.Sections[position:]...)...)
	return nil
}

// RemoveSection deletes an empty section. Callers must relocate fields first;
// deleting fields implicitly would orphan stored values.
func (s *Schema) RemoveSection(id uuid.UUID) error {
	for i, sec := range s.Sections {
		if sec.ID == id {
			if len(sec.Fields) > 0 {
				return fmt.Errorf("%w: %s", ErrSectionNotEmpty, sec.Name)
			}
			s.Sections = append(s.Sections[:i], s.Sections[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrSectionNotFound, id)
}

// AddField validates and appends a field to the given section.
func (s *Schema) AddField(sectionID uuid.UUID, f *SchemaField) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if _, exists := s.FieldByName(f.Name); exists {
		return fmt.Errorf("%w: %q", ErrDuplicateFieldName, f.Name)
	}
	sec, err := s.Section(sectionID)
	if err != nil {
		return err
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	sec.Fields = append(sec.Fields, f)
	return nil
}

// MoveField relocates a field to a position within a (possibly different)
// section. Positions past the end clamp to the end.
func (s *Schema) MoveField(fieldID, sectionID uuid.UUID, position int) error {
	var f *SchemaField
	for _, sec := range s.Sections {
		for i, cand := range sec.Fields {
			if cand.ID == fieldID {
				f = cand
				sec.Fields = append(sec.Fields[:i], sec.Fields[i+1:]...)
				break
			}
		}
		if f != nil {
			break
		}
	}
	if f == nil {
		return fmt.Errorf("%w: field id %s", ErrFieldNotFound, fieldID)
	}
	target, err := s.Section(sectionID)
	if err != nil {
		return err
	}
	if position < 0 {
		position = 0
	}
	if position > len(target.Fields) {
		position = len(target.Fields)
	}
	target.Fields = append(target.Fields[:position], append([]*SchemaField{f}, target.Fields[position:]...)...)
	return nil
}

// RemoveField deletes a field from whichever section holds it.
func (s *Schema) RemoveField(fieldID uuid.UUID) error {
	for _, sec := range s.Sections {
		for i, f := range sec.Fields {
			if f.ID == fieldID {
				sec.Fields = append(sec.Fields[:i], sec.Fields[i+1:]...)
				return nil
			}
		}
	}
	return fmt.Errorf("%w: field id %s", ErrFieldNotFound, fieldID)
}

// Validate checks every field on the schema.
func (s *Schema) Validate() error {
	names := make(map[string]bool)
	for _, f := range s.AllFields() {
		if err := f.Validate(); err != nil {
			return err
		}
		if names[f.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateFieldName, f.Name)
		}
		names[f.Name] = true
	}
	return nil
}
