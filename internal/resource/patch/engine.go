// Package patch provides the staging object through which all resource
// mutations flow: callers read effective values (staged overlaying current),
// overlay typed changes, and produce a minimal patch set to commit atomically.
package patch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/procura-hq/procura/internal/resource"
	"github.com/procura-hq/procura/internal/resource/schema"
	"github.com/procura-hq/procura/internal/resource/value"
)

var (
	// ErrKindMismatch is returned when a staged value's variant does not match
	// the field's declared type.
	ErrKindMismatch = errors.New("value kind does not match field type")

	// ErrNoResource is returned when an engine without a bound resource or
	// account scope is asked to build a patch set.
	ErrNoResource = errors.New("patch engine is not bound to a resource or account")
)

// Committer applies a staged patch set as one atomic operation. The resource
// store satisfies this.
type Committer interface {
	Commit(ctx context.Context, set *resource.PatchSet) error
}

// Engine stages changes against a schema and an optional existing resource
// snapshot. At most one staged patch exists per field: a later set for the
// same field overwrites the earlier one. Getters fall through to the bound
// resource's current value, giving callers a uniform effective-value view.
//
// Engines are request-scoped and not safe for concurrent use.
type Engine struct {
	schema *schema.Schema
	base   *resource.Resource // nil when creating

	accountID  uuid.UUID
	resourceID uuid.UUID
	templateID string

	staged       map[uuid.UUID]resource.Patch
	stagedCosts  map[uuid.UUID]resource.Cost
	removedCosts map[uuid.UUID]bool

	now func() time.Time
}

// New creates an engine bound to an existing resource snapshot.
func New(s *schema.Schema, base *resource.Resource) *Engine {
	return &Engine{
		schema:       s,
		base:         base,
		accountID:    base.AccountID,
		resourceID:   base.ID,
		staged:       make(map[uuid.UUID]resource.Patch),
		stagedCosts:  make(map[uuid.UUID]resource.Cost),
		removedCosts: make(map[uuid.UUID]bool),
		now:          time.Now,
	}
}

// NewForCreate creates an engine staging a brand-new resource of the schema's
// type. Resources are never constructible without a schema. Field defaults
// (declared default values, date fields defaulting to today) are staged up
// front; later set* calls overwrite them.
func NewForCreate(s *schema.Schema, accountID uuid.UUID) *Engine {
	e := &Engine{
		schema:       s,
		accountID:    accountID,
		resourceID:   uuid.New(),
		staged:       make(map[uuid.UUID]resource.Patch),
		stagedCosts:  make(map[uuid.UUID]resource.Cost),
		removedCosts: make(map[uuid.UUID]bool),
		now:          time.Now,
	}
	for _, f := range s.AllFields() {
		switch {
		case f.DefaultValue != nil:
			e.staged[f.ID] = resource.Patch{FieldID: f.ID, CreatedAt: e.now(), Value: *f.DefaultValue}
		case f.DefaultToToday:
			e.staged[f.ID] = resource.Patch{FieldID: f.ID, CreatedAt: e.now(), Value: value.Date(e.now())}
		}
	}
	return e
}

// ResourceID returns the id the committed resource will have.
func (e *Engine) ResourceID() uuid.UUID { return e.resourceID }

// SetPatch stages a value for the referenced field after checking the value's
// variant against the field's declared type. Staging twice for the same field
// overwrites; the commit carries exactly one patch per field.
func (e *Engine) SetPatch(ref schema.FieldReference, v value.Value) error {
	f, err := e.schema.Field(ref)
	if err != nil {
		return err
	}
	if v.Kind != f.Type.Kind() {
		return fmt.Errorf("%w: field %q (%s) cannot hold a %s value",
			ErrKindMismatch, f.Name, f.Type, v.Kind)
	}
	e.staged[f.ID] = resource.Patch{FieldID: f.ID, CreatedAt: e.now(), Value: v}
	return nil
}

// Clear stages an explicit null for the field, distinct from never having set
// it.
func (e *Engine) Clear(ref schema.FieldReference) error {
	f, err := e.schema.Field(ref)
	if err != nil {
		return err
	}
	e.staged[f.ID] = resource.Patch{FieldID: f.ID, CreatedAt: e.now(), Value: value.Null(f.Type.Kind())}
	return nil
}

// SetString stages a string value.
func (e *Engine) SetString(ref schema.FieldReference, s string) error {
	return e.SetPatch(ref, value.String(s))
}

// SetNumber stages a number value.
func (e *Engine) SetNumber(ref schema.FieldReference, n float64) error {
	return e.SetPatch(ref, value.Number(n))
}

// SetBoolean stages a boolean value.
func (e *Engine) SetBoolean(ref schema.FieldReference, b bool) error {
	return e.SetPatch(ref, value.Boolean(b))
}

// SetDate stages a date value.
func (e *Engine) SetDate(ref schema.FieldReference, t time.Time) error {
	return e.SetPatch(ref, value.Date(t))
}

// SetOption resolves the option reference against the field's current option
// list and stages its id. Template references resolve against the live,
// possibly customized schema, so the staged id is always the tenant's.
func (e *Engine) SetOption(fieldRef schema.FieldReference, optionRef schema.OptionReference) error {
	f, o, err := e.schema.FieldOption(fieldRef, optionRef)
	if err != nil {
		return err
	}
	if f.Type.Kind() != value.KindOption {
		return fmt.Errorf("%w: field %q (%s) cannot hold an option value", ErrKindMismatch, f.Name, f.Type)
	}
	e.staged[f.ID] = resource.Patch{FieldID: f.ID, CreatedAt: e.now(), Value: value.Option(o.ID)}
	return nil
}

// SetResourceID stages a resource reference.
func (e *Engine) SetResourceID(ref schema.FieldReference, id uuid.UUID) error {
	return e.SetPatch(ref, value.Resource(id))
}

// SetUserID stages a user reference.
func (e *Engine) SetUserID(ref schema.FieldReference, id uuid.UUID) error {
	return e.SetPatch(ref, value.User(id))
}

// SetFileID stages a file value.
func (e *Engine) SetFileID(ref schema.FieldReference, id uuid.UUID) error {
	return e.SetPatch(ref, value.File(id))
}

// SetTemplateID stamps the resource itself with a system template id, e.g. a
// bootstrap vendor.
func (e *Engine) SetTemplateID(templateID string) { e.templateID = templateID }

// Get returns the effective value for the field: the staged patch if present,
// otherwise the bound resource's current value.
func (e *Engine) Get(ref schema.FieldReference) (value.Value, bool, error) {
	f, err := e.schema.Field(ref)
	if err != nil {
		return value.Value{}, false, err
	}
	if p, ok := e.staged[f.ID]; ok {
		return p.Value, true, nil
	}
	if e.base != nil {
		if v, ok := e.base.Value(f.ID); ok {
			return v, true, nil
		}
	}
	return value.Value{}, false, nil
}

// GetString returns the effective string value, or "" when unset or null.
func (e *Engine) GetString(ref schema.FieldReference) (string, error) {
	v, ok, err := e.Get(ref)
	if err != nil || !ok || v.IsNull() {
		return "", err
	}
	return v.StringVal, nil
}

// GetNumber returns the effective number value, or 0 when unset or null.
func (e *Engine) GetNumber(ref schema.FieldReference) (float64, error) {
	v, ok, err := e.Get(ref)
	if err != nil || !ok || v.IsNull() {
		return 0, err
	}
	return v.NumberVal, nil
}

// GetBoolean returns the effective boolean value, or false when unset or null.
func (e *Engine) GetBoolean(ref schema.FieldReference) (bool, error) {
	v, ok, err := e.Get(ref)
	if err != nil || !ok || v.IsNull() {
		return false, err
	}
	return v.BoolVal, nil
}

// GetOptionID returns the effective option id and whether one is set.
func (e *Engine) GetOptionID(ref schema.FieldReference) (uuid.UUID, bool, error) {
	v, ok, err := e.Get(ref)
	if err != nil || !ok || v.IsNull() {
		return uuid.Nil, false, err
	}
	return v.OptionID, true, nil
}

// HasPatch reports whether a patch is staged for the field.
func (e *Engine) HasPatch(ref schema.FieldReference) bool {
	f, err := e.schema.Field(ref)
	if err != nil {
		return false
	}
	_, ok := e.staged[f.ID]
	return ok
}

// HasAnyPatch reports whether anything at all is staged.
func (e *Engine) HasAnyPatch() bool {
	return len(e.staged) > 0 || len(e.stagedCosts) > 0 || len(e.removedCosts) > 0 || e.templateID != ""
}

// HasOption reports whether the field's effective value is the referenced
// option, staged or current. Status-transition guards use this without
// committing.
func (e *Engine) HasOption(fieldRef schema.FieldReference, optionRef schema.OptionReference) (bool, error) {
	_, o, err := e.schema.FieldOption(fieldRef, optionRef)
	if err != nil {
		return false, err
	}
	id, ok, err := e.GetOptionID(fieldRef)
	if err != nil || !ok {
		return false, err
	}
	return id == o.ID, nil
}

// SetCost stages a cost upsert. Staging the same cost id twice overwrites.
func (e *Engine) SetCost(c resource.Cost) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	delete(e.removedCosts, c.ID)
	e.stagedCosts[c.ID] = c
}

// RemoveCost stages a cost deletion.
func (e *Engine) RemoveCost(id uuid.UUID) {
	delete(e.stagedCosts, id)
	e.removedCosts[id] = true
}

// Costs returns the effective cost list: the bound resource's costs with
// staged upserts overlaid and staged removals dropped.
func (e *Engine) Costs() []resource.Cost {
	var out []resource.Cost
	seen := make(map[uuid.UUID]bool)
	if e.base != nil {
		for _, c := range e.base.Costs {
			if e.removedCosts[c.ID] {
				continue
			}
			if staged, ok := e.stagedCosts[c.ID]; ok {
				out = append(out, staged)
			} else {
				out = append(out, c)
			}
			seen[c.ID] = true
		}
	}
	for _, c := range e.stagedCosts {
		if !seen[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// Build produces the minimal patch set: staged patches equal to the bound
// resource's current value are dropped, and untouched costs are left to the
// store to carry through.
func (e *Engine) Build() (*resource.PatchSet, error) {
	if e.accountID == uuid.Nil {
		return nil, ErrNoResource
	}
	set := &resource.PatchSet{
		AccountID:  e.accountID,
		ResourceID: e.resourceID,
		Type:       e.schema.ResourceType,
		Create:     e.base == nil,
		TemplateID: e.templateID,
	}
	for _, f := range e.schema.AllFields() {
		p, ok := e.staged[f.ID]
		if !ok {
			continue
		}
		if e.base != nil {
			if cur, has := e.base.Value(f.ID); has && cur.Equal(p.Value) {
				continue
			}
		}
		set.Patches = append(set.Patches, p)
	}
	for _, c := range e.stagedCosts {
		set.Costs = append(set.Costs, c)
	}
	for id := range e.removedCosts {
		set.RemovedCosts = append(set.RemovedCosts, id)
	}
	return set, nil
}

// Commit builds the patch set and applies it through the committer as one
// atomic operation. An empty set commits nothing and succeeds.
func (e *Engine) Commit(ctx context.Context, c Committer) error {
	set, err := e.Build()
	if err != nil {
		return err
	}
	if set.Empty() {
		return nil
	}
	return c.Commit(ctx, set)
}
