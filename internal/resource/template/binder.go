package template

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procura-hq/procura/internal/resource/schema"
	"github.com/procura-hq/procura/internal/resource/value"
)

// Binder reconciles tenant schemas against the latest system definitions.
type Binder struct {
	log *zap.Logger
}

// NewBinder creates a binder. A nil logger disables logging.
func NewBinder(log *zap.Logger) *Binder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Binder{log: log}
}

// Apply reconciles a tenant schema against the system schema of the same
// resource type and reports whether anything changed. The pass:
//
//   - inserts template-originated fields and options missing from the tenant
//     schema, leaving tenant-added custom fields and tenant ordering untouched;
//   - refreshes the metadata of fields and options still bound to a template
//     id so they match the latest system definition;
//   - never touches fields the tenant has detached (template id cleared).
//
// Applying twice in a row is a no-op on the second pass. Conflicts with an
// in-flight tenant edit resolve last-writer-wins per field.
func (b *Binder) Apply(system, tenant *schema.Schema) bool {
	changed := false
	for _, sysSec := range system.Sections {
		for _, sysField := range sysSec.Fields {
			cur, err := tenant.Field(sysField.TemplateID)
			if err != nil {
				if b.insertField(tenant, sysSec.Name, sysField) {
					changed = true
				}
				continue
			}
			if b.refreshField(tenant, cur, sysField) {
				changed = true
			}
		}
	}
	if changed {
		b.log.Info("applied schema template",
			zap.Stringer("resource_type", tenant.ResourceType),
			zap.String("account_id", tenant.AccountID.String()))
	}
	return changed
}

// insertField copies a system field into the tenant schema, into the section
// with the same name as the system section, creating it if absent. The copy
// gets a fresh tenant-scoped id; only the template id ties it back. When a
// detached tenant field still holds the system name, the inserted field gets
// a numbered name so the schema stays valid — reconciliation resolves name
// conflicts, it never errors.
func (b *Binder) insertField(tenant *schema.Schema, sectionName string, sysField *schema.SchemaField) bool {
	var target *schema.Section
	for _, sec := range tenant.Sections {
		if sec.Name == sectionName {
			target = sec
			break
		}
	}
	if target == nil {
		target = tenant.AddSection(sectionName)
	}

	f := cloneField(sysField)
	f.ID = uuid.New()
	for i := range f.Options {
		f.Options[i].ID = uuid.New()
	}
	base := f.Name
	for n := 2; ; n++ {
		if _, taken := tenant.FieldByName(f.Name); !taken {
			break
		}
		f.Name = fmt.Sprintf("%s %d", base, n)
	}
	if err := tenant.AddField(target.ID, f); err != nil {
		b.log.Warn("skipped template field",
			zap.Stringer("resource_type", tenant.ResourceType),
			zap.String("template_id", string(sysField.TemplateID)),
			zap.Error(err))
		return false
	}

	b.log.Info("inserted template field",
		zap.Stringer("resource_type", tenant.ResourceType),
		zap.String("template_id", string(sysField.TemplateID)),
		zap.String("field", f.Name))
	return true
}

// refreshField updates a still-bound tenant field's metadata from the system
// definition, inserting any options the tenant is missing. Tenant-added
// options (no template id) are preserved. The system name is only taken when
// no other tenant field holds it; names must stay unique on the schema.
func (b *Binder) refreshField(tenant *schema.Schema, cur, sysField *schema.SchemaField) bool {
	changed := false
	if cur.Name != sysField.Name {
		if _, taken := tenant.FieldByName(sysField.Name); !taken {
			cur.Name = sysField.Name
			changed = true
		}
	}
	if cur.Description != sysField.Description {
		cur.Description = sysField.Description
		changed = true
	}
	if cur.Type != sysField.Type {
		cur.Type = sysField.Type
		changed = true
	}
	if cur.IsRequired != sysField.IsRequired {
		cur.IsRequired = sysField.IsRequired
		changed = true
	}
	if cur.DefaultToToday != sysField.DefaultToToday {
		cur.DefaultToToday = sysField.DefaultToToday
		changed = true
	}
	if !equalDefault(cur.DefaultValue, sysField.DefaultValue) {
		cur.DefaultValue = cloneDefault(sysField.DefaultValue)
		changed = true
	}
	if !equalResourceType(cur, sysField) {
		cur.ResourceType = sysField.ResourceType
		changed = true
	}

	for _, sysOpt := range sysField.Options {
		curOpt, err := cur.Option(sysOpt.TemplateID)
		if err != nil {
			cur.Options = append(cur.Options, schema.Option{
				ID:         uuid.New(),
				TemplateID: sysOpt.TemplateID,
				Name:       sysOpt.Name,
			})
			changed = true
			continue
		}
		if curOpt.Name != sysOpt.Name {
			curOpt.Name = sysOpt.Name
			changed = true
		}
	}
	return changed
}

func equalDefault(a, b *value.Value) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || a.Equal(*b)
}

func cloneDefault(v *value.Value) *value.Value {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func equalResourceType(a, b *schema.SchemaField) bool {
	if (a.ResourceType == nil) != (b.ResourceType == nil) {
		return false
	}
	return a.ResourceType == nil || *a.ResourceType == *b.ResourceType
}

func cloneField(f *schema.SchemaField) *schema.SchemaField {
	c := *f
	c.Options = append([]schema.Option(nil), f.Options...)
	if f.ResourceType != nil {
		rt := *f.ResourceType
		c.ResourceType = &rt
	}
	if f.DefaultValue != nil {
		dv := *f.DefaultValue
		c.DefaultValue = &dv
	}
	return &c
}
