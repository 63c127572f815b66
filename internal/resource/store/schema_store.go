package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procura-hq/procura/internal/resource"
	"github.com/procura-hq/procura/internal/resource/schema"
	"github.com/procura-hq/procura/internal/resource/value"
)

// LoadSchema loads an account's custom schema for a resource type. Returns
// ErrNotFound when the account has no schema for the type yet.
func (s *Store) LoadSchema(ctx context.Context, accountID uuid.UUID, t resource.Type) (*schema.Schema, error) {
	if accountID == uuid.Nil {
		return nil, ErrMissingAccount
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, is_system FROM schemas WHERE account_id = $1 AND resource_type = $2`,
		accountID, t.String())
	return s.loadSchemaRow(ctx, row, accountID, t)
}

// LoadSystemSchema loads the immutable system baseline for a resource type.
func (s *Store) LoadSystemSchema(ctx context.Context, t resource.Type) (*schema.Schema, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, is_system FROM schemas WHERE account_id IS NULL AND resource_type = $1 AND is_system = TRUE`,
		t.String())
	return s.loadSchemaRow(ctx, row, uuid.Nil, t)
}

func (s *Store) loadSchemaRow(ctx context.Context, row *sql.Row, accountID uuid.UUID, t resource.Type) (*schema.Schema, error) {
	var (
		id       uuid.UUID
		isSystem bool
	)
	if err := row.Scan(&id, &isSystem); err != nil {
		return nil, fmt.Errorf("failed to load %s schema: %w", t, convertDBError(err))
	}

	sc := &schema.Schema{ID: id, AccountID: accountID, ResourceType: t, IsSystem: isSystem}
	if err := s.loadSections(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *Store) loadSections(ctx context.Context, sc *schema.Schema) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM schema_sections WHERE schema_id = $1 ORDER BY position`, sc.ID)
	if err != nil {
		return fmt.Errorf("failed to load schema sections: %w", convertDBError(err))
	}
	defer rows.Close()

	sections := make(map[uuid.UUID]*schema.Section)
	for rows.Next() {
		sec := &schema.Section{}
		if err := rows.Scan(&sec.ID, &sec.Name); err != nil {
			return fmt.Errorf("failed to scan schema section: %w", err)
		}
		sc.Sections = append(sc.Sections, sec)
		sections[sec.ID] = sec
	}
	if err := rows.Err(); err != nil {
		return err
	}

	fields, err := s.loadFields(ctx, sc.ID)
	if err != nil {
		return err
	}
	for _, placed := range fields {
		sec, ok := sections[placed.sectionID]
		if !ok {
			continue
		}
		sec.Fields = append(sec.Fields, placed.field)
	}
	return nil
}

type placedField struct {
	sectionID uuid.UUID
	field     *schema.SchemaField
}

func (s *Store) loadFields(ctx context.Context, schemaID uuid.UUID) ([]placedField, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, section_id, template_id, name, description, type, resource_type,
		        default_value, default_to_today, is_required
		 FROM schema_fields WHERE schema_id = $1 ORDER BY position`, schemaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema fields: %w", convertDBError(err))
	}
	defer rows.Close()

	var out []placedField
	byID := make(map[uuid.UUID]*schema.SchemaField)
	for rows.Next() {
		var (
			f            schema.SchemaField
			sectionID    uuid.UUID
			templateID   sql.NullString
			typeName     string
			resourceType sql.NullString
			defaultValue []byte
		)
		if err := rows.Scan(&f.ID, &sectionID, &templateID, &f.Name, &f.Description,
			&typeName, &resourceType, &defaultValue, &f.DefaultToToday, &f.IsRequired); err != nil {
			return nil, fmt.Errorf("failed to scan schema field: %w", err)
		}
		ft, err := schema.ParseFieldType(typeName)
		if err != nil {
			return nil, fmt.Errorf("schema field %s: %w", f.ID, err)
		}
		f.Type = ft
		if templateID.Valid {
			f.TemplateID = schema.FieldTemplate(templateID.String)
		}
		if resourceType.Valid {
			rt, err := resource.ParseType(resourceType.String)
			if err != nil {
				return nil, fmt.Errorf("schema field %s: %w", f.ID, err)
			}
			f.ResourceType = &rt
		}
		if len(defaultValue) > 0 {
			var dv value.Value
			if err := json.Unmarshal(defaultValue, &dv); err != nil {
				return nil, fmt.Errorf("schema field %s default: %w", f.ID, err)
			}
			f.DefaultValue = &dv
		}
		fp := placedField{sectionID: sectionID, field: &f}
		out = append(out, fp)
		byID[f.ID] = fp.field
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadOptions(ctx, schemaID, byID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) loadOptions(ctx context.Context, schemaID uuid.UUID, fields map[uuid.UUID]*schema.SchemaField) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT o.id, o.field_id, o.template_id, o.name
		 FROM field_options o
		 JOIN schema_fields f ON f.id = o.field_id
		 WHERE f.schema_id = $1 ORDER BY o.position`, schemaID)
	if err != nil {
		return fmt.Errorf("failed to load field options: %w", convertDBError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			opt        schema.Option
			fieldID    uuid.UUID
			templateID sql.NullString
		)
		if err := rows.Scan(&opt.ID, &fieldID, &templateID, &opt.Name); err != nil {
			return fmt.Errorf("failed to scan field option: %w", err)
		}
		if templateID.Valid {
			opt.TemplateID = schema.OptionTemplate(templateID.String)
		}
		if f, ok := fields[fieldID]; ok {
			f.Options = append(f.Options, opt)
		}
	}
	return rows.Err()
}

// SaveSchema persists a schema atomically: the schema row is upserted and its
// sections, fields and options rewritten in order. Field and option ids are
// preserved, which keeps stored values and template bindings stable.
func (s *Store) SaveSchema(ctx context.Context, sc *schema.Schema) error {
	if !sc.IsSystem && sc.AccountID == uuid.Nil {
		return ErrMissingAccount
	}
	if err := sc.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var accountID interface{}
		if sc.AccountID != uuid.Nil {
			accountID = sc.AccountID
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schemas (id, account_id, resource_type, is_system)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET account_id = EXCLUDED.account_id`,
			sc.ID, accountID, sc.ResourceType.String(), sc.IsSystem); err != nil {
			return fmt.Errorf("failed to upsert schema: %w", convertDBError(err))
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM schema_sections WHERE schema_id = $1`, sc.ID); err != nil {
			return fmt.Errorf("failed to clear schema sections: %w", convertDBError(err))
		}

		fieldPos := 0
		for secPos, sec := range sc.Sections {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_sections (id, schema_id, name, position) VALUES ($1, $2, $3, $4)`,
				sec.ID, sc.ID, sec.Name, secPos); err != nil {
				return fmt.Errorf("failed to insert section %q: %w", sec.Name, convertDBError(err))
			}
			for _, f := range sec.Fields {
				if err := insertField(ctx, tx, sc.ID, sec.ID, f, fieldPos); err != nil {
					return err
				}
				fieldPos++
			}
		}
		s.log.Debug("saved schema",
			zap.Stringer("resource_type", sc.ResourceType),
			zap.String("schema_id", sc.ID.String()))
		return nil
	})
}

func insertField(ctx context.Context, tx *sql.Tx, schemaID, sectionID uuid.UUID, f *schema.SchemaField, position int) error {
	var templateID interface{}
	if f.TemplateID != "" {
		templateID = string(f.TemplateID)
	}
	var resourceType interface{}
	if f.ResourceType != nil {
		resourceType = f.ResourceType.String()
	}
	var defaultValue interface{}
	if f.DefaultValue != nil {
		b, err := json.Marshal(f.DefaultValue)
		if err != nil {
			return fmt.Errorf("failed to encode default for field %q: %w", f.Name, err)
		}
		defaultValue = b
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_fields (id, schema_id, section_id, template_id, name, description,
		                            type, resource_type, default_value, default_to_today, is_required, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		f.ID, schemaID, sectionID, templateID, f.Name, f.Description,
		f.Type.String(), resourceType, defaultValue, f.DefaultToToday, f.IsRequired, position); err != nil {
		return fmt.Errorf("failed to insert field %q: %w", f.Name, convertDBError(err))
	}
	for optPos, opt := range f.Options {
		var optTemplate interface{}
		if opt.TemplateID != "" {
			optTemplate = string(opt.TemplateID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO field_options (id, field_id, template_id, name, position) VALUES ($1, $2, $3, $4, $5)`,
			opt.ID, f.ID, optTemplate, opt.Name, optPos); err != nil {
			return fmt.Errorf("failed to insert option %q: %w", opt.Name, convertDBError(err))
		}
	}
	return nil
}

// ListSchemaAccounts returns every account that has a custom schema for the
// given resource type. Template reconciliation iterates this.
func (s *Store) ListSchemaAccounts(ctx context.Context, t resource.Type) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id FROM schemas WHERE account_id IS NOT NULL AND resource_type = $1 ORDER BY account_id`,
		t.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list schema accounts: %w", convertDBError(err))
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
