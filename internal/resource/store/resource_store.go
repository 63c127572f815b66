package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/procura-hq/procura/internal/resource"
	"github.com/procura-hq/procura/internal/resource/query"
	"github.com/procura-hq/procura/internal/resource/schema"
	"github.com/procura-hq/procura/internal/resource/value"
)

// Get loads a resource with its materialized field values and costs. The
// schema is required to interpret stored values; fields no longer on the
// schema are skipped.
func (s *Store) Get(ctx context.Context, sc *schema.Schema, accountID, id uuid.UUID) (*resource.Resource, error) {
	if accountID == uuid.Nil {
		return nil, ErrMissingAccount
	}
	r := &resource.Resource{ID: id, AccountID: accountID, Type: sc.ResourceType}
	var templateID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT key, template_id FROM resources WHERE id = $1 AND account_id = $2 AND type = $3`,
		id, accountID, sc.ResourceType.String()).Scan(&r.Key, &templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", sc.ResourceType, id, convertDBError(err))
	}
	r.TemplateID = templateID.String

	if err := s.loadValues(ctx, sc, []*resource.Resource{r}); err != nil {
		return nil, err
	}
	if err := s.loadCosts(ctx, []*resource.Resource{r}); err != nil {
		return nil, err
	}
	return r, nil
}

// ByKey resolves a resource by its per-account, per-type numeric key. Absence
// is a normal outcome here: the return is (nil, nil) when no resource has the
// key.
func (s *Store) ByKey(ctx context.Context, sc *schema.Schema, accountID uuid.UUID, key int) (*resource.Resource, error) {
	if accountID == uuid.Nil {
		return nil, ErrMissingAccount
	}
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM resources WHERE account_id = $1 AND type = $2 AND key = $3`,
		accountID, sc.ResourceType.String(), key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s by key %d: %w", sc.ResourceType, key, err)
	}
	return s.Get(ctx, sc, accountID, id)
}

// Query compiles and executes a declarative filter against the account's
// resources of the schema's type. Unknown field references reject the query
// before any storage access.
func (s *Store) Query(ctx context.Context, sc *schema.Schema, accountID uuid.UUID, filter *query.Expr, order []query.OrderBy, opts query.Options) ([]*resource.Resource, error) {
	compiled, err := query.Compile(accountID, sc, filter, order, opts)
	if err != nil {
		return nil, err
	}
	return s.runCompiled(ctx, sc, accountID, compiled)
}

// Search runs the template-bound name/number lookup, exact or fuzzy.
func (s *Store) Search(ctx context.Context, sc *schema.Schema, accountID uuid.UUID, term string, opts query.SearchOptions) ([]*resource.Resource, error) {
	compiled, err := query.CompileNameSearch(accountID, sc, term, opts)
	if err != nil {
		return nil, err
	}
	return s.runCompiled(ctx, sc, accountID, compiled)
}

func (s *Store) runCompiled(ctx context.Context, sc *schema.Schema, accountID uuid.UUID, compiled *query.Compiled) ([]*resource.Resource, error) {
	rows, err := s.db.QueryContext(ctx, compiled.SQL, compiled.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s query: %w", sc.ResourceType, convertDBError(err))
	}
	defer rows.Close()

	// Name search can match one resource on both its name and number fields;
	// keep the first (best-ranked) occurrence of each id.
	var ids []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.loadMany(ctx, sc, accountID, ids)
}

// loadMany loads full resources for the given ids, preserving id order.
func (s *Store) loadMany(ctx context.Context, sc *schema.Schema, accountID uuid.UUID, ids []uuid.UUID) ([]*resource.Resource, error) {
	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, template_id FROM resources
		 WHERE account_id = $1 AND type = $2 AND id = ANY($3::uuid[])`,
		accountID, sc.ResourceType.String(), pq.Array(idStrings))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s resources: %w", sc.ResourceType, convertDBError(err))
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*resource.Resource, len(ids))
	for rows.Next() {
		r := &resource.Resource{AccountID: accountID, Type: sc.ResourceType}
		var templateID sql.NullString
		if err := rows.Scan(&r.ID, &r.Key, &templateID); err != nil {
			return nil, err
		}
		r.TemplateID = templateID.String
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]*resource.Resource, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			ordered = append(ordered, r)
		}
	}
	if err := s.loadValues(ctx, sc, ordered); err != nil {
		return nil, err
	}
	if err := s.loadCosts(ctx, ordered); err != nil {
		return nil, err
	}
	return ordered, nil
}

// loadValues materializes current field values through the value codec, using
// the schema as the source of truth for each field's kind.
func (s *Store) loadValues(ctx context.Context, sc *schema.Schema, resources []*resource.Resource) error {
	if len(resources) == 0 {
		return nil
	}
	kinds := make(map[uuid.UUID]value.Kind)
	for _, f := range sc.AllFields() {
		kinds[f.ID] = f.Type.Kind()
	}
	byID := make(map[uuid.UUID]*resource.Resource, len(resources))
	ids := make([]string, len(resources))
	for i, r := range resources {
		byID[r.ID] = r
		ids[i] = r.ID.String()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rf.resource_id, rf.field_id, fv.created_at, fv.is_null,
		        fv.string_value, fv.number_value, fv.boolean_value, fv.date_value,
		        fv.option_id, fv.option_ids, fv.user_id, fv.resource_ref_id,
		        fv.file_id, fv.file_ids, fv.address, fv.contact
		 FROM resource_fields rf
		 JOIN field_values fv ON fv.id = rf.value_id
		 WHERE rf.resource_id = ANY($1::uuid[])`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load field values: %w", convertDBError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			resourceID uuid.UUID
			fieldID    uuid.UUID
			row        value.Row
			optionIDs  []string
			fileIDs    []string
		)
		if err := rows.Scan(&resourceID, &fieldID, &row.CreatedAt, &row.IsNull,
			&row.StringValue, &row.NumberValue, &row.BooleanValue, &row.DateValue,
			&row.OptionID, pq.Array(&optionIDs), &row.UserID, &row.ResourceRefID,
			&row.FileID, pq.Array(&fileIDs), &row.Address, &row.Contact); err != nil {
			return fmt.Errorf("failed to scan field value: %w", err)
		}
		kind, known := kinds[fieldID]
		if !known {
			// Values for fields removed from the schema stay stored but are
			// not materialized.
			continue
		}
		row.OptionIDs, err = parseIDs(optionIDs)
		if err != nil {
			return fmt.Errorf("field %s option ids: %w", fieldID, err)
		}
		row.FileIDs, err = parseIDs(fileIDs)
		if err != nil {
			return fmt.Errorf("field %s file ids: %w", fieldID, err)
		}
		v, err := value.Decode(kind, row)
		if err != nil {
			return fmt.Errorf("field %s: %w", fieldID, err)
		}
		r := byID[resourceID]
		r.Patches = append(r.Patches, resource.Patch{FieldID: fieldID, CreatedAt: row.CreatedAt, Value: v})
	}
	return rows.Err()
}

func (s *Store) loadCosts(ctx context.Context, resources []*resource.Resource) error {
	if len(resources) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*resource.Resource, len(resources))
	ids := make([]string, len(resources))
	for i, r := range resources {
		byID[r.ID] = r
		ids[i] = r.ID.String()
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, resource_id, name, is_percentage, value, position
		 FROM resource_costs WHERE resource_id = ANY($1::uuid[]) ORDER BY position`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load costs: %w", convertDBError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c          resource.Cost
			resourceID uuid.UUID
		)
		if err := rows.Scan(&c.ID, &resourceID, &c.Name, &c.IsPercentage, &c.Value, &c.Position); err != nil {
			return fmt.Errorf("failed to scan cost: %w", err)
		}
		r := byID[resourceID]
		r.Costs = append(r.Costs, c)
	}
	return rows.Err()
}

// Delete hard-deletes a resource and its dependent rows. The common path
// retires resources via status transitions; this exists for compliance and
// admin use.
func (s *Store) Delete(ctx context.Context, accountID uuid.UUID, t resource.Type, id uuid.UUID) error {
	if accountID == uuid.Nil {
		return ErrMissingAccount
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM resources WHERE id = $1 AND account_id = $2 AND type = $3`,
		id, accountID, t.String())
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", t, id, convertDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("delete %s %s: %w", t, id, ErrNotFound)
	}
	s.log.Info("deleted resource",
		zap.Stringer("resource_type", t),
		zap.String("resource_id", id.String()),
		zap.String("account_id", accountID.String()))
	return nil
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}
