package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/procura-hq/procura/internal/resource"
	"github.com/procura-hq/procura/internal/resource/value"
)

// Commit applies a staged patch set as one atomic operation: resource
// creation or template stamp, every field patch, every cost upsert and
// removal. A failure anywhere rolls the whole set back; partial application
// is never observable. Across separate commits to the same resource the last
// committed patch wins per field.
func (s *Store) Commit(ctx context.Context, set *resource.PatchSet) error {
	if set.AccountID == uuid.Nil {
		return ErrMissingAccount
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if set.Create {
			if err := insertResource(ctx, tx, set); err != nil {
				return err
			}
		} else {
			if err := checkResource(ctx, tx, set); err != nil {
				return err
			}
			if set.TemplateID != "" {
				if _, err := tx.ExecContext(ctx,
					`UPDATE resources SET template_id = $1 WHERE id = $2 AND account_id = $3`,
					set.TemplateID, set.ResourceID, set.AccountID); err != nil {
					return fmt.Errorf("failed to stamp template id: %w", convertDBError(err))
				}
			}
		}
		for i := range set.Patches {
			if err := applyPatch(ctx, tx, set.ResourceID, &set.Patches[i]); err != nil {
				return err
			}
		}
		for i := range set.Costs {
			if err := upsertCost(ctx, tx, set.ResourceID, &set.Costs[i]); err != nil {
				return err
			}
		}
		if len(set.RemovedCosts) > 0 {
			removed := make([]string, len(set.RemovedCosts))
			for i, id := range set.RemovedCosts {
				removed[i] = id.String()
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM resource_costs WHERE resource_id = $1 AND id = ANY($2::uuid[])`,
				set.ResourceID, pq.Array(removed)); err != nil {
				return fmt.Errorf("failed to remove costs: %w", convertDBError(err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Debug("committed patch set",
		zap.Stringer("resource_type", set.Type),
		zap.String("resource_id", set.ResourceID.String()),
		zap.Bool("create", set.Create),
		zap.Int("patches", len(set.Patches)),
		zap.Int("costs", len(set.Costs)))
	return nil
}

// insertResource creates the resource row, assigning the next key within
// (account, type). The aggregate subselect and the unique constraint on
// (account_id, type, key) together keep keys monotonic.
func insertResource(ctx context.Context, tx *sql.Tx, set *resource.PatchSet) error {
	var templateID interface{}
	if set.TemplateID != "" {
		templateID = set.TemplateID
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO resources (id, account_id, type, key, template_id)
		 SELECT $1, $2, $3, COALESCE(MAX(key), 0) + 1, $4
		 FROM resources WHERE account_id = $2 AND type = $3`,
		set.ResourceID, set.AccountID, set.Type.String(), templateID); err != nil {
		return fmt.Errorf("failed to create %s: %w", set.Type, convertDBError(err))
	}
	return nil
}

// checkResource verifies the target exists within the account scope before
// mutating it.
func checkResource(ctx context.Context, tx *sql.Tx, set *resource.PatchSet) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM resources WHERE id = $1 AND account_id = $2 AND type = $3)`,
		set.ResourceID, set.AccountID, set.Type.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check resource: %w", convertDBError(err))
	}
	if !exists {
		return fmt.Errorf("commit to %s %s: %w", set.Type, set.ResourceID, ErrNotFound)
	}
	return nil
}

// applyPatch appends a field_values row and repoints the current-value row.
// History rows are retained; the pointer makes the newest patch the current
// value.
func applyPatch(ctx context.Context, tx *sql.Tx, resourceID uuid.UUID, p *resource.Patch) error {
	row, err := value.Encode(p.Value)
	if err != nil {
		return fmt.Errorf("field %s: %w", p.FieldID, err)
	}
	valueID := uuid.New()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO field_values (id, field_id, created_at, is_null,
		                           string_value, number_value, boolean_value, date_value,
		                           option_id, option_ids, user_id, resource_ref_id,
		                           file_id, file_ids, address, contact)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		valueID, p.FieldID, createdAt, row.IsNull,
		row.StringValue, row.NumberValue, row.BooleanValue, row.DateValue,
		row.OptionID, idArray(row.OptionIDs), row.UserID, row.ResourceRefID,
		row.FileID, idArray(row.FileIDs), jsonOrNil(row.Address), jsonOrNil(row.Contact)); err != nil {
		return fmt.Errorf("failed to insert value for field %s: %w", p.FieldID, convertDBError(err))
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO resource_fields (resource_id, field_id, value_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (resource_id, field_id) DO UPDATE SET value_id = EXCLUDED.value_id`,
		resourceID, p.FieldID, valueID); err != nil {
		return fmt.Errorf("failed to point field %s at new value: %w", p.FieldID, convertDBError(err))
	}
	return nil
}

func upsertCost(ctx context.Context, tx *sql.Tx, resourceID uuid.UUID, c *resource.Cost) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO resource_costs (id, resource_id, name, is_percentage, value, position)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name,
		                                is_percentage = EXCLUDED.is_percentage,
		                                value = EXCLUDED.value,
		                                position = EXCLUDED.position`,
		c.ID, resourceID, c.Name, c.IsPercentage, c.Value, c.Position); err != nil {
		return fmt.Errorf("failed to upsert cost %q: %w", c.Name, convertDBError(err))
	}
	return nil
}

// idArray renders a uuid slice as a nullable text array parameter.
func idArray(ids []uuid.UUID) interface{} {
	if ids == nil {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return pq.Array(out)
}

func jsonOrNil(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
