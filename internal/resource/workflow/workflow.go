// Package workflow implements status transitions generically over the
// template catalog: one procedure moves any document type through its
// lifecycle by resolving the templated status field and target option
// against the tenant's current schema.
package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procura-hq/procura/internal/resource"
	"github.com/procura-hq/procura/internal/resource/patch"
	"github.com/procura-hq/procura/internal/resource/schema"
	"github.com/procura-hq/procura/internal/resource/template"
)

// Store is the storage surface a transition needs. *store.Store satisfies it.
type Store interface {
	LoadSchema(ctx context.Context, accountID uuid.UUID, t resource.Type) (*schema.Schema, error)
	Get(ctx context.Context, sc *schema.Schema, accountID, id uuid.UUID) (*resource.Resource, error)
	Commit(ctx context.Context, set *resource.PatchSet) error
}

type Transitioner struct {
	store Store
	log   *zap.Logger
}

func NewTransitioner(st Store, log *zap.Logger) *Transitioner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transitioner{store: st, log: log}
}

// Transition sets the templated field to the templated option on one
// resource, as a single committed patch. Both references are resolved
// against the tenant's current schema; a reference the tenant's schema no
// longer carries fails the transition rather than landing on a wrong field.
func (t *Transitioner) Transition(ctx context.Context, accountID uuid.UUID, rt resource.Type, resourceID uuid.UUID, field schema.FieldTemplate, option schema.OptionTemplate) error {
	sc, err := t.store.LoadSchema(ctx, accountID, rt)
	if err != nil {
		return fmt.Errorf("failed to load %s schema: %w", rt, err)
	}
	r, err := t.store.Get(ctx, sc, accountID, resourceID)
	if err != nil {
		return fmt.Errorf("failed to load %s %s: %w", rt, resourceID, err)
	}

	eng := patch.New(sc, r)
	if err := eng.SetOption(field, option); err != nil {
		return fmt.Errorf("transition %s %s: %w", rt, resourceID, err)
	}
	if err := eng.Commit(ctx, t.store); err != nil {
		return err
	}
	t.log.Info("transitioned resource",
		zap.Stringer("resource_type", rt),
		zap.String("resource_id", resourceID.String()),
		zap.String("option_template", string(option)))
	return nil
}

// SetStatus is the common case: move a document to a catalog status using
// the type's templated status field.
func (t *Transitioner) SetStatus(ctx context.Context, accountID uuid.UUID, rt resource.Type, resourceID uuid.UUID, target template.Status) error {
	return t.Transition(ctx, accountID, rt, resourceID,
		template.StatusField(rt), template.StatusOption(rt, target))
}
