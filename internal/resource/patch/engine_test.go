package patch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procura-hq/procura/internal/resource"
	"github.com/procura-hq/procura/internal/resource/schema"
	"github.com/procura-hq/procura/internal/resource/template"
	"github.com/procura-hq/procura/internal/resource/value"
)

type captureCommitter struct {
	set *resource.PatchSet
	err error
}

func (c *captureCommitter) Commit(_ context.Context, set *resource.PatchSet) error {
	c.set = set
	return c.err
}

func orderFixture(t *testing.T) (*schema.Schema, *resource.Resource) {
	t.Helper()
	s := template.SystemSchema(resource.TypeOrder)
	s.IsSystem = false
	s.AccountID = uuid.New()

	statusField := s.MustField(template.StatusField(resource.TypeOrder))
	_, draft := s.MustFieldOption(template.StatusField(resource.TypeOrder), template.StatusOption(resource.TypeOrder, template.StatusDraft))

	nameField := s.MustField(template.NameField(resource.TypeOrder))
	r := &resource.Resource{
		ID:        uuid.New(),
		AccountID: s.AccountID,
		Type:      resource.TypeOrder,
		Key:       7,
		Patches: []resource.Patch{
			{FieldID: nameField.ID, Value: value.String("Spring restock")},
			{FieldID: statusField.ID, Value: value.Option(draft.ID)},
		},
		Costs: []resource.Cost{
			{ID: uuid.New(), Name: "Freight", Value: 40},
		},
	}
	return s, r
}

func TestSetOverwritesNotAppends(t *testing.T) {
	s, r := orderFixture(t)
	e := New(s, r)
	nameTpl := template.NameField(resource.TypeOrder)

	require.NoError(t, e.SetString(nameTpl, "a"))
	require.NoError(t, e.SetString(nameTpl, "b"))

	got, err := e.GetString(nameTpl)
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	set, err := e.Build()
	require.NoError(t, err)
	require.Len(t, set.Patches, 1)
	assert.Equal(t, "b", set.Patches[0].Value.StringVal)
}

func TestGetterFallsThroughToCurrentValue(t *testing.T) {
	s, r := orderFixture(t)
	e := New(s, r)

	got, err := e.GetString(template.NameField(resource.TypeOrder))
	require.NoError(t, err)
	assert.Equal(t, "Spring restock", got)

	v, ok, err := e.Get(template.StatusField(resource.TypeOrder))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, value.KindOption, v.Kind)
}

func TestSetPatchRejectsKindMismatch(t *testing.T) {
	s, r := orderFixture(t)
	e := New(s, r)

	err := e.SetPatch(template.NameField(resource.TypeOrder), value.Number(3))
	assert.ErrorIs(t, err, ErrKindMismatch)

	err = e.SetPatch(schema.FieldTemplate("order.missing"), value.String("x"))
	assert.ErrorIs(t, err, schema.ErrFieldNotFound)
}

func TestSetOptionResolvesTemplateAgainstCurrentSchema(t *testing.T) {
	s, r := orderFixture(t)
	statusTpl := template.StatusField(resource.TypeOrder)
	approvedTpl := template.StatusOption(resource.TypeOrder, template.StatusApproved)

	// Tenant renamed the option; resolution by template still lands on it.
	_, approved := s.MustFieldOption(statusTpl, approvedTpl)
	approved.Name = "Greenlit"

	e := New(s, r)
	require.NoError(t, e.SetOption(statusTpl, approvedTpl))

	id, ok, err := e.GetOptionID(statusTpl)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, approved.ID, id)

	has, err := e.HasOption(statusTpl, approvedTpl)
	require.NoError(t, err)
	assert.True(t, has)

	set, err := e.Build()
	require.NoError(t, err)
	require.Len(t, set.Patches, 1)
	assert.Equal(t, approved.ID, set.Patches[0].Value.OptionID)
}

func TestHasOptionSeesCurrentState(t *testing.T) {
	s, r := orderFixture(t)
	e := New(s, r)
	statusTpl := template.StatusField(resource.TypeOrder)

	has, err := e.HasOption(statusTpl, template.StatusOption(resource.TypeOrder, template.StatusDraft))
	require.NoError(t, err)
	assert.True(t, has, "unstaged engine reflects the stored status")

	has, err = e.HasOption(statusTpl, template.StatusOption(resource.TypeOrder, template.StatusApproved))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestBuildDropsNoOpPatches(t *testing.T) {
	s, r := orderFixture(t)
	e := New(s, r)

	require.NoError(t, e.SetString(template.NameField(resource.TypeOrder), "Spring restock"))
	set, err := e.Build()
	require.NoError(t, err)
	assert.Empty(t, set.Patches, "staging the current value is a no-op")
	assert.True(t, set.Empty())
}

func TestClearStagesExplicitNull(t *testing.T) {
	s, r := orderFixture(t)
	e := New(s, r)
	nameTpl := template.NameField(resource.TypeOrder)

	require.NoError(t, e.Clear(nameTpl))
	v, ok, err := e.Get(nameTpl)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, v.IsNull())

	set, err := e.Build()
	require.NoError(t, err)
	require.Len(t, set.Patches, 1)
	assert.True(t, set.Patches[0].Value.IsNull())
}

func TestCostStagingOverwritesByID(t *testing.T) {
	s, r := orderFixture(t)
	e := New(s, r)
	freight := r.Costs[0]

	e.SetCost(resource.Cost{ID: freight.ID, Name: "Freight", Value: 55})
	e.SetCost(resource.Cost{ID: freight.ID, Name: "Freight", Value: 60})
	e.SetCost(resource.Cost{Name: "Duty", IsPercentage: true, Value: 2.5})

	costs := e.Costs()
	require.Len(t, costs, 2)
	assert.Equal(t, 60.0, costs[0].Value, "untouched costs carried, staged overlay wins")

	set, err := e.Build()
	require.NoError(t, err)
	assert.Len(t, set.Costs, 2)
	assert.Empty(t, set.RemovedCosts)
}

func TestRemoveCost(t *testing.T) {
	s, r := orderFixture(t)
	e := New(s, r)
	e.RemoveCost(r.Costs[0].ID)

	assert.Empty(t, e.Costs())
	set, err := e.Build()
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{r.Costs[0].ID}, set.RemovedCosts)
}

func TestCreateFlow(t *testing.T) {
	s, _ := orderFixture(t)
	account := uuid.New()
	e := NewForCreate(s, account)
	require.NoError(t, e.SetString(template.NameField(resource.TypeOrder), "New order"))
	require.NoError(t, e.SetDate(template.DateField(resource.TypeOrder), time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	e.SetTemplateID("order.bootstrap")

	set, err := e.Build()
	require.NoError(t, err)
	assert.True(t, set.Create)
	assert.Equal(t, account, set.AccountID)
	assert.Equal(t, e.ResourceID(), set.ResourceID)
	assert.Equal(t, "order.bootstrap", set.TemplateID)
	assert.Len(t, set.Patches, 2)
}

func TestCreateStagesSchemaDefaults(t *testing.T) {
	s, _ := orderFixture(t)
	nameRef := template.NameField(resource.TypeOrder)
	def := value.String("Untitled order")
	s.MustField(nameRef).DefaultValue = &def

	e := NewForCreate(s, uuid.New())

	got, err := e.GetString(nameRef)
	require.NoError(t, err)
	assert.Equal(t, "Untitled order", got)

	// The document date defaults to today, truncated to the day.
	v, ok, err := e.Get(template.DateField(resource.TypeOrder))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, value.Date(time.Now()).DateVal, v.DateVal)

	// An explicit set replaces the staged default rather than stacking on it.
	require.NoError(t, e.SetString(nameRef, "Spring restock"))

	set, err := e.Build()
	require.NoError(t, err)
	assert.Len(t, set.Patches, 2)
	got, err = e.GetString(nameRef)
	require.NoError(t, err)
	assert.Equal(t, "Spring restock", got)
}

func TestCommitDelegatesAtomically(t *testing.T) {
	s, r := orderFixture(t)
	e := New(s, r)
	require.NoError(t, e.SetString(template.NameField(resource.TypeOrder), "Renamed"))

	var c captureCommitter
	require.NoError(t, e.Commit(context.Background(), &c))
	require.NotNil(t, c.set)
	assert.Len(t, c.set.Patches, 1)

	// Nothing staged: the committer is never called.
	e2 := New(s, r)
	var c2 captureCommitter
	require.NoError(t, e2.Commit(context.Background(), &c2))
	assert.Nil(t, c2.set)
}
