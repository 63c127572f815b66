package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procura-hq/procura/internal/resource"
	"github.com/procura-hq/procura/internal/resource/schema"
	"github.com/procura-hq/procura/internal/resource/template"
)

type countingLoader struct {
	loads int
}

func (l *countingLoader) LoadSchema(_ context.Context, accountID uuid.UUID, t resource.Type) (*schema.Schema, error) {
	l.loads++
	sc := template.SystemSchema(t)
	sc.IsSystem = false
	sc.AccountID = accountID
	return sc, nil
}

func newTestCache(t *testing.T, ttl time.Duration) (*SchemaCache, *countingLoader, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	loader := &countingLoader{}
	return New(client, loader, ttl, nil), loader, mr
}

func TestGetReadsThrough(t *testing.T) {
	c, loader, _ := newTestCache(t, 0)
	accountID := uuid.New()
	ctx := context.Background()

	first, err := c.Get(ctx, accountID, resource.TypeVendor)
	require.NoError(t, err)
	second, err := c.Get(ctx, accountID, resource.TypeVendor)
	require.NoError(t, err)

	assert.Equal(t, 1, loader.loads, "second read is served from cache")
	assert.Equal(t, first.ID, second.ID)

	// The cached copy resolves template references like the loaded one.
	name := second.MustField(template.NameField(resource.TypeVendor))
	assert.Equal(t, first.MustField(template.NameField(resource.TypeVendor)).ID, name.ID)
}

func TestCacheIsScopedPerAccountAndType(t *testing.T) {
	c, loader, _ := newTestCache(t, 0)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_, err := c.Get(ctx, a, resource.TypeVendor)
	require.NoError(t, err)
	_, err = c.Get(ctx, b, resource.TypeVendor)
	require.NoError(t, err)
	_, err = c.Get(ctx, a, resource.TypeOrder)
	require.NoError(t, err)

	assert.Equal(t, 3, loader.loads)
}

func TestInvalidateForcesReload(t *testing.T) {
	c, loader, _ := newTestCache(t, 0)
	accountID := uuid.New()
	ctx := context.Background()

	_, err := c.Get(ctx, accountID, resource.TypeVendor)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, accountID, resource.TypeVendor))
	_, err = c.Get(ctx, accountID, resource.TypeVendor)
	require.NoError(t, err)

	assert.Equal(t, 2, loader.loads)
}

func TestInvalidateTypeDropsAllAccounts(t *testing.T) {
	c, loader, _ := newTestCache(t, 0)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_, _ = c.Get(ctx, a, resource.TypeOrder)
	_, _ = c.Get(ctx, b, resource.TypeOrder)
	_, _ = c.Get(ctx, a, resource.TypeVendor)
	require.Equal(t, 3, loader.loads)

	require.NoError(t, c.InvalidateType(ctx, resource.TypeOrder))

	_, _ = c.Get(ctx, a, resource.TypeOrder)
	_, _ = c.Get(ctx, b, resource.TypeOrder)
	_, _ = c.Get(ctx, a, resource.TypeVendor)
	assert.Equal(t, 5, loader.loads, "order schemas reload, vendor stays cached")
}

func TestEntriesExpire(t *testing.T) {
	c, loader, mr := newTestCache(t, time.Minute)
	accountID := uuid.New()
	ctx := context.Background()

	_, err := c.Get(ctx, accountID, resource.TypeVendor)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = c.Get(ctx, accountID, resource.TypeVendor)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.loads)
}

func TestRedisOutageFallsBackToLoader(t *testing.T) {
	c, loader, mr := newTestCache(t, 0)
	mr.Close()

	sc, err := c.Get(context.Background(), uuid.New(), resource.TypeVendor)
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.Equal(t, 1, loader.loads)
}

func TestCorruptEntryIsEvictedAndReloaded(t *testing.T) {
	c, loader, mr := newTestCache(t, 0)
	accountID := uuid.New()
	ctx := context.Background()

	require.NoError(t, mr.Set(schemaKey(accountID, resource.TypeVendor), "not json"))

	sc, err := c.Get(ctx, accountID, resource.TypeVendor)
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.Equal(t, 1, loader.loads)
}
