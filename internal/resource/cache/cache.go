// Package cache provides a Redis-backed read-through cache for schemas.
// Schemas are read on nearly every business action and change only through
// administrative edits and template reconciliation, so cached copies are
// kept until explicitly invalidated or the TTL lapses.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/procura-hq/procura/internal/resource"
	"github.com/procura-hq/procura/internal/resource/schema"
)

// DefaultTTL bounds staleness when an invalidation is missed.
const DefaultTTL = 15 * time.Minute

// Loader loads schemas from the backing store on a cache miss.
// *store.Store satisfies it.
type Loader interface {
	LoadSchema(ctx context.Context, accountID uuid.UUID, t resource.Type) (*schema.Schema, error)
}

// SchemaCache is a read-through schema cache. Redis failures degrade to
// direct loads; the cache never turns a healthy store into an outage.
type SchemaCache struct {
	client *redis.Client
	loader Loader
	ttl    time.Duration
	log    *zap.Logger
}

func New(client *redis.Client, loader Loader, ttl time.Duration, log *zap.Logger) *SchemaCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SchemaCache{client: client, loader: loader, ttl: ttl, log: log}
}

func schemaKey(accountID uuid.UUID, t resource.Type) string {
	return fmt.Sprintf("schema:%s:%s", accountID, t)
}

// Get returns the cached schema for (account, type), loading and caching it
// on a miss.
func (c *SchemaCache) Get(ctx context.Context, accountID uuid.UUID, t resource.Type) (*schema.Schema, error) {
	key := schemaKey(accountID, t)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var sc schema.Schema
		if err := json.Unmarshal(raw, &sc); err == nil {
			return &sc, nil
		}
		// Unreadable entries are dropped and reloaded.
		c.log.Warn("evicting corrupt schema cache entry", zap.String("key", key))
		c.client.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("schema cache unavailable, loading directly",
			zap.String("key", key), zap.Error(err))
	}

	sc, err := c.loader.LoadSchema(ctx, accountID, t)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(sc); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.Warn("failed to cache schema", zap.String("key", key), zap.Error(err))
		}
	}
	return sc, nil
}

// Invalidate drops the cached schema for one (account, type).
func (c *SchemaCache) Invalidate(ctx context.Context, accountID uuid.UUID, t resource.Type) error {
	return c.client.Del(ctx, schemaKey(accountID, t)).Err()
}

// InvalidateType drops every account's cached schema for a resource type.
// Template reconciliation calls this after rewriting tenant schemas.
func (c *SchemaCache) InvalidateType(ctx context.Context, t resource.Type) error {
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("schema:*:%s", t), 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
