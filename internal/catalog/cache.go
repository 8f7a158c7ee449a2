package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/drluca/shopstream/orderform/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const snapshotKey = "orderform:catalog:v1"

// CachedLoader keeps the assembled catalog in Redis for a short TTL. The cache is
// only a display optimisation: reservations always re-read live inventory.
type CachedLoader struct {
	next Loader
	rdb  *redis.Client
	ttl  time.Duration
}

func NewCachedLoader(next Loader, rdb *redis.Client, ttl time.Duration) *CachedLoader {
	return &CachedLoader{next: next, rdb: rdb, ttl: ttl}
}

// LoadCatalog serves the cached snapshot when present. Redis failures fall back to
// the underlying loader; they never fail the request.
func (c *CachedLoader) LoadCatalog(ctx context.Context) ([]models.Item, error) {
	raw, err := c.rdb.Get(ctx, snapshotKey).Bytes()
	switch {
	case err == nil:
		var items []models.Item
		if err = json.Unmarshal(raw, &items); err == nil {
			return items, nil
		}
		log.Warn().Err(err).Msg("Discarding undecodable catalog snapshot")
	case errors.Is(err, redis.Nil):
	default:
		log.Warn().Err(err).Msg("Catalog cache unavailable, loading from database")
	}

	items, err := c.next.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode catalog snapshot: %w", err)
	}
	if err := c.rdb.Set(ctx, snapshotKey, body, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to store catalog snapshot")
	}
	return items, nil
}

// Invalidate drops the snapshot after inventory changed.
func (c *CachedLoader) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, snapshotKey).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate catalog snapshot")
	}
}
