package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/inspecto-app/inspecto/app/models"
)

// SnapshotCache holds short-lived copies of tenant billing records. Cache
// failures are logged and treated as misses.
type SnapshotCache interface {
	Get(ctx context.Context, tenantID uint) (*models.Tenant, bool)
	Set(ctx context.Context, t *models.Tenant)
	Invalidate(ctx context.Context, tenantID uint)
}

func snapshotKey(tenantID uint) string {
	return fmt.Sprintf("billing:snapshot:%d", tenantID)
}

type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

func (c *RedisSnapshotCache) Get(ctx context.Context, tenantID uint) (*models.Tenant, bool) {
	raw, err := c.client.Get(ctx, snapshotKey(tenantID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			fiberlog.Warnf("[Billing] snapshot cache get tenant %d: %v", tenantID, err)
		}
		return nil, false
	}
	var t models.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		fiberlog.Warnf("[Billing] snapshot cache decode tenant %d: %v", tenantID, err)
		return nil, false
	}
	return &t, true
}

func (c *RedisSnapshotCache) Set(ctx context.Context, t *models.Tenant) {
	raw, err := json.Marshal(t)
	if err != nil {
		fiberlog.Warnf("[Billing] snapshot cache encode tenant %d: %v", t.ID, err)
		return
	}
	if err := c.client.Set(ctx, snapshotKey(t.ID), raw, c.ttl).Err(); err != nil {
		fiberlog.Warnf("[Billing] snapshot cache set tenant %d: %v", t.ID, err)
	}
}

func (c *RedisSnapshotCache) Invalidate(ctx context.Context, tenantID uint) {
	if err := c.client.Del(ctx, snapshotKey(tenantID)).Err(); err != nil {
		fiberlog.Warnf("[Billing] snapshot cache invalidate tenant %d: %v", tenantID, err)
	}
}

type nopSnapshotCache struct{}

func (nopSnapshotCache) Get(context.Context, uint) (*models.Tenant, bool) { return nil, false }
func (nopSnapshotCache) Set(context.Context, *models.Tenant)              {}
func (nopSnapshotCache) Invalidate(context.Context, uint)                 {}
