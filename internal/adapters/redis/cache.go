package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// SetSettlementLock takes a best-effort advisory lock on a gateway reference
// so a webhook redelivery and a manual verify do not both do the full
// pipeline. Losing the race is harmless: the database constraints are the
// actual idempotency guarantee.
func (c *Cache) SetSettlementLock(ctx context.Context, reference string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, "settle:"+reference, "1", ttl)
	return res.Val(), res.Err()
}

func (c *Cache) ReleaseSettlementLock(ctx context.Context, reference string) error {
	return c.client.Del(ctx, "settle:"+reference).Err()
}
