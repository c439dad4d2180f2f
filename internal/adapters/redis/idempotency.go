package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// VerifyCache remembers the response of a completed verify call so the
// buyer's post-redirect polling does not re-run the settlement pipeline.
type VerifyCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewVerifyCache(client *redis.Client, ttl time.Duration) *VerifyCache {
	return &VerifyCache{client: client, ttl: ttl}
}

type CachedResponse struct {
	Status int
	Result []byte
}

func (v *VerifyCache) Get(ctx context.Context, reference string) (*CachedResponse, error) {
	val, err := v.client.Get(ctx, "verify:"+reference).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp CachedResponse
	err = json.Unmarshal(val, &resp)
	return &resp, err
}

func (v *VerifyCache) Set(ctx context.Context, reference string, resp CachedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return v.client.Set(ctx, "verify:"+reference, data, v.ttl).Err()
}
