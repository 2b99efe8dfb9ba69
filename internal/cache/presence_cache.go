package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// PresenceCache keeps the set of online player ids in Redis
type PresenceCache interface {
	Add(ctx context.Context, playerID string) error
	Remove(ctx context.Context, playerID string) error
	Reset(ctx context.Context) error
}

type presenceCache struct {
	client *redis.Client
}

func NewPresenceCache(client *redis.Client) PresenceCache {
	return &presenceCache{
		client: client,
	}
}

func (c *presenceCache) key() string {
	return "pickupd:online-players"
}

func (c *presenceCache) Add(ctx context.Context, playerID string) error {
	return c.client.SAdd(ctx, c.key(), playerID).Err()
}

func (c *presenceCache) Remove(ctx context.Context, playerID string) error {
	return c.client.SRem(ctx, c.key(), playerID).Err()
}

// Reset clears stale entries left behind by a previous process
func (c *presenceCache) Reset(ctx context.Context) error {
	return c.client.Del(ctx, c.key()).Err()
}
