package cache

import (
	"context"
	"encoding/json"
	"time"

	"pickupd/internal/model"

	"github.com/redis/go-redis/v9"
)

// QueueCache mirrors the queue snapshot into Redis for other processes
type QueueCache interface {
	SetState(ctx context.Context, state *model.QueueState) error
	GetState(ctx context.Context) (*model.QueueState, error)
}

type queueCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQueueCache creates a new queue cache
func NewQueueCache(client *redis.Client) QueueCache {
	return &queueCache{
		client: client,
		ttl:    time.Hour,
	}
}

func (c *queueCache) key() string {
	return "pickupd:queue"
}

func (c *queueCache) SetState(ctx context.Context, state *model.QueueState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(), data, c.ttl).Err()
}

func (c *queueCache) GetState(ctx context.Context) (*model.QueueState, error) {
	data, err := c.client.Get(ctx, c.key()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state model.QueueState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, err
	}
	return &state, nil
}
