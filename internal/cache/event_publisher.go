package cache

import (
	"context"
	"encoding/json"

	"pickupd/internal/model"

	"github.com/redis/go-redis/v9"
)

// EventsChannel is the Redis pub/sub channel events are fanned out on
const EventsChannel = "pickupd:events"

// EventPublisher forwards coordinator events to Redis subscribers
type EventPublisher struct {
	client *redis.Client
}

// NewEventPublisher creates a new Redis event publisher
func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{
		client: client,
	}
}

// Publish implements service.EventSink
func (p *EventPublisher) Publish(ctx context.Context, evt model.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, EventsChannel, data).Err()
}
