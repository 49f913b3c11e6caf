package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultChannel = "booking.events"

// RedisGateway publishes events as JSON on a Redis pub/sub channel that the
// notification workers subscribe to.
type RedisGateway struct {
	client  *redis.Client
	channel string
}

func NewRedisGateway(client *redis.Client) *RedisGateway {
	return &RedisGateway{client: client, channel: defaultChannel}
}

func (g *RedisGateway) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}
	if err := g.client.Publish(ctx, g.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.Type, err)
	}
	return nil
}
