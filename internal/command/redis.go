package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisDispatcher publishes executions as JSON on a Redis channel for host
// processes subscribed to it.
type RedisDispatcher struct {
	client  redis.Cmdable
	channel string
}

// NewRedisDispatcher creates a dispatcher publishing to channel.
func NewRedisDispatcher(client redis.Cmdable, channel string) *RedisDispatcher {
	return &RedisDispatcher{client: client, channel: channel}
}

// Name implements Dispatcher.
func (d *RedisDispatcher) Name() string { return "redis" }

// Execute implements Dispatcher.
func (d *RedisDispatcher) Execute(ctx context.Context, exec Execution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}
	if err := d.client.Publish(ctx, d.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %q: %w", d.channel, err)
	}
	return nil
}

// HealthCheck pings the server.
func (d *RedisDispatcher) HealthCheck(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}
