package notify

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"

	"bot-core/pkg/i18n"
)

// RedisNotifier publishes events to a Redis channel so external consumers
// (dashboards, downstream workers) can react without polling the API.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier connects a notifier to the given Redis address.
func NewRedisNotifier(addr, channel string) *RedisNotifier {
	client := redis.NewClient(&redis.Options{Addr: addr})
	log.Printf(i18n.Get("RedisNotifierEnabled"), channel)
	return &RedisNotifier{client: client, channel: channel}
}

func (r *RedisNotifier) Name() string { return "redis" }

// Notify publishes the serialized event on the configured channel.
func (r *RedisNotifier) Notify(ctx context.Context, event string, payload []byte) error {
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Close releases the underlying connection pool.
func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
