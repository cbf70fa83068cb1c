package telemetry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher mirrors connection state into a Redis hash and publishes
// it to a pub/sub channel in one pipeline, directly adapting the teacher's
// WriteAndPublishString helper (pkg/redis/client.go) from scooter-state
// mirroring to connection-state mirroring.
type RedisPublisher struct {
	client *redis.Client
	ctx    context.Context
	key    string
	field  string
}

// NewRedisPublisher dials addr and returns a Publisher that writes
// connection state under hash key (default "cmdlink:link" if empty) and
// publishes on a channel of the same name.
func NewRedisPublisher(addr, password string, db int, key string) (*RedisPublisher, error) {
	if key == "" {
		key = "cmdlink:link"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to redis: %w", err)
	}

	return &RedisPublisher{client: client, ctx: ctx, key: key}, nil
}

// PublishState implements Publisher.
func (p *RedisPublisher) PublishState(role, address, state string) {
	field := role + ":" + address
	pipe := p.client.Pipeline()
	pipe.HSet(p.ctx, p.key, field, state)
	pipe.Publish(p.ctx, p.key, field+":"+state)
	// Best effort: telemetry is observability, never a correctness
	// dependency, so a failed publish is not escalated to the caller.
	_, _ = pipe.Exec(p.ctx)
}

// Close releases the underlying Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
