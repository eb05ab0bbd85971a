package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection and channel settings for the Redis bus.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	IntentChannel string
	AuditChannel  string
}

// RedisPublisher publishes intents and audit mirrors over Redis PUB/SUB,
// one channel per topic.
type RedisPublisher struct {
	client        *redis.Client
	intentChannel string
	auditChannel  string
}

// NewRedisPublisher creates a Redis-backed publisher.
func NewRedisPublisher(cfg RedisConfig) *RedisPublisher {
	intentChannel := cfg.IntentChannel
	if intentChannel == "" {
		intentChannel = "governor.intents"
	}
	auditChannel := cfg.AuditChannel
	if auditChannel == "" {
		auditChannel = "governor.audit"
	}

	return &RedisPublisher{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		intentChannel: intentChannel,
		auditChannel:  auditChannel,
	}
}

// PublishIntent implements Publisher
func (p *RedisPublisher) PublishIntent(ctx context.Context, payload interface{}) error {
	return p.publish(ctx, p.intentChannel, payload)
}

// PublishAudit implements Publisher
func (p *RedisPublisher) PublishAudit(ctx context.Context, payload interface{}) error {
	return p.publish(ctx, p.auditChannel, payload)
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal bus payload: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	return nil
}

// Close implements Publisher
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
