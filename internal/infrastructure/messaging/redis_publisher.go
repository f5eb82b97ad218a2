package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/bookwise/payment-service/internal/domain/event"
)

// RedisPublisher publishes domain events to Redis pub/sub channels. The
// booking-completion and notification services subscribe to these channels.
type RedisPublisher struct {
	client        *redis.Client
	channelPrefix string
	logger        *zap.Logger
}

// NewRedisPublisher creates a publisher connected to the given Redis address
func NewRedisPublisher(addr, password string, db int, channelPrefix string, logger *zap.Logger) (event.Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis event publisher connected",
		zap.String("addr", addr),
		zap.String("channel_prefix", channelPrefix))

	return &RedisPublisher{
		client:        client,
		channelPrefix: channelPrefix,
		logger:        logger,
	}, nil
}

// Publish serializes the payload and publishes it to the event type's channel
func (p *RedisPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	channel := fmt.Sprintf("%s:%s", p.channelPrefix, eventType)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", channel, err)
	}

	p.logger.Debug("Domain event published",
		zap.String("channel", channel),
		zap.String("event_type", eventType))

	return nil
}

// Close closes the underlying Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
