package listener

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/release-engineering/greenwave-sub000/services"
	"go.uber.org/zap"
)

// Message is a decision update ready to be sent
type Message struct {
	ID          string            `json:"id"`
	Destination string            `json:"-"`
	Headers     map[string]string `json:"headers"`
	Body        map[string]any    `json:"body"`
}

// Publisher sends decision updates
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// RedisPublisher publishes decision updates on a Redis channel named after
// the message destination
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPublisher creates a publisher on top of an existing client
func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

// Publish implements Publisher
func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return services.WrapInternal("failed to encode decision update", err)
	}
	receivers, err := p.client.Publish(ctx, msg.Destination, payload).Result()
	if err != nil {
		return services.WrapExternal(fmt.Sprintf("failed to publish to %s", msg.Destination), err)
	}
	p.logger.Debug("published decision update",
		zap.String("message_id", msg.ID),
		zap.String("destination", msg.Destination),
		zap.Int64("receivers", receivers),
	)
	return nil
}

// LogPublisher writes decision updates to the log. It is used when no
// message broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher
func (p *LogPublisher) Publish(_ context.Context, msg Message) error {
	p.logger.Info("decision update",
		zap.String("message_id", msg.ID),
		zap.String("destination", msg.Destination),
		zap.Any("headers", msg.Headers),
		zap.Any("msg", msg.Body),
	)
	return nil
}
