package broker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/zradj/geets-backend/internal/observability"
)

// RedisPublisher publishes events to Redis pub/sub channels named after the
// routing key. Redis offers no durable queueing, so this transport trades the
// at-least-once guarantee for operational simplicity; the database remains
// the source of truth either way.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher constructs a RedisPublisher.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Publish sends the event to the channel named by the routing key.
func (p *RedisPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, routingKey, body).Err()
}

// Close closes the underlying client.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// RedisConsumer subscribes to every conversation event with one pattern
// subscription.
type RedisConsumer struct {
	rdb    *redis.Client
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewRedisConsumer opens the pattern subscription.
func NewRedisConsumer(ctx context.Context, rdb *redis.Client) (*RedisConsumer, error) {
	pubsub := rdb.PSubscribe(ctx, "conversation.*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	return &RedisConsumer{rdb: rdb, pubsub: pubsub}, nil
}

// Start consumes messages in the background. Handler failures are logged and
// the message is dropped; there is no requeue in pub/sub.
func (c *RedisConsumer) Start(handler Handler) error {
	messages := c.pubsub.Channel()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for msg := range messages {
			c.handleMessage(handler, msg)
		}
	}()
	log.Info().Msg("redis consumer started")
	return nil
}

func (c *RedisConsumer) handleMessage(handler Handler, msg *redis.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("channel", msg.Channel).Msg("consumer handler crashed, dropping message")
			observability.IncBrokerConsumeError()
		}
	}()

	if err := handler(context.Background(), []byte(msg.Payload)); err != nil {
		log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping broker message")
		observability.IncBrokerConsumeError()
	}
}

// Stop closes the subscription, waits for in-flight handler calls, then
// closes the client.
func (c *RedisConsumer) Stop(ctx context.Context) error {
	if err := c.pubsub.Close(); err != nil {
		log.Warn().Err(err).Msg("pubsub close failed")
	}

	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		log.Warn().Msg("consumer drain timed out")
	}

	return c.rdb.Close()
}
