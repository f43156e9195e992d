package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/zradj/geets-backend/internal/observability"
)

// NewPublisher builds a RabbitMQ publisher or a noop publisher when AMQP is
// unavailable. A noop publisher degrades the process to single-instance
// fan-out; committed events remain visible through history.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		log.Warn().Str("reason", "empty amqp url").Msg("rabbitmq disabled, using noop publisher")
		return noopPublisher{}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq disabled, using noop publisher")
		return noopPublisher{}
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq disabled, using noop publisher")
		_ = conn.Close()
		return noopPublisher{}
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Warn().Err(err).Msg("rabbitmq disabled, using noop publisher")
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{}
	}

	log.Info().Str("exchange", exchange).Msg("rabbitmq publisher connected")
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	log.Debug().Str("routing_key", routingKey).Msg("noop publish")
	return nil
}

func (noopPublisher) Close() error { return nil }

// AMQPConsumer consumes events from an exclusive, auto-deleted queue bound to
// the topic exchange with one wildcard pattern per event kind.
type AMQPConsumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	kinds    []string
	queue    string
	tag      string
	wg       sync.WaitGroup
}

// NewAMQPConsumer connects and declares the per-process subscription.
func NewAMQPConsumer(amqpURL, exchange string, kinds []string) (*AMQPConsumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if err := ch.Qos(10, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	// Server-named, exclusive, auto-delete: the subscription dies with the
	// process; durability belongs to the database, not the queue.
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	for _, kind := range kinds {
		if err := ch.QueueBind(queue.Name, RoutingKeyPattern(kind), exchange, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("bind %s: %w", kind, err)
		}
	}

	return &AMQPConsumer{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		kinds:    kinds,
		queue:    queue.Name,
		tag:      "geets-" + queue.Name,
	}, nil
}

// Start consumes deliveries in the background. Each message is acknowledged
// only after the handler returns; handler failures drop the message without
// requeue so a poison event cannot loop forever.
func (c *AMQPConsumer) Start(handler Handler) error {
	deliveries, err := c.ch.Consume(c.queue, c.tag, false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for delivery := range deliveries {
			c.handleDelivery(handler, delivery)
		}
	}()
	log.Info().Str("queue", c.queue).Strs("kinds", c.kinds).Msg("rabbitmq consumer started")
	return nil
}

func (c *AMQPConsumer) handleDelivery(handler Handler, delivery amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("routing_key", delivery.RoutingKey).Msg("consumer handler crashed, dropping message")
			observability.IncBrokerConsumeError()
			_ = delivery.Nack(false, false)
		}
	}()

	if err := handler(context.Background(), delivery.Body); err != nil {
		log.Warn().Err(err).Str("routing_key", delivery.RoutingKey).Msg("dropping broker message")
		observability.IncBrokerConsumeError()
		_ = delivery.Nack(false, false)
		return
	}
	_ = delivery.Ack(false)
}

// Stop cancels the subscription, drains in-flight handler calls, then closes
// the connection.
func (c *AMQPConsumer) Stop(ctx context.Context) error {
	if err := c.ch.Cancel(c.tag, false); err != nil {
		log.Warn().Err(err).Msg("consumer cancel failed")
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

	_ = c.ch.Close()
	return c.conn.Close()
}
