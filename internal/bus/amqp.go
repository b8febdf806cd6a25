package bus

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stayspace/hooks/internal/config"
	"go.uber.org/zap"
)

// AMQPBus consumes from a durable topic exchange over AMQP 0-9-1.
type AMQPBus struct {
	cfg         config.AMQPRuntimeConfig
	routingKeys []string
	logger      *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPBus creates a bus bound to the given routing keys. No connection is
// opened until Start.
func NewAMQPBus(cfg config.AMQPRuntimeConfig, routingKeys []string, logger *zap.Logger) *AMQPBus {
	return &AMQPBus{cfg: cfg, routingKeys: routingKeys, logger: logger}
}

// Start declares the exchange, queue and bindings, then consumes with manual
// acknowledgment until ctx is cancelled or the channel closes.
func (b *AMQPBus) Start(ctx context.Context, handler HandlerFunc) error {
	conn, err := amqp.Dial(b.cfg.URL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(b.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare exchange %q: %w", b.cfg.Exchange, err)
	}
	queue, err := ch.QueueDeclare(b.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("declare queue %q: %w", b.cfg.Queue, err)
	}
	for _, key := range b.routingKeys {
		if err := ch.QueueBind(queue.Name, key, b.cfg.Exchange, false, nil); err != nil {
			conn.Close()
			return fmt.Errorf("bind %q to %q: %w", key, b.cfg.Exchange, err)
		}
	}
	if err := ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("consume %q: %w", queue.Name, err)
	}

	b.mu.Lock()
	b.conn = conn
	b.ch = ch
	b.mu.Unlock()

	go b.loop(ctx, deliveries, handler)
	return nil
}

func (b *AMQPBus) loop(ctx context.Context, deliveries <-chan amqp.Delivery, handler HandlerFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				b.logger.Warn("bus channel closed, consumer stopped")
				return
			}
			switch handler(ctx, Message{RoutingKey: d.RoutingKey, Body: d.Body}) {
			case Ack:
				if err := d.Ack(false); err != nil {
					b.logger.Error("ack failed", zap.Error(err))
				}
			case Discard:
				if err := d.Nack(false, false); err != nil {
					b.logger.Error("nack failed", zap.Error(err))
				}
			}
		}
	}
}

// Stop closes the channel and connection.
func (b *AMQPBus) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		b.ch.Close()
		b.ch = nil
	}
	if b.conn != nil {
		err := b.conn.Close()
		b.conn = nil
		return err
	}
	return nil
}
