package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const exchangeKind = "topic"

// Channel is the subset of *amqp.Channel the forwarder needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPForwarder republishes bus events to a topic exchange, routed by event type.
type AMQPForwarder struct {
	conn     *amqp.Connection
	channel  Channel
	exchange string
	timeout  time.Duration
	logger   *zerolog.Logger
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string, logger *zerolog.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	f, err := NewAMQPForwarder(ch, exchange, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	f.conn = conn
	return f, nil
}

// NewAMQPForwarder wraps an already opened channel.
func NewAMQPForwarder(ch Channel, exchange string, logger *zerolog.Logger) (*AMQPForwarder, error) {
	if err := ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &AMQPForwarder{channel: ch, exchange: exchange, timeout: 5 * time.Second, logger: logger}, nil
}

// Attach subscribes the forwarder to every booking event on the bus.
func (f *AMQPForwarder) Attach(bus *EventBus) {
	bus.SubscribeAll(f.Handle)
}

// Handle publishes a single event. Failures are logged and returned; the bus ignores them.
func (f *AMQPForwarder) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%d", event.ID),
		Type:         event.Type,
		Timestamp:    event.CreatedAt,
		Body:         event.Payload,
	}

	if err := f.channel.PublishWithContext(ctx, f.exchange, event.Type, false, false, msg); err != nil {
		f.logger.Error().Err(err).Str("event", event.Type).Msg("amqp publish failed")
		return fmt.Errorf("amqp publish: %w", err)
	}

	f.logger.Debug().Str("exchange", f.exchange).Str("event", event.Type).Msg("event forwarded")
	return nil
}

// Close releases the channel and connection.
func (f *AMQPForwarder) Close() error {
	if f.channel != nil {
		_ = f.channel.Close()
	}
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
