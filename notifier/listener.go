package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openstack/ironic-prometheus-exporter/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

const consumerTag = "ironic-prometheus-exporter"

// Handler consumes one message body.
type Handler interface {
	Notify(ctx context.Context, body []byte) error
}

// Listener consumes oslo.messaging notifications from RabbitMQ and hands them to a Handler
// one at a time. Messages are acknowledged once handled; messages the handler fails on
// are rejected without requeue, since redelivery would fail the same way.
type Listener struct {
	client  AmqpClient
	cfg     config.AMQPConfig
	handler Handler
	metrics *Metrics
	logger  *slog.Logger
}

// NewListener returns a Listener. metrics may be nil.
func NewListener(client AmqpClient, cfg config.AMQPConfig, handler Handler, metrics *Metrics, logger *slog.Logger) *Listener {
	return &Listener{
		client:  client,
		cfg:     cfg,
		handler: handler,
		metrics: metrics,
		logger:  logger.With(slog.String("exchange", cfg.Exchange), slog.String("queue", cfg.QueueName())),
	}
}

// Run consumes until ctx is cancelled, reconnecting after ReconnectDelay whenever the
// connection is lost.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("notification listener disconnected", slog.Any("error", err), slog.Duration("retry_in", l.cfg.ReconnectDelay))

		timer := time.NewTimer(l.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (l *Listener) consume(ctx context.Context) error {
	conn, err := l.client.DialConfig(l.cfg.URL, amqp.Config{
		Heartbeat:  10 * time.Second,
		Properties: amqp.Table{"connection_name": consumerTag},
	})
	if err != nil {
		return fmt.Errorf("unable to connect: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("unable to open channel: %w", err)
	}
	defer ch.Close()

	deliveries, err := l.setup(ctx, ch)
	if err != nil {
		return err
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	l.setConnected(true)
	defer l.setConnected(false)
	l.logger.Info("notification listener connected")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("connection closed")
			}
			return fmt.Errorf("connection closed: %w", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			l.handle(ctx, d)
		}
	}
}

// setup declares the notification exchange and queue the way oslo.messaging does and
// starts consuming.
func (l *Listener) setup(ctx context.Context, ch WrappedChannel) (<-chan amqp.Delivery, error) {
	if err := ch.ExchangeDeclare(l.cfg.Exchange, amqp.ExchangeTopic, l.cfg.Durable, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("unable to declare exchange %s: %w", l.cfg.Exchange, err)
	}
	queue, err := ch.QueueDeclare(l.cfg.QueueName(), l.cfg.Durable, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to declare queue %s: %w", l.cfg.QueueName(), err)
	}
	for _, key := range l.cfg.RoutingKeys() {
		if err := ch.QueueBind(queue.Name, key, l.cfg.Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("unable to bind queue %s to %s: %w", queue.Name, key, err)
		}
	}
	if err := ch.Qos(l.cfg.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("unable to set prefetch: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, queue.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to consume from %s: %w", queue.Name, err)
	}
	return deliveries, nil
}

func (l *Listener) handle(ctx context.Context, d amqp.Delivery) {
	if err := l.handler.Notify(ctx, d.Body); err != nil {
		l.logger.Error("failed to handle notification", slog.String("routing_key", d.RoutingKey), slog.Any("error", err))
		if err := d.Nack(false, false); err != nil {
			l.logger.Warn("failed to reject notification", slog.Any("error", err))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		l.logger.Warn("failed to acknowledge notification", slog.Any("error", err))
	}
}

func (l *Listener) setConnected(connected bool) {
	if l.metrics == nil {
		return
	}
	if connected {
		l.metrics.amqpConnected.Set(1)
	} else {
		l.metrics.amqpConnected.Set(0)
	}
}
