package notifier

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AmqpClient dials a broker. It exists so tests can replace the broker.
type AmqpClient interface {
	DialConfig(url string, config amqp.Config) (WrappedConnection, error)
}

type WrappedConnection interface {
	Channel() (WrappedChannel, error)
	IsClosed() bool
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

type WrappedChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpClient struct{}

// NewAmqpClient returns an AmqpClient backed by amqp091-go.
func NewAmqpClient() AmqpClient {
	return &amqpClient{}
}

type wrappedConnection struct {
	connection *amqp.Connection
}

type wrappedChannel struct {
	channel *amqp.Channel
}

func (*amqpClient) DialConfig(url string, config amqp.Config) (WrappedConnection, error) {
	connection, err := amqp.DialConfig(url, config)
	if err != nil {
		return nil, err
	}

	return &wrappedConnection{
		connection: connection,
	}, nil
}

func (c *wrappedConnection) Channel() (WrappedChannel, error) {
	channel, err := c.connection.Channel()
	if err != nil {
		return nil, err
	}
	return &wrappedChannel{channel: channel}, nil
}

func (c *wrappedConnection) IsClosed() bool {
	return c.connection.IsClosed()
}

func (c *wrappedConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.connection.NotifyClose(receiver)
}

func (c *wrappedConnection) Close() error {
	return c.connection.Close()
}

func (c *wrappedChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return c.channel.ExchangeDeclare(name, kind, durable, autoDelete, internal, noWait, args)
}

func (c *wrappedChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return c.channel.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (c *wrappedChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return c.channel.QueueBind(name, key, exchange, noWait, args)
}

func (c *wrappedChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return c.channel.Qos(prefetchCount, prefetchSize, global)
}

func (c *wrappedChannel) ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return c.channel.ConsumeWithContext(ctx, queue, consumer, autoAck, exclusive, noLocal, noWait, args)
}

func (c *wrappedChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return c.channel.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

func (c *wrappedChannel) Close() error {
	return c.channel.Close()
}
