package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/ziflex/lecho/v3"
)

const (
	defaultHeartbeat = 10 * time.Second
	defaultLocale    = "en_US"

	msgReconnect = "RECONNECT_DONE"
	msgClose     = "CLOSE"
)

type listenerMsg = string

type AMQPClient interface {
	Listen(ctx context.Context, exchange string, routingKey string, queueName string, options ...AMQPListenOptions) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Close() error
}

type defaultAMQPClient struct {
	uri string

	mu   sync.RWMutex
	conn *amqp.Connection
	// consumers and the publisher get their own channels so publishing
	// flow control never stalls consumption
	consumeChannel  *amqp.Channel
	publishChannel  *amqp.Channel
	notifyCloseChan chan *amqp.Error

	listenersMu sync.Mutex
	listeners   []chan listenerMsg
	reconFlag   atomic.Bool

	logger *lecho.Logger
}

func DialAMQP(uri string, logger *lecho.Logger) (AMQPClient, error) {
	client := &defaultAMQPClient{
		uri:       uri,
		logger:    logger,
		listeners: []chan listenerMsg{},
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	go client.reconnectionLoop()
	return client, nil
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = time.Second * 10
	b.MaxElapsedTime = time.Minute
	return b
}

func (c *defaultAMQPClient) connect() error {
	conn, err := amqp.DialConfig(c.uri, amqp.Config{
		Heartbeat: defaultHeartbeat,
		Locale:    defaultLocale,
		Dial:      amqp.DefaultDial(time.Second * 3),
	})
	if err != nil {
		return err
	}
	consumeChannel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	publishChannel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	notifyCloseChan := make(chan *amqp.Error, 1)
	conn.NotifyClose(notifyCloseChan)

	c.mu.Lock()
	c.conn = conn
	c.consumeChannel = consumeChannel
	c.publishChannel = publishChannel
	c.notifyCloseChan = notifyCloseChan
	c.mu.Unlock()
	return nil
}

func (c *defaultAMQPClient) notifyListeners(msg listenerMsg) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	for _, listener := range c.listeners {
		listener <- msg
	}
}

func (c *defaultAMQPClient) reconnectionLoop() {
	for {
		c.mu.RLock()
		closed := c.notifyCloseChan
		c.mu.RUnlock()

		amqpError, ok := <-closed
		if !ok || amqpError == nil {
			// graceful Close
			return
		}
		c.logger.Error(amqpError)
		c.reconFlag.Store(true)

		c.logger.Info("amqp: trying to reconnect...")
		if err := backoff.Retry(c.connect, newBackoff()); err != nil {
			c.logger.Errorf("amqp: giving up reconnecting: %v", err)
			c.notifyListeners(msgClose)
			return
		}
		c.reconFlag.Store(false)
		c.logger.Info("amqp: successfully reconnected")
		c.notifyListeners(msgReconnect)
	}
}

func (c *defaultAMQPClient) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn.Close()
}

func (c *defaultAMQPClient) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	// short lived management channel
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	return ch.ExchangeDeclare(name, kind, durable, autoDelete, internal, noWait, args)
}

type ListenOptions struct {
	Durable    bool
	AutoDelete bool
	Internal   bool
	Wait       bool
	Exclusive  bool
	AutoAck    bool
}

type AMQPListenOptions = func(opts ListenOptions) ListenOptions

func WithDurable(durable bool) AMQPListenOptions {
	return func(opts ListenOptions) ListenOptions {
		opts.Durable = durable
		return opts
	}
}

func WithExclusive(exclusive bool) AMQPListenOptions {
	return func(opts ListenOptions) ListenOptions {
		opts.Exclusive = exclusive
		return opts
	}
}

func WithAutoAck(autoAck bool) AMQPListenOptions {
	return func(opts ListenOptions) ListenOptions {
		opts.AutoAck = autoAck
		return opts
	}
}

// Listen consumes routingKey on exchange through queueName. The returned
// channel survives reconnects and is closed when reconnecting gives up.
func (c *defaultAMQPClient) Listen(ctx context.Context, exchange string, routingKey string, queueName string, options ...AMQPListenOptions) (<-chan amqp.Delivery, error) {
	deliveries, err := c.consume(exchange, routingKey, queueName, options...)
	if err != nil {
		return nil, err
	}

	clientChannel := make(chan amqp.Delivery)
	notifyReconnectChan := make(chan listenerMsg, 2)
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, notifyReconnectChan)
	c.listenersMu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-notifyReconnectChan:
				switch msg {
				case msgReconnect:
					d, err := c.consume(exchange, routingKey, queueName, options...)
					if err != nil {
						c.logger.Error(err)
						close(clientChannel)
						return
					}
					c.logger.Infof("amqp: consuming %s again after reconnect", routingKey)
					deliveries = d
				case msgClose:
					close(clientChannel)
					return
				default:
					c.logger.Warnf("amqp: unrecognized message sent to listener: %s", msg)
				}
			case delivery, ok := <-deliveries:
				if !ok {
					// wait for the reconnection loop
					deliveries = nil
					continue
				}
				select {
				case clientChannel <- delivery:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return clientChannel, nil
}

func (c *defaultAMQPClient) consume(exchange string, routingKey string, queueName string, options ...AMQPListenOptions) (<-chan amqp.Delivery, error) {
	opts := ListenOptions{Durable: true}
	for _, opt := range options {
		opts = opt(opts)
	}

	c.mu.RLock()
	ch := c.consumeChannel
	c.mu.RUnlock()

	err := ch.ExchangeDeclare(exchange, "topic", opts.Durable, opts.AutoDelete, opts.Internal, opts.Wait, nil)
	if err != nil {
		return nil, err
	}
	queue, err := ch.QueueDeclare(
		queueName,
		opts.Durable,
		opts.AutoDelete,
		// non-exclusive queues spread requests over all bchhub instances
		opts.Exclusive,
		opts.Wait,
		// bounded redeliveries so a poison message cannot loop forever
		amqp.Table{"delivery-limit": 10},
	)
	if err != nil {
		return nil, err
	}
	if err := ch.QueueBind(queue.Name, routingKey, exchange, opts.Wait, nil); err != nil {
		return nil, err
	}
	return ch.Consume(queue.Name, "", opts.AutoAck, opts.Exclusive, false, opts.Wait, nil)
}

func (c *defaultAMQPClient) PublishWithContext(ctx context.Context, exchange string, key string, mandatory bool, immediate bool, msg amqp.Publishing) error {
	if c.reconFlag.Load() {
		err := backoff.Retry(func() error {
			if c.reconFlag.Load() {
				return errors.New("amqp: trying to publish during reconnect")
			}
			return nil
		}, backoff.WithContext(newBackoff(), ctx))
		if err != nil {
			return err
		}
	}
	c.mu.RLock()
	ch := c.publishChannel
	c.mu.RUnlock()
	return ch.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}
