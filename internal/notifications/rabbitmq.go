package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tableside/pkg/logger"
)

// rabbitChannel is the part of *amqp.Channel the publisher uses
type rabbitChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// RabbitPublisher publishes persistent messages to a durable queue through
// the default exchange. The channel is reopened lazily after a failure.
type RabbitPublisher struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   rabbitChannel
	open func() (rabbitChannel, error)
	log  *logger.Logger
}

func NewRabbitPublisher(url, queue string) *RabbitPublisher {
	rp := &RabbitPublisher{
		url:   url,
		queue: queue,
		log:   logger.GetDefault().WithComponent("notifications.rabbitmq"),
	}
	rp.open = rp.dial
	return rp
}

func declareQueue(ch rabbitChannel, queue string) error {
	_, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	return err
}

// channel returns an open channel with the queue declared; callers hold mu
func (rp *RabbitPublisher) channel() (rabbitChannel, error) {
	if rp.ch != nil && !rp.ch.IsClosed() {
		return rp.ch, nil
	}

	ch, err := rp.open()
	if err != nil {
		return nil, err
	}
	if err := declareQueue(ch, rp.queue); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq queue declare failed: %w", err)
	}
	rp.ch = ch
	return ch, nil
}

func (rp *RabbitPublisher) dial() (rabbitChannel, error) {
	if rp.conn == nil || rp.conn.IsClosed() {
		conn, err := amqp.Dial(rp.url)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq dial failed: %w", err)
		}
		rp.conn = conn
	}

	ch, err := rp.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel open failed: %w", err)
	}
	return ch, nil
}

func toPublishing(notification *Notification) (amqp.Publishing, error) {
	body, err := notification.ToJSON()
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    notification.ID.String(),
		Type:         string(notification.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}

func (rp *RabbitPublisher) Publish(ctx context.Context, notification *Notification) error {
	pub, err := toPublishing(notification)
	if err != nil {
		return err
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()

	ch, err := rp.channel()
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx, "", rp.queue, false, false, pub); err != nil {
		_ = ch.Close()
		rp.ch = nil
		return fmt.Errorf("rabbitmq publish failed: %w", err)
	}
	return nil
}

func (rp *RabbitPublisher) Close() error {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.ch != nil {
		_ = rp.ch.Close()
		rp.ch = nil
	}
	if rp.conn != nil {
		err := rp.conn.Close()
		rp.conn = nil
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
	}
	return nil
}

// RabbitConsumer drains the notification queue with a reconnect loop
type RabbitConsumer struct {
	url        string
	queue      string
	prefetch   int
	dispatcher *Dispatcher
	log        *logger.Logger
}

func NewRabbitConsumer(url, queue string, prefetch int, dispatcher *Dispatcher) *RabbitConsumer {
	if prefetch <= 0 {
		prefetch = 10
	}
	return &RabbitConsumer{
		url:        url,
		queue:      queue,
		prefetch:   prefetch,
		dispatcher: dispatcher,
		log:        logger.GetDefault().WithComponent("notifications.rabbitmq"),
	}
}

// Run blocks until ctx is done, reconnecting with backoff
func (rc *RabbitConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(rc.url)
		if err == nil {
			backoff = time.Second
			err = rc.consumeLoop(ctx, conn)
			_ = conn.Close()
		}
		if ctx.Err() != nil {
			return nil
		}

		rc.log.Warn("rabbitmq consumer disconnected, retrying", "backoff", backoff, logger.Err(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (rc *RabbitConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(rc.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	if err := declareQueue(ch, rc.queue); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(ctx, rc.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		rc.settle(ctx, d)
	}
	return errors.New("deliveries channel closed")
}

// settle acks delivered messages, drops poison ones and requeues the rest
func (rc *RabbitConsumer) settle(ctx context.Context, d amqp.Delivery) {
	err := rc.dispatcher.Handle(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrPoisonMessage):
		rc.log.Warn("dropping undeliverable notification", "message_id", d.MessageId, logger.Err(err))
		_ = d.Nack(false, false)
	default:
		_ = d.Nack(false, true)
	}
}

func (rc *RabbitConsumer) Close() error {
	return nil
}
