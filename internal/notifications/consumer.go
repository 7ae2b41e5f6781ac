package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"tableside/pkg/logger"
)

// Consumer reads notifications from a broker until ctx is cancelled
type Consumer interface {
	Run(ctx context.Context) error
	Close() error
}

// ErrPoisonMessage marks a message that can never be delivered
var ErrPoisonMessage = errors.New("undeliverable notification message")

// Dispatcher decodes broker messages and delivers them by email with retries
type Dispatcher struct {
	email      EmailService
	maxRetries int
	backoff    time.Duration
	log        *logger.Logger
}

func NewDispatcher(email EmailService, maxRetries int, backoff time.Duration) *Dispatcher {
	return &Dispatcher{
		email:      email,
		maxRetries: maxRetries,
		backoff:    backoff,
		log:        logger.GetDefault().WithComponent("notifications.dispatcher"),
	}
}

// Handle delivers one message body. Expired notifications are skipped.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) error {
	var notification Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		return fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}

	if notification.IsExpired() {
		d.log.InfoContext(ctx, "notification expired, skipping", "notification_id", notification.ID)
		return nil
	}

	return d.executeWithRetry(ctx, &notification)
}

func (d *Dispatcher) executeWithRetry(ctx context.Context, notification *Notification) error {
	var err error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		err = d.email.Send(ctx, notification)
		if err == nil {
			if attempt > 0 {
				d.log.InfoContext(ctx, "notification delivered after retries", "notification_id", notification.ID, "retries", attempt)
			}
			return nil
		}
		if attempt == d.maxRetries {
			break
		}

		// exponential backoff
		delay := d.backoff * time.Duration(1<<attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.log.ErrorContext(ctx, "notification delivery failed", "notification_id", notification.ID, "attempts", d.maxRetries+1, logger.Err(err))
	return err
}

// ConsumerConfig contains the Kafka consumer group settings
type ConsumerConfig struct {
	Brokers           []string
	GroupID           string
	Topics            []string
	NumWorkers        int
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	MaxProcessingTime time.Duration
	OffsetOldest      bool
}

func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:           []string{"localhost:9092"},
		GroupID:           "tableside-notification-workers",
		Topics:            []string{"notifications"},
		NumWorkers:        2,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		MaxProcessingTime: 5 * time.Minute,
	}
}

type KafkaConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        *ConsumerConfig
	dispatcher    *Dispatcher
	log           *logger.Logger
}

func NewKafkaConsumer(config *ConsumerConfig, dispatcher *Dispatcher) (*KafkaConsumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Group.Session.Timeout = config.SessionTimeout
	saramaConfig.Consumer.Group.Heartbeat.Interval = config.HeartbeatInterval
	saramaConfig.Consumer.MaxProcessingTime = config.MaxProcessingTime
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second
	if config.OffsetOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	consumerGroup, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &KafkaConsumer{
		consumerGroup: consumerGroup,
		config:        config,
		dispatcher:    dispatcher,
		log:           logger.GetDefault().WithComponent("notifications.kafka"),
	}, nil
}

// Run starts the workers and blocks until ctx is done
func (kc *KafkaConsumer) Run(ctx context.Context) error {
	numWorkers := kc.config.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	kc.log.InfoContext(ctx, "starting notification consumers", "workers", numWorkers, "topics", kc.config.Topics)

	go kc.handleErrors(ctx)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			kc.runWorker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	return nil
}

func (kc *KafkaConsumer) runWorker(ctx context.Context, workerID int) {
	handler := &consumerGroupHandler{
		dispatcher: kc.dispatcher,
		workerID:   workerID,
		log:        kc.log,
	}

	for {
		if err := kc.consumerGroup.Consume(ctx, kc.config.Topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			kc.log.Warn("consume failed", "worker", workerID, logger.Err(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (kc *KafkaConsumer) handleErrors(ctx context.Context) {
	for err := range kc.consumerGroup.Errors() {
		kc.log.WarnContext(ctx, "consumer group error", logger.Err(err))
	}
}

func (kc *KafkaConsumer) Close() error {
	if err := kc.consumerGroup.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	return nil
}

type consumerGroupHandler struct {
	dispatcher *Dispatcher
	workerID   int
	log        *logger.Logger
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks delivered and poison messages; a delivery failure
// leaves the offset for the next session to retry
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			err := h.dispatcher.Handle(session.Context(), message.Value)
			switch {
			case err == nil:
				session.MarkMessage(message, "")
			case errors.Is(err, ErrPoisonMessage):
				h.log.Warn("dropping undecodable notification", "worker", h.workerID,
					"partition", message.Partition, "offset", message.Offset, logger.Err(err))
				session.MarkMessage(message, "")
			default:
				return err
			}

		case <-session.Context().Done():
			return nil
		}
	}
}
