package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	apppositions "github.com/shirish73/equityms/internal/application/service/positions"
	"github.com/shirish73/equityms/internal/config"
	domain "github.com/shirish73/equityms/internal/domain/entity/positions"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer reads submissions from a durable queue bound to the submissions
// exchange and feeds them to the aggregator one at a time.
type Consumer struct {
	cfg     config.RabbitMQConfig
	service *apppositions.Service
	logger  *logrus.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
	wg      sync.WaitGroup
}

// NewConsumer prepares a consumer for the given configuration.
func NewConsumer(cfg config.RabbitMQConfig, service *apppositions.Service, logger *logrus.Logger) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if cfg.SubmissionsQueue == "" {
		return nil, errors.New("rabbitmq submissions queue is required")
	}
	return &Consumer{
		cfg:     cfg,
		service: service,
		logger:  logger,
	}, nil
}

// Start establishes the AMQP connection and begins consuming submissions.
func (c *Consumer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	c.conn = conn

	deliveries, err := c.subscribe()
	if err != nil {
		c.Close()
		return err
	}
	c.wg.Add(1)
	go c.consumeLoop(ctx, deliveries)

	c.logger.Infof("rabbitmq consumer started: exchange=%s queue=%s", c.cfg.SubmissionsExchange, c.cfg.SubmissionsQueue)
	return nil
}

// Close stops consumption and waits for the in-flight delivery.
func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.wg.Wait()
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.cfg.SubmissionsExchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", c.cfg.SubmissionsExchange, err)
	}
	queue, err := ch.QueueDeclare(c.cfg.SubmissionsQueue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", c.cfg.SubmissionsQueue, err)
	}
	if err := ch.QueueBind(queue.Name, "", c.cfg.SubmissionsExchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue %s to %s: %w", queue.Name, c.cfg.SubmissionsExchange, err)
	}
	prefetch := c.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("start consume: %w", err)
	}
	c.channel = ch
	return deliveries, nil
}

func (c *Consumer) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.WithField("queue", c.cfg.SubmissionsQueue)
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			c.settle(log, &delivery, c.handleDelivery(ctx, &delivery))
		}
	}
}

// settle acks accepted submissions, requeues retryable failures and drops
// everything else.
func (c *Consumer) settle(log *logrus.Entry, delivery *amqp.Delivery, err error) {
	if err == nil {
		if ackErr := delivery.Ack(false); ackErr != nil {
			log.WithError(ackErr).Warn("failed to ack delivery")
		}
		return
	}
	requeue := domain.IsRetryable(err)
	log.WithError(err).WithFields(logrus.Fields{
		"message_id": delivery.MessageId,
		"requeue":    requeue,
	}).Warn("submission rejected")
	if nackErr := delivery.Nack(false, requeue); nackErr != nil {
		log.WithError(nackErr).Warn("failed to nack delivery")
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, delivery *amqp.Delivery) error {
	var payload SubmissionMessage
	if err := json.Unmarshal(delivery.Body, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.Candidate == nil {
		return errors.New("submission payload has no candidate")
	}
	tx, err := c.service.Submit(ctx, *payload.Candidate)
	if err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"message_id":     payload.MessageID,
		"transaction_id": tx.TransactionID,
		"trade_id":       tx.TradeID,
		"version":        tx.Version,
	}).Debug("submission accepted")
	return nil
}
