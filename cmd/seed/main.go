package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/shirish73/equityms/internal/application/service/seed"
	"github.com/shirish73/equityms/internal/config"
	"github.com/shirish73/equityms/internal/infrastructure/broker"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// main publishes the sample transaction sequence to the submissions exchange,
// in order, for a running server to consume.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if cfg.RabbitMQ.URL == "" {
		logger.Fatal("RABBITMQ_URL is required")
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatalf("connect rabbitmq: %v", err)
	}
	defer conn.Close()

	pub, err := broker.NewPublisher(conn, cfg.RabbitMQ.SubmissionsExchange)
	if err != nil {
		logger.Fatalf("init publisher: %v", err)
	}
	defer pub.Close()

	samples := seed.SampleTransactions()
	for i := range samples {
		msg := broker.SubmissionMessage{MessageID: uuid.NewString(), Candidate: &samples[i]}
		if err := pub.Publish(ctx, msg.MessageID, msg); err != nil {
			logger.Fatalf("publish sample %d: %v", i+1, err)
		}
		logger.WithFields(logrus.Fields{
			"message_id": msg.MessageID,
			"trade_id":   samples[i].TradeID,
			"action":     samples[i].Action,
		}).Debug("sample published")
	}

	logger.WithFields(logrus.Fields{
		"exchange": cfg.RabbitMQ.SubmissionsExchange,
		"count":    len(samples),
	}).Info("sample data published")
}
