package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shirish73/equityms/docs"
	apppositions "github.com/shirish73/equityms/internal/application/service/positions"
	"github.com/shirish73/equityms/internal/config"
	"github.com/shirish73/equityms/internal/domain/interfaces"
	"github.com/shirish73/equityms/internal/infrastructure/broker"
	"github.com/shirish73/equityms/internal/infrastructure/ledger"
	"github.com/shirish73/equityms/internal/infrastructure/snapshot"
	infrahttp "github.com/shirish73/equityms/internal/interfaces/http"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatalf("invalid LOG_LEVEL %q: %v", cfg.LogLevel, err)
	}
	logger.SetLevel(level)
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	docs.SwaggerInfo.BasePath = "/api"
	docs.SwaggerInfo.Host = cfg.HTTP.Addr()

	var (
		store interfaces.LedgerStore
		opts  []apppositions.Option
	)
	if cfg.Postgres.DSN != "" {
		repo, err := ledger.NewRepository(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Fatalf("failed to init ledger repo: %v", err)
		}
		defer repo.Close()
		store = repo

		snapshots, err := snapshot.NewRepository(cfg.Postgres.DSN)
		if err != nil {
			logger.Fatalf("failed to init snapshot repo: %v", err)
		}
		defer snapshots.Close()
		opts = append(opts, apppositions.WithSnapshotStore(snapshots))
	} else {
		logger.Warn("DATABASE_DSN is empty, using the in-memory ledger")
		store = ledger.NewMemoryStore()
	}

	service := apppositions.NewService(store, apppositions.Config{
		StoreTimeout: cfg.Engine.StoreTimeout,
		Shards:       cfg.Engine.Shards,
	}, logger, opts...)
	if err := service.Recover(ctx); err != nil {
		logger.Fatalf("failed to recover positions: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Postgres.DSN != "" {
		snapshotter := apppositions.NewSnapshotter(service, cfg.Snapshot.Interval, cfg.Snapshot.EveryN, logger)
		service.AddListener(snapshotter)
		g.Go(func() error {
			return snapshotter.Run(gctx)
		})
	}

	if cfg.RabbitMQ.URL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer conn.Close()

		pub, err := broker.NewPublisher(conn, cfg.RabbitMQ.EventsExchange)
		if err != nil {
			logger.Fatalf("failed to init event publisher: %v", err)
		}
		defer pub.Close()

		batcher := broker.NewEventBatcher(broker.BatchConfig{
			Size:    cfg.RabbitMQ.BatchSize,
			Timeout: cfg.RabbitMQ.BatchTimeout,
		}, pub, logger)
		service.AddListener(batcher)
		g.Go(func() error {
			return batcher.Run(gctx)
		})

		consumer, err := broker.NewConsumer(cfg.RabbitMQ, service, logger)
		if err != nil {
			logger.Fatalf("failed to init rabbitmq consumer: %v", err)
		}
		if err := consumer.Start(gctx); err != nil {
			logger.Fatalf("failed to start rabbitmq consumer: %v", err)
		}
		defer consumer.Close()
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	cacheTTL := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	handler := infrahttp.NewHandler(service, redisClient, cacheTTL, logger)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: handler,
	}

	g.Go(func() error {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server stopped with error: %v", err)
	}
	logger.Info("server stopped")
}
