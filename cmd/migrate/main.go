package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/shirish73/equityms/internal/config"
	"github.com/shirish73/equityms/internal/infrastructure/ledger"
	"github.com/shirish73/equityms/internal/infrastructure/snapshot"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if cfg.Postgres.DSN == "" {
		logger.Fatal("DATABASE_DSN is required")
	}

	repo, err := ledger.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}
	defer repo.Close()
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatalf("migrate ledger: %v", err)
	}
	logger.Info("ledger schema ready")

	snapshots, err := snapshot.NewRepository(cfg.Postgres.DSN)
	if err != nil {
		logger.Fatalf("connect postgres via gorm: %v", err)
	}
	defer snapshots.Close()
	if err := snapshots.Migrate(ctx); err != nil {
		logger.Fatalf("migrate snapshots: %v", err)
	}
	logger.Info("snapshot schema ready")
}
