package snapshot

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/shirish73/equityms/internal/domain/entity/positions"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const insertBatchSize = 500

// Repository keeps the latest aggregate snapshot in PostgreSQL. Saving a
// snapshot replaces the previous one.
type Repository struct {
	db *gorm.DB
}

func NewRepository(dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() {
	if r == nil || r.db == nil {
		return
	}
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Migrate creates or updates the snapshot tables.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&SnapshotModel{}, &TradeStateModel{}, &PositionModel{})
}

func (r *Repository) Save(ctx context.Context, snap domain.Snapshot) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteAll(tx); err != nil {
			return err
		}
		model := SnapshotModel{
			LastTransactionID: snap.LastTransactionID,
			TakenAt:           snap.TakenAt,
		}
		if err := tx.Omit("Trades", "Positions").Create(&model).Error; err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}

		trades := make([]TradeStateModel, 0, len(snap.Trades))
		for _, t := range snap.Trades {
			trades = append(trades, TradeStateModel{
				SnapshotID:   model.ID,
				TradeID:      t.TradeID,
				Status:       t.Status.String(),
				Version:      t.Version,
				SecurityCode: t.SecurityCode,
				Effect:       t.Effect,
			})
		}
		if len(trades) > 0 {
			if err := tx.CreateInBatches(trades, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert snapshot trades: %w", err)
			}
		}

		positions := make([]PositionModel, 0, len(snap.Positions))
		for code, qty := range snap.Positions {
			positions = append(positions, PositionModel{
				SnapshotID:   model.ID,
				SecurityCode: code,
				Quantity:     qty,
			})
		}
		if len(positions) > 0 {
			if err := tx.CreateInBatches(positions, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert snapshot positions: %w", err)
			}
		}
		return nil
	})
}

func (r *Repository) Latest(ctx context.Context) (*domain.Snapshot, error) {
	var model SnapshotModel
	err := r.db.WithContext(ctx).
		Preload("Trades").
		Preload("Positions").
		Order("last_transaction_id DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return toDomain(model)
}

func (r *Repository) Delete(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(deleteAll)
}

func deleteAll(tx *gorm.DB) error {
	all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
	if err := all.Delete(&PositionModel{}).Error; err != nil {
		return fmt.Errorf("delete snapshot positions: %w", err)
	}
	if err := all.Delete(&TradeStateModel{}).Error; err != nil {
		return fmt.Errorf("delete snapshot trades: %w", err)
	}
	if err := all.Delete(&SnapshotModel{}).Error; err != nil {
		return fmt.Errorf("delete snapshots: %w", err)
	}
	return nil
}

func toDomain(model SnapshotModel) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{
		LastTransactionID: model.LastTransactionID,
		TakenAt:           model.TakenAt.UTC(),
		Trades:            make([]domain.TradeState, 0, len(model.Trades)),
		Positions:         make(map[string]int64, len(model.Positions)),
	}
	for _, t := range model.Trades {
		status, err := domain.ParseTradeStatus(t.Status)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d trade %d: %w", model.ID, t.TradeID, err)
		}
		snap.Trades = append(snap.Trades, domain.TradeState{
			TradeID:      t.TradeID,
			Status:       status,
			Version:      t.Version,
			SecurityCode: t.SecurityCode,
			Effect:       t.Effect,
		})
	}
	for _, p := range model.Positions {
		snap.Positions[p.SecurityCode] = p.Quantity
	}
	return snap, nil
}
