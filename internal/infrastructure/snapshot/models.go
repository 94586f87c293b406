package snapshot

import "time"

type SnapshotModel struct {
	ID                uint              `gorm:"primaryKey;column:id"`
	LastTransactionID int64             `gorm:"column:last_transaction_id;type:bigint;not null;index"`
	TakenAt           time.Time         `gorm:"column:taken_at;type:timestamptz;not null"`
	Trades            []TradeStateModel `gorm:"foreignKey:SnapshotID;constraint:OnDelete:CASCADE"`
	Positions         []PositionModel   `gorm:"foreignKey:SnapshotID;constraint:OnDelete:CASCADE"`
}

func (SnapshotModel) TableName() string { return "position_snapshots" }

type TradeStateModel struct {
	SnapshotID   uint   `gorm:"primaryKey;autoIncrement:false;column:snapshot_id"`
	TradeID      int64  `gorm:"primaryKey;autoIncrement:false;column:trade_id;type:bigint"`
	Status       string `gorm:"column:status;type:varchar(16);not null"`
	Version      int64  `gorm:"column:version;type:bigint;not null"`
	SecurityCode string `gorm:"column:security_code;type:varchar(32);not null"`
	Effect       int64  `gorm:"column:effect;type:bigint;not null"`
}

func (TradeStateModel) TableName() string { return "position_snapshot_trades" }

type PositionModel struct {
	SnapshotID   uint   `gorm:"primaryKey;autoIncrement:false;column:snapshot_id"`
	SecurityCode string `gorm:"primaryKey;column:security_code;type:varchar(32)"`
	Quantity     int64  `gorm:"column:quantity;type:bigint;not null"`
}

func (PositionModel) TableName() string { return "position_snapshot_positions" }
