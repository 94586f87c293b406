package interfaces

import (
	"context"

	positions "github.com/shirish73/equityms/internal/domain/entity/positions"
)

// LedgerStore is the append-only history of accepted transactions. It assigns
// transaction ids and timestamps and performs no validation.
type LedgerStore interface {
	Append(ctx context.Context, tx positions.Transaction) (positions.Transaction, error)
	ListAll(ctx context.Context) ([]positions.Transaction, error)
	// ListAfter returns transactions with id greater than afterID in id
	// order. A non-positive limit means no limit.
	ListAfter(ctx context.Context, afterID int64, limit int) ([]positions.Transaction, error)
	// FindVersion returns the stored transaction for one trade version, if any.
	FindVersion(ctx context.Context, tradeID, version int64) (positions.Transaction, bool, error)
	Clear(ctx context.Context) error
	Close()
}

type SnapshotStore interface {
	Save(ctx context.Context, snapshot positions.Snapshot) error
	// Latest returns nil when no snapshot has been saved.
	Latest(ctx context.Context) (*positions.Snapshot, error)
	Delete(ctx context.Context) error
	Close()
}

// TransactionListener observes transactions after they are fully applied.
type TransactionListener interface {
	TransactionAccepted(tx positions.Transaction)
}
