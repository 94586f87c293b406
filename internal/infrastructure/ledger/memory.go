package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/shirish73/equityms/internal/domain/entity/positions"
)

// MemoryStore keeps the ledger in process memory.
type MemoryStore struct {
	mu  sync.RWMutex
	txs []domain.Transaction
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) Append(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.now().UTC()
	if n := len(m.txs); n > 0 && ts.Before(m.txs[n-1].Timestamp) {
		ts = m.txs[n-1].Timestamp
	}
	tx.TransactionID = int64(len(m.txs)) + 1
	tx.Timestamp = ts
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *MemoryStore) ListAll(ctx context.Context) ([]domain.Transaction, error) {
	return m.ListAfter(ctx, 0, 0)
}

func (m *MemoryStore) ListAfter(ctx context.Context, afterID int64, limit int) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := sort.Search(len(m.txs), func(i int) bool {
		return m.txs[i].TransactionID > afterID
	})
	end := len(m.txs)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]domain.Transaction, end-start)
	copy(out, m.txs[start:end])
	return out, nil
}

func (m *MemoryStore) FindVersion(ctx context.Context, tradeID, version int64) (domain.Transaction, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.txs) - 1; i >= 0; i-- {
		if m.txs[i].TradeID == tradeID && m.txs[i].Version == version {
			return m.txs[i], true, nil
		}
	}
	return domain.Transaction{}, false, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = nil
	return nil
}

func (m *MemoryStore) Close() {}
