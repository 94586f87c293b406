package positions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirish73/equityms/internal/application/service/seed"
	domain "github.com/shirish73/equityms/internal/domain/entity/positions"
	"github.com/shirish73/equityms/internal/infrastructure/ledger"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestService(store *ledger.MemoryStore, opts ...Option) *Service {
	return NewService(store, Config{StoreTimeout: time.Second, Shards: 8}, quietLogger(), opts...)
}

func insert(tradeID int64, code string, qty int64, side domain.BuySell) domain.Candidate {
	return domain.Candidate{TradeID: tradeID, SecurityCode: code, Quantity: qty, BuySell: side, Action: domain.ActionInsert}
}

func update(tradeID int64, code string, qty int64, side domain.BuySell) domain.Candidate {
	return domain.Candidate{TradeID: tradeID, SecurityCode: code, Quantity: qty, BuySell: side, Action: domain.ActionUpdate}
}

func cancel(tradeID int64, code string) domain.Candidate {
	return domain.Candidate{TradeID: tradeID, SecurityCode: code, Quantity: 1, BuySell: domain.Buy, Action: domain.ActionCancel}
}

// flakyLedger fails appends while fail is set.
type flakyLedger struct {
	*ledger.MemoryStore
	fail atomic.Bool
}

func (f *flakyLedger) Append(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if f.fail.Load() {
		return domain.Transaction{}, errors.New("connection refused")
	}
	return f.MemoryStore.Append(ctx, tx)
}

// lossyAckLedger commits every append and then reports a failure, like a
// commit whose acknowledgement was lost.
type lossyAckLedger struct {
	*ledger.MemoryStore
}

func (l lossyAckLedger) Append(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if _, err := l.MemoryStore.Append(ctx, tx); err != nil {
		return domain.Transaction{}, err
	}
	return domain.Transaction{}, context.DeadlineExceeded
}

// gatedLedger parks every append until release is closed.
type gatedLedger struct {
	*ledger.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func newGatedLedger() *gatedLedger {
	return &gatedLedger{
		MemoryStore: ledger.NewMemoryStore(),
		entered:     make(chan struct{}, 16),
		release:     make(chan struct{}),
	}
}

func (g *gatedLedger) Append(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return domain.Transaction{}, ctx.Err()
	}
	return g.MemoryStore.Append(ctx, tx)
}

// stuckLedger never completes an append before its deadline.
type stuckLedger struct {
	*ledger.MemoryStore
}

func (s stuckLedger) Append(ctx context.Context, _ domain.Transaction) (domain.Transaction, error) {
	<-ctx.Done()
	return domain.Transaction{}, ctx.Err()
}

// rejectingLedger refuses large quantities the way a column constraint
// refuses a value.
type rejectingLedger struct {
	*ledger.MemoryStore
}

func (r rejectingLedger) Append(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if tx.Quantity > 1000 {
		return domain.Transaction{}, fmt.Errorf("%w: quantity out of range", domain.ErrValidation)
	}
	return r.MemoryStore.Append(ctx, tx)
}

// uniqueLedger enforces one row per trade version. It can drop the
// acknowledgement of a committed append and fail version lookups.
type uniqueLedger struct {
	*ledger.MemoryStore
	dropAck     atomic.Bool
	lookupFails atomic.Bool
}

func (u *uniqueLedger) Append(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	_, exists, err := u.MemoryStore.FindVersion(ctx, tx.TradeID, tx.Version)
	if err != nil {
		return domain.Transaction{}, err
	}
	if exists {
		return domain.Transaction{}, fmt.Errorf("%w: duplicate version", domain.ErrConcurrentModification)
	}
	stored, err := u.MemoryStore.Append(ctx, tx)
	if err != nil {
		return domain.Transaction{}, err
	}
	if u.dropAck.Load() {
		return domain.Transaction{}, errors.New("connection reset by peer")
	}
	return stored, nil
}

func (u *uniqueLedger) FindVersion(ctx context.Context, tradeID, version int64) (domain.Transaction, bool, error) {
	if u.lookupFails.Load() {
		return domain.Transaction{}, false, errors.New("connection refused")
	}
	return u.MemoryStore.FindVersion(ctx, tradeID, version)
}

type memorySnapshots struct {
	mu    sync.Mutex
	snap  *domain.Snapshot
	saves int
}

func (m *memorySnapshots) Save(_ context.Context, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = &snap
	m.saves++
	return nil
}

func (m *memorySnapshots) Latest(context.Context) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, nil
	}
	cp := *m.snap
	return &cp, nil
}

func (m *memorySnapshots) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}

func (m *memorySnapshots) Close() {}

func (m *memorySnapshots) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type recordingListener struct {
	mu  sync.Mutex
	txs []domain.Transaction
}

func (r *recordingListener) TransactionAccepted(tx domain.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
}

func (r *recordingListener) seen() []domain.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Transaction(nil), r.txs...)
}

func TestSubmitSampleSequence(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(ledger.NewMemoryStore())

	accepted, err := seed.Load(ctx, svc)
	require.NoError(t, err)
	require.Len(t, accepted, 6)

	wantVersions := []int64{1, 1, 1, 2, 2, 1}
	for i, tx := range accepted {
		assert.Equal(t, int64(i+1), tx.TransactionID)
		assert.Equal(t, wantVersions[i], tx.Version, "transaction %d", tx.TransactionID)
		assert.False(t, tx.Timestamp.IsZero())
	}

	assert.Equal(t, map[string]int64{"REL": 60, "ITC": 0, "INF": 50}, svc.Positions())

	qty, ok := svc.Position("ITC")
	assert.True(t, ok)
	assert.Equal(t, int64(0), qty)
	_, ok = svc.Position("TCS")
	assert.False(t, ok)

	txs, err := svc.Transactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, accepted, txs)
}

func TestSubmitNormalizesSecurityCode(t *testing.T) {
	svc := newTestService(ledger.NewMemoryStore())

	tx, err := svc.Submit(context.Background(), insert(1, " rel", 5, domain.Buy))
	require.NoError(t, err)
	assert.Equal(t, "REL", tx.SecurityCode)
	assert.Equal(t, map[string]int64{"REL": 5}, svc.Positions())
}

func TestSubmitRejectionsLeaveNoTrace(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	listener := &recordingListener{}
	svc := newTestService(store, WithListener(listener))

	_, err := svc.Submit(ctx, insert(1, "REL", 50, domain.Buy))
	require.NoError(t, err)

	tests := []struct {
		name      string
		candidate domain.Candidate
		want      error
	}{
		{name: "update unknown trade", candidate: update(5, "REL", 10, domain.Buy), want: domain.ErrUnknownTrade},
		{name: "cancel unknown trade", candidate: cancel(5, "REL"), want: domain.ErrUnknownTrade},
		{name: "duplicate insert", candidate: insert(1, "REL", 10, domain.Buy), want: domain.ErrDuplicateInsert},
		{name: "zero quantity", candidate: insert(3, "REL", 0, domain.Buy), want: domain.ErrValidation},
		{name: "bad trade id", candidate: insert(0, "REL", 3, domain.Buy), want: domain.ErrValidation},
		{name: "bad side", candidate: insert(3, "REL", 3, domain.BuySell("Short")), want: domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.candidate)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, domain.IsRetryable(err))
		})
	}

	txs, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, map[string]int64{"REL": 50}, svc.Positions())
	assert.Len(t, listener.seen(), 1)
}

func TestSubmitAfterCancelIsRejected(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(ledger.NewMemoryStore())

	_, err := svc.Submit(ctx, insert(2, "ITC", 40, domain.Sell))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, cancel(2, "ITC"))
	require.NoError(t, err)

	_, err = svc.Submit(ctx, update(2, "ITC", 10, domain.Buy))
	assert.ErrorIs(t, err, domain.ErrTradeCancelled)
	_, err = svc.Submit(ctx, cancel(2, "ITC"))
	assert.ErrorIs(t, err, domain.ErrTradeCancelled)
	_, err = svc.Submit(ctx, insert(2, "ITC", 10, domain.Buy))
	assert.ErrorIs(t, err, domain.ErrDuplicateInsert)

	assert.Equal(t, map[string]int64{"ITC": 0}, svc.Positions())
}

func TestUpdateMovesTradeBetweenSecurities(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(ledger.NewMemoryStore())

	_, err := svc.Submit(ctx, insert(1, "REL", 50, domain.Buy))
	require.NoError(t, err)
	tx, err := svc.Submit(ctx, update(1, "INF", 20, domain.Sell))
	require.NoError(t, err)
	assert.Equal(t, int64(2), tx.Version)
	assert.Equal(t, map[string]int64{"REL": 0, "INF": -20}, svc.Positions())

	_, err = svc.Submit(ctx, cancel(1, "TCS"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"REL": 0, "INF": 0}, svc.Positions())
}

func TestStoreFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := &flakyLedger{MemoryStore: ledger.NewMemoryStore()}
	listener := &recordingListener{}
	svc := NewService(store, Config{StoreTimeout: time.Second, Shards: 4}, quietLogger(), WithListener(listener))

	store.fail.Store(true)
	_, err := svc.Submit(ctx, insert(1, "REL", 50, domain.Buy))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.True(t, domain.IsRetryable(err))
	assert.Empty(t, svc.Positions())
	assert.Empty(t, listener.seen())

	store.fail.Store(false)
	tx, err := svc.Submit(ctx, insert(1, "REL", 50, domain.Buy))
	require.NoError(t, err)
	assert.Equal(t, int64(1), tx.Version)

	store.fail.Store(true)
	_, err = svc.Submit(ctx, update(1, "REL", 70, domain.Buy))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	store.fail.Store(false)
	tx, err = svc.Submit(ctx, update(1, "REL", 70, domain.Buy))
	require.NoError(t, err)
	assert.Equal(t, int64(2), tx.Version)
	assert.Equal(t, map[string]int64{"REL": 70}, svc.Positions())
}

func TestCommittedAppendWithLostAckIsApplied(t *testing.T) {
	ctx := context.Background()
	store := lossyAckLedger{ledger.NewMemoryStore()}
	svc := NewService(store, Config{StoreTimeout: time.Second, Shards: 4}, quietLogger())

	tx, err := svc.Submit(ctx, insert(1, "REL", 50, domain.Buy))
	require.NoError(t, err)
	assert.Equal(t, int64(1), tx.TransactionID)

	tx, err = svc.Submit(ctx, update(1, "REL", 60, domain.Buy))
	require.NoError(t, err)
	assert.Equal(t, int64(2), tx.Version)
	assert.Equal(t, map[string]int64{"REL": 60}, svc.Positions())

	txs, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestLedgerRejectionIsNotRetryable(t *testing.T) {
	ctx := context.Background()
	svc := NewService(rejectingLedger{ledger.NewMemoryStore()}, Config{StoreTimeout: time.Second, Shards: 4}, quietLogger())

	_, err := svc.Submit(ctx, insert(1, "REL", 5000, domain.Buy))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.False(t, domain.IsRetryable(err))
	assert.Empty(t, svc.Positions())

	tx, err := svc.Submit(ctx, insert(1, "REL", 50, domain.Buy))
	require.NoError(t, err)
	assert.Equal(t, int64(1), tx.Version)
	assert.Equal(t, map[string]int64{"REL": 50}, svc.Positions())
}

func TestLostAckWithFailedLookupDoesNotStrandTrade(t *testing.T) {
	setup := func(t *testing.T) (*uniqueLedger, *Service) {
		t.Helper()
		store := &uniqueLedger{MemoryStore: ledger.NewMemoryStore()}
		svc := NewService(store, Config{StoreTimeout: time.Second, Shards: 4}, quietLogger())

		store.dropAck.Store(true)
		store.lookupFails.Store(true)
		_, err := svc.Submit(context.Background(), insert(1, "REL", 50, domain.Buy))
		require.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.Empty(t, svc.Positions())

		store.dropAck.Store(false)
		store.lookupFails.Store(false)
		return store, svc
	}

	t.Run("resubmit of the same insert is accepted", func(t *testing.T) {
		ctx := context.Background()
		store, svc := setup(t)

		tx, err := svc.Submit(ctx, insert(1, "REL", 50, domain.Buy))
		require.NoError(t, err)
		assert.Equal(t, int64(1), tx.TransactionID)
		assert.Equal(t, map[string]int64{"REL": 50}, svc.Positions())

		tx, err = svc.Submit(ctx, update(1, "REL", 60, domain.Buy))
		require.NoError(t, err)
		assert.Equal(t, int64(2), tx.Version)
		assert.Equal(t, map[string]int64{"REL": 60}, svc.Positions())

		txs, err := store.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, txs, 2)
	})

	t.Run("different content catches the trade up", func(t *testing.T) {
		ctx := context.Background()
		_, svc := setup(t)

		_, err := svc.Submit(ctx, insert(1, "ITC", 10, domain.Sell))
		require.ErrorIs(t, err, domain.ErrConcurrentModification)
		assert.Equal(t, map[string]int64{"REL": 50}, svc.Positions())

		tx, err := svc.Submit(ctx, update(1, "REL", 60, domain.Buy))
		require.NoError(t, err)
		assert.Equal(t, int64(2), tx.Version)
		assert.Equal(t, map[string]int64{"REL": 60}, svc.Positions())
	})
}

func TestStoreTimeoutIsStoreUnavailable(t *testing.T) {
	svc := NewService(stuckLedger{ledger.NewMemoryStore()}, Config{StoreTimeout: 20 * time.Millisecond, Shards: 2}, quietLogger())

	start := time.Now()
	_, err := svc.Submit(context.Background(), insert(1, "REL", 50, domain.Buy))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, svc.Positions())
}

func TestCallerCancellationDoesNotAbortAppend(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	cancelCtx()
	svc := newTestService(ledger.NewMemoryStore())

	tx, err := svc.Submit(ctx, insert(1, "REL", 50, domain.Buy))
	require.NoError(t, err)
	assert.Equal(t, int64(1), tx.TransactionID)
}

func TestSameTradeRaceAcceptsOneVersion(t *testing.T) {
	ctx := context.Background()
	store := newGatedLedger()
	svc := NewService(store, Config{StoreTimeout: 5 * time.Second, Shards: 4}, quietLogger())

	close(store.release)
	_, err := svc.Submit(ctx, insert(1, "REL", 50, domain.Buy))
	require.NoError(t, err)
	<-store.entered

	store.release = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(ctx, update(1, "REL", 60, domain.Buy))
		done <- err
	}()
	<-store.entered

	_, err = svc.Submit(ctx, update(1, "REL", 70, domain.Buy))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	assert.True(t, domain.IsRetryable(err))

	// Other trades are not blocked by the in-flight submission.
	other := make(chan error, 1)
	go func() {
		_, err := svc.Submit(ctx, insert(2, "ITC", 5, domain.Sell))
		other <- err
	}()
	<-store.entered

	close(store.release)
	require.NoError(t, <-done)
	require.NoError(t, <-other)

	txs, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, map[string]int64{"REL": 60, "ITC": -5}, svc.Positions())

	tx, err := svc.Submit(ctx, update(1, "REL", 70, domain.Buy))
	require.NoError(t, err)
	assert.Equal(t, int64(3), tx.Version)
}

func TestConcurrentSubmitsMatchReplay(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	svc := newTestService(store)
	codes := []string{"REL", "ITC", "INF", "TCS", "HDFC"}

	const trades = 200
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, trades)
	for i := 1; i <= trades; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			<-start
			code := codes[int(id)%len(codes)]
			side := domain.Buy
			if id%3 == 0 {
				side = domain.Sell
			}
			if _, err := svc.Submit(ctx, insert(id, code, id, side)); err != nil {
				errs <- err
				return
			}
			if _, err := svc.Submit(ctx, update(id, codes[int(id+1)%len(codes)], 2*id, side)); err != nil {
				errs <- err
				return
			}
			if id%4 == 0 {
				if _, err := svc.Submit(ctx, cancel(id, code)); err != nil {
					errs <- err
				}
			}
		}(int64(i))
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	txs, err := store.ListAll(ctx)
	require.NoError(t, err)
	rebuilt, err := domain.Rebuild(txs)
	require.NoError(t, err)
	assert.Equal(t, rebuilt, svc.Positions())

	for i, tx := range txs {
		assert.Equal(t, int64(i+1), tx.TransactionID)
	}
}

func TestClearResetsEverything(t *testing.T) {
	ctx := context.Background()
	snapshots := &memorySnapshots{}
	svc := newTestService(ledger.NewMemoryStore(), WithSnapshotStore(snapshots))

	_, err := seed.Load(ctx, svc)
	require.NoError(t, err)
	saved, err := svc.SaveSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, saved)

	require.NoError(t, svc.Clear(ctx))
	assert.Empty(t, svc.Positions())
	txs, err := svc.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
	latest, err := snapshots.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)
	assert.Equal(t, int64(0), svc.Snapshot().LastTransactionID)

	tx, err := svc.Submit(ctx, insert(1, "REL", 10, domain.Buy))
	require.NoError(t, err)
	assert.Equal(t, int64(1), tx.TransactionID)
	assert.Equal(t, int64(1), tx.Version)
}

func TestTransactionsAfter(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(ledger.NewMemoryStore())
	_, err := seed.Load(ctx, svc)
	require.NoError(t, err)

	txs, err := svc.TransactionsAfter(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, int64(3), txs[0].TransactionID)
	assert.Equal(t, int64(5), txs[2].TransactionID)
}

func TestListenersSeeAcceptedTransactionsInOrder(t *testing.T) {
	ctx := context.Background()
	first := &recordingListener{}
	second := &recordingListener{}
	svc := newTestService(ledger.NewMemoryStore(), WithListener(first), WithListener(nil))
	svc.AddListener(second)
	svc.AddListener(nil)

	accepted, err := seed.Load(ctx, svc)
	require.NoError(t, err)
	assert.Equal(t, accepted, first.seen())
	assert.Equal(t, accepted, second.seen())
}

func TestSnapshotCapturesState(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(ledger.NewMemoryStore())
	_, err := seed.Load(ctx, svc)
	require.NoError(t, err)

	snap := svc.Snapshot()
	assert.Equal(t, int64(6), snap.LastTransactionID)
	assert.Len(t, snap.Trades, 4)
	assert.Equal(t, map[string]int64{"REL": 60, "ITC": 0, "INF": 50}, snap.Positions)

	byID := make(map[int64]domain.TradeState)
	for _, tr := range snap.Trades {
		byID[tr.TradeID] = tr
	}
	assert.Equal(t, domain.TradeCancelled, byID[2].Status)
	assert.Equal(t, int64(2), byID[1].Version)
}

func TestSaveSnapshotNoops(t *testing.T) {
	ctx := context.Background()

	saved, err := newTestService(ledger.NewMemoryStore()).SaveSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, saved)

	snapshots := &memorySnapshots{}
	saved, err = newTestService(ledger.NewMemoryStore(), WithSnapshotStore(snapshots)).SaveSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Equal(t, 0, snapshots.saveCount())
}

func TestRecover(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshot plus tail", func(t *testing.T) {
		store := ledger.NewMemoryStore()
		snapshots := &memorySnapshots{}
		svc := newTestService(store, WithSnapshotStore(snapshots))

		samples := seed.SampleTransactions()
		for _, c := range samples[:3] {
			_, err := svc.Submit(ctx, c)
			require.NoError(t, err)
		}
		saved, err := svc.SaveSnapshot(ctx)
		require.NoError(t, err)
		require.True(t, saved)
		for _, c := range samples[3:] {
			_, err := svc.Submit(ctx, c)
			require.NoError(t, err)
		}

		restarted := newTestService(store, WithSnapshotStore(snapshots))
		require.NoError(t, restarted.Recover(ctx))
		assert.Equal(t, svc.Positions(), restarted.Positions())
		assert.Equal(t, int64(6), restarted.Snapshot().LastTransactionID)

		tx, err := restarted.Submit(ctx, update(1, "REL", 10, domain.Sell))
		require.NoError(t, err)
		assert.Equal(t, int64(3), tx.Version)
		assert.Equal(t, int64(7), tx.TransactionID)
	})

	t.Run("full replay without snapshots", func(t *testing.T) {
		store := ledger.NewMemoryStore()
		_, err := seed.Load(ctx, newTestService(store))
		require.NoError(t, err)

		restarted := newTestService(store)
		require.NoError(t, restarted.Recover(ctx))
		assert.Equal(t, map[string]int64{"REL": 60, "ITC": 0, "INF": 50}, restarted.Positions())

		_, err = restarted.Submit(ctx, update(2, "ITC", 1, domain.Buy))
		assert.ErrorIs(t, err, domain.ErrTradeCancelled)
	})

	t.Run("snapshot ahead of ledger is ignored", func(t *testing.T) {
		store := ledger.NewMemoryStore()
		_, err := seed.Load(ctx, newTestService(store))
		require.NoError(t, err)

		snapshots := &memorySnapshots{}
		require.NoError(t, snapshots.Save(ctx, domain.Snapshot{
			LastTransactionID: 99,
			Trades:            []domain.TradeState{{TradeID: 42, Status: domain.TradeActive, Version: 1, SecurityCode: "XXX", Effect: 5}},
			Positions:         map[string]int64{"XXX": 5},
		}))

		restarted := newTestService(store, WithSnapshotStore(snapshots))
		require.NoError(t, restarted.Recover(ctx))
		assert.Equal(t, map[string]int64{"REL": 60, "ITC": 0, "INF": 50}, restarted.Positions())
	})

	t.Run("corrupt ledger fails", func(t *testing.T) {
		store := ledger.NewMemoryStore()
		_, err := store.Append(ctx, domain.Transaction{TradeID: 1, Version: 2, SecurityCode: "REL", Quantity: 1, BuySell: domain.Buy, Action: domain.ActionUpdate})
		require.NoError(t, err)

		err = newTestService(store).Recover(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), fmt.Sprintf("replay transaction %d", 1))
	})
}
