package positions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	domain "github.com/shirish73/equityms/internal/domain/entity/positions"
	interfaces "github.com/shirish73/equityms/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

const (
	defaultStoreTimeout = 2 * time.Second
	defaultShards       = 64
)

// Config tunes the aggregator.
type Config struct {
	// StoreTimeout bounds a single ledger append.
	StoreTimeout time.Duration
	// Shards is the number of lock shards for trades and for securities.
	Shards int
}

type Option func(*Service)

// WithSnapshotStore enables Recover from snapshots, SaveSnapshot and
// snapshot deletion on Clear.
func WithSnapshotStore(store interfaces.SnapshotStore) Option {
	return func(s *Service) {
		s.snapshots = store
	}
}

func WithListener(listener interfaces.TransactionListener) Option {
	return func(s *Service) {
		if listener != nil {
			s.listeners = append(s.listeners, listener)
		}
	}
}

// Service is the position aggregator. It validates trade versioning, persists
// accepted transactions through the ledger and keeps per-trade state and
// per-security net positions up to date by applying deltas.
//
// Trades and securities live in independent lock shards. A submit holds gate
// shared for its whole duration; Clear, Snapshot and Recover hold it
// exclusively.
type Service struct {
	ledger       interfaces.LedgerStore
	snapshots    interfaces.SnapshotStore
	logger       *logrus.Entry
	storeTimeout time.Duration

	listenersMu sync.RWMutex
	listeners   []interfaces.TransactionListener

	snapMu      sync.Mutex
	gate        sync.RWMutex
	trades      []*tradeShard
	books       []*bookShard
	lastApplied atomic.Int64
}

func NewService(ledger interfaces.LedgerStore, cfg Config, logger *logrus.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.Shards <= 0 {
		cfg.Shards = defaultShards
	}
	s := &Service{
		ledger:       ledger,
		logger:       logger.WithField("component", "aggregator"),
		storeTimeout: cfg.StoreTimeout,
		trades:       newTradeShards(cfg.Shards),
		books:        newBookShards(cfg.Shards),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddListener registers a listener notified after each accepted transaction.
func (s *Service) AddListener(listener interfaces.TransactionListener) {
	if listener == nil {
		return
	}
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Submit validates the candidate against its trade's current state, appends
// the versioned transaction to the ledger and applies the resulting delta.
// On any error the candidate leaves no trace in the ledger or the aggregate
// state.
func (s *Service) Submit(ctx context.Context, candidate domain.Candidate) (domain.Transaction, error) {
	c, err := candidate.Normalize()
	if err != nil {
		return domain.Transaction{}, err
	}
	stored, err := s.submit(ctx, c)
	if err != nil {
		return domain.Transaction{}, err
	}
	s.notify(stored)
	return stored, nil
}

func (s *Service) submit(ctx context.Context, c domain.Candidate) (domain.Transaction, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	prev, next, err := s.reserve(c)
	if err != nil {
		return domain.Transaction{}, err
	}

	pending := domain.Transaction{
		TradeID:      c.TradeID,
		Version:      next.Version,
		SecurityCode: c.SecurityCode,
		Quantity:     c.Quantity,
		BuySell:      c.BuySell,
		Action:       c.Action,
	}

	// A caller that stops waiting does not abort the append.
	detached := context.WithoutCancel(ctx)
	storeCtx, cancel := context.WithTimeout(detached, s.storeTimeout)
	stored, err := s.ledger.Append(storeCtx, pending)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			s.release(c.TradeID, prev)
		} else {
			stored, err = s.reconcile(detached, prev, pending, err)
		}
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"trade_id": c.TradeID,
			"version":  next.Version,
		}).Warn("ledger append failed")
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrConcurrentModification) {
			return domain.Transaction{}, err
		}
		return domain.Transaction{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	s.apply(prev, next)
	s.advance(stored.TransactionID)

	if s.logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		s.logger.WithFields(logrus.Fields{
			"transaction_id": stored.TransactionID,
			"trade_id":       stored.TradeID,
			"version":        stored.Version,
			"action":         stored.Action,
			"security":       stored.SecurityCode,
			"effect":         next.Effect - prev.Effect,
		}).Debug("transaction accepted")
	}
	return stored, nil
}

// reserve checks the transition under the trade's shard lock and marks the
// trade busy until release or apply.
func (s *Service) reserve(c domain.Candidate) (domain.TradeState, domain.TradeState, error) {
	shard := s.tradeShard(c.TradeID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.trades[c.TradeID]
	if !ok {
		entry = &tradeEntry{state: domain.TradeState{TradeID: c.TradeID}}
	}
	if entry.busy {
		return domain.TradeState{}, domain.TradeState{},
			fmt.Errorf("%w: trade %d has a submission in flight", domain.ErrConcurrentModification, c.TradeID)
	}
	next, err := entry.state.Apply(c)
	if err != nil {
		return domain.TradeState{}, domain.TradeState{}, err
	}
	entry.busy = true
	shard.trades[c.TradeID] = entry
	return entry.state, next, nil
}

func (s *Service) release(tradeID int64, prev domain.TradeState) {
	shard := s.tradeShard(tradeID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if prev.Status == domain.TradeUninitialized {
		delete(shard.trades, tradeID)
		return
	}
	if entry, ok := shard.trades[tradeID]; ok {
		entry.busy = false
	}
}

// reconcile settles a failed append against the row the ledger holds for
// pending's version, if any. A row with the same content is this submit,
// committed before the error surfaced or by an earlier attempt whose
// acknowledgement was lost. A row with other content is applied so the trade
// catches up with the ledger, and the submit still fails. Without a row the
// reservation is released.
func (s *Service) reconcile(ctx context.Context, prev domain.TradeState, pending domain.Transaction, appendErr error) (domain.Transaction, error) {
	found, ok := s.findCommitted(ctx, pending)
	if !ok {
		s.release(pending.TradeID, prev)
		return domain.Transaction{}, appendErr
	}
	if sameContent(found, pending) {
		s.logger.WithError(appendErr).WithField("transaction_id", found.TransactionID).
			Warn("append reported failure but the transaction is in the ledger")
		return found, nil
	}

	next, err := prev.Apply(candidateOf(found))
	if err != nil {
		s.release(pending.TradeID, prev)
		return domain.Transaction{}, fmt.Errorf("%w: stored transaction %d does not follow trade %d: %w",
			domain.ErrConcurrentModification, found.TransactionID, pending.TradeID, err)
	}
	s.apply(prev, next)
	s.advance(found.TransactionID)
	s.logger.WithFields(logrus.Fields{
		"trade_id":       found.TradeID,
		"version":        found.Version,
		"transaction_id": found.TransactionID,
	}).Warn("trade caught up with a transaction it had not applied")
	return domain.Transaction{}, fmt.Errorf("%w: trade %d version %d already stored with other content",
		domain.ErrConcurrentModification, pending.TradeID, pending.Version)
}

func (s *Service) findCommitted(ctx context.Context, pending domain.Transaction) (domain.Transaction, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	found, ok, err := s.ledger.FindVersion(probeCtx, pending.TradeID, pending.Version)
	if err != nil {
		s.logger.WithError(err).WithField("trade_id", pending.TradeID).Warn("ledger lookup after failed append failed")
		return domain.Transaction{}, false
	}
	return found, ok
}

func sameContent(a, b domain.Transaction) bool {
	return a.TradeID == b.TradeID &&
		a.Version == b.Version &&
		a.SecurityCode == b.SecurityCode &&
		a.Quantity == b.Quantity &&
		a.BuySell == b.BuySell &&
		a.Action == b.Action
}

func candidateOf(tx domain.Transaction) domain.Candidate {
	return domain.Candidate{
		TradeID:      tx.TradeID,
		SecurityCode: tx.SecurityCode,
		Quantity:     tx.Quantity,
		BuySell:      tx.BuySell,
		Action:       tx.Action,
	}
}

func (s *Service) apply(prev, next domain.TradeState) {
	deltas := domain.Deltas(prev, next)
	locked := s.lockBooks(deltas)
	for _, d := range deltas {
		s.bookShard(d.SecurityCode).positions[d.SecurityCode] += d.Quantity
	}
	for i := len(locked) - 1; i >= 0; i-- {
		s.books[locked[i]].mu.Unlock()
	}

	shard := s.tradeShard(next.TradeID)
	shard.mu.Lock()
	entry := shard.trades[next.TradeID]
	entry.state = next
	entry.busy = false
	shard.mu.Unlock()
}

func (s *Service) advance(id int64) {
	for {
		current := s.lastApplied.Load()
		if id <= current || s.lastApplied.CompareAndSwap(current, id) {
			return
		}
	}
}

func (s *Service) notify(tx domain.Transaction) {
	s.listenersMu.RLock()
	listeners := s.listeners
	s.listenersMu.RUnlock()
	for _, l := range listeners {
		l.TransactionAccepted(tx)
	}
}

// Positions returns a point-in-time copy of every net position, including
// positions that went back to zero.
func (s *Service) Positions() map[string]int64 {
	for _, b := range s.books {
		b.mu.RLock()
	}
	out := make(map[string]int64)
	for _, b := range s.books {
		for code, qty := range b.positions {
			out[code] = qty
		}
	}
	for i := len(s.books) - 1; i >= 0; i-- {
		s.books[i].mu.RUnlock()
	}
	return out
}

// Position returns the net quantity of one security and whether it exists.
func (s *Service) Position(securityCode string) (int64, bool) {
	b := s.bookShard(securityCode)
	b.mu.RLock()
	defer b.mu.RUnlock()
	qty, ok := b.positions[securityCode]
	return qty, ok
}

// Transactions returns the full ledger in acceptance order.
func (s *Service) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	txs, err := s.ledger.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return txs, nil
}

// TransactionsAfter range-reads the ledger.
func (s *Service) TransactionsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Transaction, error) {
	txs, err := s.ledger.ListAfter(ctx, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return txs, nil
}

// Clear wipes the ledger, persisted snapshots and all derived state.
func (s *Service) Clear(ctx context.Context) error {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.gate.Lock()
	defer s.gate.Unlock()

	// Snapshots go first so a failed ledger clear never leaves a snapshot
	// ahead of the ledger.
	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx); err != nil {
			return fmt.Errorf("%w: delete snapshots: %w", domain.ErrStoreUnavailable, err)
		}
	}
	if err := s.ledger.Clear(ctx); err != nil {
		return fmt.Errorf("%w: clear ledger: %w", domain.ErrStoreUnavailable, err)
	}
	s.load(nil, nil, 0)
	s.logger.Info("ledger and positions cleared")
	return nil
}

// Snapshot captures trade states and positions with no submit in flight.
func (s *Service) Snapshot() domain.Snapshot {
	s.gate.Lock()
	defer s.gate.Unlock()

	snap := domain.Snapshot{
		LastTransactionID: s.lastApplied.Load(),
		TakenAt:           time.Now().UTC(),
		Positions:         make(map[string]int64),
	}
	for _, shard := range s.trades {
		for _, entry := range shard.trades {
			snap.Trades = append(snap.Trades, entry.state)
		}
	}
	for _, b := range s.books {
		for code, qty := range b.positions {
			snap.Positions[code] = qty
		}
	}
	return snap
}

// SaveSnapshot persists the current state. It is a no-op without a snapshot
// store or before the first accepted transaction.
func (s *Service) SaveSnapshot(ctx context.Context) (bool, error) {
	if s.snapshots == nil {
		return false, nil
	}
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	snap := s.Snapshot()
	if snap.LastTransactionID == 0 {
		return false, nil
	}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return false, fmt.Errorf("save snapshot at %d: %w", snap.LastTransactionID, err)
	}
	return true, nil
}

// Recover rebuilds the aggregate from the latest snapshot and the ledger tail
// after it, or from the full ledger when no usable snapshot exists.
func (s *Service) Recover(ctx context.Context) error {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.gate.Lock()
	defer s.gate.Unlock()

	trades := make(map[int64]domain.TradeState)
	positions := make(map[string]int64)
	var last int64

	if s.snapshots != nil {
		snap, err := s.snapshots.Latest(ctx)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		if snap != nil {
			ok, err := s.ledgerHas(ctx, snap.LastTransactionID)
			if err != nil {
				return err
			}
			if ok {
				for _, t := range snap.Trades {
					trades[t.TradeID] = t
				}
				for code, qty := range snap.Positions {
					positions[code] = qty
				}
				last = snap.LastTransactionID
			} else {
				s.logger.WithField("last_transaction_id", snap.LastTransactionID).
					Warn("snapshot is ahead of the ledger, replaying from scratch")
			}
		}
	}

	tail, err := s.ledger.ListAfter(ctx, last, 0)
	if err != nil {
		return fmt.Errorf("%w: read ledger tail: %w", domain.ErrStoreUnavailable, err)
	}
	if err := domain.Replay(trades, positions, tail); err != nil {
		return err
	}
	for _, tx := range tail {
		if tx.TransactionID > last {
			last = tx.TransactionID
		}
	}

	s.load(trades, positions, last)
	s.logger.WithFields(logrus.Fields{
		"trades":              len(trades),
		"positions":           len(positions),
		"replayed":            len(tail),
		"last_transaction_id": last,
	}).Info("aggregate state recovered")
	return nil
}

func (s *Service) ledgerHas(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	txs, err := s.ledger.ListAfter(ctx, id-1, 1)
	if err != nil {
		return false, fmt.Errorf("%w: probe ledger: %w", domain.ErrStoreUnavailable, err)
	}
	return len(txs) == 1 && txs[0].TransactionID == id, nil
}

// load replaces the in-memory state. Callers hold gate exclusively; shard
// locks are still taken so concurrent readers never see a partial reload.
func (s *Service) load(trades map[int64]domain.TradeState, positions map[string]int64, last int64) {
	for _, shard := range s.trades {
		shard.mu.Lock()
	}
	for _, shard := range s.trades {
		shard.trades = make(map[int64]*tradeEntry)
	}
	for id, state := range trades {
		s.tradeShard(id).trades[id] = &tradeEntry{state: state}
	}
	for i := len(s.trades) - 1; i >= 0; i-- {
		s.trades[i].mu.Unlock()
	}

	for _, b := range s.books {
		b.mu.Lock()
	}
	for _, b := range s.books {
		b.positions = make(map[string]int64)
	}
	for code, qty := range positions {
		s.bookShard(code).positions[code] = qty
	}
	for i := len(s.books) - 1; i >= 0; i-- {
		s.books[i].mu.Unlock()
	}
	s.lastApplied.Store(last)
}
