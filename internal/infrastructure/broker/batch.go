package broker

import (
	"context"
	"sync/atomic"
	"time"

	domain "github.com/shirish73/equityms/internal/domain/entity/positions"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultBatchTimeout = 200 * time.Millisecond
	defaultEventBacklog = 4096
	drainTimeout        = 5 * time.Second
)

// BatchConfig controls batching thresholds for outgoing events.
type BatchConfig struct {
	Size    int
	Timeout time.Duration
	// Backlog bounds the number of events waiting for Run.
	Backlog int
}

// EventBatcher buffers accepted transactions and publishes them from its own
// goroutine, so a slow broker never delays a submit. It is registered as a
// listener on the aggregator.
type EventBatcher struct {
	cfg     BatchConfig
	in      chan domain.Transaction
	flushFn func(context.Context, []domain.Transaction) error
	logger  *logrus.Entry
	dropped atomic.Int64
}

// NewEventBatcher publishes every flushed transaction through pub.
func NewEventBatcher(cfg BatchConfig, pub *Publisher, logger *logrus.Logger) *EventBatcher {
	return newEventBatcher(cfg, func(ctx context.Context, batch []domain.Transaction) error {
		for _, tx := range batch {
			msg := TransactionMessage{EventID: uuid.NewString(), Transaction: tx}
			if err := pub.Publish(ctx, msg.EventID, msg); err != nil {
				return err
			}
		}
		return nil
	}, logger)
}

func newEventBatcher(cfg BatchConfig, flushFn func(context.Context, []domain.Transaction) error, logger *logrus.Logger) *EventBatcher {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultBatchTimeout
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = defaultEventBacklog
	}
	return &EventBatcher{
		cfg:     cfg,
		in:      make(chan domain.Transaction, cfg.Backlog),
		flushFn: flushFn,
		logger:  logger.WithField("component", "event_batcher"),
	}
}

// TransactionAccepted enqueues tx without blocking. When the backlog is full
// the event is dropped and counted.
func (b *EventBatcher) TransactionAccepted(tx domain.Transaction) {
	select {
	case b.in <- tx:
	default:
		n := b.dropped.Add(1)
		b.logger.WithFields(logrus.Fields{
			"transaction_id": tx.TransactionID,
			"dropped_total":  n,
		}).Warn("event backlog full, dropping transaction event")
	}
}

// Dropped reports how many events were discarded on a full backlog.
func (b *EventBatcher) Dropped() int64 {
	return b.dropped.Load()
}

// Run publishes batches when they reach Size or Timeout elapses after the
// first buffered event. When ctx is done it drains the backlog and returns.
func (b *EventBatcher) Run(ctx context.Context) error {
	batch := make([]domain.Transaction, 0, b.cfg.Size)
	var (
		timer   *time.Timer
		timeout <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, timeout = nil, nil
		}
	}
	flush := func(ctx context.Context, reason string) {
		stopTimer()
		if len(batch) == 0 {
			return
		}
		b.publish(ctx, batch, reason)
		batch = batch[:0]
	}

	for {
		select {
		case tx := <-b.in:
			batch = append(batch, tx)
			if len(batch) >= b.cfg.Size {
				flush(ctx, "size")
			} else if timeout == nil {
				timer = time.NewTimer(b.cfg.Timeout)
				timeout = timer.C
			}
		case <-timeout:
			timer, timeout = nil, nil
			flush(ctx, "timeout")
		case <-ctx.Done():
		drain:
			for {
				select {
				case tx := <-b.in:
					batch = append(batch, tx)
				default:
					break drain
				}
			}
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			flush(drainCtx, "shutdown")
			cancel()
			return nil
		}
	}
}

func (b *EventBatcher) publish(ctx context.Context, batch []domain.Transaction, reason string) {
	start := time.Now()
	log := b.logger.WithFields(logrus.Fields{
		"size":   len(batch),
		"reason": reason,
	})
	if err := b.flushFn(ctx, batch); err != nil {
		log.WithError(err).Warn("batch flush failed")
		return
	}
	log.WithField("took_ms", time.Since(start).Milliseconds()).Debug("flushed batch")
}
