package positions

import (
	"context"
	"sync/atomic"
	"time"

	domain "github.com/shirish73/equityms/internal/domain/entity/positions"

	"github.com/sirupsen/logrus"
)

const shutdownSnapshotTimeout = 5 * time.Second

// Snapshotter persists aggregate snapshots on a timer and after every N
// accepted transactions.
type Snapshotter struct {
	service  *Service
	interval time.Duration
	every    int64
	logger   *logrus.Entry

	sinceLast atomic.Int64
	triggerCh chan struct{}
}

func NewSnapshotter(service *Service, interval time.Duration, every int, logger *logrus.Logger) *Snapshotter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Snapshotter{
		service:   service,
		interval:  interval,
		every:     int64(every),
		logger:    logger.WithField("component", "snapshotter"),
		triggerCh: make(chan struct{}, 1),
	}
}

// TransactionAccepted counts accepted transactions towards the threshold.
func (s *Snapshotter) TransactionAccepted(domain.Transaction) {
	if s.every <= 0 {
		return
	}
	if s.sinceLast.Add(1) >= s.every {
		select {
		case s.triggerCh <- struct{}{}:
		default:
		}
	}
}

// Run blocks until ctx is done, then writes a final snapshot.
func (s *Snapshotter) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			s.flush(ctx, "timer")
		case <-s.triggerCh:
			s.flush(ctx, "threshold")
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownSnapshotTimeout)
			s.flush(shutdownCtx, "shutdown")
			cancel()
			return nil
		}
	}
}

func (s *Snapshotter) flush(ctx context.Context, reason string) {
	s.sinceLast.Store(0)
	start := time.Now()
	saved, err := s.service.SaveSnapshot(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("reason", reason).Error("snapshot failed")
		return
	}
	if !saved {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"reason":  reason,
		"took_ms": time.Since(start).Milliseconds(),
	}).Info("snapshot saved")
}
