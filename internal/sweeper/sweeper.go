// Package sweeper closes auctions whose deadline has passed. It exists
// because nothing else fires at expiry: bids and buyouts settle auctions
// inline, but an auction that simply runs out of clock needs a background
// pass to notice.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bidstream/bidstream/internal/domain"
	"github.com/bidstream/bidstream/internal/service"
)

const (
	// sweepLockKey guards a sweep pass across processes so replicas do not
	// race each other over the same expired batch.
	sweepLockKey = "sweep:auctions"

	defaultBatchSize = 100
)

// Sweeper scans for expired active auctions and settles them. Settlement
// itself is idempotent under the per-auction lock, so a sweep racing a bid
// or another sweep replica is safe either way; the cross-process lock only
// cuts down wasted work.
type Sweeper struct {
	auctions   domain.AuctionStore
	settlement *service.SettlementService
	locks      domain.LockManager // optional
	logger     *slog.Logger
	batchSize  int
	now        func() time.Time
	running    atomic.Bool
}

// NewSweeper creates a Sweeper with all required dependencies.
func NewSweeper(auctions domain.AuctionStore, settlement *service.SettlementService, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		auctions:   auctions,
		settlement: settlement,
		logger:     logger.With(slog.String("component", "sweeper")),
		batchSize:  defaultBatchSize,
		now:        time.Now,
	}
}

// WithLockManager attaches a cross-process lock so only one replica sweeps
// per tick. Without one every replica sweeps.
func (s *Sweeper) WithLockManager(locks domain.LockManager) *Sweeper {
	s.locks = locks
	return s
}

// WithBatchSize overrides how many expired auctions a single pass handles.
func (s *Sweeper) WithBatchSize(n int) *Sweeper {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// WithNow overrides the wall clock. Intended for tests.
func (s *Sweeper) WithNow(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run executes a single sweep pass. A failure to settle one auction is
// logged and does not stop the rest of the batch.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, sweepLockKey, time.Minute)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.Debug("sweep skipped, another replica holds the lock")
				return nil
			}
			return fmt.Errorf("sweeper: acquire lock: %w", err)
		}
		defer unlock()
	}

	expired, err := s.auctions.ListExpired(ctx, s.now().UTC(), s.batchSize)
	if err != nil {
		return fmt.Errorf("sweeper: list expired auctions: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	settled := 0
	for _, a := range expired {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sweeper: context cancelled: %w", err)
		}

		res, err := s.settlement.CloseAuction(ctx, a.ID)
		if err != nil {
			s.logger.Error("settling expired auction failed",
				slog.String("auction_id", a.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if res.Settled {
			settled++
		}
	}

	s.logger.Info("sweep complete",
		slog.Int("expired", len(expired)),
		slog.Int("settled", settled),
	)
	return nil
}

// RunLoop runs sweep passes on a repeating interval until the context is
// cancelled. Only one loop runs per Sweeper; a call while a loop is already
// running returns immediately without starting a second ticker.
func (s *Sweeper) RunLoop(ctx context.Context, interval time.Duration) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("sweeper loop already running")
		return nil
	}
	defer s.running.Store(false)

	if err := s.Run(ctx); err != nil {
		s.logger.Error("sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
