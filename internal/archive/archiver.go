// Package archive exports settled auctions to object storage. The primary
// store keeps every row; the export exists so finished auctions have a cold
// copy that analytics and support can read without touching the database.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bidstream/bidstream/internal/domain"
)

const (
	defaultRetention = 24 * time.Hour
	defaultBatchSize = 50
)

// export is the archived document for one settled auction: the final auction
// row, its full bid history, and the order when the auction had a winner.
type export struct {
	Auction    domain.Auction `json:"auction"`
	Bids       []domain.Bid   `json:"bids"`
	Order      *domain.Order  `json:"order,omitempty"`
	ExportedAt time.Time      `json:"exported_at"`
}

// Archiver uploads settled auctions to blob storage and marks them archived.
// Rows are never deleted here; MarkArchived only stamps them so the next pass
// skips them.
type Archiver struct {
	auctions  domain.AuctionStore
	bids      domain.BidStore
	orders    domain.OrderStore
	writer    domain.BlobWriter
	logger    *slog.Logger
	retention time.Duration
	batchSize int
	now       func() time.Time
	running   atomic.Bool
}

// NewArchiver creates an Archiver with all required dependencies.
func NewArchiver(
	auctions domain.AuctionStore,
	bids domain.BidStore,
	orders domain.OrderStore,
	writer domain.BlobWriter,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		auctions:  auctions,
		bids:      bids,
		orders:    orders,
		writer:    writer,
		logger:    logger.With(slog.String("component", "archiver")),
		retention: defaultRetention,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
}

// WithRetention overrides how long a settled auction stays un-archived.
func (a *Archiver) WithRetention(d time.Duration) *Archiver {
	if d > 0 {
		a.retention = d
	}
	return a
}

// WithBatchSize overrides how many auctions a single pass exports.
func (a *Archiver) WithBatchSize(n int) *Archiver {
	if n > 0 {
		a.batchSize = n
	}
	return a
}

// WithNow overrides the wall clock. Intended for tests.
func (a *Archiver) WithNow(now func() time.Time) *Archiver {
	a.now = now
	return a
}

// Run executes a single export pass. An upload failure for one auction is
// logged and skips only that auction; everything successfully uploaded is
// marked archived even when later uploads in the batch fail.
func (a *Archiver) Run(ctx context.Context) error {
	now := a.now().UTC()
	cutoff := now.Add(-a.retention)

	settled, err := a.auctions.ListSettledBefore(ctx, cutoff, a.batchSize)
	if err != nil {
		return fmt.Errorf("archive: list settled auctions: %w", err)
	}
	if len(settled) == 0 {
		return nil
	}

	archived := make([]string, 0, len(settled))
	for _, auction := range settled {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := a.exportAuction(ctx, auction, now); err != nil {
			a.logger.Error("auction export failed",
				slog.String("auction_id", auction.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		archived = append(archived, auction.ID)
	}

	if len(archived) > 0 {
		if err := a.auctions.MarkArchived(ctx, archived, now); err != nil {
			return fmt.Errorf("archive: mark archived: %w", err)
		}
	}

	a.logger.Info("archive pass complete",
		slog.Int("settled", len(settled)),
		slog.Int("archived", len(archived)),
	)
	return nil
}

// RunLoop runs export passes on a repeating interval until the context is
// cancelled. Only one loop runs per Archiver; a call while a loop is already
// running returns immediately without starting a second ticker.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	if !a.running.CompareAndSwap(false, true) {
		a.logger.Warn("archiver loop already running")
		return nil
	}
	defer a.running.Store(false)

	if err := a.Run(ctx); err != nil {
		a.logger.Error("archive pass failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Archiver) exportAuction(ctx context.Context, auction domain.Auction, now time.Time) error {
	bids, err := a.bids.ListByAuction(ctx, auction.ID)
	if err != nil {
		return fmt.Errorf("list bids: %w", err)
	}

	doc := export{
		Auction:    auction,
		Bids:       bids,
		ExportedAt: now,
	}
	if auction.HasBids() {
		order, err := a.orders.GetByAuction(ctx, auction.ID)
		if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
			return fmt.Errorf("get order: %w", err)
		}
		if err == nil {
			doc.Order = &order
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}

	path := exportPath(auction)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("upload export: %w", err)
	}
	return nil
}

// exportPath places exports under the month the auction started, e.g.
// auctions/2026/08/auction-<id>.json.
func exportPath(a domain.Auction) string {
	return fmt.Sprintf("auctions/%04d/%02d/auction-%s.json",
		a.StartedAt.Year(), int(a.StartedAt.Month()), a.ID)
}
