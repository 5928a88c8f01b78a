package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bidstream/bidstream/internal/domain"
)

// BidStore implements domain.BidStore using PostgreSQL. Bids are written only
// through the auction lock transaction; this store is the read side.
type BidStore struct {
	pool *pgxpool.Pool
}

// NewBidStore creates a new BidStore backed by the given connection pool.
func NewBidStore(pool *pgxpool.Pool) *BidStore {
	return &BidStore{pool: pool}
}

// ListByAuction returns the auction's bids in placement order.
func (s *BidStore) ListByAuction(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, auction_id, bidder_id, amount_cents, placed_at
		 FROM bids
		 WHERE auction_id = $1
		 ORDER BY placed_at, id`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		var b domain.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.AmountCents, &b.PlacedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// Compile-time interface check.
var _ domain.BidStore = (*BidStore)(nil)
