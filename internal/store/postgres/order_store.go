package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bidstream/bidstream/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. Orders are
// created only inside the settlement transaction; this store is the read side
// consumed by the payment collaborator.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// GetByAuction returns the order settled for the auction, if one exists.
func (s *OrderStore) GetByAuction(ctx context.Context, auctionID string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, auction_id, buyer_id, seller_id, product_id,
			final_price_cents, platform_fee_cents, seller_payout_cents,
			payment_status, payment_deadline, paid_at, shipped_at, created_at
		 FROM orders WHERE auction_id = $1`, auctionID)

	var o domain.Order
	var status string
	err := row.Scan(
		&o.ID, &o.AuctionID, &o.BuyerID, &o.SellerID, &o.ProductID,
		&o.FinalPriceCents, &o.PlatformFeeCents, &o.SellerPayoutCents,
		&status, &o.PaymentDeadline, &o.PaidAt, &o.ShippedAt, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order for auction %s: %w", auctionID, err)
	}
	o.PaymentStatus = domain.PaymentStatus(status)
	return o, nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
