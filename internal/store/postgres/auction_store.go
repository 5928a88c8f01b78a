package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bidstream/bidstream/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL. The
// per-auction lock maps onto a transaction holding a row-level
// SELECT ... FOR UPDATE lock, which serializes every concurrent bid, buyout,
// and settlement attempt on the same auction.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates a new AuctionStore backed by the given connection
// pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

const auctionSelectCols = `id, product_id, seller_id, channel_id,
	starting_cents, buyout_cents, current_bid_cents, highest_bidder_id,
	duration_sec, started_at, ends_at, extended_count, status, archived_at`

func scanAuctionFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Auction, error) {
	var a domain.Auction
	var bidder *string
	var status string

	err := scanner.Scan(
		&a.ID, &a.ProductID, &a.SellerID, &a.ChannelID,
		&a.StartingCents, &a.BuyoutCents, &a.CurrentBidCents, &bidder,
		&a.DurationSec, &a.StartedAt, &a.EndsAt, &a.ExtendedCount,
		&status, &a.ArchivedAt,
	)
	if err != nil {
		return domain.Auction{}, err
	}

	if bidder != nil {
		a.HighestBidderID = *bidder
	}
	a.Status = domain.AuctionStatus(status)
	return a, nil
}

func scanAuctionRows(rows pgx.Rows) ([]domain.Auction, error) {
	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuctionFromRow(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// nullable converts an empty string to NULL for optional foreign keys.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts a new active auction. The partial unique index on
// (channel_id) WHERE status = 'active' enforces the one-active-per-channel
// invariant; a violation surfaces as domain.ErrAuctionConflict.
func (s *AuctionStore) Create(ctx context.Context, a domain.Auction) error {
	const query = `
		INSERT INTO auctions (
			id, product_id, seller_id, channel_id,
			starting_cents, buyout_cents, current_bid_cents, highest_bidder_id,
			duration_sec, started_at, ends_at, extended_count, status, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.ProductID, a.SellerID, a.ChannelID,
		a.StartingCents, a.BuyoutCents, a.CurrentBidCents, nullable(a.HighestBidderID),
		a.DurationSec, a.StartedAt, a.EndsAt, a.ExtendedCount, string(a.Status),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAuctionConflict
		}
		return fmt.Errorf("postgres: create auction %s: %w", a.ID, err)
	}
	return nil
}

// GetByID retrieves a single auction by ID.
func (s *AuctionStore) GetByID(ctx context.Context, id string) (domain.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions WHERE id = $1`, id)

	a, err := scanAuctionFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Auction{}, domain.ErrAuctionNotFound
		}
		return domain.Auction{}, fmt.Errorf("postgres: get auction %s: %w", id, err)
	}
	return a, nil
}

// GetActiveByChannel returns the channel's active auction, if any.
func (s *AuctionStore) GetActiveByChannel(ctx context.Context, channelID string) (domain.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions
		 WHERE channel_id = $1 AND status = 'active'`, channelID)

	a, err := scanAuctionFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Auction{}, domain.ErrAuctionNotFound
		}
		return domain.Auction{}, fmt.Errorf("postgres: get active auction for channel %s: %w", channelID, err)
	}
	return a, nil
}

// ListExpired returns active auctions whose deadline is at or before now.
func (s *AuctionStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Auction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions
		 WHERE status = 'active' AND ends_at <= $1
		 ORDER BY ends_at
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan expired auctions: %w", err)
	}
	return auctions, nil
}

// Lock opens a transaction, takes the row lock on the auction, and runs fn.
// Writes staged through the tx are committed when fn returns nil.
func (s *AuctionStore) Lock(ctx context.Context, id string, fn func(tx domain.AuctionTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin auction tx %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions WHERE id = $1 FOR UPDATE`, id)

	a, err := scanAuctionFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAuctionNotFound
		}
		return fmt.Errorf("postgres: lock auction %s: %w", id, err)
	}

	if err := fn(&auctionTx{ctx: ctx, tx: tx, auction: a}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit auction tx %s: %w", id, err)
	}
	return nil
}

// ListSettledBefore returns completed auctions whose deadline passed before
// cutoff and that have not been archived yet.
func (s *AuctionStore) ListSettledBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Auction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionSelectCols+` FROM auctions
		 WHERE status = 'completed' AND archived_at IS NULL AND ends_at < $1
		 ORDER BY ends_at
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled auctions: %w", err)
	}
	defer rows.Close()

	auctions, err := scanAuctionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settled auctions: %w", err)
	}
	return auctions, nil
}

// MarkArchived stamps the auctions as exported to cold storage.
func (s *AuctionStore) MarkArchived(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE auctions SET archived_at = $1, updated_at = NOW() WHERE id = ANY($2)`,
		at, ids)
	if err != nil {
		return fmt.Errorf("postgres: mark auctions archived: %w", err)
	}
	return nil
}

// auctionTx implements domain.AuctionTx on top of an open pgx transaction
// holding the row lock.
type auctionTx struct {
	ctx     context.Context
	tx      pgx.Tx
	auction domain.Auction
}

func (t *auctionTx) Auction() domain.Auction {
	return t.auction
}

func (t *auctionTx) SaveAuction(a domain.Auction) error {
	const query = `
		UPDATE auctions SET
			current_bid_cents = $2,
			highest_bidder_id = $3,
			ends_at = $4,
			extended_count = $5,
			status = $6,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := t.tx.Exec(t.ctx, query,
		a.ID, a.CurrentBidCents, nullable(a.HighestBidderID),
		a.EndsAt, a.ExtendedCount, string(a.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: save auction %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAuctionNotFound
	}
	return nil
}

func (t *auctionTx) InsertBid(b domain.Bid) error {
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount_cents, placed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.AuctionID, b.BidderID, b.AmountCents, b.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bid %s: %w", b.ID, err)
	}
	return nil
}

func (t *auctionTx) InsertOrder(o domain.Order) error {
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO orders (
			id, auction_id, buyer_id, seller_id, product_id,
			final_price_cents, platform_fee_cents, seller_payout_cents,
			payment_status, payment_deadline, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.AuctionID, o.BuyerID, o.SellerID, o.ProductID,
		o.FinalPriceCents, o.PlatformFeeCents, o.SellerPayoutCents,
		string(o.PaymentStatus), o.PaymentDeadline, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AuctionStore = (*AuctionStore)(nil)
