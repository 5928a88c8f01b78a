package domain

import (
	"context"
	"io"
	"time"
)

// AuctionTx is the handle passed to AuctionStore.Lock callbacks. Every write
// made through it commits atomically when the callback returns nil and is
// discarded otherwise. Auction returns the row as it was at lock acquisition.
type AuctionTx interface {
	Auction() Auction
	SaveAuction(a Auction) error
	InsertBid(b Bid) error
	InsertOrder(o Order) error
}

// AuctionStore is the durable record of auctions. Implementations must
// guarantee at most one active auction per channel and serialize all
// mutations on a single auction through Lock.
type AuctionStore interface {
	// Create inserts a new active auction. It returns ErrAuctionConflict
	// when the channel already has an active auction.
	Create(ctx context.Context, a Auction) error

	GetByID(ctx context.Context, id string) (Auction, error)

	// GetActiveByChannel returns the channel's live auction, or
	// ErrAuctionNotFound when there is none.
	GetActiveByChannel(ctx context.Context, channelID string) (Auction, error)

	// ListExpired returns active auctions whose deadline is at or before
	// now. Used by the sweeper; the returned rows are a scan snapshot, not
	// locked.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Auction, error)

	// Lock acquires the per-auction exclusive lock, runs fn against the
	// current row, and atomically commits the writes staged through the tx
	// when fn returns nil. It returns ErrAuctionNotFound for unknown ids
	// and propagates fn's error after rolling back.
	Lock(ctx context.Context, id string, fn func(tx AuctionTx) error) error

	// ListSettledBefore returns completed auctions settled before cutoff
	// that have not yet been archived.
	ListSettledBefore(ctx context.Context, cutoff time.Time, limit int) ([]Auction, error)

	// MarkArchived stamps the auctions as exported to cold storage.
	MarkArchived(ctx context.Context, ids []string, at time.Time) error
}

// BidStore reads the append-only bid history.
type BidStore interface {
	ListByAuction(ctx context.Context, auctionID string) ([]Bid, error)
}

// OrderStore reads settlement artifacts. Orders are only ever written inside
// an auction lock via AuctionTx.InsertOrder.
type OrderStore interface {
	GetByAuction(ctx context.Context, auctionID string) (Order, error)
}

// ChannelDirectory is the narrow interface onto the channel collaborator.
type ChannelDirectory interface {
	Get(ctx context.Context, channelID string) (Channel, error)

	// GetLiveByHost returns the live channel hosted by the user, or
	// ErrChannelNotFound when the user is not hosting a live channel.
	GetLiveByHost(ctx context.Context, hostID string) (Channel, error)

	// ClearHighlighted removes the product from the channel's stage if it
	// is still the one highlighted. It reports whether anything changed.
	ClearHighlighted(ctx context.Context, channelID, productID string) (bool, error)
}

// ProductCatalog is the narrow interface onto the product/shop collaborator.
type ProductCatalog interface {
	Get(ctx context.Context, productID string) (Product, error)

	// ShopOwner returns the id of the user controlling the shop.
	ShopOwner(ctx context.Context, shopID string) (string, error)
}

// UserDirectory resolves display names for event payloads.
type UserDirectory interface {
	Get(ctx context.Context, userID string) (User, error)
}

// AuctionCache is a short-lived snapshot cache for the per-channel active
// auction, serving the viewer snapshot query.
type AuctionCache interface {
	GetActive(ctx context.Context, channelID string) (Auction, bool, error)
	SetActive(ctx context.Context, a Auction) error
	Invalidate(ctx context.Context, channelID string) error
}

// RateLimiter bounds per-bidder request rates.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides coarse cross-process locks (sweep tick guard). Acquire
// returns an unlock func on success and ErrLockHeld when another holder owns
// the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter uploads archival exports to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
