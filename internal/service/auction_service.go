// Package service implements the live auction engine: auction lifecycle,
// the bid acceptance protocol, and idempotent settlement. All bidding-state
// mutations run under the store's per-auction lock; event fan-out is always
// dispatched after the mutation commits.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bidstream/bidstream/internal/domain"
)

// AuctionService handles auction creation and the viewer-facing snapshot
// queries.
type AuctionService struct {
	auctions domain.AuctionStore
	bids     domain.BidStore
	channels domain.ChannelDirectory
	products domain.ProductCatalog
	events   domain.EventPublisher
	cache    domain.AuctionCache // optional
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuctionService creates an AuctionService with all required dependencies.
func NewAuctionService(
	auctions domain.AuctionStore,
	bids domain.BidStore,
	channels domain.ChannelDirectory,
	products domain.ProductCatalog,
	events domain.EventPublisher,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		auctions: auctions,
		bids:     bids,
		channels: channels,
		products: products,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// WithCache attaches a snapshot cache for GetActiveAuction. Without one the
// service reads straight from the store.
func (s *AuctionService) WithCache(cache domain.AuctionCache) *AuctionService {
	s.cache = cache
	return s
}

// WithNow overrides the wall clock. Intended for tests.
func (s *AuctionService) WithNow(now func() time.Time) *AuctionService {
	s.now = now
	return s
}

// StartAuction creates an auction for the product currently highlighted in
// the seller's own live channel. The product's base price becomes the
// starting price. buyoutCents of zero means no buyout.
func (s *AuctionService) StartAuction(ctx context.Context, productID, sellerID string, durationSec int, buyoutCents int64) (domain.Auction, error) {
	if productID == "" || sellerID == "" {
		return domain.Auction{}, fmt.Errorf("service: %w - missing product or seller id", domain.ErrProductNotFound)
	}
	if !domain.AllowedDurations[durationSec] {
		return domain.Auction{}, fmt.Errorf("service: %w - got %d seconds", domain.ErrInvalidDuration, durationSec)
	}

	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("service: start auction for product %s: %w", productID, err)
	}

	owner, err := s.products.ShopOwner(ctx, product.ShopID)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("service: start auction for product %s: %w", productID, err)
	}
	if owner != sellerID {
		return domain.Auction{}, fmt.Errorf("service: %w - product %s", domain.ErrNotShopOwner, productID)
	}

	channel, err := s.channels.GetLiveByHost(ctx, sellerID)
	if err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) {
			return domain.Auction{}, fmt.Errorf("service: %w - seller %s", domain.ErrChannelNotLive, sellerID)
		}
		return domain.Auction{}, fmt.Errorf("service: start auction for product %s: %w", productID, err)
	}
	if channel.HighlightedProductID != productID {
		return domain.Auction{}, fmt.Errorf("service: %w - product %s in channel %s", domain.ErrNotHighlighted, productID, channel.ID)
	}

	if buyoutCents != 0 && buyoutCents <= product.PriceCents {
		return domain.Auction{}, fmt.Errorf("service: %w - buyout %d vs starting %d", domain.ErrInvalidBuyout, buyoutCents, product.PriceCents)
	}

	now := s.now().UTC()
	auction := domain.Auction{
		ID:              uuid.New().String(),
		ProductID:       productID,
		SellerID:        sellerID,
		ChannelID:       channel.ID,
		StartingCents:   product.PriceCents,
		BuyoutCents:     buyoutCents,
		CurrentBidCents: product.PriceCents,
		DurationSec:     durationSec,
		StartedAt:       now,
		EndsAt:          now.Add(time.Duration(durationSec) * time.Second),
		Status:          domain.AuctionStatusActive,
	}

	if err := s.auctions.Create(ctx, auction); err != nil {
		if errors.Is(err, domain.ErrAuctionConflict) {
			return domain.Auction{}, fmt.Errorf("service: %w - channel %s", domain.ErrAuctionConflict, channel.ID)
		}
		return domain.Auction{}, fmt.Errorf("service: create auction: %w", err)
	}

	s.cacheSnapshot(ctx, auction)

	s.events.Channel(ctx, channel.ID, domain.Event{
		Type: domain.EventAuctionStarted,
		Payload: domain.AuctionStartedPayload{
			AuctionID:     auction.ID,
			ProductID:     auction.ProductID,
			SellerID:      auction.SellerID,
			StartingCents: auction.StartingCents,
			BuyoutCents:   auction.BuyoutCents,
			DurationSec:   auction.DurationSec,
			EndsAt:        auction.EndsAt,
		},
	})

	s.logger.InfoContext(ctx, "auction started",
		slog.String("auction_id", auction.ID),
		slog.String("channel_id", auction.ChannelID),
		slog.String("product_id", auction.ProductID),
		slog.Int64("starting_cents", auction.StartingCents),
		slog.Int64("buyout_cents", auction.BuyoutCents),
		slog.Time("ends_at", auction.EndsAt),
	)

	return auction, nil
}

// GetActiveAuction returns the channel's live auction, serving the snapshot
// a (re)connecting viewer fetches instead of replaying events. Cache misses
// fall through to the store.
func (s *AuctionService) GetActiveAuction(ctx context.Context, channelID string) (domain.Auction, error) {
	if channelID == "" {
		return domain.Auction{}, fmt.Errorf("service: %w - empty channel id", domain.ErrChannelNotFound)
	}

	if s.cache != nil {
		a, ok, err := s.cache.GetActive(ctx, channelID)
		if err != nil {
			s.logger.WarnContext(ctx, "auction cache read failed",
				slog.String("channel_id", channelID),
				slog.String("error", err.Error()),
			)
		} else if ok {
			return a, nil
		}
	}

	auction, err := s.auctions.GetActiveByChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return domain.Auction{}, err
		}
		return domain.Auction{}, fmt.Errorf("service: get active auction for channel %s: %w", channelID, err)
	}

	s.cacheSnapshot(ctx, auction)
	return auction, nil
}

// GetBidHistory returns the auction's bids in placement order.
func (s *AuctionService) GetBidHistory(ctx context.Context, auctionID string) ([]domain.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction id", domain.ErrAuctionNotFound)
	}

	if _, err := s.auctions.GetByID(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("service: get bid history for auction %s: %w", auctionID, err)
	}

	bids, err := s.bids.ListByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: get bid history for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// cacheSnapshot is a best-effort snapshot refresh.
func (s *AuctionService) cacheSnapshot(ctx context.Context, a domain.Auction) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetActive(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "auction cache write failed",
			slog.String("channel_id", a.ChannelID),
			slog.String("error", err.Error()),
		)
	}
}
