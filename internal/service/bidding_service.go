package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bidstream/bidstream/internal/domain"
)

// BidPolicy holds the tunable knobs of the bid acceptance protocol.
type BidPolicy struct {
	// MinIncrementCents is how far above the current bid the next bid must
	// land.
	MinIncrementCents int64
	// ExtensionThreshold is the soft-close window: a bid accepted with less
	// than this much time remaining pushes the deadline out.
	ExtensionThreshold time.Duration
	// ExtensionWindow is how far the deadline moves on each extension.
	ExtensionWindow time.Duration
	// RateLimit and RateWindow bound how many bids a single bidder may
	// submit per window.
	RateLimit  int
	RateWindow time.Duration
}

// DefaultBidPolicy returns the production defaults.
func DefaultBidPolicy() BidPolicy {
	return BidPolicy{
		MinIncrementCents:  100,
		ExtensionThreshold: 30 * time.Second,
		ExtensionWindow:    30 * time.Second,
		RateLimit:          10,
		RateWindow:         10 * time.Second,
	}
}

// BiddingService accepts bids and buyouts. Every decision about a bid is made
// under the store's per-auction lock against the freshest row, so two bids
// racing for the same auction serialize and the loser is judged against the
// winner's amount, not a stale snapshot.
type BiddingService struct {
	auctions   domain.AuctionStore
	users      domain.UserDirectory
	settlement *SettlementService
	events     domain.EventPublisher
	cache      domain.AuctionCache // optional
	limiter    domain.RateLimiter  // optional
	logger     *slog.Logger
	now        func() time.Time
	policy     BidPolicy
}

// NewBiddingService creates a BiddingService with all required dependencies.
// Buyouts settle through the given SettlementService inside the same lock
// that accepts them.
func NewBiddingService(
	auctions domain.AuctionStore,
	users domain.UserDirectory,
	settlement *SettlementService,
	events domain.EventPublisher,
	policy BidPolicy,
	logger *slog.Logger,
) *BiddingService {
	return &BiddingService{
		auctions:   auctions,
		users:      users,
		settlement: settlement,
		events:     events,
		logger:     logger,
		now:        time.Now,
		policy:     policy,
	}
}

// WithCache attaches a snapshot cache refreshed on every accepted bid.
func (s *BiddingService) WithCache(cache domain.AuctionCache) *BiddingService {
	s.cache = cache
	return s
}

// WithRateLimiter attaches a per-bidder rate limiter. Without one bids are
// never throttled.
func (s *BiddingService) WithRateLimiter(limiter domain.RateLimiter) *BiddingService {
	s.limiter = limiter
	return s
}

// WithNow overrides the wall clock. Intended for tests.
func (s *BiddingService) WithNow(now func() time.Time) *BiddingService {
	s.now = now
	return s
}

// PlaceBid validates and records a bid under the auction lock. On acceptance
// it returns the bid and the updated auction, whose deadline may have moved
// if the bid landed inside the soft-close window.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, amountCents int64) (domain.Bid, domain.Auction, error) {
	if auctionID == "" {
		return domain.Bid{}, domain.Auction{}, fmt.Errorf("service: %w - empty auction id", domain.ErrAuctionNotFound)
	}
	if bidderID == "" {
		return domain.Bid{}, domain.Auction{}, fmt.Errorf("service: %w - empty bidder id", domain.ErrUserNotFound)
	}
	if amountCents <= 0 {
		return domain.Bid{}, domain.Auction{}, fmt.Errorf("service: %w", &domain.BidTooLowError{MinCents: s.policy.MinIncrementCents})
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "bid:"+bidderID, s.policy.RateLimit, s.policy.RateWindow)
		if err != nil {
			// Fail open: a limiter outage must not block bidding.
			s.logger.WarnContext(ctx, "bid rate limiter unavailable",
				slog.String("bidder_id", bidderID),
				slog.String("error", err.Error()),
			)
		} else if !allowed {
			return domain.Bid{}, domain.Auction{}, fmt.Errorf("service: %w - bidder %s", domain.ErrRateLimited, bidderID)
		}
	}

	var (
		bid        domain.Bid
		auction    domain.Auction
		prevBidder string
		extended   bool
	)
	err := s.auctions.Lock(ctx, auctionID, func(tx domain.AuctionTx) error {
		auction = tx.Auction()
		if auction.Status != domain.AuctionStatusActive {
			return domain.ErrAuctionNotActive
		}
		now := s.now().UTC()
		if auction.Expired(now) {
			return domain.ErrAuctionExpired
		}
		if bidderID == auction.SellerID {
			return domain.ErrSelfBid
		}
		if min := auction.MinNextBid(s.policy.MinIncrementCents); amountCents < min {
			return &domain.BidTooLowError{MinCents: min}
		}

		bid = domain.Bid{
			ID:          uuid.New().String(),
			AuctionID:   auction.ID,
			BidderID:    bidderID,
			AmountCents: amountCents,
			PlacedAt:    now,
		}
		if err := tx.InsertBid(bid); err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}

		prevBidder = auction.HighestBidderID
		auction.CurrentBidCents = amountCents
		auction.HighestBidderID = bidderID
		if auction.EndsAt.Sub(now) < s.policy.ExtensionThreshold {
			auction.EndsAt = auction.EndsAt.Add(s.policy.ExtensionWindow)
			auction.ExtendedCount++
			extended = true
		}
		if err := tx.SaveAuction(auction); err != nil {
			return fmt.Errorf("save auction: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Bid{}, domain.Auction{}, fmt.Errorf("service: place bid on auction %s: %w", auctionID, err)
	}

	s.cacheSnapshot(ctx, auction)
	s.announceBid(ctx, auction, bid, prevBidder, extended)

	s.logger.InfoContext(ctx, "bid accepted",
		slog.String("auction_id", auction.ID),
		slog.String("bidder_id", bidderID),
		slog.Int64("amount_cents", amountCents),
		slog.Bool("extended", extended),
		slog.Time("ends_at", auction.EndsAt),
	)

	return bid, auction, nil
}

// Buyout ends the auction immediately at the buyout price. The buyer becomes
// the winner and settlement runs inside the same lock that accepted the
// buyout, so the returned order is already durable.
func (s *BiddingService) Buyout(ctx context.Context, auctionID, buyerID string) (domain.Order, domain.Auction, error) {
	if auctionID == "" {
		return domain.Order{}, domain.Auction{}, fmt.Errorf("service: %w - empty auction id", domain.ErrAuctionNotFound)
	}
	if buyerID == "" {
		return domain.Order{}, domain.Auction{}, fmt.Errorf("service: %w - empty buyer id", domain.ErrUserNotFound)
	}

	var (
		auction domain.Auction
		order   *domain.Order
	)
	err := s.auctions.Lock(ctx, auctionID, func(tx domain.AuctionTx) error {
		auction = tx.Auction()
		if auction.Status != domain.AuctionStatusActive {
			return domain.ErrAuctionNotActive
		}
		now := s.now().UTC()
		if auction.Expired(now) {
			return domain.ErrAuctionExpired
		}
		if !auction.HasBuyout() {
			return domain.ErrNoBuyoutPrice
		}
		if buyerID == auction.SellerID {
			return domain.ErrSelfBid
		}

		bid := domain.Bid{
			ID:          uuid.New().String(),
			AuctionID:   auction.ID,
			BidderID:    buyerID,
			AmountCents: auction.BuyoutCents,
			PlacedAt:    now,
		}
		if err := tx.InsertBid(bid); err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}

		auction.CurrentBidCents = auction.BuyoutCents
		auction.HighestBidderID = buyerID

		var err error
		order, err = s.settlement.settle(tx, &auction, now)
		return err
	})
	if err != nil {
		return domain.Order{}, domain.Auction{}, fmt.Errorf("service: buyout auction %s: %w", auctionID, err)
	}

	buyerName := ""
	if buyer, err := s.users.Get(ctx, buyerID); err == nil {
		buyerName = buyer.Username
	}
	s.events.Channel(ctx, auction.ChannelID, domain.Event{
		Type: domain.EventAuctionBuyout,
		Payload: domain.BuyoutPayload{
			AuctionID:   auction.ID,
			BuyerID:     buyerID,
			BuyerName:   buyerName,
			AmountCents: auction.CurrentBidCents,
		},
	})
	s.settlement.finalize(ctx, auction, order)

	return *order, auction, nil
}

// announceBid fans out the post-commit events for an accepted bid.
func (s *BiddingService) announceBid(ctx context.Context, a domain.Auction, bid domain.Bid, prevBidder string, extended bool) {
	bidderName := ""
	if bidder, err := s.users.Get(ctx, bid.BidderID); err == nil {
		bidderName = bidder.Username
	}

	minNext := a.MinNextBid(s.policy.MinIncrementCents)
	s.events.Channel(ctx, a.ChannelID, domain.Event{
		Type: domain.EventAuctionBid,
		Payload: domain.BidPlacedPayload{
			AuctionID:       a.ID,
			BidderID:        bid.BidderID,
			BidderName:      bidderName,
			AmountCents:     bid.AmountCents,
			MinNextBidCents: minNext,
			EndsAt:          a.EndsAt,
			Extended:        extended,
			ExtendedCount:   a.ExtendedCount,
		},
	})

	if extended {
		s.events.Channel(ctx, a.ChannelID, domain.Event{
			Type: domain.EventAuctionExtended,
			Payload: domain.ExtendedPayload{
				AuctionID:     a.ID,
				EndsAt:        a.EndsAt,
				ExtendedCount: a.ExtendedCount,
			},
		})
	}

	if prevBidder != "" && prevBidder != bid.BidderID {
		s.events.User(ctx, prevBidder, domain.Event{
			Type:      domain.EventAuctionOutbid,
			ChannelID: a.ChannelID,
			Payload: domain.OutbidPayload{
				AuctionID:       a.ID,
				AmountCents:     bid.AmountCents,
				MinNextBidCents: minNext,
			},
		})
	}
}

// cacheSnapshot is a best-effort snapshot refresh.
func (s *BiddingService) cacheSnapshot(ctx context.Context, a domain.Auction) {
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
