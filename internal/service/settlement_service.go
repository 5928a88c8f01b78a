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

// defaultPaymentWindow is how long a winner has to pay their order.
const defaultPaymentWindow = 7 * 24 * time.Hour

// SettlementService closes expired auctions and turns winning bids into
// orders. Settlement is idempotent: only the lock holder that observes an
// active, expired auction performs the active->completed transition, so an
// auction settles exactly once no matter how many callers race on it.
type SettlementService struct {
	auctions      domain.AuctionStore
	orders        domain.OrderStore
	channels      domain.ChannelDirectory
	users         domain.UserDirectory
	events        domain.EventPublisher
	cache         domain.AuctionCache // optional
	logger        *slog.Logger
	now           func() time.Time
	paymentWindow time.Duration
}

// SettlementResult reports the outcome of a CloseAuction call. Settled is
// true only when this call performed the settlement; on an idempotent replay
// the existing auction (and order, if any) come back with Settled false.
type SettlementResult struct {
	Auction domain.Auction
	Order   *domain.Order // nil when the auction closed with no bids
	Settled bool
}

// NewSettlementService creates a SettlementService with all required
// dependencies.
func NewSettlementService(
	auctions domain.AuctionStore,
	orders domain.OrderStore,
	channels domain.ChannelDirectory,
	users domain.UserDirectory,
	events domain.EventPublisher,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		auctions:      auctions,
		orders:        orders,
		channels:      channels,
		users:         users,
		events:        events,
		logger:        logger,
		now:           time.Now,
		paymentWindow: defaultPaymentWindow,
	}
}

// WithCache attaches the snapshot cache so settlement can invalidate the
// channel's active-auction entry.
func (s *SettlementService) WithCache(cache domain.AuctionCache) *SettlementService {
	s.cache = cache
	return s
}

// WithNow overrides the wall clock. Intended for tests.
func (s *SettlementService) WithNow(now func() time.Time) *SettlementService {
	s.now = now
	return s
}

// WithPaymentWindow overrides how long winners have to pay.
func (s *SettlementService) WithPaymentWindow(window time.Duration) *SettlementService {
	if window > 0 {
		s.paymentWindow = window
	}
	return s
}

// CloseAuction settles the auction if it is active and past its deadline.
// Calling it on an already-settled auction returns the existing outcome;
// calling it on an active auction whose deadline has not passed (a bid may
// have extended it since the caller looked) leaves the auction untouched.
func (s *SettlementService) CloseAuction(ctx context.Context, auctionID string) (SettlementResult, error) {
	if auctionID == "" {
		return SettlementResult{}, fmt.Errorf("service: %w - empty auction id", domain.ErrAuctionNotFound)
	}

	var (
		auction domain.Auction
		order   *domain.Order
		settled bool
	)
	err := s.auctions.Lock(ctx, auctionID, func(tx domain.AuctionTx) error {
		auction = tx.Auction()
		if auction.Status != domain.AuctionStatusActive {
			return nil
		}
		now := s.now().UTC()
		if !auction.Expired(now) {
			return nil
		}

		var err error
		order, err = s.settle(tx, &auction, now)
		if err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		return SettlementResult{}, fmt.Errorf("service: close auction %s: %w", auctionID, err)
	}

	if !settled {
		if auction.Status == domain.AuctionStatusCompleted && auction.HasBids() {
			if existing, err := s.orders.GetByAuction(ctx, auctionID); err == nil {
				order = &existing
			} else if !errors.Is(err, domain.ErrOrderNotFound) {
				s.logger.WarnContext(ctx, "order lookup failed for settled auction",
					slog.String("auction_id", auctionID),
					slog.String("error", err.Error()),
				)
			}
		}
		return SettlementResult{Auction: auction, Order: order}, nil
	}

	s.finalize(ctx, auction, order)
	return SettlementResult{Auction: auction, Order: order, Settled: true}, nil
}

// settle performs the terminal transition on a locked, active auction: it
// marks the auction completed and, when there is a winning bid, writes the
// order with the platform fee split. Callers must hold the auction lock and
// dispatch finalize after the transaction commits.
func (s *SettlementService) settle(tx domain.AuctionTx, a *domain.Auction, now time.Time) (*domain.Order, error) {
	a.Status = domain.AuctionStatusCompleted
	if err := tx.SaveAuction(*a); err != nil {
		return nil, fmt.Errorf("save auction: %w", err)
	}

	if !a.HasBids() {
		return nil, nil
	}

	fee, payout := domain.FeeSplit(a.CurrentBidCents)
	order := domain.Order{
		ID:                uuid.New().String(),
		AuctionID:         a.ID,
		BuyerID:           a.HighestBidderID,
		SellerID:          a.SellerID,
		ProductID:         a.ProductID,
		FinalPriceCents:   a.CurrentBidCents,
		PlatformFeeCents:  fee,
		SellerPayoutCents: payout,
		PaymentStatus:     domain.PaymentStatusPending,
		PaymentDeadline:   now.Add(s.paymentWindow),
		CreatedAt:         now,
	}
	if err := tx.InsertOrder(order); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return &order, nil
}

// finalize runs the post-commit side effects of a settlement: snapshot cache
// invalidation, clearing the product from the channel stage, and the ended /
// won / unhighlighted fan-out. All of it is best-effort; the auction is
// already settled by the time finalize runs.
func (s *SettlementService) finalize(ctx context.Context, a domain.Auction, order *domain.Order) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, a.ChannelID); err != nil {
			s.logger.WarnContext(ctx, "auction cache invalidation failed",
				slog.String("channel_id", a.ChannelID),
				slog.String("error", err.Error()),
			)
		}
	}

	cleared, err := s.channels.ClearHighlighted(ctx, a.ChannelID, a.ProductID)
	if err != nil {
		s.logger.WarnContext(ctx, "clearing highlighted product failed",
			slog.String("channel_id", a.ChannelID),
			slog.String("product_id", a.ProductID),
			slog.String("error", err.Error()),
		)
		cleared = false
	}

	ended := domain.EndedPayload{AuctionID: a.ID}
	if a.HasBids() {
		ended.WinnerID = a.HighestBidderID
		ended.FinalPriceCents = a.CurrentBidCents
		if winner, err := s.users.Get(ctx, a.HighestBidderID); err == nil {
			ended.WinnerName = winner.Username
		}
	}
	s.events.Channel(ctx, a.ChannelID, domain.Event{
		Type:    domain.EventAuctionEnded,
		Payload: ended,
	})

	if order != nil {
		s.events.User(ctx, order.BuyerID, domain.Event{
			Type:      domain.EventAuctionWon,
			ChannelID: a.ChannelID,
			Payload: domain.WonPayload{
				AuctionID:       a.ID,
				OrderID:         order.ID,
				FinalPriceCents: order.FinalPriceCents,
				PaymentDeadline: order.PaymentDeadline,
			},
		})
	}

	if cleared {
		s.events.Channel(ctx, a.ChannelID, domain.Event{
			Type:    domain.EventProductUnhighlighted,
			Payload: domain.UnhighlightedPayload{ProductID: a.ProductID},
		})
	}

	attrs := []any{
		slog.String("auction_id", a.ID),
		slog.String("channel_id", a.ChannelID),
		slog.Bool("had_bids", a.HasBids()),
	}
	if order != nil {
		attrs = append(attrs,
			slog.String("order_id", order.ID),
			slog.Int64("final_price_cents", order.FinalPriceCents),
			slog.Int64("platform_fee_cents", order.PlatformFeeCents),
		)
	}
	s.logger.InfoContext(ctx, "auction settled", attrs...)
}
