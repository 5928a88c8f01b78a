package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bidstream/bidstream/internal/domain"
)

// AuctionService defines the lifecycle and query methods the handler needs.
// It is declared locally so the handler package does not depend on the
// concrete service implementation.
type AuctionService interface {
	StartAuction(ctx context.Context, productID, sellerID string, durationSec int, buyoutCents int64) (domain.Auction, error)
	GetActiveAuction(ctx context.Context, channelID string) (domain.Auction, error)
	GetBidHistory(ctx context.Context, auctionID string) ([]domain.Bid, error)
}

// BiddingService defines the bid and buyout methods the handler needs.
type BiddingService interface {
	PlaceBid(ctx context.Context, auctionID, bidderID string, amountCents int64) (domain.Bid, domain.Auction, error)
	Buyout(ctx context.Context, auctionID, buyerID string) (domain.Order, domain.Auction, error)
}

// AuctionHandler serves the auction HTTP endpoints.
type AuctionHandler struct {
	auctions     AuctionService
	bidding      BiddingService
	minIncrement int64
	logger       *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler. minIncrementCents is used to
// report the next acceptable bid in responses.
func NewAuctionHandler(auctions AuctionService, bidding BiddingService, minIncrementCents int64, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions:     auctions,
		bidding:      bidding,
		minIncrement: minIncrementCents,
		logger:       logger,
	}
}

type auctionResponse struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	SellerID        string    `json:"seller_id"`
	ChannelID       string    `json:"channel_id"`
	StartingCents   int64     `json:"starting_cents"`
	BuyoutCents     int64     `json:"buyout_cents,omitempty"`
	CurrentBidCents int64     `json:"current_bid_cents"`
	HighestBidderID string    `json:"highest_bidder_id,omitempty"`
	MinNextBidCents int64     `json:"min_next_bid_cents"`
	DurationSec     int       `json:"duration_sec"`
	StartedAt       time.Time `json:"started_at"`
	EndsAt          time.Time `json:"ends_at"`
	ExtendedCount   int       `json:"extended_count"`
	Status          string    `json:"status"`
}

type bidResponse struct {
	ID          string    `json:"id"`
	AuctionID   string    `json:"auction_id"`
	BidderID    string    `json:"bidder_id"`
	AmountCents int64     `json:"amount_cents"`
	PlacedAt    time.Time `json:"placed_at"`
}

type orderResponse struct {
	ID                string    `json:"id"`
	AuctionID         string    `json:"auction_id"`
	BuyerID           string    `json:"buyer_id"`
	SellerID          string    `json:"seller_id"`
	ProductID         string    `json:"product_id"`
	FinalPriceCents   int64     `json:"final_price_cents"`
	PlatformFeeCents  int64     `json:"platform_fee_cents"`
	SellerPayoutCents int64     `json:"seller_payout_cents"`
	PaymentStatus     string    `json:"payment_status"`
	PaymentDeadline   time.Time `json:"payment_deadline"`
	CreatedAt         time.Time `json:"created_at"`
}

func (h *AuctionHandler) toAuctionResponse(a domain.Auction) auctionResponse {
	resp := auctionResponse{
		ID:              a.ID,
		ProductID:       a.ProductID,
		SellerID:        a.SellerID,
		ChannelID:       a.ChannelID,
		StartingCents:   a.StartingCents,
		BuyoutCents:     a.BuyoutCents,
		CurrentBidCents: a.CurrentBidCents,
		HighestBidderID: a.HighestBidderID,
		DurationSec:     a.DurationSec,
		StartedAt:       a.StartedAt,
		EndsAt:          a.EndsAt,
		ExtendedCount:   a.ExtendedCount,
		Status:          string(a.Status),
	}
	if a.Status == domain.AuctionStatusActive {
		resp.MinNextBidCents = a.MinNextBid(h.minIncrement)
	}
	return resp
}

func toBidResponse(b domain.Bid) bidResponse {
	return bidResponse{
		ID:          b.ID,
		AuctionID:   b.AuctionID,
		BidderID:    b.BidderID,
		AmountCents: b.AmountCents,
		PlacedAt:    b.PlacedAt,
	}
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:                o.ID,
		AuctionID:         o.AuctionID,
		BuyerID:           o.BuyerID,
		SellerID:          o.SellerID,
		ProductID:         o.ProductID,
		FinalPriceCents:   o.FinalPriceCents,
		PlatformFeeCents:  o.PlatformFeeCents,
		SellerPayoutCents: o.SellerPayoutCents,
		PaymentStatus:     string(o.PaymentStatus),
		PaymentDeadline:   o.PaymentDeadline,
		CreatedAt:         o.CreatedAt,
	}
}

type startAuctionRequest struct {
	ProductID   string `json:"product_id"`
	DurationSec int    `json:"duration_sec"`
	BuyoutCents int64  `json:"buyout_cents"`
}

// StartAuction creates an auction for the highlighted product in the
// caller's live channel.
// POST /api/auctions
func (h *AuctionHandler) StartAuction(w http.ResponseWriter, r *http.Request) {
	seller := actorID(r)
	if seller == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}

	var req startAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	auction, err := h.auctions.StartAuction(r.Context(), req.ProductID, seller, req.DurationSec, req.BuyoutCents)
	if err != nil {
		h.logOnInternal(r, "start auction failed", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toAuctionResponse(auction))
}

// GetChannelAuction returns the channel's current active auction.
// GET /api/channels/{id}/auction
func (h *AuctionHandler) GetChannelAuction(w http.ResponseWriter, r *http.Request) {
	channelID := pathParam(r, "id")
	if channelID == "" {
		writeError(w, http.StatusBadRequest, "missing channel id")
		return
	}

	auction, err := h.auctions.GetActiveAuction(r.Context(), channelID)
	if err != nil {
		h.logOnInternal(r, "get channel auction failed", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.toAuctionResponse(auction))
}

type placeBidRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

// PlaceBid submits a bid on an auction.
// POST /api/auctions/{id}/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	bidder := actorID(r)
	if bidder == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}

	auctionID := pathParam(r, "id")
	if auctionID == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bid, auction, err := h.bidding.PlaceBid(r.Context(), auctionID, bidder, req.AmountCents)
	if err != nil {
		h.logOnInternal(r, "place bid failed", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"bid":     toBidResponse(bid),
		"auction": h.toAuctionResponse(auction),
	})
}

// Buyout ends the auction immediately at the buyout price.
// POST /api/auctions/{id}/buyout
func (h *AuctionHandler) Buyout(w http.ResponseWriter, r *http.Request) {
	buyer := actorID(r)
	if buyer == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return
	}

	auctionID := pathParam(r, "id")
	if auctionID == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	order, auction, err := h.bidding.Buyout(r.Context(), auctionID, buyer)
	if err != nil {
		h.logOnInternal(r, "buyout failed", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"order":   toOrderResponse(order),
		"auction": h.toAuctionResponse(auction),
	})
}

// ListBids returns the auction's bid history in placement order.
// GET /api/auctions/{id}/bids
func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	auctionID := pathParam(r, "id")
	if auctionID == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	bids, err := h.auctions.GetBidHistory(r.Context(), auctionID)
	if err != nil {
		h.logOnInternal(r, "list bids failed", err)
		writeDomainError(w, err)
		return
	}

	out := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, toBidResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": out})
}

// logOnInternal logs errors that will surface as a 500. Domain errors map to
// client statuses and are not logged at error level.
func (h *AuctionHandler) logOnInternal(r *http.Request, msg string, err error) {
	if isDomainError(err) {
		return
	}
	h.logger.ErrorContext(r.Context(), "handler: "+msg,
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}

func isDomainError(err error) bool {
	for _, sentinel := range []error{
		domain.ErrAuctionNotFound, domain.ErrProductNotFound, domain.ErrChannelNotFound,
		domain.ErrOrderNotFound, domain.ErrUserNotFound, domain.ErrNotShopOwner,
		domain.ErrSelfBid, domain.ErrAuctionConflict, domain.ErrAuctionNotActive,
		domain.ErrAuctionExpired, domain.ErrNoBuyoutPrice, domain.ErrChannelNotLive,
		domain.ErrNotHighlighted, domain.ErrBidTooLow, domain.ErrInvalidDuration,
		domain.ErrInvalidBuyout, domain.ErrRateLimited,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
