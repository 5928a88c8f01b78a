package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bidstream/bidstream/internal/domain"
)

type fakeAuctionService struct {
	auction domain.Auction
	bids    []domain.Bid
	err     error
}

func (f *fakeAuctionService) StartAuction(_ context.Context, productID, sellerID string, durationSec int, buyoutCents int64) (domain.Auction, error) {
	if f.err != nil {
		return domain.Auction{}, f.err
	}
	a := f.auction
	a.ProductID = productID
	a.SellerID = sellerID
	a.DurationSec = durationSec
	a.BuyoutCents = buyoutCents
	return a, nil
}

func (f *fakeAuctionService) GetActiveAuction(_ context.Context, channelID string) (domain.Auction, error) {
	if f.err != nil {
		return domain.Auction{}, f.err
	}
	a := f.auction
	a.ChannelID = channelID
	return a, nil
}

func (f *fakeAuctionService) GetBidHistory(context.Context, string) ([]domain.Bid, error) {
	return f.bids, f.err
}

type fakeBiddingService struct {
	bid     domain.Bid
	order   domain.Order
	auction domain.Auction
	err     error
}

func (f *fakeBiddingService) PlaceBid(context.Context, string, string, int64) (domain.Bid, domain.Auction, error) {
	return f.bid, f.auction, f.err
}

func (f *fakeBiddingService) Buyout(context.Context, string, string) (domain.Order, domain.Auction, error) {
	return f.order, f.auction, f.err
}

func testMux(auctions AuctionService, bidding BiddingService) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewAuctionHandler(auctions, bidding, 100, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auctions", h.StartAuction)
	mux.HandleFunc("GET /api/channels/{id}/auction", h.GetChannelAuction)
	mux.HandleFunc("POST /api/auctions/{id}/bids", h.PlaceBid)
	mux.HandleFunc("POST /api/auctions/{id}/buyout", h.Buyout)
	mux.HandleFunc("GET /api/auctions/{id}/bids", h.ListBids)
	return mux
}

func activeFixture() domain.Auction {
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return domain.Auction{
		ID:              "a-1",
		ProductID:       "prod-1",
		SellerID:        "seller-1",
		ChannelID:       "chan-1",
		StartingCents:   5000,
		CurrentBidCents: 5000,
		DurationSec:     300,
		StartedAt:       started,
		EndsAt:          started.Add(5 * time.Minute),
		Status:          domain.AuctionStatusActive,
	}
}

func TestStartAuctionEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		body       string
		serviceErr error
		wantStatus int
	}{
		{
			name:       "created",
			userID:     "seller-1",
			body:       `{"product_id":"prod-1","duration_sec":300}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing user header",
			body:       `{"product_id":"prod-1","duration_sec":300}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed body",
			userID:     "seller-1",
			body:       `{"product_id":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad duration maps to 400",
			userID:     "seller-1",
			body:       `{"product_id":"prod-1","duration_sec":42}`,
			serviceErr: domain.ErrInvalidDuration,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not owner maps to 403",
			userID:     "someone-else",
			body:       `{"product_id":"prod-1","duration_sec":300}`,
			serviceErr: domain.ErrNotShopOwner,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "channel busy maps to 409",
			userID:     "seller-1",
			body:       `{"product_id":"prod-1","duration_sec":300}`,
			serviceErr: domain.ErrAuctionConflict,
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := testMux(&fakeAuctionService{auction: activeFixture(), err: tt.serviceErr}, &fakeBiddingService{})

			req := httptest.NewRequest(http.MethodPost, "/api/auctions", strings.NewReader(tt.body))
			if tt.userID != "" {
				req.Header.Set("X-User-ID", tt.userID)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusCreated {
				var resp auctionResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				require.Equal(t, "a-1", resp.ID)
				require.Equal(t, int64(5100), resp.MinNextBidCents)
			}
		})
	}
}

func TestGetChannelAuctionEndpoint(t *testing.T) {
	mux := testMux(&fakeAuctionService{auction: activeFixture()}, &fakeBiddingService{})

	req := httptest.NewRequest(http.MethodGet, "/api/channels/chan-1/auction", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp auctionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "chan-1", resp.ChannelID)
	require.Equal(t, "active", resp.Status)
}

func TestGetChannelAuctionNotFound(t *testing.T) {
	mux := testMux(&fakeAuctionService{err: domain.ErrAuctionNotFound}, &fakeBiddingService{})

	req := httptest.NewRequest(http.MethodGet, "/api/channels/chan-1/auction", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlaceBidEndpoint(t *testing.T) {
	auction := activeFixture()
	auction.CurrentBidCents = 5100
	auction.HighestBidderID = "bidder-1"
	bid := domain.Bid{ID: "b-1", AuctionID: "a-1", BidderID: "bidder-1", AmountCents: 5100}

	tests := []struct {
		name       string
		userID     string
		body       string
		serviceErr error
		wantStatus int
	}{
		{
			name:       "accepted",
			userID:     "bidder-1",
			body:       `{"amount_cents":5100}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing user header",
			body:       `{"amount_cents":5100}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "too low maps to 422",
			userID:     "bidder-1",
			body:       `{"amount_cents":1}`,
			serviceErr: &domain.BidTooLowError{MinCents: 5100},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "expired maps to 409",
			userID:     "bidder-1",
			body:       `{"amount_cents":5100}`,
			serviceErr: domain.ErrAuctionExpired,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "self bid maps to 403",
			userID:     "seller-1",
			body:       `{"amount_cents":5100}`,
			serviceErr: domain.ErrSelfBid,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "rate limited maps to 429",
			userID:     "bidder-1",
			body:       `{"amount_cents":5100}`,
			serviceErr: domain.ErrRateLimited,
			wantStatus: http.StatusTooManyRequests,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := testMux(&fakeAuctionService{}, &fakeBiddingService{bid: bid, auction: auction, err: tt.serviceErr})

			req := httptest.NewRequest(http.MethodPost, "/api/auctions/a-1/bids", strings.NewReader(tt.body))
			if tt.userID != "" {
				req.Header.Set("X-User-ID", tt.userID)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)

			switch tt.wantStatus {
			case http.StatusCreated:
				var resp struct {
					Bid     bidResponse     `json:"bid"`
					Auction auctionResponse `json:"auction"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				require.Equal(t, "b-1", resp.Bid.ID)
				require.Equal(t, int64(5200), resp.Auction.MinNextBidCents)
			case http.StatusUnprocessableEntity:
				var resp struct {
					Error           string `json:"error"`
					MinNextBidCents int64  `json:"min_next_bid_cents"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				require.Equal(t, int64(5100), resp.MinNextBidCents)
			}
		})
	}
}

func TestBuyoutEndpoint(t *testing.T) {
	auction := activeFixture()
	auction.Status = domain.AuctionStatusCompleted
	auction.CurrentBidCents = 15000
	auction.HighestBidderID = "bidder-1"
	order := domain.Order{
		ID:                "o-1",
		AuctionID:         "a-1",
		BuyerID:           "bidder-1",
		SellerID:          "seller-1",
		FinalPriceCents:   15000,
		PlatformFeeCents:  1050,
		SellerPayoutCents: 13950,
		PaymentStatus:     domain.PaymentStatusPending,
	}

	mux := testMux(&fakeAuctionService{}, &fakeBiddingService{order: order, auction: auction})

	req := httptest.NewRequest(http.MethodPost, "/api/auctions/a-1/buyout", nil)
	req.Header.Set("X-User-ID", "bidder-1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Order   orderResponse   `json:"order"`
		Auction auctionResponse `json:"auction"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "o-1", resp.Order.ID)
	require.Equal(t, int64(1050), resp.Order.PlatformFeeCents)
	require.Equal(t, "completed", resp.Auction.Status)
	// Completed auctions do not advertise a next bid.
	require.Zero(t, resp.Auction.MinNextBidCents)
}

func TestBuyoutEndpointNoPrice(t *testing.T) {
	mux := testMux(&fakeAuctionService{}, &fakeBiddingService{err: domain.ErrNoBuyoutPrice})

	req := httptest.NewRequest(http.MethodPost, "/api/auctions/a-1/buyout", nil)
	req.Header.Set("X-User-ID", "bidder-1")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestListBidsEndpoint(t *testing.T) {
	bids := []domain.Bid{
		{ID: "b-1", AuctionID: "a-1", BidderID: "bidder-1", AmountCents: 5100},
		{ID: "b-2", AuctionID: "a-1", BidderID: "bidder-2", AmountCents: 5200},
	}
	mux := testMux(&fakeAuctionService{bids: bids}, &fakeBiddingService{})

	req := httptest.NewRequest(http.MethodGet, "/api/auctions/a-1/bids", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Bids []bidResponse `json:"bids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Bids, 2)
	require.Equal(t, "b-2", resp.Bids[1].ID)
}
