package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bidstream/bidstream/internal/domain"
)

func TestStartAuction(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(e *env)
		productID   string
		sellerID    string
		durationSec int
		buyoutCents int64
		wantErr     error
	}{
		{
			name:        "creates auction at product price",
			productID:   productID,
			sellerID:    sellerID,
			durationSec: 300,
		},
		{
			name:        "creates auction with buyout",
			productID:   productID,
			sellerID:    sellerID,
			durationSec: 60,
			buyoutCents: 15000,
		},
		{
			name:        "rejects unsupported duration",
			productID:   productID,
			sellerID:    sellerID,
			durationSec: 120,
			wantErr:     domain.ErrInvalidDuration,
		},
		{
			name:        "rejects unknown product",
			productID:   "prod-missing",
			sellerID:    sellerID,
			durationSec: 300,
			wantErr:     domain.ErrProductNotFound,
		},
		{
			name:        "rejects non owner",
			productID:   productID,
			sellerID:    bidderA,
			durationSec: 300,
			wantErr:     domain.ErrNotShopOwner,
		},
		{
			name: "rejects when channel is offline",
			setup: func(e *env) {
				e.store.AddChannel(domain.Channel{ID: channelID, HostID: sellerID, Live: false, HighlightedProductID: productID})
			},
			productID:   productID,
			sellerID:    sellerID,
			durationSec: 300,
			wantErr:     domain.ErrChannelNotLive,
		},
		{
			name: "rejects when product is not highlighted",
			setup: func(e *env) {
				e.store.AddChannel(domain.Channel{ID: channelID, HostID: sellerID, Live: true, HighlightedProductID: "prod-other"})
			},
			productID:   productID,
			sellerID:    sellerID,
			durationSec: 300,
			wantErr:     domain.ErrNotHighlighted,
		},
		{
			name:        "rejects buyout at or below starting price",
			productID:   productID,
			sellerID:    sellerID,
			durationSec: 300,
			buyoutCents: productPriceCents,
			wantErr:     domain.ErrInvalidBuyout,
		},
		{
			name:        "rejects empty product id",
			productID:   "",
			sellerID:    sellerID,
			durationSec: 300,
			wantErr:     domain.ErrProductNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv()
			if tt.setup != nil {
				tt.setup(e)
			}
			auctions, _, _ := newServices(e)

			got, err := auctions.StartAuction(context.Background(), tt.productID, tt.sellerID, tt.durationSec, tt.buyoutCents)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			require.NotEmpty(t, got.ID)
			require.Equal(t, channelID, got.ChannelID)
			require.Equal(t, domain.AuctionStatusActive, got.Status)
			require.Equal(t, int64(productPriceCents), got.StartingCents)
			require.Equal(t, int64(productPriceCents), got.CurrentBidCents)
			require.Empty(t, got.HighestBidderID)
			require.Equal(t, tt.buyoutCents, got.BuyoutCents)
			require.Equal(t, baseTime, got.StartedAt)
			require.Equal(t, baseTime.Add(time.Duration(tt.durationSec)*time.Second), got.EndsAt)

			started := e.pub.channelEvents(domain.EventAuctionStarted)
			require.Len(t, started, 1)
			require.Equal(t, channelID, started[0].ChannelID)
		})
	}
}

func TestStartAuctionConflict(t *testing.T) {
	e := newEnv()
	auctions, _, _ := newServices(e)

	_, err := startAuction(e, auctions, 300, 0)
	require.NoError(t, err)

	_, err = startAuction(e, auctions, 300, 0)
	require.ErrorIs(t, err, domain.ErrAuctionConflict)
}

func TestGetActiveAuction(t *testing.T) {
	e := newEnv()
	auctions, _, _ := newServices(e)

	_, err := auctions.GetActiveAuction(context.Background(), channelID)
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)

	created, err := startAuction(e, auctions, 300, 0)
	require.NoError(t, err)

	got, err := auctions.GetActiveAuction(context.Background(), channelID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, created.EndsAt, got.EndsAt)

	_, err = auctions.GetActiveAuction(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestGetBidHistory(t *testing.T) {
	e := newEnv()
	auctions, bidding, _ := newServices(e)

	created, err := startAuction(e, auctions, 300, 0)
	require.NoError(t, err)

	history, err := auctions.GetBidHistory(context.Background(), created.ID)
	require.NoError(t, err)
	require.Empty(t, history)

	_, _, err = bidding.PlaceBid(context.Background(), created.ID, bidderA, 5100)
	require.NoError(t, err)
	_, _, err = bidding.PlaceBid(context.Background(), created.ID, bidderB, 5200)
	require.NoError(t, err)

	history, err = auctions.GetBidHistory(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, bidderA, history[0].BidderID)
	require.Equal(t, bidderB, history[1].BidderID)

	_, err = auctions.GetBidHistory(context.Background(), "auction-missing")
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)
}
