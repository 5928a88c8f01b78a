package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bidstream/bidstream/internal/domain"
)

func TestCloseAuctionSkipsUnexpired(t *testing.T) {
	e := newEnv()
	auctions, _, settlement := newServices(e)

	created, err := startAuction(e, auctions, 300, 0)
	require.NoError(t, err)

	e.advance(100 * time.Second)
	res, err := settlement.CloseAuction(context.Background(), created.ID)
	require.NoError(t, err)
	require.False(t, res.Settled)
	require.Equal(t, domain.AuctionStatusActive, res.Auction.Status)
	require.Nil(t, res.Order)
	require.Empty(t, e.pub.channelEvents(domain.EventAuctionEnded))
}

func TestCloseAuctionNoBids(t *testing.T) {
	e := newEnv()
	auctions, _, settlement := newServices(e)

	created, err := startAuction(e, auctions, 60, 0)
	require.NoError(t, err)

	e.advance(61 * time.Second)
	res, err := settlement.CloseAuction(context.Background(), created.ID)
	require.NoError(t, err)
	require.True(t, res.Settled)
	require.Equal(t, domain.AuctionStatusCompleted, res.Auction.Status)
	require.Nil(t, res.Order)

	ended := e.pub.channelEvents(domain.EventAuctionEnded)
	require.Len(t, ended, 1)
	payload, ok := ended[0].Payload.(domain.EndedPayload)
	require.True(t, ok)
	require.Empty(t, payload.WinnerID)
	require.Zero(t, payload.FinalPriceCents)
}

func TestCloseAuctionWithWinner(t *testing.T) {
	e := newEnv()
	auctions, bidding, settlement := newServices(e)

	created, err := startAuction(e, auctions, 60, 0)
	require.NoError(t, err)

	_, _, err = bidding.PlaceBid(context.Background(), created.ID, bidderA, 10000)
	require.NoError(t, err)

	e.advance(61 * time.Second)
	closedAt := e.clock()
	res, err := settlement.CloseAuction(context.Background(), created.ID)
	require.NoError(t, err)
	require.True(t, res.Settled)
	require.NotNil(t, res.Order)

	order := res.Order
	require.Equal(t, bidderA, order.BuyerID)
	require.Equal(t, sellerID, order.SellerID)
	require.Equal(t, int64(10000), order.FinalPriceCents)
	require.Equal(t, int64(700), order.PlatformFeeCents)
	require.Equal(t, int64(9300), order.SellerPayoutCents)
	require.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	require.Equal(t, closedAt.Add(7*24*time.Hour), order.PaymentDeadline)

	// Winner notification and stage cleanup follow the commit.
	won := e.pub.userEvents(bidderA)
	require.Len(t, won, 1)
	require.Equal(t, domain.EventAuctionWon, won[0].Type)
	require.Len(t, e.pub.channelEvents(domain.EventProductUnhighlighted), 1)

	ch, err := e.store.Get(context.Background(), channelID)
	require.NoError(t, err)
	require.Empty(t, ch.HighlightedProductID)
}

func TestCloseAuctionIdempotent(t *testing.T) {
	e := newEnv()
	auctions, bidding, settlement := newServices(e)

	created, err := startAuction(e, auctions, 60, 0)
	require.NoError(t, err)
	_, _, err = bidding.PlaceBid(context.Background(), created.ID, bidderA, 10000)
	require.NoError(t, err)

	e.advance(61 * time.Second)
	first, err := settlement.CloseAuction(context.Background(), created.ID)
	require.NoError(t, err)
	require.True(t, first.Settled)
	require.NotNil(t, first.Order)

	second, err := settlement.CloseAuction(context.Background(), created.ID)
	require.NoError(t, err)
	require.False(t, second.Settled)
	require.NotNil(t, second.Order)
	require.Equal(t, first.Order.ID, second.Order.ID)

	// The replay publishes nothing.
	require.Len(t, e.pub.channelEvents(domain.EventAuctionEnded), 1)
	require.Len(t, e.pub.userEvents(bidderA), 1)
}

func TestCloseAuctionConcurrent(t *testing.T) {
	e := newEnv()
	auctions, bidding, settlement := newServices(e)

	created, err := startAuction(e, auctions, 60, 0)
	require.NoError(t, err)
	_, _, err = bidding.PlaceBid(context.Background(), created.ID, bidderA, 10000)
	require.NoError(t, err)

	e.advance(61 * time.Second)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := settlement.CloseAuction(context.Background(), created.ID)
			require.NoError(t, err)
			if res.Settled {
				mu.Lock()
				settled++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, settled)
	require.Len(t, e.pub.channelEvents(domain.EventAuctionEnded), 1)

	orders, err := e.store.GetByAuction(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, bidderA, orders.BuyerID)
}

func TestCloseAuctionUnknown(t *testing.T) {
	e := newEnv()
	_, _, settlement := newServices(e)

	_, err := settlement.CloseAuction(context.Background(), "auction-missing")
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)

	_, err = settlement.CloseAuction(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)
}
