package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuctionExpired(t *testing.T) {
	endsAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := Auction{EndsAt: endsAt}

	// A bid arriving exactly at the deadline is still in time.
	require.False(t, a.Expired(endsAt.Add(-time.Second)))
	require.False(t, a.Expired(endsAt))
	require.True(t, a.Expired(endsAt.Add(time.Nanosecond)))
}

func TestAuctionMinNextBid(t *testing.T) {
	a := Auction{StartingCents: 5000, CurrentBidCents: 5000}
	require.Equal(t, int64(5100), a.MinNextBid(100))

	a.CurrentBidCents = 7350
	require.Equal(t, int64(7450), a.MinNextBid(100))
}

func TestAuctionFlags(t *testing.T) {
	a := Auction{}
	require.False(t, a.HasBuyout())
	require.False(t, a.HasBids())

	a.BuyoutCents = 9000
	a.HighestBidderID = "bidder-1"
	require.True(t, a.HasBuyout())
	require.True(t, a.HasBids())
}

func TestAllowedDurations(t *testing.T) {
	for _, d := range []int{60, 300, 600, 1800} {
		require.True(t, AllowedDurations[d], "duration %d", d)
	}
	for _, d := range []int{0, 30, 120, 3600, -60} {
		require.False(t, AllowedDurations[d], "duration %d", d)
	}
}
