package domain

import "time"

// AuctionStatus tracks the auction lifecycle. Bidding is only possible while
// the auction is active; ended and completed are terminal for bidding, and
// completed additionally means settlement has run.
type AuctionStatus string

const (
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusCompleted AuctionStatus = "completed"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// AllowedDurations are the auction lengths a seller may pick, in seconds.
var AllowedDurations = map[int]bool{
	60:   true,
	300:  true,
	600:  true,
	1800: true,
}

// Auction is a time-boxed sale running in a live channel. Money fields are
// integer cents. BuyoutCents of zero means no buyout price is configured.
// EndsAt is mutable: it moves forward when a bid lands inside the soft-close
// window.
type Auction struct {
	ID              string
	ProductID       string
	SellerID        string
	ChannelID       string
	StartingCents   int64
	BuyoutCents     int64
	CurrentBidCents int64
	HighestBidderID string // empty until the first accepted bid
	DurationSec     int
	StartedAt       time.Time
	EndsAt          time.Time
	ExtendedCount   int
	Status          AuctionStatus
	ArchivedAt      *time.Time
}

// HasBuyout reports whether a buyout price is configured.
func (a Auction) HasBuyout() bool {
	return a.BuyoutCents > 0
}

// HasBids reports whether at least one bid has been accepted.
func (a Auction) HasBids() bool {
	return a.HighestBidderID != ""
}

// Expired reports whether the auction deadline has passed at the given
// instant. A bid arriving exactly at EndsAt is still in time.
func (a Auction) Expired(now time.Time) bool {
	return now.After(a.EndsAt)
}

// MinNextBid returns the lowest amount the next bid must reach.
// CurrentBidCents starts at the starting price, so the first bid already has
// to clear starting price plus one increment.
func (a Auction) MinNextBid(incrementCents int64) int64 {
	return a.CurrentBidCents + incrementCents
}
