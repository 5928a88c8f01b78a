package domain

import "time"

// Bid is an accepted bid on an auction. Bids are append-only and immutable;
// the auction row carries the current winning amount, the bid table is the
// history.
type Bid struct {
	ID          string
	AuctionID   string
	BidderID    string
	AmountCents int64
	PlacedAt    time.Time
}
