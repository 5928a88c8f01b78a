package domain

import (
	"errors"
	"fmt"
)

// Not-found errors.
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrProductNotFound = errors.New("product not found")
	ErrChannelNotFound = errors.New("channel not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Authorization errors.
var (
	ErrNotShopOwner = errors.New("user does not control the product's shop")
	ErrSelfBid      = errors.New("sellers cannot bid on their own auction")
)

// State errors.
var (
	ErrAuctionConflict  = errors.New("channel already has an active auction")
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrAuctionExpired   = errors.New("auction deadline has passed")
	ErrNoBuyoutPrice    = errors.New("auction has no buyout price")
	ErrChannelNotLive   = errors.New("channel is not live")
	ErrNotHighlighted   = errors.New("product is not highlighted in the channel")
)

// Validation errors.
var (
	ErrBidTooLow       = errors.New("bid amount below minimum")
	ErrInvalidDuration = errors.New("duration not in the allowed set")
	ErrInvalidBuyout   = errors.New("buyout price must exceed the starting price")
)

// Infrastructure errors.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
)

// BidTooLowError wraps ErrBidTooLow and carries the minimum amount the next
// bid must reach, so rejections can tell the bidder what to offer instead.
type BidTooLowError struct {
	MinCents int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid amount below minimum of %d cents", e.MinCents)
}

func (e *BidTooLowError) Unwrap() error {
	return ErrBidTooLow
}
