package domain

import (
	"context"
	"time"
)

// EventType names the auction state transitions fanned out to viewers.
type EventType string

const (
	EventAuctionStarted       EventType = "auction:started"
	EventAuctionBid           EventType = "auction:bid"
	EventAuctionExtended      EventType = "auction:extended"
	EventAuctionEnded         EventType = "auction:ended"
	EventAuctionBuyout        EventType = "auction:buyout"
	EventAuctionOutbid        EventType = "auction:outbid"
	EventAuctionWon           EventType = "auction:won"
	EventProductUnhighlighted EventType = "product:unhighlighted"
)

// Event is the envelope published on the fan-out bus. Payload is one of the
// typed payload structs below.
type Event struct {
	Type      EventType `json:"type"`
	ChannelID string    `json:"channel_id"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload"`
}

// AuctionStartedPayload announces a new auction to channel viewers.
type AuctionStartedPayload struct {
	AuctionID     string    `json:"auction_id"`
	ProductID     string    `json:"product_id"`
	SellerID      string    `json:"seller_id"`
	StartingCents int64     `json:"starting_cents"`
	BuyoutCents   int64     `json:"buyout_cents,omitempty"`
	DurationSec   int       `json:"duration_sec"`
	EndsAt        time.Time `json:"ends_at"`
}

// BidPlacedPayload carries an accepted bid, the next minimum, and the deadline
// (which may have just moved if the bid landed in the soft-close window).
type BidPlacedPayload struct {
	AuctionID       string    `json:"auction_id"`
	BidderID        string    `json:"bidder_id"`
	BidderName      string    `json:"bidder_name,omitempty"`
	AmountCents     int64     `json:"amount_cents"`
	MinNextBidCents int64     `json:"min_next_bid_cents"`
	EndsAt          time.Time `json:"ends_at"`
	Extended        bool      `json:"extended"`
	ExtendedCount   int       `json:"extended_count"`
}

// ExtendedPayload announces a soft-close extension of the deadline.
type ExtendedPayload struct {
	AuctionID     string    `json:"auction_id"`
	EndsAt        time.Time `json:"ends_at"`
	ExtendedCount int       `json:"extended_count"`
}

// OutbidPayload is sent directly to the bidder who just lost the lead.
type OutbidPayload struct {
	AuctionID       string `json:"auction_id"`
	AmountCents     int64  `json:"amount_cents"`
	MinNextBidCents int64  `json:"min_next_bid_cents"`
}

// BuyoutPayload announces an immediate buyout win to channel viewers.
type BuyoutPayload struct {
	AuctionID   string `json:"auction_id"`
	BuyerID     string `json:"buyer_id"`
	BuyerName   string `json:"buyer_name,omitempty"`
	AmountCents int64  `json:"amount_cents"`
}

// EndedPayload announces settlement. Winner fields are empty when the auction
// closed with no bids.
type EndedPayload struct {
	AuctionID       string `json:"auction_id"`
	WinnerID        string `json:"winner_id,omitempty"`
	WinnerName      string `json:"winner_name,omitempty"`
	FinalPriceCents int64  `json:"final_price_cents,omitempty"`
}

// WonPayload is sent directly to the winning bidder with their order.
type WonPayload struct {
	AuctionID       string    `json:"auction_id"`
	OrderID         string    `json:"order_id"`
	FinalPriceCents int64     `json:"final_price_cents"`
	PaymentDeadline time.Time `json:"payment_deadline"`
}

// UnhighlightedPayload announces that the auctioned product left the stage.
type UnhighlightedPayload struct {
	ProductID string `json:"product_id"`
}

// EventPublisher is the fan-out surface the engine talks to. Delivery is
// best-effort and at-most-once; implementations log and swallow transport
// failures so a broadcast problem can never fail the state transition that
// produced it.
type EventPublisher interface {
	// Channel delivers an event to every current viewer of a channel.
	Channel(ctx context.Context, channelID string, evt Event)
	// User delivers an event to a single user (outbid, won).
	User(ctx context.Context, userID string, evt Event)
}

// BusMessage is a raw message received from a subscription, tagged with the
// concrete topic it arrived on. Pattern subscriptions receive messages from
// many topics, and the websocket hub routes on the tag.
type BusMessage struct {
	Topic   string
	Payload []byte
}

// EventBus is the raw publish/subscribe transport underneath the fan-out.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (<-chan BusMessage, error)
}
