package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bidstream/bidstream/internal/domain"
	"github.com/bidstream/bidstream/internal/store/memory"
)

// Shared fixture ids. Every test seeds the same live channel with one
// highlighted product owned by the seller.
const (
	sellerID  = "seller-1"
	shopID    = "shop-1"
	productID = "prod-1"
	channelID = "chan-1"
	bidderA   = "bidder-alice"
	bidderB   = "bidder-bob"

	productPriceCents = 5000
)

var baseTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// capturePublisher records fan-out events instead of publishing them.
type capturePublisher struct {
	mu      sync.Mutex
	channel []domain.Event
	user    map[string][]domain.Event
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{user: make(map[string][]domain.Event)}
}

func (p *capturePublisher) Channel(_ context.Context, channelID string, evt domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	evt.ChannelID = channelID
	p.channel = append(p.channel, evt)
}

func (p *capturePublisher) User(_ context.Context, userID string, evt domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user[userID] = append(p.user[userID], evt)
}

func (p *capturePublisher) channelEvents(types ...domain.EventType) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(types) == 0 {
		return append([]domain.Event(nil), p.channel...)
	}
	var out []domain.Event
	for _, evt := range p.channel {
		for _, typ := range types {
			if evt.Type == typ {
				out = append(out, evt)
			}
		}
	}
	return out
}

func (p *capturePublisher) userEvents(userID string) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.user[userID]...)
}

// fakeLimiter returns a fixed verdict for every key.
type fakeLimiter struct {
	allow bool
	err   error
	calls int
}

func (f *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	f.calls++
	return f.allow, f.err
}

// env bundles the seeded store, capture publisher, and a settable clock.
type env struct {
	store *memory.Store
	pub   *capturePublisher

	mu  sync.Mutex
	now time.Time
}

func newEnv() *env {
	st := memory.NewStore()
	st.AddUser(domain.User{ID: sellerID, Username: "The Seller"})
	st.AddUser(domain.User{ID: bidderA, Username: "Alice"})
	st.AddUser(domain.User{ID: bidderB, Username: "Bob"})
	st.AddShop(domain.Shop{ID: shopID, OwnerID: sellerID})
	st.AddProduct(domain.Product{ID: productID, ShopID: shopID, Name: "Vintage Jacket", PriceCents: productPriceCents})
	st.AddChannel(domain.Channel{ID: channelID, HostID: sellerID, Live: true, HighlightedProductID: productID})

	return &env{
		store: st,
		pub:   newCapturePublisher(),
		now:   baseTime,
	}
}

func (e *env) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *env) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func (e *env) setNow(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = t
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newServices wires the three engine services against the env's store,
// publisher, and clock.
func newServices(e *env) (*AuctionService, *BiddingService, *SettlementService) {
	logger := testLogger()

	settlement := NewSettlementService(e.store, e.store, e.store, e.store.Users(), e.pub, logger).
		WithNow(e.clock)

	bidding := NewBiddingService(e.store, e.store.Users(), settlement, e.pub, DefaultBidPolicy(), logger).
		WithNow(e.clock)

	auctions := NewAuctionService(e.store, e.store, e.store, e.store.Products(), e.pub, logger).
		WithNow(e.clock)

	return auctions, bidding, settlement
}

// startAuction is a convenience for tests that need a running auction.
func startAuction(e *env, auctions *AuctionService, durationSec int, buyoutCents int64) (domain.Auction, error) {
	return auctions.StartAuction(context.Background(), productID, sellerID, durationSec, buyoutCents)
}
