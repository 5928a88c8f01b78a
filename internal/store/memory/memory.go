// Package memory implements the domain store interfaces in process memory.
// It backs the "memory" storage mode (local development without Postgres) and
// the engine's unit tests. The per-auction lock is a plain mutex, which gives
// the same serialization guarantee as the Postgres row lock: no two
// concurrent mutations on one auction ever observe a stale prior state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bidstream/bidstream/internal/domain"
)

// Store is a concurrency-safe in-memory implementation of the auction engine
// stores and collaborator directories.
type Store struct {
	mu              sync.RWMutex
	auctions        map[string]domain.Auction
	activeByChannel map[string]string // channelID -> active auctionID
	bids            map[string][]domain.Bid
	orders          map[string]domain.Order // keyed by auction ID
	channels        map[string]domain.Channel
	products        map[string]domain.Product
	shops           map[string]domain.Shop
	users           map[string]domain.User
	locks           map[string]*sync.Mutex // per-auction mutation locks
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		auctions:        make(map[string]domain.Auction),
		activeByChannel: make(map[string]string),
		bids:            make(map[string][]domain.Bid),
		orders:          make(map[string]domain.Order),
		channels:        make(map[string]domain.Channel),
		products:        make(map[string]domain.Product),
		shops:           make(map[string]domain.Shop),
		users:           make(map[string]domain.User),
		locks:           make(map[string]*sync.Mutex),
	}
}

// ---------------------------------------------------------------------------
// AuctionStore
// ---------------------------------------------------------------------------

// Create inserts a new active auction, enforcing one active auction per
// channel.
func (s *Store) Create(_ context.Context, a domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.auctions[a.ID]; exists {
		return fmt.Errorf("memory: create auction %s: duplicate id", a.ID)
	}
	if a.Status == domain.AuctionStatusActive {
		if _, busy := s.activeByChannel[a.ChannelID]; busy {
			return domain.ErrAuctionConflict
		}
		s.activeByChannel[a.ChannelID] = a.ID
	}
	s.auctions[a.ID] = a
	s.locks[a.ID] = &sync.Mutex{}
	return nil
}

// GetByID retrieves a single auction by ID.
func (s *Store) GetByID(_ context.Context, id string) (domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return domain.Auction{}, domain.ErrAuctionNotFound
	}
	return a, nil
}

// GetActiveByChannel returns the channel's active auction, if any.
func (s *Store) GetActiveByChannel(_ context.Context, channelID string) (domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeByChannel[channelID]
	if !ok {
		return domain.Auction{}, domain.ErrAuctionNotFound
	}
	return s.auctions[id], nil
}

// ListExpired returns active auctions whose deadline is at or before now.
func (s *Store) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Auction, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []domain.Auction
	for _, a := range s.auctions {
		if a.Status == domain.AuctionStatusActive && !a.EndsAt.After(now) {
			expired = append(expired, a)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].EndsAt.Before(expired[j].EndsAt)
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// Lock serializes mutations on one auction behind its mutex. Writes staged
// through the tx are applied only when fn returns nil.
func (s *Store) Lock(_ context.Context, id string, fn func(tx domain.AuctionTx) error) error {
	s.mu.RLock()
	mu, ok := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrAuctionNotFound
	}

	mu.Lock()
	defer mu.Unlock()

	s.mu.RLock()
	a := s.auctions[id]
	s.mu.RUnlock()

	tx := &memTx{auction: a}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// All conflict checks run before any staged write is applied, so an
	// error here leaves the store untouched.
	for _, o := range tx.orders {
		if _, exists := s.orders[o.AuctionID]; exists {
			return fmt.Errorf("memory: order for auction %s already exists", o.AuctionID)
		}
	}

	if tx.saved != nil {
		prev := s.auctions[id]
		next := *tx.saved
		s.auctions[id] = next

		// Keep the active-per-channel index in step with status changes.
		if prev.Status == domain.AuctionStatusActive && next.Status != domain.AuctionStatusActive {
			delete(s.activeByChannel, next.ChannelID)
		}
	}
	for _, b := range tx.bids {
		s.bids[b.AuctionID] = append(s.bids[b.AuctionID], b)
	}
	for _, o := range tx.orders {
		s.orders[o.AuctionID] = o
	}
	return nil
}

// ListSettledBefore returns completed auctions settled before cutoff that
// have not been archived.
func (s *Store) ListSettledBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Auction, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var settled []domain.Auction
	for _, a := range s.auctions {
		if a.Status == domain.AuctionStatusCompleted && a.ArchivedAt == nil && a.EndsAt.Before(cutoff) {
			settled = append(settled, a)
		}
	}
	sort.Slice(settled, func(i, j int) bool {
		return settled[i].EndsAt.Before(settled[j].EndsAt)
	})
	if len(settled) > limit {
		settled = settled[:limit]
	}
	return settled, nil
}

// MarkArchived stamps the auctions as exported to cold storage.
func (s *Store) MarkArchived(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if a, ok := s.auctions[id]; ok {
			stamp := at
			a.ArchivedAt = &stamp
			s.auctions[id] = a
		}
	}
	return nil
}

// memTx stages writes made under the auction lock.
type memTx struct {
	auction domain.Auction
	saved   *domain.Auction
	bids    []domain.Bid
	orders  []domain.Order
}

func (t *memTx) Auction() domain.Auction { return t.auction }

func (t *memTx) SaveAuction(a domain.Auction) error {
	t.saved = &a
	return nil
}

func (t *memTx) InsertBid(b domain.Bid) error {
	t.bids = append(t.bids, b)
	return nil
}

func (t *memTx) InsertOrder(o domain.Order) error {
	t.orders = append(t.orders, o)
	return nil
}

// ---------------------------------------------------------------------------
// BidStore / OrderStore
// ---------------------------------------------------------------------------

// ListByAuction returns the auction's bids in placement order.
func (s *Store) ListByAuction(_ context.Context, auctionID string) ([]domain.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Bid(nil), s.bids[auctionID]...), nil
}

// GetByAuction returns the order settled for the auction, if one exists.
func (s *Store) GetByAuction(_ context.Context, auctionID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[auctionID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

// ---------------------------------------------------------------------------
// Collaborator directories
// ---------------------------------------------------------------------------

// Get retrieves a channel by ID.
func (s *Store) Get(_ context.Context, channelID string) (domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.channels[channelID]
	if !ok {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	return c, nil
}

// GetLiveByHost returns the live channel hosted by the user.
func (s *Store) GetLiveByHost(_ context.Context, hostID string) (domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.channels {
		if c.HostID == hostID && c.Live {
			return c, nil
		}
	}
	return domain.Channel{}, domain.ErrChannelNotFound
}

// ClearHighlighted removes the product from the channel's stage if it is
// still the highlighted one.
func (s *Store) ClearHighlighted(_ context.Context, channelID, productID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.channels[channelID]
	if !ok {
		return false, domain.ErrChannelNotFound
	}
	if c.HighlightedProductID != productID {
		return false, nil
	}
	c.HighlightedProductID = ""
	s.channels[channelID] = c
	return true, nil
}

// GetProduct retrieves a product by ID. Named to avoid clashing with the
// channel Get; the ProductCatalog interface is satisfied via the Products
// view below.
func (s *Store) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

// ShopOwner returns the id of the user controlling the shop.
func (s *Store) ShopOwner(_ context.Context, shopID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.shops[shopID]
	if !ok {
		return "", domain.ErrProductNotFound
	}
	return sh.OwnerID, nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

// Products returns a ProductCatalog view over the store.
func (s *Store) Products() domain.ProductCatalog { return productsView{s} }

// Users returns a UserDirectory view over the store.
func (s *Store) Users() domain.UserDirectory { return usersView{s} }

type productsView struct{ s *Store }

func (v productsView) Get(ctx context.Context, id string) (domain.Product, error) {
	return v.s.GetProduct(ctx, id)
}

func (v productsView) ShopOwner(ctx context.Context, shopID string) (string, error) {
	return v.s.ShopOwner(ctx, shopID)
}

type usersView struct{ s *Store }

func (v usersView) Get(ctx context.Context, id string) (domain.User, error) {
	return v.s.GetUser(ctx, id)
}

// ---------------------------------------------------------------------------
// Seed helpers for development mode and tests
// ---------------------------------------------------------------------------

// AddChannel inserts or replaces a channel.
func (s *Store) AddChannel(c domain.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[c.ID] = c
}

// AddProduct inserts or replaces a product.
func (s *Store) AddProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// AddShop inserts or replaces a shop.
func (s *Store) AddShop(sh domain.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shops[sh.ID] = sh
}

// AddUser inserts or replaces a user.
func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// Compile-time interface checks.
var (
	_ domain.AuctionStore     = (*Store)(nil)
	_ domain.BidStore         = (*Store)(nil)
	_ domain.OrderStore       = (*Store)(nil)
	_ domain.ChannelDirectory = (*Store)(nil)
)
