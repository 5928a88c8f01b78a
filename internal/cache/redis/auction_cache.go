package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bidstream/bidstream/internal/domain"
)

// activeAuctionTTL keeps snapshot reads cheap without letting viewers see a
// stale bid state for long. Every accepted mutation invalidates the key, so
// the TTL only matters as a backstop.
const activeAuctionTTL = 2 * time.Second

// AuctionCache implements domain.AuctionCache using Redis string values with
// JSON-serialized auction snapshots.
//
// Key schema:
//
//	auction:active:{channelID} - JSON of the channel's active auction
type AuctionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAuctionCache creates an AuctionCache backed by the given Client.
func NewAuctionCache(c *Client) *AuctionCache {
	return &AuctionCache{rdb: c.Underlying(), ttl: activeAuctionTTL}
}

// WithTTL overrides the snapshot lifetime.
func (ac *AuctionCache) WithTTL(ttl time.Duration) *AuctionCache {
	if ttl > 0 {
		ac.ttl = ttl
	}
	return ac
}

func activeAuctionKey(channelID string) string {
	return "auction:active:" + channelID
}

// GetActive returns the cached snapshot for the channel, reporting whether a
// snapshot was present.
func (ac *AuctionCache) GetActive(ctx context.Context, channelID string) (domain.Auction, bool, error) {
	data, err := ac.rdb.Get(ctx, activeAuctionKey(channelID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Auction{}, false, nil
		}
		return domain.Auction{}, false, fmt.Errorf("redis: get active auction %s: %w", channelID, err)
	}

	var a domain.Auction
	if err := json.Unmarshal(data, &a); err != nil {
		return domain.Auction{}, false, fmt.Errorf("redis: unmarshal active auction %s: %w", channelID, err)
	}
	return a, true, nil
}

// SetActive stores the auction snapshot for its channel.
func (ac *AuctionCache) SetActive(ctx context.Context, a domain.Auction) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("redis: marshal auction %s: %w", a.ID, err)
	}
	if err := ac.rdb.Set(ctx, activeAuctionKey(a.ChannelID), data, ac.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set active auction %s: %w", a.ChannelID, err)
	}
	return nil
}

// Invalidate drops the channel's snapshot.
func (ac *AuctionCache) Invalidate(ctx context.Context, channelID string) error {
	if err := ac.rdb.Del(ctx, activeAuctionKey(channelID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate active auction %s: %w", channelID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AuctionCache = (*AuctionCache)(nil)
