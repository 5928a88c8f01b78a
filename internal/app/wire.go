package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/bidstream/bidstream/internal/blob/s3"
	"github.com/bidstream/bidstream/internal/cache/redis"
	"github.com/bidstream/bidstream/internal/config"
	"github.com/bidstream/bidstream/internal/domain"
	"github.com/bidstream/bidstream/internal/fanout"
	"github.com/bidstream/bidstream/internal/store/memory"
	"github.com/bidstream/bidstream/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Auctions domain.AuctionStore
	Bids     domain.BidStore
	Orders   domain.OrderStore
	Channels domain.ChannelDirectory
	Products domain.ProductCatalog
	Users    domain.UserDirectory

	// Redis-backed infrastructure
	Cache       domain.AuctionCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	EventBus    domain.EventBus

	// Fan-out
	Events domain.EventPublisher

	// Blob storage (nil unless archive is enabled)
	BlobWriter domain.BlobWriter
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Primary storage ---
	switch strings.ToLower(cfg.Storage) {
	case "memory":
		st := memory.NewStore()
		deps.Auctions = st
		deps.Bids = st
		deps.Orders = st
		deps.Channels = st
		deps.Products = st.Products()
		deps.Users = st.Users()

	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Auctions = postgres.NewAuctionStore(pool)
		deps.Bids = postgres.NewBidStore(pool)
		deps.Orders = postgres.NewOrderStore(pool)
		deps.Channels = postgres.NewChannelStore(pool)
		deps.Products = postgres.NewProductStore(pool)
		deps.Users = postgres.NewUserStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Cache = redis.NewAuctionCache(redisClient).WithTTL(cfg.Auction.SnapshotCacheTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.EventBus = redis.NewEventBus(redisClient)

	deps.Events = fanout.NewBroadcaster(deps.EventBus, logger)

	// --- S3 blob storage (only when archival is enabled) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	return deps, cleanup, nil
}
