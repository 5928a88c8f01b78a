package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bidstream/bidstream/internal/archive"
	"github.com/bidstream/bidstream/internal/server"
	"github.com/bidstream/bidstream/internal/server/handler"
	"github.com/bidstream/bidstream/internal/server/ws"
	"github.com/bidstream/bidstream/internal/service"
	"github.com/bidstream/bidstream/internal/sweeper"
)

// shutdownTimeout bounds the graceful HTTP shutdown on context cancel.
const shutdownTimeout = 10 * time.Second

// services bundles the engine services built on top of the wired
// dependencies.
type services struct {
	auction    *service.AuctionService
	bidding    *service.BiddingService
	settlement *service.SettlementService
}

// buildServices constructs the engine services from configuration.
func (a *App) buildServices(deps *Dependencies) *services {
	settlement := service.NewSettlementService(
		deps.Auctions, deps.Orders, deps.Channels, deps.Users, deps.Events, a.logger,
	).WithCache(deps.Cache).WithPaymentWindow(a.cfg.Auction.PaymentWindow.Duration)

	policy := service.BidPolicy{
		MinIncrementCents:  a.cfg.Auction.MinIncrementCents,
		ExtensionThreshold: a.cfg.Auction.ExtensionThreshold.Duration,
		ExtensionWindow:    a.cfg.Auction.ExtensionWindow.Duration,
		RateLimit:          a.cfg.Auction.BidRateLimit,
		RateWindow:         a.cfg.Auction.BidRateWindow.Duration,
	}

	bidding := service.NewBiddingService(
		deps.Auctions, deps.Users, settlement, deps.Events, policy, a.logger,
	).WithCache(deps.Cache)
	if policy.RateLimit > 0 {
		bidding = bidding.WithRateLimiter(deps.RateLimiter)
	}

	auction := service.NewAuctionService(
		deps.Auctions, deps.Bids, deps.Channels, deps.Products, deps.Events, a.logger,
	).WithCache(deps.Cache)

	return &services{
		auction:    auction,
		bidding:    bidding,
		settlement: settlement,
	}
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// errgroup. The server shuts down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.EventBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Auctions: handler.NewAuctionHandler(
			svcs.auction, svcs.bidding, a.cfg.Auction.MinIncrementCents, a.logger,
		),
	}

	srvCfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		ServiceKey:  a.cfg.Server.ServiceKey,
	}
	if a.cfg.Server.APIRateLimit > 0 {
		srvCfg.RateLimiter = deps.RateLimiter
		srvCfg.RateLimit = a.cfg.Server.APIRateLimit
		srvCfg.RateLimitWindow = a.cfg.Server.APIRateWindow.Duration
	}

	srv := server.NewServer(srvCfg, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startSweeper adds the expiry sweeper goroutine to the errgroup.
func (a *App) startSweeper(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	sw := sweeper.NewSweeper(deps.Auctions, svcs.settlement, a.logger).
		WithLockManager(deps.LockManager).
		WithBatchSize(a.cfg.Auction.SweepBatch)

	g.Go(func() error {
		return sw.RunLoop(ctx, a.cfg.Auction.SweepInterval.Duration)
	})
}

// startArchiver adds the cold-storage export goroutine to the errgroup when
// archival is enabled and the blob writer is wired.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled || deps.BlobWriter == nil {
		return
	}

	arch := archive.NewArchiver(deps.Auctions, deps.Bids, deps.Orders, deps.BlobWriter, a.logger).
		WithRetention(a.cfg.Archive.Retention.Duration).
		WithBatchSize(a.cfg.Archive.BatchSize)

	g.Go(func() error {
		return arch.RunLoop(ctx, a.cfg.Archive.Interval.Duration)
	})
}

// ServerMode runs the HTTP API and WebSocket fan-out without the background
// sweeper. A sweeper replica is expected to run elsewhere.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	a.startHTTPServer(ctx, g, deps, svcs)

	return g.Wait()
}

// SweeperMode runs only the background loops: the expiry sweeper and, when
// enabled, the archiver.
func (a *App) SweeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweeper mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	a.startSweeper(ctx, g, deps, svcs)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything in one process: HTTP API, WebSocket fan-out,
// sweeper, and archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs)
	}
	a.startSweeper(ctx, g, deps, svcs)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}
