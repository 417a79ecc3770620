package app

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/stockbooks/stockbooks/internal/accounting/reports"
	"github.com/stockbooks/stockbooks/internal/integration"
	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/observability"
	"github.com/stockbooks/stockbooks/internal/platform/cache"
	"github.com/stockbooks/stockbooks/internal/shared"
	"github.com/stockbooks/stockbooks/internal/transactions"
	"github.com/stockbooks/stockbooks/jobs"
)

// Container wires services shared by the server, the worker and the CLI.
type Container struct {
	Config       *Config
	Logger       *slog.Logger
	Redis        *redis.Client
	Stores       *Stores
	Metrics      *observability.Metrics
	Transactions *transactions.Service
	Inventory    *inventory.Service
	Reports      *reports.Service
	Engine       *integration.Engine
	Jobs         *jobs.Client
}

// Build connects Redis and the store and assembles the services. Redis is
// required: it backs idempotency, the report cache and the change feed.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Container, error) {
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	stores, err := OpenStores(ctx, cfg, redisClient, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Redis:   redisClient,
		Stores:  stores,
		Metrics: observability.NewMetrics(),
	}

	c.Inventory = inventory.NewService(stores.Inventory, inventory.NewNotifier(redisClient), stores.Audit, logger)
	idempotency := shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)
	c.Engine = integration.NewEngine(c.Inventory, idempotency, c.Metrics, logger)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)

	var dispatcher transactions.SyncDispatcher = c.Engine
	if cfg.InventorySyncAsync {
		client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			c.Close(ctx)
			return nil, err
		}
		c.Jobs = client
		dispatcher = client
	}
	c.Transactions = transactions.NewService(stores.Transactions, dispatcher, reportCache, stores.Audit, logger)
	c.Reports = reports.NewService(c.Transactions, reportCache, logger)
	return c, nil
}

// Close releases every connection the container opened.
func (c *Container) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Jobs != nil {
		if err := c.Jobs.Close(); err != nil {
			c.Logger.Warn("jobs client close", slog.Any("error", err))
		}
	}
	if err := c.Stores.Close(ctx); err != nil {
		c.Logger.Warn("store close", slog.Any("error", err))
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("redis close", slog.Any("error", err))
		}
	}
}
