package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/platform/db"
	"github.com/stockbooks/stockbooks/internal/platform/docstore"
	"github.com/stockbooks/stockbooks/internal/shared"
	"github.com/stockbooks/stockbooks/internal/transactions"
)

// auditRecorder is satisfied by shared.AuditLogger.
type auditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Stores holds the repositories of the configured driver.
type Stores struct {
	Driver       string
	Transactions transactions.RepositoryPort
	Inventory    inventory.RepositoryPort
	// Audit is nil for drivers without an audit table.
	Audit  auditRecorder
	closer func(context.Context) error
}

// OpenStores connects the configured store and prepares its schema.
func OpenStores(ctx context.Context, cfg *Config, redisClient *redis.Client, logger *slog.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case DriverMongo:
		database, disconnect, err := docstore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		if err := docstore.EnsureIndexes(ctx, database); err != nil {
			_ = disconnect(ctx)
			return nil, err
		}
		var locker *redislock.Client
		if redisClient != nil {
			locker = redislock.New(redisClient)
		} else {
			logger.Warn("redis unavailable, inventory writes are not serialised across processes")
		}
		return &Stores{
			Driver:       DriverMongo,
			Transactions: transactions.NewMongoRepository(database),
			Inventory:    inventory.NewMongoRepository(database, locker),
			closer:       disconnect,
		}, nil
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Stores{
			Driver:       DriverPostgres,
			Transactions: transactions.NewRepository(pool),
			Inventory:    inventory.NewRepository(pool),
			Audit:        shared.NewAuditLogger(pool),
			closer: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}

// Close releases the store connection.
func (s *Stores) Close(ctx context.Context) error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer(ctx)
}
