package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stockbooks/stockbooks/internal/integration"
	jobmetrics "github.com/stockbooks/stockbooks/internal/jobs"
	"github.com/stockbooks/stockbooks/internal/transactions"
)

// TransactionLoader fetches a stored transaction.
type TransactionLoader interface {
	Get(ctx context.Context, ownerID, id string) (transactions.Transaction, error)
}

// Syncer applies a transaction to inventory.
type Syncer interface {
	Sync(ctx context.Context, tx transactions.Transaction) (integration.Result, error)
}

// InventorySyncJob runs the inventory sync for one queued transaction.
type InventorySyncJob struct {
	Transactions TransactionLoader
	Engine       Syncer
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
}

// NewInventorySyncJob initialises the sync handler.
func NewInventorySyncJob(txs TransactionLoader, engine Syncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *InventorySyncJob {
	return &InventorySyncJob{Transactions: txs, Engine: engine, Logger: logger, Metrics: metrics}
}

// Handle loads the transaction and syncs it. Malformed payloads and deleted
// transactions are not retried.
func (j *InventorySyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Transactions == nil || j.Engine == nil {
		return errors.New("inventory sync: handler not configured")
	}
	var payload InventorySyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.TransactionID == "" || payload.OwnerID == "" {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskInventorySyncTransaction)
	logger := j.logger().With(
		slog.String("transaction_id", payload.TransactionID),
		slog.String("owner_id", payload.OwnerID),
	)

	tx, err := j.Transactions.Get(ctx, payload.OwnerID, payload.TransactionID)
	if err != nil {
		if errors.Is(err, transactions.ErrNotFound) {
			logger.Warn("transaction gone, skipping inventory sync")
			_ = tracker.End(nil)
			return fmt.Errorf("inventory sync: %w: %w", err, asynq.SkipRetry)
		}
		return tracker.End(err)
	}

	result, err := j.Engine.Sync(ctx, tx)
	if err != nil {
		logger.Error("inventory sync failed", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("inventory sync completed",
		slog.String("outcome", result.Outcome()),
		slog.Int("changes", len(result.Changes)),
		slog.Int("skipped", len(result.Skipped)),
	)
	return tracker.End(nil)
}

func (j *InventorySyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
