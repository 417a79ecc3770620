package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/stockbooks/stockbooks/internal/inventory"
	jobmetrics "github.com/stockbooks/stockbooks/internal/jobs"
	"github.com/stockbooks/stockbooks/internal/notify"
)

const lowStockScanParallelism = 4

// LowStockSource lists owners and their low stock items.
type LowStockSource interface {
	Owners(ctx context.Context) ([]string, error)
	LowStockItems(ctx context.Context, ownerID string) ([]inventory.Item, error)
}

// LowStockNotifier delivers one alert per owner.
type LowStockNotifier interface {
	Enabled() bool
	NotifyLowStock(ctx context.Context, alert notify.LowStockAlert) error
}

// LowStockScanJob reports items at or below their minimum level.
type LowStockScanJob struct {
	Inventory LowStockSource
	Notifier  LowStockNotifier
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewLowStockScanJob initialises the scan handler. notifier may be nil, in
// which case findings are only logged.
func NewLowStockScanJob(source LowStockSource, notifier LowStockNotifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{
		Inventory: source,
		Notifier:  notifier,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle scans every owner, or the payload owner, with bounded parallelism.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Inventory == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.OwnerID)
	return err
}

// Run performs the scan and returns the number of low stock items found.
func (j *LowStockScanJob) Run(ctx context.Context, ownerID string) (int, error) {
	start := j.now()
	tracker := j.Metrics.Track(TaskLowStockScan)
	logger := j.logger()

	owners := []string{ownerID}
	if ownerID == "" {
		var err error
		owners, err = j.Inventory.Owners(ctx)
		if err != nil {
			logger.Error("list owners failed", slog.Any("error", err))
			return 0, tracker.End(err)
		}
	}

	counts := make([]int, len(owners))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lowStockScanParallelism)
	for i, owner := range owners {
		i, owner := i, owner
		g.Go(func() error {
			items, err := j.Inventory.LowStockItems(gctx, owner)
			if err != nil {
				return err
			}
			counts[i] = len(items)
			if len(items) == 0 {
				return nil
			}
			logger.Warn("low stock detected", slog.String("owner_id", owner), slog.Int("items", len(items)))
			if j.Notifier == nil || !j.Notifier.Enabled() {
				return nil
			}
			if err := j.Notifier.NotifyLowStock(gctx, notify.NewLowStockAlert(owner, items, start)); err != nil {
				// A failing webhook does not stop the other owners.
				logger.Error("low stock notification failed", slog.String("owner_id", owner), slog.Any("error", err))
			}
			return nil
		})
	}
	err := g.Wait()

	total := 0
	for _, c := range counts {
		total += c
	}
	j.Metrics.AddLowStock(total)
	logger.Info("completed low stock scan",
		slog.Int("owners", len(owners)),
		slog.Int("items", total),
		slog.Duration("duration", time.Since(start)),
	)
	return total, tracker.End(err)
}

func (j *LowStockScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
