package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventorySyncTransaction applies one accounting transaction to inventory.
	TaskInventorySyncTransaction = "inventory:sync-transaction"
	// TaskLowStockScan reports low stock items of every owner.
	TaskLowStockScan = "inventory:low-stock-scan"
)

// InventorySyncPayload identifies the transaction to sync.
type InventorySyncPayload struct {
	TransactionID string `json:"transaction_id"`
	OwnerID       string `json:"owner_id"`
}

// LowStockScanPayload carries scheduling metadata. OwnerID narrows the scan
// to one owner when set.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	OwnerID      string    `json:"owner_id,omitempty"`
}

// NewInventorySyncTask constructs the sync task. Retries are capped because
// the sync is idempotent and a missing transaction is skipped.
func NewInventorySyncTask(payload InventorySyncPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventorySyncTransaction, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewLowStockScanTask constructs the low stock scan task.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}
