// Package integration keeps inventory in step with accounting transactions.
package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/shared"
	"github.com/stockbooks/stockbooks/internal/transactions"
)

const idempotencyModule = "inventory-sync"

// Sync outcomes reported to metrics.
const (
	OutcomeApplied       = "applied"
	OutcomePartial       = "partial"
	OutcomeCreated       = "created"
	OutcomeUnmatched     = "unmatched"
	OutcomeRejected      = "rejected"
	OutcomeDuplicate     = "duplicate"
	OutcomeNotApplicable = "not_applicable"
	OutcomeFailed        = "failed"
)

// qualifyingCategories are the effective categories that move stock.
var qualifyingCategories = []string{"Sales", "Purchases", "Purchase", "Inventory", "Stock", "Cost of Goods Sold"}

// Inventory is the part of the inventory service the engine drives.
type Inventory interface {
	Batch(ctx context.Context, ownerID string, fn func(context.Context, *inventory.Batch) error) error
}

// Idempotency guards against applying one transaction twice.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Recorder receives one outcome per sync attempt.
type Recorder interface {
	ObserveSync(outcome string)
}

// Change is a stock movement applied for a transaction.
type Change struct {
	ItemID   string      `json:"itemId"`
	SKU      string      `json:"sku"`
	Name     string      `json:"name"`
	Delta    float64     `json:"delta"`
	NewStock float64     `json:"newStock"`
	Source   MatchSource `json:"source,omitempty"`
}

// Skipped is a matched item left untouched because it would go negative.
type Skipped struct {
	ItemID    string  `json:"itemId"`
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	Requested float64 `json:"requested"`
	Available float64 `json:"available"`
}

// Result describes what a sync did.
type Result struct {
	TransactionID string          `json:"transactionId"`
	Applicable    bool            `json:"applicable"`
	Duplicate     bool            `json:"duplicate,omitempty"`
	Unmatched     bool            `json:"unmatched,omitempty"`
	Created       *inventory.Item `json:"created,omitempty"`
	Changes       []Change        `json:"changes,omitempty"`
	Skipped       []Skipped       `json:"skipped,omitempty"`
}

// Outcome summarises the result for metrics and logs.
func (r Result) Outcome() string {
	switch {
	case !r.Applicable:
		return OutcomeNotApplicable
	case r.Duplicate:
		return OutcomeDuplicate
	case r.Created != nil:
		return OutcomeCreated
	case r.Unmatched:
		return OutcomeUnmatched
	case len(r.Changes) == 0 && len(r.Skipped) > 0:
		return OutcomeRejected
	case len(r.Skipped) > 0:
		return OutcomePartial
	default:
		return OutcomeApplied
	}
}

// Engine applies accounting transactions to inventory.
type Engine struct {
	inventory   Inventory
	idempotency Idempotency
	metrics     Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewEngine constructs Engine. idempotency and metrics are optional.
func NewEngine(inv Inventory, idempotency Idempotency, metrics Recorder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		inventory:   inv,
		idempotency: idempotency,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch runs Sync inline. It lets the engine stand in for the async job
// client behind transactions.SyncDispatcher.
func (e *Engine) Dispatch(ctx context.Context, tx transactions.Transaction) error {
	_, err := e.Sync(ctx, tx)
	return err
}

// Sync routes a stored transaction: complete inventory purchases go to
// CreateInventoryFromAccountingTransaction, everything else (including an
// inventory purchase without product details) to
// ProcessTransactionInventoryUpdate.
func (e *Engine) Sync(ctx context.Context, tx transactions.Transaction) (Result, error) {
	if isInventoryPurchase(tx) {
		return e.CreateInventoryFromAccountingTransaction(ctx, tx, tx.OwnerID)
	}
	return e.ProcessTransactionInventoryUpdate(ctx, tx, tx.OwnerID)
}

// CreateInventoryFromAccountingTransaction books an inventory purchase:
// the matching item gains stock at a weighted average cost, or a new item is
// created with opening stock. Stock never decreases here.
func (e *Engine) CreateInventoryFromAccountingTransaction(ctx context.Context, tx transactions.Transaction, ownerID string) (Result, error) {
	result := Result{TransactionID: tx.ID}
	if ownerID == "" {
		return result, shared.ErrOwnerRequired
	}
	if !isInventoryPurchase(tx) {
		e.observe(result)
		return result, nil
	}
	result.Applicable = true

	err := e.once(ctx, tx.ID, &result, func() error {
		return e.inventory.Batch(ctx, ownerID, func(ctx context.Context, b *inventory.Batch) error {
			// The store may replay the callback when a commit is retried.
			result.Changes, result.Created = nil, nil
			item, err := findPurchased(ctx, b, tx)
			switch {
			case err == nil:
				mv, err := b.Move(ctx, inventory.StockChange{
					ItemID:    item.ID,
					Type:      inventory.MovementIn,
					Quantity:  tx.Quantity,
					UnitCost:  &tx.Price,
					Reason:    movementReason("Purchase", tx),
					Reference: tx.ID,
				})
				if err != nil {
					return err
				}
				result.Changes = append(result.Changes, Change{
					ItemID: item.ID, SKU: item.SKU, Name: item.Name, Delta: mv.Quantity, NewStock: mv.NewStock,
				})
				return nil
			case errors.Is(err, inventory.ErrNotFound):
				created, err := e.createPurchased(ctx, b, tx)
				if err != nil {
					return err
				}
				result.Created = &created
				return nil
			default:
				return err
			}
		})
	})
	if err != nil {
		return result, err
	}
	e.logger.Info("inventory purchase synced",
		slog.String("transaction_id", tx.ID),
		slog.String("owner_id", ownerID),
		slog.String("outcome", result.Outcome()))
	return result, nil
}

// ProcessTransactionInventoryUpdate moves stock for the items a stock
// category transaction mentions. Sales remove stock, everything else adds
// it. Items that would go negative are skipped and reported; the rest
// commit together.
func (e *Engine) ProcessTransactionInventoryUpdate(ctx context.Context, tx transactions.Transaction, ownerID string) (Result, error) {
	result := Result{TransactionID: tx.ID}
	if ownerID == "" {
		return result, shared.ErrOwnerRequired
	}
	category := EffectiveCategory(tx)
	if !isQualifyingCategory(category) {
		e.observe(result)
		return result, nil
	}
	result.Applicable = true
	sale := tx.Type == transactions.TypeSell || strings.EqualFold(category, "Sales")

	err := e.once(ctx, tx.ID, &result, func() error {
		return e.inventory.Batch(ctx, ownerID, func(ctx context.Context, b *inventory.Batch) error {
			result.Changes, result.Skipped, result.Unmatched = nil, nil, false
			items, err := b.Items(ctx)
			if err != nil {
				return err
			}
			matches := Parse(tx.Description, items, ParseHints{SKU: tx.SKU, ProductName: tx.ProductName, Quantity: tx.Quantity})
			if len(matches) == 0 {
				result.Unmatched = true
				return nil
			}
			for _, m := range matches {
				change := inventory.StockChange{
					ItemID:    m.Item.ID,
					Type:      inventory.MovementIn,
					Quantity:  m.Quantity,
					Reason:    movementReason("Purchase", tx),
					Reference: tx.ID,
				}
				if sale {
					change.Type = inventory.MovementOut
					change.Reason = movementReason("Sale", tx)
				} else if tx.Price.IsPositive() {
					change.UnitCost = &tx.Price
				}
				mv, err := b.Move(ctx, change)
				if errors.Is(err, inventory.ErrNegativeStock) {
					e.logger.Warn("inventory sync skipped item: insufficient stock",
						slog.String("transaction_id", tx.ID),
						slog.String("sku", m.Item.SKU),
						slog.Float64("requested", m.Quantity),
						slog.Float64("available", m.Item.CurrentStock))
					result.Skipped = append(result.Skipped, Skipped{
						ItemID: m.Item.ID, SKU: m.Item.SKU, Name: m.Item.Name,
						Requested: m.Quantity, Available: m.Item.CurrentStock,
					})
					continue
				}
				if err != nil {
					return err
				}
				delta := mv.Quantity
				if sale {
					delta = -delta
				}
				result.Changes = append(result.Changes, Change{
					ItemID: m.Item.ID, SKU: m.Item.SKU, Name: m.Item.Name,
					Delta: delta, NewStock: mv.NewStock, Source: m.Source,
				})
			}
			return nil
		})
	})
	if err != nil {
		return result, err
	}
	if result.Unmatched {
		e.logger.Warn("inventory sync matched no items",
			slog.String("transaction_id", tx.ID),
			slog.String("owner_id", ownerID),
			slog.String("description", tx.Description))
	} else {
		e.logger.Info("inventory stock synced",
			slog.String("transaction_id", tx.ID),
			slog.String("owner_id", ownerID),
			slog.String("outcome", result.Outcome()),
			slog.Int("changes", len(result.Changes)),
			slog.Int("skipped", len(result.Skipped)))
	}
	return result, nil
}

// once claims the transaction's idempotency key around fn. The key is
// released again when fn fails or nothing was written, so a later resync can
// retry.
func (e *Engine) once(ctx context.Context, txID string, result *Result, fn func() error) error {
	key := fmt.Sprintf("%s:%s", idempotencyModule, txID)
	claimed := false
	if e.idempotency != nil && txID != "" {
		if err := e.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				result.Duplicate = true
				e.observe(*result)
				return nil
			}
			e.metricsFailed()
			return fmt.Errorf("integration: claim %s: %w", key, err)
		}
		claimed = true
	}
	err := fn()
	wrote := result.Created != nil || len(result.Changes) > 0
	if claimed && (err != nil || !wrote) {
		if derr := e.idempotency.Delete(context.WithoutCancel(ctx), key); derr != nil {
			e.logger.Warn("idempotency release failed", slog.String("key", key), slog.Any("error", derr))
		}
	}
	if err != nil {
		e.metricsFailed()
		return fmt.Errorf("integration: sync %s: %w", txID, err)
	}
	e.observe(*result)
	return nil
}

func (e *Engine) observe(result Result) {
	if e.metrics != nil {
		e.metrics.ObserveSync(result.Outcome())
	}
}

func (e *Engine) metricsFailed() {
	if e.metrics != nil {
		e.metrics.ObserveSync(OutcomeFailed)
	}
}

// findPurchased matches by the transaction SKU when one is given, otherwise
// by case-folded product name.
func findPurchased(ctx context.Context, b *inventory.Batch, tx transactions.Transaction) (inventory.Item, error) {
	if sku := strings.TrimSpace(tx.SKU); sku != "" {
		return b.FindBySKU(ctx, sku)
	}
	items, err := b.Items(ctx)
	if err != nil {
		return inventory.Item{}, err
	}
	name := fold(tx.ProductName)
	for _, item := range items {
		if fold(item.Name) == name {
			return item, nil
		}
	}
	return inventory.Item{}, inventory.ErrNotFound
}

func (e *Engine) createPurchased(ctx context.Context, b *inventory.Batch, tx transactions.Transaction) (inventory.Item, error) {
	sku := strings.TrimSpace(tx.SKU)
	if sku == "" {
		var err error
		sku, err = freeSKU(ctx, b, tx.ProductName, e.now())
		if err != nil {
			return inventory.Item{}, err
		}
	}
	category := strings.TrimSpace(tx.Category)
	if category == "" {
		category = "Inventory"
	}
	item := inventory.Item{
		Name:         strings.TrimSpace(tx.ProductName),
		SKU:          sku,
		Category:     category,
		Description:  tx.Description,
		CurrentStock: tx.Quantity,
		MinimumStock: minimumStock(tx.Quantity),
		MaximumStock: maximumStock(tx.Quantity),
		UnitPrice:    tx.Price,
		CostPrice:    tx.Price,
		Supplier:     tx.VendorName,
		Unit:         "pcs",
	}
	return b.CreateItem(ctx, item, movementReason("Purchase", tx), tx.ID)
}

// freeSKU generates a SKU, stepping the suffix past codes already taken.
func freeSKU(ctx context.Context, b *inventory.Batch, name string, now time.Time) (string, error) {
	for i := 0; i < 10; i++ {
		sku := GenerateSKU(name, now.Add(time.Duration(i)*time.Millisecond))
		_, err := b.FindBySKU(ctx, sku)
		if errors.Is(err, inventory.ErrNotFound) {
			return sku, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", inventory.ErrDuplicateSKU
}

// EffectiveCategory is the explicit category, or the category implied by a
// BUY or SELL.
func EffectiveCategory(tx transactions.Transaction) string {
	if c := strings.TrimSpace(tx.Category); c != "" {
		return c
	}
	switch tx.Type {
	case transactions.TypeSell:
		return "Sales"
	case transactions.TypeBuy:
		return "Purchases"
	}
	return ""
}

func isQualifyingCategory(category string) bool {
	for _, c := range qualifyingCategories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

func isInventoryPurchase(tx transactions.Transaction) bool {
	return tx.Type == transactions.TypeBuy &&
		tx.IsSubType(transactions.SubTypeInventory) &&
		strings.TrimSpace(tx.ProductName) != "" &&
		tx.Quantity > 0 &&
		tx.Price.GreaterThan(decimal.Zero)
}

func movementReason(kind string, tx transactions.Transaction) string {
	if d := strings.TrimSpace(tx.Description); d != "" {
		return kind + ": " + d
	}
	return kind + " " + tx.ID
}
