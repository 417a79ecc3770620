package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockbooks/stockbooks/internal/platform/httpx"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents an inbound movement.
	MovementIn MovementType = "in"
	// MovementOut represents an outbound movement.
	MovementOut MovementType = "out"
	// MovementAdjustment sets the stock to an absolute level.
	MovementAdjustment MovementType = "adjustment"
)

const stockEpsilon = 0.0001

// Item is a stock keeping unit owned by a user or organization.
type Item struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"ownerId"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	Category     string          `json:"category"`
	Description  string          `json:"description,omitempty"`
	CurrentStock float64         `json:"currentStock"`
	MinimumStock float64         `json:"minimumStock"`
	MaximumStock float64         `json:"maximumStock"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	Supplier     string          `json:"supplier,omitempty"`
	Location     string          `json:"location,omitempty"`
	Unit         string          `json:"unit"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// IsLowStock reports whether the item is at or below its minimum level.
func (i Item) IsLowStock() bool {
	return i.CurrentStock <= i.MinimumStock
}

// StockMovement is an append-only audit record of a quantity change.
type StockMovement struct {
	ID            string       `json:"id"`
	ItemID        string       `json:"itemId"`
	OwnerID       string       `json:"ownerId"`
	Type          MovementType `json:"type"`
	Quantity      float64      `json:"quantity"`
	PreviousStock float64      `json:"previousStock"`
	NewStock      float64      `json:"newStock"`
	Reason        string       `json:"reason"`
	Reference     string       `json:"reference,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// ItemInput describes a request to create or edit an item.
type ItemInput struct {
	Name         string          `json:"name" validate:"required,max=200"`
	SKU          string          `json:"sku" validate:"required,max=64"`
	Category     string          `json:"category" validate:"max=100"`
	Description  string          `json:"description" validate:"max=1000"`
	CurrentStock float64         `json:"currentStock" validate:"gte=0"`
	MinimumStock float64         `json:"minimumStock" validate:"gte=0"`
	MaximumStock float64         `json:"maximumStock" validate:"gte=0"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	Supplier     string          `json:"supplier" validate:"max=200"`
	Location     string          `json:"location" validate:"max=200"`
	Unit         string          `json:"unit" validate:"max=32"`
}

// StockUpdateInput describes a manual stock change. For adjustments the
// quantity is the new absolute level.
type StockUpdateInput struct {
	Type      MovementType `json:"type" validate:"required,oneof=in out adjustment"`
	Quantity  float64      `json:"quantity" validate:"gte=0"`
	Reason    string       `json:"reason" validate:"max=500"`
	Reference string       `json:"reference" validate:"max=200"`
}

// StockChange is a single movement applied inside a Batch.
type StockChange struct {
	ItemID    string
	Type      MovementType
	Quantity  float64
	UnitCost  *decimal.Decimal
	Reason    string
	Reference string
}

// ErrNotFound indicates a missing item.
var ErrNotFound = fmt.Errorf("inventory: item not found: %w", httpx.ErrNotFound)

// ErrDuplicateSKU indicates the owner already has an item with the SKU.
var ErrDuplicateSKU = fmt.Errorf("inventory: sku already exists: %w", httpx.ErrDuplicate)

// ErrNegativeStock triggered when movement would result negative qty.
var ErrNegativeStock = fmt.Errorf("inventory: negative stock not allowed: %w", httpx.ErrUnprocessable)

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be positive: %w", httpx.ErrValidation)

// ErrInvalidPrice indicates a negative unit or cost price.
var ErrInvalidPrice = fmt.Errorf("inventory: prices must be >= 0: %w", httpx.ErrValidation)

// ErrInvalidMovementType indicates an unknown movement type.
var ErrInvalidMovementType = fmt.Errorf("inventory: unknown movement type: %w", httpx.ErrValidation)
