package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockbooks/stockbooks/internal/platform/httpx"
	"github.com/stockbooks/stockbooks/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, ownerID string, fn func(context.Context, TxRepository) error) error
	ListItems(ctx context.Context, ownerID string) ([]Item, error)
	GetItem(ctx context.Context, ownerID, id string) (Item, error)
	FindBySKU(ctx context.Context, ownerID, sku string) (Item, error)
	ListLowStock(ctx context.Context, ownerID string) ([]Item, error)
	ListMovements(ctx context.Context, ownerID, itemID string, limit int) ([]StockMovement, error)
	ListOwners(ctx context.Context) ([]string, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	ListItems(ctx context.Context, ownerID string) ([]Item, error)
	GetItemForUpdate(ctx context.Context, ownerID, id string) (Item, error)
	FindBySKU(ctx context.Context, ownerID, sku string) (Item, error)
	InsertItem(ctx context.Context, item Item) error
	UpdateItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, ownerID, id string) error
	InsertMovement(ctx context.Context, mv StockMovement) error
}

// ChangeFeed publishes and listens to per-owner inventory change signals.
type ChangeFeed interface {
	Publish(ctx context.Context, ownerID string) error
	Subscribe(ctx context.Context, ownerID string) (<-chan struct{}, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ErrStreamUnavailable is returned by Subscribe when no change feed is configured.
var ErrStreamUnavailable = errors.New("inventory: change feed not configured")

// Service coordinates inventory operations.
type Service struct {
	repo     RepositoryPort
	feed     ChangeFeed
	audit    AuditPort
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service. feed and audit may be nil.
func NewService(repo RepositoryPort, feed ChangeFeed, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		feed:     feed,
		audit:    audit,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ListItems returns every item of the owner ordered by name.
func (s *Service) ListItems(ctx context.Context, ownerID string) ([]Item, error) {
	if ownerID == "" {
		return nil, shared.ErrOwnerRequired
	}
	return s.repo.ListItems(ctx, ownerID)
}

// GetItem loads one item.
func (s *Service) GetItem(ctx context.Context, ownerID, id string) (Item, error) {
	if ownerID == "" {
		return Item{}, shared.ErrOwnerRequired
	}
	return s.repo.GetItem(ctx, ownerID, id)
}

// FindBySKU looks an item up by SKU, ignoring case.
func (s *Service) FindBySKU(ctx context.Context, ownerID, sku string) (Item, error) {
	if ownerID == "" {
		return Item{}, shared.ErrOwnerRequired
	}
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return Item{}, ErrNotFound
	}
	return s.repo.FindBySKU(ctx, ownerID, sku)
}

// LowStockItems returns items whose stock is at or below the minimum.
func (s *Service) LowStockItems(ctx context.Context, ownerID string) ([]Item, error) {
	if ownerID == "" {
		return nil, shared.ErrOwnerRequired
	}
	return s.repo.ListLowStock(ctx, ownerID)
}

// ListMovements returns the newest movements of an item.
func (s *Service) ListMovements(ctx context.Context, ownerID, itemID string, limit int) ([]StockMovement, error) {
	if _, err := s.GetItem(ctx, ownerID, itemID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListMovements(ctx, ownerID, itemID, limit)
}

// Owners lists every owner holding at least one item.
func (s *Service) Owners(ctx context.Context) ([]string, error) {
	return s.repo.ListOwners(ctx)
}

// CreateItem adds an item and records its opening stock as an inbound movement.
func (s *Service) CreateItem(ctx context.Context, ownerID string, input ItemInput) (Item, error) {
	if ownerID == "" {
		return Item{}, shared.ErrOwnerRequired
	}
	if err := s.check(input); err != nil {
		return Item{}, err
	}
	item := fromInput(input)
	if _, err := s.repo.FindBySKU(ctx, ownerID, item.SKU); err == nil {
		return Item{}, ErrDuplicateSKU
	} else if !errors.Is(err, ErrNotFound) {
		return Item{}, err
	}
	var created Item
	err := s.Batch(ctx, ownerID, func(ctx context.Context, b *Batch) error {
		var err error
		created, err = b.CreateItem(ctx, item, "Initial stock", "")
		return err
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, ownerID, "inventory:item:create", created.ID, map[string]any{"sku": created.SKU})
	return created, nil
}

// UpdateItem replaces the descriptive fields of an item. Stock levels only
// change through UpdateStock.
func (s *Service) UpdateItem(ctx context.Context, ownerID, id string, input ItemInput) (Item, error) {
	if ownerID == "" {
		return Item{}, shared.ErrOwnerRequired
	}
	if err := s.check(input); err != nil {
		return Item{}, err
	}
	patch := fromInput(input)
	var updated Item
	err := s.Batch(ctx, ownerID, func(ctx context.Context, b *Batch) error {
		item, err := b.tx.GetItemForUpdate(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if !strings.EqualFold(item.SKU, patch.SKU) {
			if _, err := b.tx.FindBySKU(ctx, ownerID, patch.SKU); err == nil {
				return ErrDuplicateSKU
			} else if !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		item.Name = patch.Name
		item.SKU = patch.SKU
		item.Category = patch.Category
		item.Description = patch.Description
		item.MinimumStock = patch.MinimumStock
		item.MaximumStock = patch.MaximumStock
		item.UnitPrice = patch.UnitPrice
		item.CostPrice = patch.CostPrice
		item.Supplier = patch.Supplier
		item.Location = patch.Location
		item.Unit = patch.Unit
		item.UpdatedAt = b.now
		if err := b.tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		b.changed = true
		updated = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, ownerID, "inventory:item:update", updated.ID, map[string]any{"sku": updated.SKU})
	return updated, nil
}

// DeleteItem removes an item together with its movements.
func (s *Service) DeleteItem(ctx context.Context, ownerID, id string) error {
	if ownerID == "" {
		return shared.ErrOwnerRequired
	}
	err := s.Batch(ctx, ownerID, func(ctx context.Context, b *Batch) error {
		if _, err := b.tx.GetItemForUpdate(ctx, ownerID, id); err != nil {
			return err
		}
		if err := b.tx.DeleteItem(ctx, ownerID, id); err != nil {
			return err
		}
		b.changed = true
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, ownerID, "inventory:item:delete", id, nil)
	return nil
}

// UpdateStock applies a manual movement to one item.
func (s *Service) UpdateStock(ctx context.Context, ownerID, id string, input StockUpdateInput) (StockMovement, error) {
	if ownerID == "" {
		return StockMovement{}, shared.ErrOwnerRequired
	}
	if err := s.validate.Struct(input); err != nil {
		return StockMovement{}, validationError(err)
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		reason = "Manual " + string(input.Type)
	}
	var mv StockMovement
	err := s.Batch(ctx, ownerID, func(ctx context.Context, b *Batch) error {
		var err error
		mv, err = b.Move(ctx, StockChange{
			ItemID:    id,
			Type:      input.Type,
			Quantity:  input.Quantity,
			Reason:    reason,
			Reference: strings.TrimSpace(input.Reference),
		})
		return err
	})
	if err != nil {
		return StockMovement{}, err
	}
	s.record(ctx, ownerID, "inventory:stock:"+string(mv.Type), id, map[string]any{
		"quantity":  mv.Quantity,
		"new_stock": mv.NewStock,
	})
	return mv, nil
}

// Batch runs fn inside one store transaction. Every change made through the
// Batch commits or rolls back together; subscribers are notified once after
// a successful commit.
func (s *Service) Batch(ctx context.Context, ownerID string, fn func(context.Context, *Batch) error) error {
	if ownerID == "" {
		return shared.ErrOwnerRequired
	}
	var batch *Batch
	err := s.repo.WithTx(ctx, ownerID, func(ctx context.Context, tx TxRepository) error {
		batch = &Batch{tx: tx, ownerID: ownerID, now: s.now()}
		return fn(ctx, batch)
	})
	if err != nil {
		return err
	}
	if batch != nil && batch.changed {
		s.publish(ctx, ownerID)
	}
	return nil
}

// Subscribe streams full item snapshots for the owner: the current list
// first, then a fresh list after every committed change. The channel is
// closed when ctx ends.
func (s *Service) Subscribe(ctx context.Context, ownerID string) (<-chan []Item, error) {
	if ownerID == "" {
		return nil, shared.ErrOwnerRequired
	}
	if s.feed == nil {
		return nil, ErrStreamUnavailable
	}
	changes, err := s.feed.Subscribe(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("inventory: subscribe: %w", err)
	}
	items, err := s.repo.ListItems(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make(chan []Item, 1)
	out <- items
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				items, err := s.repo.ListItems(ctx, ownerID)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Warn("inventory snapshot failed", slog.String("owner_id", ownerID), slog.Any("error", err))
					continue
				}
				select {
				case out <- items:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Service) publish(ctx context.Context, ownerID string) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, ownerID); err != nil {
		s.logger.Warn("inventory change publish failed", slog.String("owner_id", ownerID), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, ownerID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  ownerID,
		Action:   action,
		Entity:   "inventory_item",
		EntityID: entityID,
		Meta:     meta,
	})
}

func (s *Service) check(input ItemInput) error {
	if err := s.validate.Struct(input); err != nil {
		return validationError(err)
	}
	if input.UnitPrice.IsNegative() || input.CostPrice.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s:%s", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("inventory: invalid %s: %w", strings.Join(fields, ","), httpx.ErrValidation)
	}
	return fmt.Errorf("inventory: %v: %w", err, httpx.ErrValidation)
}

func fromInput(input ItemInput) Item {
	unit := strings.TrimSpace(input.Unit)
	if unit == "" {
		unit = "pcs"
	}
	return Item{
		Name:         strings.TrimSpace(input.Name),
		SKU:          strings.TrimSpace(input.SKU),
		Category:     strings.TrimSpace(input.Category),
		Description:  strings.TrimSpace(input.Description),
		CurrentStock: input.CurrentStock,
		MinimumStock: input.MinimumStock,
		MaximumStock: input.MaximumStock,
		UnitPrice:    input.UnitPrice,
		CostPrice:    input.CostPrice,
		Supplier:     strings.TrimSpace(input.Supplier),
		Location:     strings.TrimSpace(input.Location),
		Unit:         unit,
	}
}

// Batch is a unit of work over one owner's inventory.
type Batch struct {
	tx      TxRepository
	ownerID string
	now     time.Time
	changed bool
}

// Items lists the owner's items as seen inside the transaction.
func (b *Batch) Items(ctx context.Context) ([]Item, error) {
	return b.tx.ListItems(ctx, b.ownerID)
}

// FindBySKU looks an item up by SKU inside the transaction.
func (b *Batch) FindBySKU(ctx context.Context, sku string) (Item, error) {
	return b.tx.FindBySKU(ctx, b.ownerID, sku)
}

// CreateItem inserts item and, when it starts with stock, an inbound
// movement carrying reason and reference.
func (b *Batch) CreateItem(ctx context.Context, item Item, reason, reference string) (Item, error) {
	if item.CurrentStock < 0 {
		return Item{}, ErrNegativeStock
	}
	if _, err := b.tx.FindBySKU(ctx, b.ownerID, item.SKU); err == nil {
		return Item{}, ErrDuplicateSKU
	} else if !errors.Is(err, ErrNotFound) {
		return Item{}, err
	}
	item.ID = uuid.NewString()
	item.OwnerID = b.ownerID
	item.CreatedAt = b.now
	item.UpdatedAt = b.now
	if err := b.tx.InsertItem(ctx, item); err != nil {
		return Item{}, err
	}
	if item.CurrentStock > 0 {
		mv := StockMovement{
			ID:            uuid.NewString(),
			ItemID:        item.ID,
			OwnerID:       b.ownerID,
			Type:          MovementIn,
			Quantity:      item.CurrentStock,
			PreviousStock: 0,
			NewStock:      item.CurrentStock,
			Reason:        reason,
			Reference:     reference,
			CreatedAt:     b.now,
		}
		if err := b.tx.InsertMovement(ctx, mv); err != nil {
			return Item{}, err
		}
	}
	b.changed = true
	return item, nil
}

// Move locks the item, applies the change and appends the movement. Inbound
// changes carrying a unit cost move the cost price to the weighted average.
func (b *Batch) Move(ctx context.Context, change StockChange) (StockMovement, error) {
	item, err := b.tx.GetItemForUpdate(ctx, b.ownerID, change.ItemID)
	if err != nil {
		return StockMovement{}, err
	}
	prev := item.CurrentStock
	var next, qty float64
	switch change.Type {
	case MovementIn:
		if change.Quantity <= 0 {
			return StockMovement{}, ErrInvalidQuantity
		}
		qty = change.Quantity
		next = prev + qty
	case MovementOut:
		if change.Quantity <= 0 {
			return StockMovement{}, ErrInvalidQuantity
		}
		qty = change.Quantity
		next = prev - qty
	case MovementAdjustment:
		if change.Quantity < 0 {
			return StockMovement{}, ErrInvalidQuantity
		}
		next = change.Quantity
		qty = next - prev
	default:
		return StockMovement{}, ErrInvalidMovementType
	}
	if next < -stockEpsilon {
		return StockMovement{}, fmt.Errorf("%s has %g, needs %g: %w", item.SKU, prev, change.Quantity, ErrNegativeStock)
	}
	if math.Abs(next) < stockEpsilon {
		next = 0
	}
	if change.Type == MovementIn && change.UnitCost != nil {
		item.CostPrice = weightedCost(prev, item.CostPrice, qty, *change.UnitCost)
	}
	item.CurrentStock = next
	item.UpdatedAt = b.now
	if err := b.tx.UpdateItem(ctx, item); err != nil {
		return StockMovement{}, err
	}
	mv := StockMovement{
		ID:            uuid.NewString(),
		ItemID:        item.ID,
		OwnerID:       b.ownerID,
		Type:          change.Type,
		Quantity:      qty,
		PreviousStock: prev,
		NewStock:      next,
		Reason:        change.Reason,
		Reference:     change.Reference,
		CreatedAt:     b.now,
	}
	if err := b.tx.InsertMovement(ctx, mv); err != nil {
		return StockMovement{}, err
	}
	b.changed = true
	return mv, nil
}

func weightedCost(prevQty float64, prevCost decimal.Decimal, qty float64, unitCost decimal.Decimal) decimal.Decimal {
	if prevQty <= 0 {
		return unitCost.Round(4)
	}
	oldQty := decimal.NewFromFloat(prevQty)
	inQty := decimal.NewFromFloat(qty)
	total := oldQty.Mul(prevCost).Add(inQty.Mul(unitCost))
	return total.Div(oldQty.Add(inQty)).Round(4)
}
