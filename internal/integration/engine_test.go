package integration

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockbooks/stockbooks/internal/inventory"
	"github.com/stockbooks/stockbooks/internal/shared"
	"github.com/stockbooks/stockbooks/internal/transactions"
)

// fakeStore is an inventory.RepositoryPort that restores its state when a
// transaction fails. replays makes WithTx run the callback that many extra
// times, discarding each attempt, the way a driver retries a transient
// commit failure.
type fakeStore struct {
	mu        sync.Mutex
	items     map[string]inventory.Item
	movements []inventory.StockMovement
	failOn    string
	replays   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: map[string]inventory.Item{}}
}

func (s *fakeStore) WithTx(ctx context.Context, _ string, fn func(context.Context, inventory.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make(map[string]inventory.Item, len(s.items))
	for k, v := range s.items {
		items[k] = v
	}
	movements := append([]inventory.StockMovement(nil), s.movements...)
	restore := func() {
		s.items = make(map[string]inventory.Item, len(items))
		for k, v := range items {
			s.items[k] = v
		}
		s.movements = append([]inventory.StockMovement(nil), movements...)
	}
	for ; s.replays > 0; s.replays-- {
		_ = fn(ctx, fakeTx{s})
		restore()
	}
	if err := fn(ctx, fakeTx{s}); err != nil {
		s.items, s.movements = items, movements
		return err
	}
	return nil
}

func (s *fakeStore) list(ownerID string) []inventory.Item {
	out := []inventory.Item{}
	for _, item := range s.items {
		if item.OwnerID == ownerID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *fakeStore) get(ownerID, id string) (inventory.Item, error) {
	item, ok := s.items[id]
	if !ok || item.OwnerID != ownerID {
		return inventory.Item{}, inventory.ErrNotFound
	}
	return item, nil
}

func (s *fakeStore) bySKU(ownerID, sku string) (inventory.Item, error) {
	for _, item := range s.items {
		if item.OwnerID == ownerID && strings.EqualFold(item.SKU, sku) {
			return item, nil
		}
	}
	return inventory.Item{}, inventory.ErrNotFound
}

func (s *fakeStore) ListItems(ctx context.Context, ownerID string) ([]inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(ownerID), nil
}

func (s *fakeStore) GetItem(ctx context.Context, ownerID, id string) (inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ownerID, id)
}

func (s *fakeStore) FindBySKU(ctx context.Context, ownerID, sku string) (inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bySKU(ownerID, sku)
}

func (s *fakeStore) ListLowStock(ctx context.Context, ownerID string) ([]inventory.Item, error) {
	return nil, nil
}

func (s *fakeStore) ListMovements(ctx context.Context, ownerID, itemID string, limit int) ([]inventory.StockMovement, error) {
	return nil, nil
}

func (s *fakeStore) ListOwners(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (s *fakeStore) movementsFor(itemID string) []inventory.StockMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inventory.StockMovement
	for _, mv := range s.movements {
		if mv.ItemID == itemID {
			out = append(out, mv)
		}
	}
	return out
}

type fakeTx struct {
	s *fakeStore
}

func (t fakeTx) ListItems(ctx context.Context, ownerID string) ([]inventory.Item, error) {
	return t.s.list(ownerID), nil
}

func (t fakeTx) GetItemForUpdate(ctx context.Context, ownerID, id string) (inventory.Item, error) {
	return t.s.get(ownerID, id)
}

func (t fakeTx) FindBySKU(ctx context.Context, ownerID, sku string) (inventory.Item, error) {
	return t.s.bySKU(ownerID, sku)
}

func (t fakeTx) InsertItem(ctx context.Context, item inventory.Item) error {
	t.s.items[item.ID] = item
	return nil
}

func (t fakeTx) UpdateItem(ctx context.Context, item inventory.Item) error {
	t.s.items[item.ID] = item
	return nil
}

func (t fakeTx) DeleteItem(ctx context.Context, ownerID, id string) error {
	delete(t.s.items, id)
	return nil
}

func (t fakeTx) InsertMovement(ctx context.Context, mv inventory.StockMovement) error {
	if t.s.failOn != "" && mv.ItemID == t.s.failOn {
		return errors.New("disk full")
	}
	t.s.movements = append(t.s.movements, mv)
	return nil
}

type outcomes struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *outcomes) ObserveSync(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[outcome]++
}

type fixture struct {
	store   *fakeStore
	inv     *inventory.Service
	engine  *Engine
	metrics *outcomes
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newFakeStore()
	inv := inventory.NewService(store, nil, nil, nil)
	metrics := &outcomes{}
	engine := NewEngine(inv, shared.NewIdempotencyStore(client, 0), metrics, nil)
	return fixture{store: store, inv: inv, engine: engine, metrics: metrics, redis: mr}
}

func (f fixture) seed(t *testing.T, name, sku string, stock float64) inventory.Item {
	t.Helper()
	item, err := f.inv.CreateItem(context.Background(), "owner-1", inventory.ItemInput{
		Name:         name,
		SKU:          sku,
		CurrentStock: stock,
		MinimumStock: 1,
		MaximumStock: 100,
		UnitPrice:    decimal.NewFromInt(20),
		CostPrice:    decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	return item
}

func widgetPurchase(id string) transactions.Transaction {
	return transactions.Transaction{
		ID:          id,
		OwnerID:     "owner-1",
		Date:        time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Type:        transactions.TypeBuy,
		SubType:     "inventory",
		Amount:      decimal.NewFromInt(500),
		Description: "Widgets from Acme",
		VendorName:  "Acme",
		ProductName: "Widget",
		Quantity:    50,
		Price:       decimal.NewFromInt(10),
	}
}

func TestCreateInventoryFromPurchaseCreatesItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.CreateInventoryFromAccountingTransaction(ctx, widgetPurchase("tx-1"), "owner-1")
	require.NoError(t, err)
	require.NotNil(t, res.Created)
	require.Equal(t, OutcomeCreated, res.Outcome())

	item := *res.Created
	require.Regexp(t, regexp.MustCompile(`^WID-\d{6}$`), item.SKU)
	require.InDelta(t, 5.0, item.MinimumStock, 0.0001)
	require.InDelta(t, 250.0, item.MaximumStock, 0.0001)
	require.InDelta(t, 50.0, item.CurrentStock, 0.0001)
	require.Equal(t, "Acme", item.Supplier)
	require.True(t, decimal.NewFromInt(10).Equal(item.CostPrice))

	movements := f.store.movementsFor(item.ID)
	require.Len(t, movements, 1)
	require.Equal(t, inventory.MovementIn, movements[0].Type)
	require.Equal(t, "tx-1", movements[0].Reference)
	require.Equal(t, 1, f.metrics.counts[OutcomeCreated])
}

func TestCreateInventoryFromPurchaseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tx := widgetPurchase("tx-1")

	_, err := f.engine.CreateInventoryFromAccountingTransaction(ctx, tx, "owner-1")
	require.NoError(t, err)
	res, err := f.engine.CreateInventoryFromAccountingTransaction(ctx, tx, "owner-1")
	require.NoError(t, err)
	require.True(t, res.Duplicate)

	items, err := f.inv.ListItems(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.InDelta(t, 50.0, items[0].CurrentStock, 0.0001)
	require.Equal(t, 1, f.metrics.counts[OutcomeDuplicate])
}

func TestCreateInventoryFromPurchaseIncrementsMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := f.seed(t, "widget", "W-1", 10)

	res, err := f.engine.CreateInventoryFromAccountingTransaction(ctx, widgetPurchase("tx-2"), "owner-1")
	require.NoError(t, err)
	require.Nil(t, res.Created)
	require.Len(t, res.Changes, 1)
	require.InDelta(t, 60.0, res.Changes[0].NewStock, 0.0001)

	got, err := f.inv.GetItem(ctx, "owner-1", existing.ID)
	require.NoError(t, err)
	require.InDelta(t, 60.0, got.CurrentStock, 0.0001)
	// (10*10 + 50*10) / 60 keeps the cost at 10.
	require.True(t, decimal.NewFromInt(10).Equal(got.CostPrice), got.CostPrice.String())

	bySKU := widgetPurchase("tx-3")
	bySKU.ProductName = "Something else"
	bySKU.SKU = "w-1"
	res, err = f.engine.CreateInventoryFromAccountingTransaction(ctx, bySKU, "owner-1")
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	require.InDelta(t, 110.0, res.Changes[0].NewStock, 0.0001)
}

func TestCreateInventoryIgnoresIncompletePurchases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, mutate := range []func(*transactions.Transaction){
		func(tx *transactions.Transaction) { tx.SubType = "asset" },
		func(tx *transactions.Transaction) { tx.ProductName = "" },
		func(tx *transactions.Transaction) { tx.Quantity = 0 },
		func(tx *transactions.Transaction) { tx.Price = decimal.Zero },
		func(tx *transactions.Transaction) { tx.Type = transactions.TypeSell },
	} {
		tx := widgetPurchase("tx-x")
		mutate(&tx)
		res, err := f.engine.CreateInventoryFromAccountingTransaction(ctx, tx, "owner-1")
		require.NoError(t, err)
		require.False(t, res.Applicable)
	}
	items, err := f.inv.ListItems(ctx, "owner-1")
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestProcessSaleDecrementsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	widget := f.seed(t, "Widget", "WID-100001", 10)
	gadget := f.seed(t, "Gadget", "GAD-100001", 4)

	tx := transactions.Transaction{
		ID:          "sale-1",
		OwnerID:     "owner-1",
		Type:        transactions.TypeSell,
		Amount:      decimal.NewFromInt(300),
		Description: "WID-100001 x3, GAD-100001 qty:2, wid-100001 x1",
	}
	res, err := f.engine.Sync(ctx, tx)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, res.Outcome())
	require.Len(t, res.Changes, 2)
	require.InDelta(t, -4.0, res.Changes[0].Delta, 0.0001)

	got, err := f.inv.GetItem(ctx, "owner-1", widget.ID)
	require.NoError(t, err)
	require.InDelta(t, 6.0, got.CurrentStock, 0.0001)
	got, err = f.inv.GetItem(ctx, "owner-1", gadget.ID)
	require.NoError(t, err)
	require.InDelta(t, 2.0, got.CurrentStock, 0.0001)
}

func TestProcessSkipsItemsThatWouldGoNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	widget := f.seed(t, "Widget", "WID-1", 10)
	gadget := f.seed(t, "Gadget", "GAD-1", 1)

	tx := transactions.Transaction{
		ID:          "sale-2",
		OwnerID:     "owner-1",
		Type:        transactions.TypeSell,
		Amount:      decimal.NewFromInt(100),
		Description: "Sold Widget (2 units) and Gadget (5 units)",
	}
	res, err := f.engine.ProcessTransactionInventoryUpdate(ctx, tx, "owner-1")
	require.NoError(t, err)
	require.Equal(t, OutcomePartial, res.Outcome())
	require.Len(t, res.Changes, 1)
	require.Equal(t, widget.ID, res.Changes[0].ItemID)
	require.Len(t, res.Skipped, 1)
	require.Equal(t, gadget.ID, res.Skipped[0].ItemID)
	require.InDelta(t, 1.0, res.Skipped[0].Available, 0.0001)

	got, err := f.inv.GetItem(ctx, "owner-1", gadget.ID)
	require.NoError(t, err)
	require.InDelta(t, 1.0, got.CurrentStock, 0.0001)
	got, err = f.inv.GetItem(ctx, "owner-1", widget.ID)
	require.NoError(t, err)
	require.InDelta(t, 8.0, got.CurrentStock, 0.0001)
}

func TestProcessPurchaseCategoryIncrementsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	widget := f.seed(t, "Widget", "WID-1", 10)

	tx := transactions.Transaction{
		ID:          "buy-1",
		OwnerID:     "owner-1",
		Type:        transactions.TypeBuy,
		Amount:      decimal.NewFromInt(100),
		Description: "widget",
		Quantity:    5,
		Price:       decimal.NewFromInt(16),
	}
	res, err := f.engine.Sync(ctx, tx)
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	require.Equal(t, MatchByFallback, res.Changes[0].Source)

	got, err := f.inv.GetItem(ctx, "owner-1", widget.ID)
	require.NoError(t, err)
	require.InDelta(t, 15.0, got.CurrentStock, 0.0001)
	require.True(t, decimal.NewFromInt(12).Equal(got.CostPrice), got.CostPrice.String())
}

func TestProcessUnmatchedReleasesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "Widget", "WID-1", 10)

	tx := transactions.Transaction{
		ID:          "sale-3",
		OwnerID:     "owner-1",
		Type:        transactions.TypeSell,
		Amount:      decimal.NewFromInt(100),
		Description: "consulting services",
	}
	res, err := f.engine.Sync(ctx, tx)
	require.NoError(t, err)
	require.True(t, res.Unmatched)
	require.Equal(t, 1, f.metrics.counts[OutcomeUnmatched])
	require.False(t, f.redis.Exists("idempotency:inventory-sync:sale-3"))

	// A retry after the item exists is not treated as a duplicate.
	tx.Description = "WID-1 x2"
	res, err = f.engine.Sync(ctx, tx)
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.Len(t, res.Changes, 1)
	require.True(t, f.redis.Exists("idempotency:inventory-sync:sale-3"))
}

func TestProcessNonStockCategoryIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "Widget", "WID-1", 10)

	for _, tx := range []transactions.Transaction{
		{ID: "e-1", OwnerID: "owner-1", Type: transactions.TypeExpenditure, Description: "WID-1 x2"},
		{ID: "s-1", OwnerID: "owner-1", Type: transactions.TypeSell, Category: "Services", Description: "WID-1 x2"},
	} {
		res, err := f.engine.Sync(ctx, tx)
		require.NoError(t, err)
		require.False(t, res.Applicable)
	}
	require.Equal(t, 2, f.metrics.counts[OutcomeNotApplicable])
}

func TestProcessStoreFailureRollsBackAndReleasesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	widget := f.seed(t, "Widget", "WID-1", 10)
	gadget := f.seed(t, "Gadget", "GAD-1", 10)
	f.store.failOn = gadget.ID

	tx := transactions.Transaction{
		ID:          "sale-4",
		OwnerID:     "owner-1",
		Type:        transactions.TypeSell,
		Amount:      decimal.NewFromInt(100),
		Description: "WID-1 x1 GAD-1 x1",
	}
	_, err := f.engine.Sync(ctx, tx)
	require.Error(t, err)
	require.False(t, f.redis.Exists("idempotency:inventory-sync:sale-4"))
	require.Equal(t, 1, f.metrics.counts[OutcomeFailed])

	got, err := f.inv.GetItem(ctx, "owner-1", widget.ID)
	require.NoError(t, err)
	require.InDelta(t, 10.0, got.CurrentStock, 0.0001)
}

func TestSyncInventoryPurchaseWithoutProductDetailsUsesDescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	widget := f.seed(t, "Widget", "WID-100001", 10)

	tx := transactions.Transaction{
		ID:          "buy-2",
		OwnerID:     "owner-1",
		Type:        transactions.TypeBuy,
		SubType:     "inventory",
		Amount:      decimal.NewFromInt(50),
		Description: "Restock WID-100001 x5",
	}
	res, err := f.engine.Sync(ctx, tx)
	require.NoError(t, err)
	require.True(t, res.Applicable)
	require.Equal(t, OutcomeApplied, res.Outcome())
	require.Len(t, res.Changes, 1)
	require.InDelta(t, 5.0, res.Changes[0].Delta, 0.0001)

	got, err := f.inv.GetItem(ctx, "owner-1", widget.ID)
	require.NoError(t, err)
	require.InDelta(t, 15.0, got.CurrentStock, 0.0001)
}

func TestSyncReportsChangesOnceWhenStoreReplaysBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	widget := f.seed(t, "Widget", "WID-1", 10)
	f.seed(t, "Gadget", "GAD-1", 1)

	f.store.replays = 2
	res, err := f.engine.Sync(ctx, transactions.Transaction{
		ID:          "sale-5",
		OwnerID:     "owner-1",
		Type:        transactions.TypeSell,
		Amount:      decimal.NewFromInt(100),
		Description: "WID-1 x2 GAD-1 x3",
	})
	require.NoError(t, err)
	require.Len(t, res.Changes, 1)
	require.Len(t, res.Skipped, 1)

	got, err := f.inv.GetItem(ctx, "owner-1", widget.ID)
	require.NoError(t, err)
	require.InDelta(t, 8.0, got.CurrentStock, 0.0001)

	f.store.replays = 1
	purchase, err := f.engine.Sync(ctx, widgetPurchase("tx-9"))
	require.NoError(t, err)
	require.Len(t, purchase.Changes, 1)
	require.InDelta(t, 58.0, purchase.Changes[0].NewStock, 0.0001)
}

func TestEffectiveCategory(t *testing.T) {
	require.Equal(t, "Sales", EffectiveCategory(transactions.Transaction{Type: transactions.TypeSell}))
	require.Equal(t, "Purchases", EffectiveCategory(transactions.Transaction{Type: transactions.TypeBuy}))
	require.Equal(t, "Stock", EffectiveCategory(transactions.Transaction{Type: transactions.TypeSell, Category: " Stock "}))
	require.Equal(t, "", EffectiveCategory(transactions.Transaction{Type: transactions.TypeLoan}))
}
