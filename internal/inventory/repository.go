package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbooks/stockbooks/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

const itemColumns = `id, owner_id, name, sku, category, description, current_stock, minimum_stock, maximum_stock,
unit_price, cost_price, supplier, location, unit, created_at, updated_at`

const movementColumns = `id, item_id, owner_id, movement_type, quantity, previous_stock, new_stock, reason, reference, created_at`

// WithTx executes the callback inside a repeatable-read transaction. Row
// locks taken by GetItemForUpdate serialise concurrent stock writers; a
// writer aborted by a concurrent update is re-run by db.WithTx against the
// committed rows.
func (r *Repository) WithTx(ctx context.Context, _ string, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (r *Repository) ListItems(ctx context.Context, ownerID string) ([]Item, error) {
	return listItems(ctx, r.pool, ownerID)
}

func (r *Repository) GetItem(ctx context.Context, ownerID, id string) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE owner_id=$1 AND id=$2`, ownerID, id)
	return scanItemRow(row)
}

func (r *Repository) FindBySKU(ctx context.Context, ownerID, sku string) (Item, error) {
	return findBySKU(ctx, r.pool, ownerID, sku)
}

func (r *Repository) ListLowStock(ctx context.Context, ownerID string) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items
WHERE owner_id=$1 AND current_stock <= minimum_stock ORDER BY name`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func (r *Repository) ListMovements(ctx context.Context, ownerID, itemID string, limit int) ([]StockMovement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE owner_id=$1 AND item_id=$2 ORDER BY created_at DESC LIMIT $3`, ownerID, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []StockMovement{}
	for rows.Next() {
		var (
			mv     StockMovement
			mvType string
		)
		if err := rows.Scan(&mv.ID, &mv.ItemID, &mv.OwnerID, &mvType, &mv.Quantity, &mv.PreviousStock,
			&mv.NewStock, &mv.Reason, &mv.Reference, &mv.CreatedAt); err != nil {
			return nil, err
		}
		mv.Type = MovementType(mvType)
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}

func (r *Repository) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT owner_id FROM inventory_items ORDER BY owner_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func (r *txRepo) ListItems(ctx context.Context, ownerID string) ([]Item, error) {
	return listItems(ctx, r.tx, ownerID)
}

func (r *txRepo) GetItemForUpdate(ctx context.Context, ownerID, id string) (Item, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE owner_id=$1 AND id=$2 FOR UPDATE`, ownerID, id)
	return scanItemRow(row)
}

func (r *txRepo) FindBySKU(ctx context.Context, ownerID, sku string) (Item, error) {
	return findBySKU(ctx, r.tx, ownerID, sku)
}

func (r *txRepo) InsertItem(ctx context.Context, item Item) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_items (`+itemColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		item.ID, item.OwnerID, item.Name, item.SKU, item.Category, item.Description, item.CurrentStock,
		item.MinimumStock, item.MaximumStock, item.UnitPrice, item.CostPrice, item.Supplier, item.Location,
		item.Unit, item.CreatedAt, item.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateSKU
	}
	return err
}

func (r *txRepo) UpdateItem(ctx context.Context, item Item) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_items SET name=$3, sku=$4, category=$5, description=$6,
current_stock=$7, minimum_stock=$8, maximum_stock=$9, unit_price=$10, cost_price=$11, supplier=$12,
location=$13, unit=$14, updated_at=$15
WHERE owner_id=$1 AND id=$2`,
		item.OwnerID, item.ID, item.Name, item.SKU, item.Category, item.Description, item.CurrentStock,
		item.MinimumStock, item.MaximumStock, item.UnitPrice, item.CostPrice, item.Supplier, item.Location,
		item.Unit, item.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateSKU
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) DeleteItem(ctx context.Context, ownerID, id string) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM inventory_items WHERE owner_id=$1 AND id=$2`, ownerID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepo) InsertMovement(ctx context.Context, mv StockMovement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (`+movementColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		mv.ID, mv.ItemID, mv.OwnerID, string(mv.Type), mv.Quantity, mv.PreviousStock, mv.NewStock,
		mv.Reason, mv.Reference, mv.CreatedAt)
	if err != nil {
		return fmt.Errorf("inventory: insert movement: %w", err)
	}
	return nil
}

func listItems(ctx context.Context, q querier, ownerID string) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE owner_id=$1 ORDER BY name, sku`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

func findBySKU(ctx context.Context, q querier, ownerID, sku string) (Item, error) {
	row := q.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE owner_id=$1 AND lower(sku)=lower($2)`, ownerID, sku)
	return scanItemRow(row)
}

func collectItems(rows pgx.Rows) ([]Item, error) {
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanItemRow(row pgx.Row) (Item, error) {
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.OwnerID, &item.Name, &item.SKU, &item.Category, &item.Description,
		&item.CurrentStock, &item.MinimumStock, &item.MaximumStock, &item.UnitPrice, &item.CostPrice,
		&item.Supplier, &item.Location, &item.Unit, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}
