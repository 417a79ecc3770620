package transactions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectColumns = `id, owner_id, date, tx_type, sub_type, category, amount, description, payment_method,
vendor_name, buyer_name, gst_applicable, gst_type, gst_rate, product_name, sku, quantity, price, created_at, updated_at`

func (r *Repository) Insert(ctx context.Context, tx Transaction) error {
	if r == nil {
		return errors.New("transactions repository not initialised")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO transactions (`+selectColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		tx.ID, tx.OwnerID, tx.Date, string(tx.Type), tx.SubType, tx.Category, tx.Amount, tx.Description, tx.PaymentMethod,
		tx.VendorName, tx.BuyerName, tx.GSTApplicable, tx.GSTType, tx.GSTRate, tx.ProductName, tx.SKU, tx.Quantity, tx.Price,
		tx.CreatedAt, tx.UpdatedAt)
	return err
}

func (r *Repository) Get(ctx context.Context, ownerID, id string) (Transaction, error) {
	if r == nil {
		return Transaction{}, errors.New("transactions repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM transactions WHERE owner_id=$1 AND id=$2`, ownerID, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	return tx, nil
}

func (r *Repository) Update(ctx context.Context, tx Transaction) error {
	if r == nil {
		return errors.New("transactions repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE transactions SET date=$3, tx_type=$4, sub_type=$5, category=$6, amount=$7, description=$8,
payment_method=$9, vendor_name=$10, buyer_name=$11, gst_applicable=$12, gst_type=$13, gst_rate=$14, product_name=$15,
sku=$16, quantity=$17, price=$18, updated_at=$19
WHERE owner_id=$1 AND id=$2`,
		tx.OwnerID, tx.ID, tx.Date, string(tx.Type), tx.SubType, tx.Category, tx.Amount, tx.Description,
		tx.PaymentMethod, tx.VendorName, tx.BuyerName, tx.GSTApplicable, tx.GSTType, tx.GSTRate, tx.ProductName,
		tx.SKU, tx.Quantity, tx.Price, tx.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	if r == nil {
		return errors.New("transactions repository not initialised")
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE owner_id=$1 AND id=$2`, ownerID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Transaction, int, error) {
	if r == nil {
		return nil, 0, errors.New("transactions repository not initialised")
	}
	where, args := listWhere(filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY date DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		selectColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *Repository) ListAll(ctx context.Context, ownerID string) ([]Transaction, error) {
	if r == nil {
		return nil, errors.New("transactions repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM transactions WHERE owner_id=$1 ORDER BY date ASC, created_at ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func listWhere(filter ListFilter) (string, []any) {
	clauses := []string{"owner_id=$1"}
	args := []any{filter.OwnerID}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		clauses = append(clauses, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		clauses = append(clauses, fmt.Sprintf("date <= $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		clauses = append(clauses, fmt.Sprintf("tx_type = $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func collect(rows pgx.Rows) ([]Transaction, error) {
	items := []Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx     Transaction
		txType string
		date   time.Time
	)
	err := row.Scan(&tx.ID, &tx.OwnerID, &date, &txType, &tx.SubType, &tx.Category, &tx.Amount, &tx.Description,
		&tx.PaymentMethod, &tx.VendorName, &tx.BuyerName, &tx.GSTApplicable, &tx.GSTType, &tx.GSTRate, &tx.ProductName,
		&tx.SKU, &tx.Quantity, &tx.Price, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return Transaction{}, err
	}
	tx.Type = Type(txType)
	tx.Date = date.UTC()
	return tx, nil
}
