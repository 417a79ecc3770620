package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stockbooks/stockbooks/internal/platform/docstore"
	"github.com/stockbooks/stockbooks/internal/shared"
)

const (
	ownerLockTTL   = 15 * time.Second
	ownerLockRetry = 100
)

var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

// MongoRepository persists inventory data in the document store. Writers of
// one owner are serialised by a redis lock and run in a multi-document
// transaction.
type MongoRepository struct {
	client    *mongo.Client
	items     *mongo.Collection
	movements *mongo.Collection
	locker    *redislock.Client
}

// NewMongoRepository constructs MongoRepository. locker may be nil when a
// single process owns the database.
func NewMongoRepository(db *mongo.Database, locker *redislock.Client) *MongoRepository {
	return &MongoRepository{
		client:    db.Client(),
		items:     db.Collection(docstore.CollectionInventoryItems),
		movements: db.Collection(docstore.CollectionStockMovements),
		locker:    locker,
	}
}

type itemDoc struct {
	ID           string               `bson:"_id"`
	OwnerID      string               `bson:"owner_id"`
	Name         string               `bson:"name"`
	SKU          string               `bson:"sku"`
	Category     string               `bson:"category"`
	Description  string               `bson:"description"`
	CurrentStock float64              `bson:"current_stock"`
	MinimumStock float64              `bson:"minimum_stock"`
	MaximumStock float64              `bson:"maximum_stock"`
	UnitPrice    primitive.Decimal128 `bson:"unit_price"`
	CostPrice    primitive.Decimal128 `bson:"cost_price"`
	Supplier     string               `bson:"supplier"`
	Location     string               `bson:"location"`
	Unit         string               `bson:"unit"`
	CreatedAt    time.Time            `bson:"created_at"`
	UpdatedAt    time.Time            `bson:"updated_at"`
}

type movementDoc struct {
	ID            string    `bson:"_id"`
	ItemID        string    `bson:"item_id"`
	OwnerID       string    `bson:"owner_id"`
	Type          string    `bson:"type"`
	Quantity      float64   `bson:"quantity"`
	PreviousStock float64   `bson:"previous_stock"`
	NewStock      float64   `bson:"new_stock"`
	Reason        string    `bson:"reason"`
	Reference     string    `bson:"reference"`
	CreatedAt     time.Time `bson:"created_at"`
}

func toItemDoc(item Item) itemDoc {
	return itemDoc{
		ID:           item.ID,
		OwnerID:      item.OwnerID,
		Name:         item.Name,
		SKU:          item.SKU,
		Category:     item.Category,
		Description:  item.Description,
		CurrentStock: item.CurrentStock,
		MinimumStock: item.MinimumStock,
		MaximumStock: item.MaximumStock,
		UnitPrice:    docstore.Decimal128(item.UnitPrice),
		CostPrice:    docstore.Decimal128(item.CostPrice),
		Supplier:     item.Supplier,
		Location:     item.Location,
		Unit:         item.Unit,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
}

func (d itemDoc) item() Item {
	return Item{
		ID:           d.ID,
		OwnerID:      d.OwnerID,
		Name:         d.Name,
		SKU:          d.SKU,
		Category:     d.Category,
		Description:  d.Description,
		CurrentStock: d.CurrentStock,
		MinimumStock: d.MinimumStock,
		MaximumStock: d.MaximumStock,
		UnitPrice:    docstore.Decimal(d.UnitPrice),
		CostPrice:    docstore.Decimal(d.CostPrice),
		Supplier:     d.Supplier,
		Location:     d.Location,
		Unit:         d.Unit,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

// WithTx obtains the owner lock, then runs fn inside a session transaction.
func (r *MongoRepository) WithTx(ctx context.Context, ownerID string, fn func(context.Context, TxRepository) error) error {
	if r.locker != nil {
		lock, err := r.locker.Obtain(ctx, shared.InventoryLockKey(ownerID), ownerLockTTL, &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), ownerLockRetry),
		})
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				return fmt.Errorf("inventory: owner %s is busy: %w", ownerID, err)
			}
			return fmt.Errorf("inventory: obtain lock: %w", err)
		}
		defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	}

	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("inventory: start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTx{repo: r})
	})
	return err
}

func (r *MongoRepository) ListItems(ctx context.Context, ownerID string) ([]Item, error) {
	return r.findItems(ctx, bson.M{"owner_id": ownerID})
}

func (r *MongoRepository) GetItem(ctx context.Context, ownerID, id string) (Item, error) {
	return r.findItem(ctx, bson.M{"_id": id, "owner_id": ownerID})
}

func (r *MongoRepository) FindBySKU(ctx context.Context, ownerID, sku string) (Item, error) {
	return r.findItem(ctx, bson.M{"owner_id": ownerID, "sku": sku})
}

func (r *MongoRepository) ListLowStock(ctx context.Context, ownerID string) ([]Item, error) {
	return r.findItems(ctx, bson.M{
		"owner_id": ownerID,
		"$expr":    bson.M{"$lte": bson.A{"$current_stock", "$minimum_stock"}},
	})
}

func (r *MongoRepository) ListMovements(ctx context.Context, ownerID, itemID string, limit int) ([]StockMovement, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cur, err := r.movements.Find(ctx, bson.M{"owner_id": ownerID, "item_id": itemID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	movements := []StockMovement{}
	for cur.Next(ctx) {
		var doc movementDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		movements = append(movements, StockMovement{
			ID:            doc.ID,
			ItemID:        doc.ItemID,
			OwnerID:       doc.OwnerID,
			Type:          MovementType(doc.Type),
			Quantity:      doc.Quantity,
			PreviousStock: doc.PreviousStock,
			NewStock:      doc.NewStock,
			Reason:        doc.Reason,
			Reference:     doc.Reference,
			CreatedAt:     doc.CreatedAt.UTC(),
		})
	}
	return movements, cur.Err()
}

func (r *MongoRepository) ListOwners(ctx context.Context) ([]string, error) {
	values, err := r.items.Distinct(ctx, "owner_id", bson.M{})
	if err != nil {
		return nil, err
	}
	owners := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			owners = append(owners, s)
		}
	}
	return owners, nil
}

func (r *MongoRepository) findItem(ctx context.Context, filter bson.M) (Item, error) {
	var doc itemDoc
	err := r.items.FindOne(ctx, filter, options.FindOne().SetCollation(caseInsensitive)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return doc.item(), nil
}

func (r *MongoRepository) findItems(ctx context.Context, filter bson.M) ([]Item, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "sku", Value: 1}})
	cur, err := r.items.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	items := []Item{}
	for cur.Next(ctx) {
		var doc itemDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		items = append(items, doc.item())
	}
	return items, cur.Err()
}

type mongoTx struct {
	repo *MongoRepository
}

func (t *mongoTx) ListItems(ctx context.Context, ownerID string) ([]Item, error) {
	return t.repo.ListItems(ctx, ownerID)
}

func (t *mongoTx) GetItemForUpdate(ctx context.Context, ownerID, id string) (Item, error) {
	return t.repo.GetItem(ctx, ownerID, id)
}

func (t *mongoTx) FindBySKU(ctx context.Context, ownerID, sku string) (Item, error) {
	return t.repo.FindBySKU(ctx, ownerID, sku)
}

func (t *mongoTx) InsertItem(ctx context.Context, item Item) error {
	_, err := t.repo.items.InsertOne(ctx, toItemDoc(item))
	if docstore.IsDuplicateKey(err) {
		return ErrDuplicateSKU
	}
	return err
}

// UpdateItem refuses negative stock, mirroring the SQL check constraint.
func (t *mongoTx) UpdateItem(ctx context.Context, item Item) error {
	if item.CurrentStock < 0 {
		return ErrNegativeStock
	}
	res, err := t.repo.items.ReplaceOne(ctx, bson.M{"_id": item.ID, "owner_id": item.OwnerID}, toItemDoc(item))
	if err != nil {
		if docstore.IsDuplicateKey(err) {
			return ErrDuplicateSKU
		}
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *mongoTx) DeleteItem(ctx context.Context, ownerID, id string) error {
	res, err := t.repo.items.DeleteOne(ctx, bson.M{"_id": id, "owner_id": ownerID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	_, err = t.repo.movements.DeleteMany(ctx, bson.M{"owner_id": ownerID, "item_id": id})
	return err
}

func (t *mongoTx) InsertMovement(ctx context.Context, mv StockMovement) error {
	_, err := t.repo.movements.InsertOne(ctx, movementDoc{
		ID:            mv.ID,
		ItemID:        mv.ItemID,
		OwnerID:       mv.OwnerID,
		Type:          string(mv.Type),
		Quantity:      mv.Quantity,
		PreviousStock: mv.PreviousStock,
		NewStock:      mv.NewStock,
		Reason:        mv.Reason,
		Reference:     mv.Reference,
		CreatedAt:     mv.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("inventory: insert movement: %w", err)
	}
	return nil
}
