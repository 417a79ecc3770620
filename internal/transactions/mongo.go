package transactions

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stockbooks/stockbooks/internal/platform/docstore"
)

// MongoRepository persists transactions in the document store.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository constructs MongoRepository.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(docstore.CollectionTransactions)}
}

type transactionDoc struct {
	ID            string               `bson:"_id"`
	OwnerID       string               `bson:"owner_id"`
	Date          time.Time            `bson:"date"`
	Type          string               `bson:"type"`
	SubType       string               `bson:"sub_type,omitempty"`
	Category      string               `bson:"category,omitempty"`
	Amount        primitive.Decimal128 `bson:"amount"`
	Description   string               `bson:"description"`
	PaymentMethod string               `bson:"payment_method"`
	VendorName    string               `bson:"vendor_name,omitempty"`
	BuyerName     string               `bson:"buyer_name,omitempty"`
	GSTApplicable bool                 `bson:"gst_applicable"`
	GSTType       string               `bson:"gst_type,omitempty"`
	GSTRate       primitive.Decimal128 `bson:"gst_rate"`
	ProductName   string               `bson:"product_name,omitempty"`
	SKU           string               `bson:"sku,omitempty"`
	Quantity      float64              `bson:"quantity"`
	Price         primitive.Decimal128 `bson:"price"`
	CreatedAt     time.Time            `bson:"created_at"`
	UpdatedAt     time.Time            `bson:"updated_at"`
}

func toDoc(tx Transaction) transactionDoc {
	return transactionDoc{
		ID:            tx.ID,
		OwnerID:       tx.OwnerID,
		Date:          tx.Date,
		Type:          string(tx.Type),
		SubType:       tx.SubType,
		Category:      tx.Category,
		Amount:        docstore.Decimal128(tx.Amount),
		Description:   tx.Description,
		PaymentMethod: tx.PaymentMethod,
		VendorName:    tx.VendorName,
		BuyerName:     tx.BuyerName,
		GSTApplicable: tx.GSTApplicable,
		GSTType:       tx.GSTType,
		GSTRate:       docstore.Decimal128(tx.GSTRate),
		ProductName:   tx.ProductName,
		SKU:           tx.SKU,
		Quantity:      tx.Quantity,
		Price:         docstore.Decimal128(tx.Price),
		CreatedAt:     tx.CreatedAt,
		UpdatedAt:     tx.UpdatedAt,
	}
}

func (d transactionDoc) transaction() Transaction {
	return Transaction{
		ID:            d.ID,
		OwnerID:       d.OwnerID,
		Date:          d.Date.UTC(),
		Type:          Type(d.Type),
		SubType:       d.SubType,
		Category:      d.Category,
		Amount:        docstore.Decimal(d.Amount),
		Description:   d.Description,
		PaymentMethod: d.PaymentMethod,
		VendorName:    d.VendorName,
		BuyerName:     d.BuyerName,
		GSTApplicable: d.GSTApplicable,
		GSTType:       d.GSTType,
		GSTRate:       docstore.Decimal(d.GSTRate),
		ProductName:   d.ProductName,
		SKU:           d.SKU,
		Quantity:      d.Quantity,
		Price:         docstore.Decimal(d.Price),
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

func (r *MongoRepository) Insert(ctx context.Context, tx Transaction) error {
	_, err := r.coll.InsertOne(ctx, toDoc(tx))
	return err
}

func (r *MongoRepository) Get(ctx context.Context, ownerID, id string) (Transaction, error) {
	var doc transactionDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "owner_id": ownerID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	return doc.transaction(), nil
}

func (r *MongoRepository) Update(ctx context.Context, tx Transaction) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": tx.ID, "owner_id": tx.OwnerID}, toDoc(tx))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "owner_id": ownerID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) List(ctx context.Context, filter ListFilter) ([]Transaction, int, error) {
	query := bson.M{"owner_id": filter.OwnerID}
	dateRange := bson.M{}
	if !filter.From.IsZero() {
		dateRange["$gte"] = filter.From
	}
	if !filter.To.IsZero() {
		dateRange["$lte"] = filter.To
	}
	if len(dateRange) > 0 {
		query["date"] = dateRange
	}
	if filter.Type != "" {
		query["type"] = string(filter.Type)
	}
	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "created_at", Value: -1}}).
		SetSkip(int64((filter.Page - 1) * filter.PerPage)).
		SetLimit(int64(filter.PerPage))
	items, err := r.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return items, int(total), nil
}

func (r *MongoRepository) ListAll(ctx context.Context, ownerID string) ([]Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "created_at", Value: 1}})
	return r.find(ctx, bson.M{"owner_id": ownerID}, opts)
}

func (r *MongoRepository) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]Transaction, error) {
	cur, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	items := []Transaction{}
	for cur.Next(ctx) {
		var doc transactionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		items = append(items, doc.transaction())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
