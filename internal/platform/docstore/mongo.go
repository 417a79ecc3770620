// Package docstore connects to the MongoDB document store and holds the
// conversions shared by the document-backed repositories.
package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	CollectionTransactions   = "transactions"
	CollectionInventoryItems = "inventory_items"
	CollectionStockMovements = "stock_movements"
)

// Connect opens a client, verifies it with a ping and returns the database handle.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Database, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("platform/docstore: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("platform/docstore: ping: %w", err)
	}

	return client.Database(dbName), client.Disconnect, nil
}

// EnsureIndexes creates the indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ci := options.Index().SetCollation(&options.Collation{Locale: "en", Strength: 2})
	models := map[string][]mongo.IndexModel{
		CollectionTransactions: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "date", Value: 1}}},
		},
		CollectionInventoryItems: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "sku", Value: 1}}, Options: ci.SetUnique(true)},
		},
		CollectionStockMovements: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "item_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
	for name, idx := range models {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("platform/docstore: indexes %s: %w", name, err)
		}
	}
	return nil
}

// Decimal128 converts a decimal to its BSON representation.
func Decimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.NewDecimal128(0, 0)
	}
	return v
}

// Decimal converts a BSON decimal back into a decimal.Decimal.
func Decimal(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// IsDuplicateKey reports whether err is a unique index violation.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
