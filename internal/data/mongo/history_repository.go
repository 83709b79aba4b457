// Package mongo holds the MongoDB projection of the ledger history.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mycelium-customer-ledger/internal/domain/ledger"
)

const (
	// HistoryCollectionName is the name of the ledger history collection in MongoDB
	HistoryCollectionName = "ledger_history"
)

// HistoryRepository implements ledger.HistoryRepository for MongoDB
type HistoryRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewHistoryRepository creates a new MongoDB history repository
func NewHistoryRepository(logger *slog.Logger, db *mongo.Database) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the lookup index per customer and the unique event index
func (r *HistoryRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(HistoryCollectionName)

	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "event_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uq_event_id"),
		},
		{
			Keys:    bson.D{{Key: "customer_id", Value: 1}, {Key: "occurred_at", Value: -1}},
			Options: options.Index().SetName("idx_customer_occurred_at"),
		},
	})
	if err != nil {
		r.logger.Error("Failed to create ledger history indexes", "error", err)
		return fmt.Errorf("failed to create ledger history indexes: %w", err)
	}
	return nil
}

// Record upserts on event_id so a poller retry after a partial failure does not duplicate history
func (r *HistoryRepository) Record(ctx context.Context, event *ledger.ChangeEvent) error {
	collection := r.db.Collection(HistoryCollectionName)

	filter := bson.M{"event_id": event.EventID}
	update := bson.M{"$setOnInsert": event}

	_, err := collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		r.logger.Error("Failed to record ledger history",
			"event_id", event.EventID.String(),
			"customer_id", event.CustomerID,
			"error", err)
		return fmt.Errorf("failed to record ledger history: %w", err)
	}

	return nil
}

// ListByCustomer retrieves paginated history for a customer, newest first
func (r *HistoryRepository) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]*ledger.ChangeEvent, error) {
	collection := r.db.Collection(HistoryCollectionName)

	filter := bson.M{"customer_id": customerID}
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get ledger history", "customer_id", customerID, "error", err)
		return nil, fmt.Errorf("failed to get ledger history: %w", err)
	}
	defer cursor.Close(ctx)

	events := []*ledger.ChangeEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode ledger history", "customer_id", customerID, "error", err)
		return nil, fmt.Errorf("failed to decode ledger history: %w", err)
	}

	return events, nil
}

// CountByCustomer counts the history events of a customer
func (r *HistoryRepository) CountByCustomer(ctx context.Context, customerID string) (int64, error) {
	collection := r.db.Collection(HistoryCollectionName)

	count, err := collection.CountDocuments(ctx, bson.M{"customer_id": customerID})
	if err != nil {
		r.logger.Error("Failed to count ledger history", "customer_id", customerID, "error", err)
		return 0, fmt.Errorf("failed to count ledger history: %w", err)
	}

	return count, nil
}
