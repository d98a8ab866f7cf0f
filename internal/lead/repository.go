package lead

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrLeadNotFound = fmt.Errorf("lead not found")

type Repository interface {
	Insert(ctx context.Context, l *Lead) error
	GetByID(ctx context.Context, id string) (*Lead, error)
	ReplaceData(ctx context.Context, id string, data map[string]interface{}) error
	AppendDeliveryResult(ctx context.Context, id string, result DeliveryResult) error
	MarkProcessed(ctx context.Context, id string, processedAt time.Time) error
	CountDeliveredSince(ctx context.Context, targetID string, since time.Time) (int64, error)
	CountDeliveredTotal(ctx context.Context, targetID string) (int64, error)
	IterateBySource(ctx context.Context, sourceID string, fn func(*Lead) error) error
	StripOldPayloads(ctx context.Context, olderThan time.Time) (int64, error)
}

type MongoDBRepository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &MongoDBRepository{
		collection: db.Collection("leads"),
	}
}

func (r *MongoDBRepository) Insert(ctx context.Context, l *Lead) error {
	_, err := r.collection.InsertOne(ctx, l)
	if err != nil {
		return fmt.Errorf("failed to insert lead: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	var l Lead
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&l)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("failed to find lead: %w", err)
	}
	return &l, nil
}

func (r *MongoDBRepository) ReplaceData(ctx context.Context, id string, data map[string]interface{}) error {
	update := bson.M{"$set": bson.M{"data": data}}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to replace lead data: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) AppendDeliveryResult(ctx context.Context, id string, result DeliveryResult) error {
	update := bson.M{"$push": bson.M{"delivery_results": result}}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to append delivery result: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	update := bson.M{"$set": bson.M{"processed_at": processedAt}}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to mark lead processed: %w", err)
	}
	return nil
}

// CountDeliveredSince counts successful deliveries to a target on or
// after the cutoff. Backs the weekday and hourly caps, so a best-effort
// read is acceptable.
func (r *MongoDBRepository) CountDeliveredSince(ctx context.Context, targetID string, since time.Time) (int64, error) {
	filter := bson.M{"delivery_results": bson.M{"$elemMatch": bson.M{
		"target_id":    targetID,
		"status":       DeliveryStatusDelivered,
		"delivered_at": bson.M{"$gte": since},
	}}}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count deliveries: %w", err)
	}
	return count, nil
}

func (r *MongoDBRepository) CountDeliveredTotal(ctx context.Context, targetID string) (int64, error) {
	filter := bson.M{"delivery_results": bson.M{"$elemMatch": bson.M{
		"target_id": targetID,
		"status":    DeliveryStatusDelivered,
	}}}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count deliveries: %w", err)
	}
	return count, nil
}

// IterateBySource streams every lead of a source through fn, oldest
// first. Used by reprocessing, which must not load a source's full
// history into memory.
func (r *MongoDBRepository) IterateBySource(ctx context.Context, sourceID string, fn func(*Lead) error) error {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"source_id": sourceID}, opts)
	if err != nil {
		return fmt.Errorf("failed to find leads: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var l Lead
		if err := cursor.Decode(&l); err != nil {
			return fmt.Errorf("failed to decode lead: %w", err)
		}
		if err := fn(&l); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// StripOldPayloads drops the stored raw payload from leads older than
// the cutoff. The canonical data survives; only the original vendor
// payload is removed.
func (r *MongoDBRepository) StripOldPayloads(ctx context.Context, olderThan time.Time) (int64, error) {
	filter := bson.M{
		"created_at":       bson.M{"$lt": olderThan},
		"original_payload": bson.M{"$exists": true},
	}
	update := bson.M{"$unset": bson.M{"original_payload": ""}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to strip old payloads: %w", err)
	}
	return result.ModifiedCount, nil
}
