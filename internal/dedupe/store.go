package dedupe

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store answers the authoritative duplicate question against persisted
// leads.
type Store interface {
	FindDuplicate(ctx context.Context, sourceID string, values map[string]interface{}, operator string, windowDays int) (bool, error)
}

type MongoDBStore struct {
	collection *mongo.Collection
}

func NewStore(db *mongo.Database) Store {
	return &MongoDBStore{
		collection: db.Collection("leads"),
	}
}

func (s *MongoDBStore) FindDuplicate(ctx context.Context, sourceID string, values map[string]interface{}, operator string, windowDays int) (bool, error) {
	if len(values) == 0 {
		return false, nil
	}

	conditions := make([]bson.M, 0, len(values))
	for field, val := range values {
		conditions = append(conditions, bson.M{"data." + field: val})
	}

	mongoOp := "$or"
	if operator == "and" {
		mongoOp = "$and"
	}

	query := bson.M{
		mongoOp:     conditions,
		"source_id": sourceID,
	}
	if windowDays > 0 {
		query["created_at"] = bson.M{"$gte": time.Now().AddDate(0, 0, -windowDays)}
	}

	err := s.collection.FindOne(ctx, query).Err()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, fmt.Errorf("failed to query duplicates: %w", err)
	}
	return true, nil
}
