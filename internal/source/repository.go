package source

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrSourceNotFound = fmt.Errorf("source not found")

type Repository interface {
	GetVendor(ctx context.Context, vendorID string) (*Vendor, error)
	GetBySourceID(ctx context.Context, sourceID string) (*Vendor, *Source, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Vendor, *Source, error)
	GetVendorsBySourceIDs(ctx context.Context, sourceIDs []string) ([]Vendor, error)
	ListVendorsByTenant(ctx context.Context, tenantID string) ([]Vendor, error)
	AppendMappingRule(ctx context.Context, vendorID, sourceID string, rule MappingRule) error
	SetMappingRuleTarget(ctx context.Context, vendorID, sourceID, sourceField, targetField string) error
}

type MongoDBRepository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &MongoDBRepository{
		collection: db.Collection("vendors"),
	}
}

func (r *MongoDBRepository) GetVendor(ctx context.Context, vendorID string) (*Vendor, error) {
	var vendor Vendor
	err := r.collection.FindOne(ctx, bson.M{"_id": vendorID}).Decode(&vendor)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrSourceNotFound
		}
		return nil, fmt.Errorf("failed to find vendor: %w", err)
	}
	return &vendor, nil
}

func (r *MongoDBRepository) GetBySourceID(ctx context.Context, sourceID string) (*Vendor, *Source, error) {
	return r.findByEmbedded(ctx, bson.M{"sources.id": sourceID}, func(s *Source) bool {
		return s.ID == sourceID
	})
}

func (r *MongoDBRepository) GetByAPIKey(ctx context.Context, apiKey string) (*Vendor, *Source, error) {
	return r.findByEmbedded(ctx, bson.M{"sources.api_key": apiKey}, func(s *Source) bool {
		return s.APIKey == apiKey
	})
}

func (r *MongoDBRepository) findByEmbedded(ctx context.Context, filter bson.M, match func(*Source) bool) (*Vendor, *Source, error) {
	var vendor Vendor
	err := r.collection.FindOne(ctx, filter).Decode(&vendor)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil, ErrSourceNotFound
		}
		return nil, nil, fmt.Errorf("failed to find vendor: %w", err)
	}

	for i := range vendor.Sources {
		if match(&vendor.Sources[i]) {
			return &vendor, &vendor.Sources[i], nil
		}
	}
	return nil, nil, ErrSourceNotFound
}

func (r *MongoDBRepository) GetVendorsBySourceIDs(ctx context.Context, sourceIDs []string) ([]Vendor, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"sources.id": bson.M{"$in": sourceIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to find vendors: %w", err)
	}
	defer cursor.Close(ctx)

	var vendors []Vendor
	if err := cursor.All(ctx, &vendors); err != nil {
		return nil, fmt.Errorf("failed to decode vendors: %w", err)
	}
	return vendors, nil
}

func (r *MongoDBRepository) ListVendorsByTenant(ctx context.Context, tenantID string) ([]Vendor, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"tenant_id": tenantID})
	if err != nil {
		return nil, fmt.Errorf("failed to find vendors: %w", err)
	}
	defer cursor.Close(ctx)

	var vendors []Vendor
	if err := cursor.All(ctx, &vendors); err != nil {
		return nil, fmt.Errorf("failed to decode vendors: %w", err)
	}
	return vendors, nil
}

// AppendMappingRule adds a rule unless one for the same source field is
// already present. Concurrent processors can race to record a discovered
// field; the existence check in the filter keeps the operation idempotent.
func (r *MongoDBRepository) AppendMappingRule(ctx context.Context, vendorID, sourceID string, rule MappingRule) error {
	filter := bson.M{
		"_id": vendorID,
		"sources": bson.M{"$elemMatch": bson.M{
			"id":                         sourceID,
			"mapping.rules.source_field": bson.M{"$ne": rule.SourceField},
		}},
	}
	update := bson.M{"$push": bson.M{"sources.$.mapping.rules": rule}}

	_, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to append mapping rule: %w", err)
	}
	return nil
}

// SetMappingRuleTarget promotes an existing rule for sourceField to point
// at targetField. Used when an unmapped discovery is later resolved.
func (r *MongoDBRepository) SetMappingRuleTarget(ctx context.Context, vendorID, sourceID, sourceField, targetField string) error {
	filter := bson.M{"_id": vendorID}
	update := bson.M{"$set": bson.M{
		"sources.$[src].mapping.rules.$[rule].target_field": targetField,
	}}
	opts := arrayFilters(bson.M{"src.id": sourceID}, bson.M{"rule.source_field": sourceField})

	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to set mapping rule target: %w", err)
	}
	return nil
}

func arrayFilters(filters ...interface{}) *options.UpdateOptions {
	return options.Update().SetArrayFilters(options.ArrayFilters{Filters: filters})
}
