package catalog

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrFieldNotFound = fmt.Errorf("canonical field not found")

type Repository interface {
	ListFields(ctx context.Context, tenantID string) ([]CanonicalField, error)
	GetFieldByKey(ctx context.Context, tenantID, fieldKey string) (*CanonicalField, error)
	InsertField(ctx context.Context, field CanonicalField) error
	AddAlias(ctx context.Context, tenantID, fieldKey string, entry AliasEntry) error

	GetUnknownField(ctx context.Context, tenantID, fieldName string) (*UnknownField, error)
	InsertUnknownField(ctx context.Context, field UnknownField) error
	UpdateUnknownFieldSighting(ctx context.Context, field UnknownField) error
	ListUnknownFields(ctx context.Context, tenantID, status string, limit int64) ([]UnknownField, error)
	ListUnknownFieldSources(ctx context.Context, tenantID, fieldName string) ([]string, error)
	SetUnknownFieldStatus(ctx context.Context, tenantID, fieldName, status string) error
	DeleteUnknownFields(ctx context.Context, tenantID, fieldName string, sourceIDs []string) error
}

type MongoDBRepository struct {
	fields  *mongo.Collection
	unknown *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &MongoDBRepository{
		fields:  db.Collection("canonical_fields"),
		unknown: db.Collection("unknown_fields"),
	}
}

func (r *MongoDBRepository) ListFields(ctx context.Context, tenantID string) ([]CanonicalField, error) {
	cursor, err := r.fields.Find(ctx, bson.M{"tenant_id": tenantID})
	if err != nil {
		return nil, fmt.Errorf("failed to find canonical fields: %w", err)
	}
	defer cursor.Close(ctx)

	var fields []CanonicalField
	if err := cursor.All(ctx, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode canonical fields: %w", err)
	}
	return fields, nil
}

func (r *MongoDBRepository) GetFieldByKey(ctx context.Context, tenantID, fieldKey string) (*CanonicalField, error) {
	var field CanonicalField
	err := r.fields.FindOne(ctx, bson.M{"tenant_id": tenantID, "field_key": fieldKey}).Decode(&field)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrFieldNotFound
		}
		return nil, fmt.Errorf("failed to find canonical field: %w", err)
	}
	return &field, nil
}

func (r *MongoDBRepository) InsertField(ctx context.Context, field CanonicalField) error {
	_, err := r.fields.InsertOne(ctx, field)
	if err != nil {
		return fmt.Errorf("failed to insert canonical field: %w", err)
	}
	return nil
}

// AddAlias appends an alias entry unless an entry with the same
// normalized form, scope and vendor is already present.
func (r *MongoDBRepository) AddAlias(ctx context.Context, tenantID, fieldKey string, entry AliasEntry) error {
	dupe := bson.M{
		"alias_normalized": entry.AliasNormalized,
		"scope":            entry.Scope,
	}
	if entry.Scope == ScopeVendor {
		dupe["vendor_id"] = entry.VendorID
	}
	filter := bson.M{
		"tenant_id": tenantID,
		"field_key": fieldKey,
		"aliases":   bson.M{"$not": bson.M{"$elemMatch": dupe}},
	}
	update := bson.M{"$push": bson.M{"aliases": entry}}

	_, err := r.fields.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to add alias: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) GetUnknownField(ctx context.Context, tenantID, fieldName string) (*UnknownField, error) {
	var field UnknownField
	err := r.unknown.FindOne(ctx, bson.M{"tenant_id": tenantID, "field_name": fieldName}).Decode(&field)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find unknown field: %w", err)
	}
	return &field, nil
}

func (r *MongoDBRepository) InsertUnknownField(ctx context.Context, field UnknownField) error {
	_, err := r.unknown.InsertOne(ctx, field)
	if err != nil {
		return fmt.Errorf("failed to insert unknown field: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) UpdateUnknownFieldSighting(ctx context.Context, field UnknownField) error {
	filter := bson.M{"_id": field.ID}
	update := bson.M{"$set": bson.M{
		"detected_count": field.DetectedCount,
		"sample_value":   field.SampleValue,
		"last_seen":      field.LastSeen,
	}}

	_, err := r.unknown.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update unknown field: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) ListUnknownFields(ctx context.Context, tenantID, status string, limit int64) ([]UnknownField, error) {
	filter := bson.M{"tenant_id": tenantID}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_seen", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.unknown.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find unknown fields: %w", err)
	}
	defer cursor.Close(ctx)

	var fields []UnknownField
	if err := cursor.All(ctx, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode unknown fields: %w", err)
	}
	return fields, nil
}

func (r *MongoDBRepository) ListUnknownFieldSources(ctx context.Context, tenantID, fieldName string) ([]string, error) {
	values, err := r.unknown.Distinct(ctx, "source_id", bson.M{"tenant_id": tenantID, "field_name": fieldName})
	if err != nil {
		return nil, fmt.Errorf("failed to list unknown field sources: %w", err)
	}

	sourceIDs := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			sourceIDs = append(sourceIDs, s)
		}
	}
	return sourceIDs, nil
}

func (r *MongoDBRepository) SetUnknownFieldStatus(ctx context.Context, tenantID, fieldName, status string) error {
	filter := bson.M{"tenant_id": tenantID, "field_name": fieldName}
	update := bson.M{"$set": bson.M{"status": status}}

	_, err := r.unknown.UpdateMany(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to set unknown field status: %w", err)
	}
	return nil
}

func (r *MongoDBRepository) DeleteUnknownFields(ctx context.Context, tenantID, fieldName string, sourceIDs []string) error {
	filter := bson.M{"tenant_id": tenantID, "field_name": fieldName}
	if len(sourceIDs) > 0 {
		filter["source_id"] = bson.M{"$in": sourceIDs}
	}

	_, err := r.unknown.DeleteMany(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete unknown fields: %w", err)
	}
	return nil
}
