package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var collectionIndexes = map[string][]mongo.IndexModel{
	"leads": {
		{
			Keys:    bson.D{{Key: "source_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_leads_source_created"),
		},
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_leads_tenant_status"),
		},
		{
			Keys:    bson.D{{Key: "delivery_results.target_id", Value: 1}, {Key: "delivery_results.delivered_at", Value: -1}},
			Options: options.Index().SetName("idx_leads_delivery_target_time"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_leads_created_at"),
		},
	},
	"vendors": {
		{
			Keys:    bson.D{{Key: "sources.id", Value: 1}},
			Options: options.Index().SetName("idx_vendors_source_id"),
		},
		{
			Keys:    bson.D{{Key: "sources.api_key", Value: 1}},
			Options: options.Index().SetName("idx_vendors_source_api_key").SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}},
			Options: options.Index().SetName("idx_vendors_tenant"),
		},
	},
	"canonical_fields": {
		{
			Keys:    bson.D{{Key: "name", Value: 1}, {Key: "tenant_id", Value: 1}},
			Options: options.Index().SetName("idx_canonical_fields_name_tenant").SetUnique(true),
		},
	},
	"field_aliases": {
		{
			Keys:    bson.D{{Key: "normalized", Value: 1}, {Key: "scope", Value: 1}},
			Options: options.Index().SetName("idx_field_aliases_normalized_scope"),
		},
	},
	"unknown_fields": {
		{
			Keys:    bson.D{{Key: "field_name", Value: 1}, {Key: "tenant_id", Value: 1}},
			Options: options.Index().SetName("idx_unknown_fields_name_tenant"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "last_seen", Value: -1}},
			Options: options.Index().SetName("idx_unknown_fields_status_seen"),
		},
	},
	"target_groups": {
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "enabled", Value: 1}},
			Options: options.Index().SetName("idx_target_groups_tenant_enabled"),
		},
	},
	"targets": {
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "enabled", Value: 1}},
			Options: options.Index().SetName("idx_targets_group_enabled"),
		},
		{
			Keys:    bson.D{{Key: "priority", Value: -1}},
			Options: options.Index().SetName("idx_targets_priority"),
		},
	},
	"endpoints": {
		{
			Keys:    bson.D{{Key: "target_id", Value: 1}},
			Options: options.Index().SetName("idx_endpoints_target"),
		},
	},
}

func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	for name, indexes := range collectionIndexes {
		collection := db.Collection(name)
		_, err := collection.Indexes().CreateMany(ctx, indexes)
		if err != nil {
			if !strings.Contains(err.Error(), "already exists") {
				return fmt.Errorf("failed to create indexes for %s: %w", name, err)
			}
		}
	}
	return nil
}
