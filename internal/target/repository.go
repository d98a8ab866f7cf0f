package target

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrEndpointNotFound = fmt.Errorf("endpoint not found")

type Repository interface {
	ListEnabledGroups(ctx context.Context, tenantID string) ([]Group, error)
	ListEnabledTargets(ctx context.Context, groupID string) ([]Target, error)
	GetEndpoint(ctx context.Context, endpointID string) (*Endpoint, error)
}

type MongoDBRepository struct {
	groups    *mongo.Collection
	targets   *mongo.Collection
	endpoints *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &MongoDBRepository{
		groups:    db.Collection("target_groups"),
		targets:   db.Collection("targets"),
		endpoints: db.Collection("endpoints"),
	}
}

func (r *MongoDBRepository) ListEnabledGroups(ctx context.Context, tenantID string) ([]Group, error) {
	filter := bson.M{"tenant_id": tenantID, "status": StatusEnabled}

	cursor, err := r.groups.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find target groups: %w", err)
	}
	defer cursor.Close(ctx)

	var groups []Group
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode target groups: %w", err)
	}
	return groups, nil
}

func (r *MongoDBRepository) ListEnabledTargets(ctx context.Context, groupID string) ([]Target, error) {
	filter := bson.M{"group_id": groupID, "config.status": StatusEnabled}

	cursor, err := r.targets.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find targets: %w", err)
	}
	defer cursor.Close(ctx)

	var targets []Target
	if err := cursor.All(ctx, &targets); err != nil {
		return nil, fmt.Errorf("failed to decode targets: %w", err)
	}
	return targets, nil
}

func (r *MongoDBRepository) GetEndpoint(ctx context.Context, endpointID string) (*Endpoint, error) {
	var endpoint Endpoint
	err := r.endpoints.FindOne(ctx, bson.M{"_id": endpointID}).Decode(&endpoint)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrEndpointNotFound
		}
		return nil, fmt.Errorf("failed to find endpoint: %w", err)
	}
	return &endpoint, nil
}
