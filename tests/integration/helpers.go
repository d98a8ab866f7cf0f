package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dikshant-ux/vellkopoint/internal/config"
	"github.com/dikshant-ux/vellkopoint/internal/lead"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/source"
	"github.com/dikshant-ux/vellkopoint/internal/target"
	"github.com/dikshant-ux/vellkopoint/pkg/models"
)

const containerStartupTimeout = 60

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestDedupConfig() config.DedupConfig {
	return config.DedupConfig{
		HashAlgorithm: "sha256",
		OnRedisError:  "allow",
	}
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func mappedRule(sourceField, targetField string) source.MappingRule {
	return source.MappingRule{
		SourceField: sourceField,
		TargetField: strPtr(targetField),
	}
}

func createTestVendor(vendorID, sourceID, apiKey string) *source.Vendor {
	return &source.Vendor{
		ID:       vendorID,
		TenantID: "tenant-1",
		OwnerID:  "owner-1",
		Name:     "Test Vendor",
		Status:   source.StatusEnabled,
		Sources: []source.Source{
			{
				ID:     sourceID,
				Name:   "Test Source",
				Type:   "webhook",
				APIKey: apiKey,
				Config: source.Config{Status: source.StatusEnabled},
				Mapping: source.Mapping{
					Rules: []source.MappingRule{
						mappedRule("email", "email_address"),
						mappedRule("first_name", "first_name"),
						mappedRule("country", "country"),
					},
				},
			},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func insertVendor(t *testing.T, db *mongo.Database, vendor *source.Vendor) {
	t.Helper()
	_, err := db.Collection("vendors").InsertOne(context.Background(), vendor)
	if err != nil {
		t.Fatalf("failed to insert vendor: %v", err)
	}
}

func createTestLead(id, sourceID, status string, data map[string]interface{}) *lead.Lead {
	return &lead.Lead{
		ID:         id,
		ReadableID: lead.ReadableID(id),
		TenantID:   "tenant-1",
		OwnerID:    "owner-1",
		VendorID:   "vendor-1",
		SourceID:   sourceID,
		Data:       data,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
}

func createTestEndpoint(id, url string) *target.Endpoint {
	return &target.Endpoint{
		ID:       id,
		TenantID: "tenant-1",
		OwnerID:  "owner-1",
		Name:     "Test Endpoint",
		Type:     "http",
		Config: target.EndpointConfig{
			URL:    url,
			Method: "POST",
		},
		Enabled:        true,
		ApprovalStatus: target.ApprovalApproved,
		CreatedAt:      time.Now().UTC(),
	}
}

func insertTargetFixtures(t *testing.T, db *mongo.Database, group *target.Group, tgt *target.Target, endpoint *target.Endpoint) {
	t.Helper()
	ctx := context.Background()
	if group != nil {
		if _, err := db.Collection("target_groups").InsertOne(ctx, group); err != nil {
			t.Fatalf("failed to insert target group: %v", err)
		}
	}
	if tgt != nil {
		if _, err := db.Collection("targets").InsertOne(ctx, tgt); err != nil {
			t.Fatalf("failed to insert target: %v", err)
		}
	}
	if endpoint != nil {
		if _, err := db.Collection("endpoints").InsertOne(ctx, endpoint); err != nil {
			t.Fatalf("failed to insert endpoint: %v", err)
		}
	}
}

// capturingProducer records published jobs in place of a real broker.
type capturingProducer struct {
	mu   sync.Mutex
	jobs []publishedJob
}

type publishedJob struct {
	topic string
	job   models.Job
}

func (p *capturingProducer) Publish(_ context.Context, topic string, job models.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, publishedJob{topic: topic, job: job})
	return nil
}

func (p *capturingProducer) Close() error { return nil }

func (p *capturingProducer) published() []publishedJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedJob, len(p.jobs))
	copy(out, p.jobs)
	return out
}
