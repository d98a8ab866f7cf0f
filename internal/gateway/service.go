package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dikshant-ux/vellkopoint/internal/broker"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/source"
	"github.com/dikshant-ux/vellkopoint/pkg/errors"
	"github.com/dikshant-ux/vellkopoint/pkg/metrics"
	"github.com/dikshant-ux/vellkopoint/pkg/models"
	"github.com/dikshant-ux/vellkopoint/pkg/tracing"
)

// Service validates intake requests and turns them into process jobs.
// The gateway never touches the pipeline directly; everything goes
// through the broker so a burst of traffic queues instead of stalling.
type Service struct {
	sources      source.Repository
	producer     broker.Producer
	processTopic string
	logger       logger.Logger

	now   func() time.Time
	newID func() string
}

func NewService(sources source.Repository, producer broker.Producer, processTopic string, log logger.Logger) *Service {
	return &Service{
		sources:      sources,
		producer:     producer,
		processTopic: processTopic,
		logger:       log,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

type IntakeResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	JobID    string `json:"job_id"`
	SourceID string `json:"source_id"`
	VendorID string `json:"vendor_id"`
}

// Intake resolves the API key to a source, rejects disabled sources,
// and queues the payload for processing.
func (s *Service) Intake(ctx context.Context, apiKey string, payload map[string]interface{}) (*IntakeResponse, error) {
	tracer := tracing.GetTracer("gateway-service")
	ctx, span := tracer.Start(ctx, "gateway.intake")
	defer span.End()

	vendor, src, err := s.sources.GetByAPIKey(ctx, apiKey)
	if err != nil {
		if err == source.ErrSourceNotFound {
			metrics.GatewayIntakeTotal.WithLabelValues("unauthorized").Inc()
			return nil, errors.ErrInvalidAPIKey
		}
		metrics.GatewayIntakeTotal.WithLabelValues("error").Inc()
		return nil, errors.ErrInternal.WithCause(err)
	}
	span.SetAttributes(attribute.String("source.id", src.ID))

	if src.Config.Status == source.StatusDisabled {
		s.logger.WarnwCtx(ctx, "Intake on disabled source",
			"source_id", src.ID,
			"vendor_id", vendor.ID,
		)
		metrics.GatewayIntakeTotal.WithLabelValues("rejected").Inc()
		return nil, errors.ErrSourceDisabled.WithDetail("source_id", src.ID)
	}

	// The key authenticates; it must not travel with the lead data.
	clean := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if k == "api_key" {
			continue
		}
		clean[k] = v
	}

	job := models.Job{
		ID:        s.newID(),
		Kind:      models.JobKindProcess,
		TenantID:  vendor.TenantID,
		OwnerID:   vendor.OwnerID,
		VendorID:  vendor.ID,
		SourceID:  src.ID,
		Timestamp: s.now().UTC(),
		Payload:   clean,
		Metadata: models.JobMetadata{
			TraceID: trace.SpanContextFromContext(ctx).TraceID().String(),
		},
	}

	if err := s.producer.Publish(ctx, s.processTopic, job); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to queue intake job",
			"source_id", src.ID,
			"error", err,
		)
		metrics.GatewayIntakeTotal.WithLabelValues("error").Inc()
		return nil, errors.ErrIntakeUnavailable.WithCause(err)
	}

	metrics.GatewayIntakeTotal.WithLabelValues("accepted").Inc()
	s.logger.InfowCtx(ctx, "Lead queued for processing",
		"job_id", job.ID,
		"source_id", src.ID,
		"vendor_id", vendor.ID,
	)

	return &IntakeResponse{
		Status:   "received",
		Message:  "Lead received and queued for processing",
		JobID:    job.ID,
		SourceID: src.ID,
		VendorID: vendor.ID,
	}, nil
}
