package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dikshant-ux/vellkopoint/internal/broker"
	"github.com/dikshant-ux/vellkopoint/internal/catalog"
	"github.com/dikshant-ux/vellkopoint/internal/dedupe"
	"github.com/dikshant-ux/vellkopoint/internal/lead"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/mapping"
	"github.com/dikshant-ux/vellkopoint/internal/rules"
	"github.com/dikshant-ux/vellkopoint/internal/source"
	"github.com/dikshant-ux/vellkopoint/pkg/metrics"
	"github.com/dikshant-ux/vellkopoint/pkg/models"
	"github.com/dikshant-ux/vellkopoint/pkg/tracing"
)

const (
	rejectionRulesFailed = "Source rules failed"
)

// Service runs payloads through the ingest pipeline: mapping,
// normalization, duplicate detection, filtering rules, persistence, and
// the hand-off to routing.
type Service struct {
	sources      source.Repository
	leads        lead.Repository
	catalog      *catalog.Service
	mapper       *mapping.Mapper
	dedupe       *dedupe.Service
	producer     broker.Producer
	processTopic string
	routeTopic   string
	logger       logger.Logger

	now   func() time.Time
	newID func() string
}

func NewService(
	sources source.Repository,
	leads lead.Repository,
	cat *catalog.Service,
	mapper *mapping.Mapper,
	dedup *dedupe.Service,
	producer broker.Producer,
	processTopic, routeTopic string,
	log logger.Logger,
) *Service {
	return &Service{
		sources:      sources,
		leads:        leads,
		catalog:      cat,
		mapper:       mapper,
		dedupe:       dedup,
		producer:     producer,
		processTopic: processTopic,
		routeTopic:   routeTopic,
		logger:       log,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// ProcessLead takes one raw payload through the full pipeline and
// persists the outcome. Rejected leads are stored too, with the reason;
// only processed leads are queued for routing.
func (s *Service) ProcessLead(ctx context.Context, job models.Job) error {
	tracer := tracing.GetTracer("ingest-service")
	ctx, span := tracer.Start(ctx, "pipeline.process_lead",
		trace.WithAttributes(
			attribute.String("source.id", job.SourceID),
			attribute.String("tenant.id", job.TenantID),
		),
	)
	defer span.End()

	start := s.now()

	vendor, src, err := s.resolveSource(ctx, job)
	if err != nil {
		return err
	}
	if src == nil {
		metrics.IngestLeadsTotal.WithLabelValues("dropped").Inc()
		return nil
	}

	idx, err := s.catalog.LoadIndex(ctx, job.TenantID)
	if err != nil {
		return fmt.Errorf("failed to load field catalog: %w", err)
	}

	mapped := s.mapper.Apply(ctx, job.Payload, idx, mapping.Input{
		TenantID:     job.TenantID,
		OwnerID:      job.OwnerID,
		VendorID:     vendor.ID,
		SourceID:     src.ID,
		Rules:        src.Mapping.Rules,
		AutoDiscover: !src.Mapping.DisableAutoDiscover,
	})

	normalized := mapping.Normalize(mapped, src.Normalization.Rules)

	rejected := false
	rejectionReason := ""

	dupe, err := s.dedupe.Check(ctx, src, normalized)
	if err != nil {
		return fmt.Errorf("duplicate check failed: %w", err)
	}
	if dupe.IsDuplicate {
		rejected = true
		rejectionReason = dupe.Reason
		if diverted := s.divertDuplicate(ctx, job, src); diverted != "" {
			rejectionReason = diverted
		}
	}

	if !rejected {
		passed := rules.Evaluate(normalized, src.Rules.Filtering)
		if passed {
			metrics.IncRuleEvaluation(src.ID, "passed")
		} else {
			metrics.IncRuleEvaluation(src.ID, "failed")
			rejected = true
			rejectionReason = rejectionRulesFailed
		}
	}

	l := s.buildLead(job, vendor, src, normalized, rejected, rejectionReason)

	if err := s.leads.Insert(ctx, l); err != nil {
		return fmt.Errorf("failed to persist lead: %w", err)
	}
	s.dedupe.MarkSeen(ctx, src, normalized)

	metrics.IngestLeadsTotal.WithLabelValues(l.Status).Inc()
	metrics.ObserveIngestDuration(s.now().Sub(start), l.Status)

	if rejected {
		s.logger.InfowCtx(ctx, "Lead rejected",
			"lead_id", l.ID,
			"source_id", src.ID,
			"reason", rejectionReason,
		)
		return nil
	}

	s.logger.InfowCtx(ctx, "Lead processed",
		"lead_id", l.ID,
		"readable_id", l.ReadableID,
		"source_id", src.ID,
	)

	return s.queueRouting(ctx, l)
}

// ReprocessSource replays every stored lead of a source through the
// current mapping and normalization config, rebuilding data from the
// original payload. Discovery stays off so replays never mint rules.
func (s *Service) ReprocessSource(ctx context.Context, job models.Job) error {
	tracer := tracing.GetTracer("ingest-service")
	ctx, span := tracer.Start(ctx, "pipeline.reprocess_source",
		trace.WithAttributes(attribute.String("source.id", job.SourceID)),
	)
	defer span.End()

	vendor, src, err := s.resolveSource(ctx, job)
	if err != nil {
		return err
	}
	if src == nil {
		return nil
	}

	var replayed, failed int
	err = s.leads.IterateBySource(ctx, src.ID, func(l *lead.Lead) error {
		if len(l.OriginalPayload) == 0 {
			return nil
		}

		mapped := s.mapper.Apply(ctx, l.OriginalPayload, nil, mapping.Input{
			TenantID:     l.TenantID,
			OwnerID:      l.OwnerID,
			VendorID:     vendor.ID,
			SourceID:     src.ID,
			Rules:        src.Mapping.Rules,
			AutoDiscover: false,
		})
		normalized := mapping.Normalize(mapped, src.Normalization.Rules)
		renameLanguageField(normalized)

		if err := s.leads.ReplaceData(ctx, l.ID, normalized); err != nil {
			failed++
			s.logger.ErrorwCtx(ctx, "Failed to reprocess lead",
				"lead_id", l.ID,
				"error", err,
			)
			return nil
		}
		replayed++
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to iterate leads for source %s: %w", src.ID, err)
	}

	s.logger.InfowCtx(ctx, "Source reprocessing finished",
		"source_id", src.ID,
		"replayed", replayed,
		"failed", failed,
	)
	return nil
}

// resolveSource finds the vendor and source a job belongs to. A missing
// vendor or source is logged and swallowed; retrying cannot fix it.
func (s *Service) resolveSource(ctx context.Context, job models.Job) (*source.Vendor, *source.Source, error) {
	if job.VendorID != "" {
		vendor, err := s.sources.GetVendor(ctx, job.VendorID)
		if err != nil {
			if err == source.ErrSourceNotFound {
				s.logger.WarnwCtx(ctx, "Vendor not found for job",
					"job_id", job.ID,
					"vendor_id", job.VendorID,
				)
				return nil, nil, nil
			}
			return nil, nil, fmt.Errorf("failed to load vendor: %w", err)
		}
		src := vendor.FindSource(job.SourceID)
		if src == nil {
			s.logger.WarnwCtx(ctx, "Source not found in vendor",
				"job_id", job.ID,
				"vendor_id", job.VendorID,
				"source_id", job.SourceID,
			)
			return nil, nil, nil
		}
		return vendor, src, nil
	}

	vendor, src, err := s.sources.GetBySourceID(ctx, job.SourceID)
	if err != nil {
		if err == source.ErrSourceNotFound {
			s.logger.WarnwCtx(ctx, "Source not found for job",
				"job_id", job.ID,
				"source_id", job.SourceID,
			)
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to load source: %w", err)
	}
	return vendor, src, nil
}

// divertDuplicate requeues the raw payload against the source's
// configured redirect, guarding against loops through the job's redirect
// history. Returns the adjusted rejection reason, empty when no
// diversion happened.
func (s *Service) divertDuplicate(ctx context.Context, job models.Job, src *source.Source) string {
	redirectTo := src.Config.Dedupe.RedirectTo
	if redirectTo == "" {
		return ""
	}
	if job.VisitedSource(redirectTo) || job.VisitedSource(src.ID) {
		s.logger.WarnwCtx(ctx, "Duplicate redirect loop detected, keeping lead here",
			"source_id", src.ID,
			"redirect_to", redirectTo,
		)
		return ""
	}

	redirect := models.Job{
		ID:              s.newID(),
		Kind:            models.JobKindProcess,
		TenantID:        job.TenantID,
		OwnerID:         job.OwnerID,
		VendorID:        job.VendorID,
		SourceID:        redirectTo,
		Timestamp:       s.now().UTC(),
		Payload:         job.Payload,
		RedirectHistory: append(append([]string{}, job.RedirectHistory...), src.ID),
		Metadata: models.JobMetadata{
			TraceID:      job.Metadata.TraceID,
			DivertedFrom: src.ID,
		},
	}

	if err := s.producer.Publish(ctx, s.processTopic, redirect); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to redirect duplicate",
			"source_id", src.ID,
			"redirect_to", redirectTo,
			"error", err,
		)
		return ""
	}

	s.logger.InfowCtx(ctx, "Duplicate diverted",
		"source_id", src.ID,
		"redirect_to", redirectTo,
	)
	return fmt.Sprintf("Duplicate - Diverted to %s", redirectTo)
}

func (s *Service) buildLead(job models.Job, vendor *source.Vendor, src *source.Source, data map[string]interface{}, rejected bool, reason string) *lead.Lead {
	renameLanguageField(data)

	originalPayload := make(map[string]interface{}, len(job.Payload))
	for k, v := range job.Payload {
		originalPayload[k] = v
	}
	renameLanguageField(originalPayload)

	now := s.now().UTC()
	id := s.newID()

	l := &lead.Lead{
		ID:              id,
		ReadableID:      lead.ReadableID(id),
		TenantID:        job.TenantID,
		OwnerID:         job.OwnerID,
		VendorID:        vendor.ID,
		SourceID:        src.ID,
		Data:            data,
		OriginalPayload: originalPayload,
		Status:          lead.StatusProcessed,
		DivertedFrom:    job.Metadata.DivertedFrom,
		CreatedAt:       now,
		ProcessedAt:     &now,
	}
	if rejected {
		l.Status = lead.StatusRejected
		l.RejectionReason = reason
	}
	return l
}

func (s *Service) queueRouting(ctx context.Context, l *lead.Lead) error {
	routeJob := models.Job{
		ID:        s.newID(),
		Kind:      models.JobKindRoute,
		TenantID:  l.TenantID,
		OwnerID:   l.OwnerID,
		SourceID:  l.SourceID,
		LeadID:    l.ID,
		Timestamp: s.now().UTC(),
	}
	if err := s.producer.Publish(ctx, s.routeTopic, routeJob); err != nil {
		return fmt.Errorf("failed to queue lead for routing: %w", err)
	}
	return nil
}

// Mongo text indexes treat a "language" field as a stemming override and
// reject documents whose value is not a known language. Renaming keeps
// arbitrary vendor values out of that slot.
func renameLanguageField(data map[string]interface{}) {
	if v, ok := data["language"]; ok {
		data["source_language"] = v
		delete(data, "language")
	}
}
