package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dikshant-ux/vellkopoint/internal/broker"
	"github.com/dikshant-ux/vellkopoint/internal/constants"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/source"
	"github.com/dikshant-ux/vellkopoint/pkg/metrics"
	"github.com/dikshant-ux/vellkopoint/pkg/models"
	"github.com/dikshant-ux/vellkopoint/pkg/tracing"
)

// Service maintains the canonical schema: canonical fields, their
// aliases, and the ledger of unknown fields awaiting a mapping decision.
type Service struct {
	repo           Repository
	sources        source.Repository
	producer       broker.Producer
	reprocessTopic string
	logger         logger.Logger
	now            func() time.Time
}

func NewService(repo Repository, sources source.Repository, producer broker.Producer, reprocessTopic string, log logger.Logger) *Service {
	return &Service{
		repo:           repo,
		sources:        sources,
		producer:       producer,
		reprocessTopic: reprocessTopic,
		logger:         log,
		now:            time.Now,
	}
}

// LoadIndex snapshots the tenant's canonical fields into an in-memory
// lookup for one processing run.
func (s *Service) LoadIndex(ctx context.Context, tenantID string) (*Index, error) {
	fields, err := s.repo.ListFields(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return NewIndex(fields), nil
}

// Observation is one sighting of a payload key nothing could place.
type Observation struct {
	TenantID    string
	OwnerID     string
	SourceID    string
	FieldName   string
	SampleValue interface{}
}

// TrackUnknownField upserts the sighting ledger for a field. Fields
// marked ignored stay untouched. Sample values are kept distinct and
// capped to the most recent few.
func (s *Service) TrackUnknownField(ctx context.Context, obs Observation) error {
	sample := ""
	if obs.SampleValue != nil {
		sample = fmt.Sprintf("%v", obs.SampleValue)
	}

	existing, err := s.repo.GetUnknownField(ctx, obs.TenantID, obs.FieldName)
	if err != nil {
		return err
	}

	if existing != nil {
		if existing.Status == UnknownStatusIgnored {
			return nil
		}

		existing.DetectedCount++
		existing.LastSeen = s.now()
		existing.SampleValue = mergeSamples(existing.SampleValue, sample)

		if err := s.repo.UpdateUnknownFieldSighting(ctx, *existing); err != nil {
			return err
		}
		metrics.IncUnknownFieldTracked(obs.SourceID)
		return nil
	}

	now := s.now()
	field := UnknownField{
		ID:            uuid.NewString(),
		TenantID:      obs.TenantID,
		OwnerID:       obs.OwnerID,
		SourceID:      obs.SourceID,
		FieldName:     obs.FieldName,
		SampleValue:   sample,
		DetectedCount: 1,
		Status:        UnknownStatusUnmapped,
		FirstSeen:     now,
		LastSeen:      now,
	}
	if err := s.repo.InsertUnknownField(ctx, field); err != nil {
		return err
	}
	metrics.IncUnknownFieldTracked(obs.SourceID)
	return nil
}

func mergeSamples(current, sample string) string {
	if sample == "" {
		return current
	}

	var samples []string
	if current != "" {
		samples = strings.Split(current, ", ")
	}
	for _, existing := range samples {
		if existing == sample {
			return current
		}
	}
	samples = append(samples, sample)
	if len(samples) > constants.MaxUnknownFieldSamples {
		samples = samples[len(samples)-constants.MaxUnknownFieldSamples:]
	}
	return strings.Join(samples, ", ")
}

func (s *Service) ListUnknownFields(ctx context.Context, tenantID, status string, limit int64) ([]UnknownField, error) {
	if limit <= 0 {
		limit = constants.DefaultLimit
	}
	if limit > constants.MaxLimit {
		limit = constants.MaxLimit
	}
	return s.repo.ListUnknownFields(ctx, tenantID, status, limit)
}

func (s *Service) IgnoreUnknownField(ctx context.Context, tenantID, fieldName string) error {
	return s.repo.SetUnknownFieldStatus(ctx, tenantID, fieldName, UnknownStatusIgnored)
}

// RemapRequest maps an unknown field onto a canonical field, optionally
// creating the canonical field first.
type RemapRequest struct {
	TenantID    string
	OwnerID     string
	SourceID    string
	FieldName   string
	TargetField string

	CreateField   bool
	FieldLabel    string
	FieldDataType string

	Scope      string
	Confidence string
}

type RemapResult struct {
	TargetField     string   `json:"target_field"`
	AffectedSources []string `json:"affected_sources"`
}

type affectedSource struct {
	vendorID string
	ownerID  string
	sourceID string
}

// MapUnknownField resolves an unknown field: ensures the canonical
// field exists, promotes or appends mapping rules on every source that
// saw the field (within the requested scope), clears the unknown-field
// ledger for those sources, registers the alias, and queues a reprocess
// job per affected source.
func (s *Service) MapUnknownField(ctx context.Context, req RemapRequest) (*RemapResult, error) {
	ctx, span := tracing.GetTracer("gateway-service").Start(ctx, "catalog.map_unknown_field")
	defer span.End()

	if req.Scope == "" {
		req.Scope = ScopeVendor
	}
	if req.Confidence == "" {
		req.Confidence = ConfidenceManual
	}

	vendor, _, err := s.sources.GetBySourceID(ctx, req.SourceID)
	if err != nil {
		return nil, err
	}

	if err := s.ensureCanonicalField(ctx, req); err != nil {
		return nil, err
	}

	seen, err := s.seenSourceIDs(ctx, req)
	if err != nil {
		return nil, err
	}

	affected, err := s.propagateMapping(ctx, req, vendor, seen)
	if err != nil {
		return nil, err
	}

	if len(affected) > 0 {
		affectedIDs := make([]string, 0, len(affected))
		for _, a := range affected {
			affectedIDs = append(affectedIDs, a.sourceID)
		}
		if err := s.repo.DeleteUnknownFields(ctx, req.TenantID, req.FieldName, affectedIDs); err != nil {
			s.logger.WarnwCtx(ctx, "Failed to delete unknown field records",
				"field_name", req.FieldName,
				"error", err,
			)
		}
	}

	entry := AliasEntry{
		AliasRaw:        req.FieldName,
		AliasNormalized: NormalizeAlias(req.FieldName),
		Scope:           req.Scope,
		Confidence:      req.Confidence,
		OwnerID:         req.OwnerID,
	}
	if req.Scope == ScopeVendor {
		entry.VendorID = vendor.ID
	}
	if req.Scope == ScopeSource {
		entry.SourceID = req.SourceID
	}
	if err := s.repo.AddAlias(ctx, req.TenantID, req.TargetField, entry); err != nil {
		return nil, err
	}

	s.queueReprocessing(ctx, req.TenantID, affected)

	result := &RemapResult{TargetField: req.TargetField}
	for _, a := range affected {
		result.AffectedSources = append(result.AffectedSources, a.sourceID)
	}

	s.logger.InfowCtx(ctx, "Unknown field mapped",
		"field_name", req.FieldName,
		"target_field", req.TargetField,
		"scope", req.Scope,
		"affected_sources", len(affected),
	)
	return result, nil
}

func (s *Service) ensureCanonicalField(ctx context.Context, req RemapRequest) error {
	_, err := s.repo.GetFieldByKey(ctx, req.TenantID, req.TargetField)
	if err == nil {
		return nil
	}
	if err != ErrFieldNotFound {
		return err
	}
	if !req.CreateField {
		return fmt.Errorf("canonical field %q does not exist: %w", req.TargetField, ErrFieldNotFound)
	}

	now := s.now()
	label := req.FieldLabel
	if label == "" {
		label = req.TargetField
	}
	dataType := req.FieldDataType
	if dataType == "" {
		dataType = "string"
	}
	return s.repo.InsertField(ctx, CanonicalField{
		ID:        uuid.NewString(),
		TenantID:  req.TenantID,
		OwnerID:   req.OwnerID,
		FieldKey:  req.TargetField,
		Label:     label,
		DataType:  dataType,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *Service) seenSourceIDs(ctx context.Context, req RemapRequest) (map[string]bool, error) {
	seen := map[string]bool{req.SourceID: true}
	if req.Scope == ScopeSource {
		return seen, nil
	}

	sourceIDs, err := s.repo.ListUnknownFieldSources(ctx, req.TenantID, req.FieldName)
	if err != nil {
		return nil, err
	}
	for _, id := range sourceIDs {
		seen[id] = true
	}
	return seen, nil
}

func (s *Service) propagateMapping(ctx context.Context, req RemapRequest, vendor *source.Vendor, seen map[string]bool) ([]affectedSource, error) {
	var vendors []source.Vendor
	if req.Scope == ScopeGlobal {
		all, err := s.sources.ListVendorsByTenant(ctx, req.TenantID)
		if err != nil {
			return nil, err
		}
		vendors = all
	} else {
		vendors = []source.Vendor{*vendor}
	}

	var affected []affectedSource
	for i := range vendors {
		v := &vendors[i]
		for j := range v.Sources {
			src := &v.Sources[j]
			if req.Scope == ScopeSource && src.ID != req.SourceID {
				continue
			}

			var rule *source.MappingRule
			for k := range src.Mapping.Rules {
				if src.Mapping.Rules[k].SourceField == req.FieldName {
					rule = &src.Mapping.Rules[k]
					break
				}
			}

			switch {
			case rule != nil && rule.TargetField == nil:
				if err := s.sources.SetMappingRuleTarget(ctx, v.ID, src.ID, req.FieldName, req.TargetField); err != nil {
					return nil, err
				}
			case rule == nil && seen[src.ID]:
				target := req.TargetField
				newRule := source.MappingRule{SourceField: req.FieldName, TargetField: &target}
				if err := s.sources.AppendMappingRule(ctx, v.ID, src.ID, newRule); err != nil {
					return nil, err
				}
			default:
				continue
			}

			affected = append(affected, affectedSource{
				vendorID: v.ID,
				ownerID:  v.OwnerID,
				sourceID: src.ID,
			})
		}
	}
	return affected, nil
}

func (s *Service) queueReprocessing(ctx context.Context, tenantID string, affected []affectedSource) {
	for _, a := range affected {
		job := models.Job{
			ID:        uuid.NewString(),
			Kind:      models.JobKindReprocess,
			TenantID:  tenantID,
			OwnerID:   a.ownerID,
			VendorID:  a.vendorID,
			SourceID:  a.sourceID,
			Timestamp: s.now(),
		}
		if err := s.producer.Publish(ctx, s.reprocessTopic, job); err != nil {
			s.logger.ErrorwCtx(ctx, "Failed to queue reprocess job",
				"source_id", a.sourceID,
				"error", err,
			)
		}
	}
}
