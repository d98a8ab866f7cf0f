package mapping

import (
	"context"
	"strings"

	"github.com/dikshant-ux/vellkopoint/internal/catalog"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/source"
)

// RulePersister records mapping rules discovered during processing.
// Satisfied by source.Repository.
type RulePersister interface {
	AppendMappingRule(ctx context.Context, vendorID, sourceID string, rule source.MappingRule) error
}

// UnknownTracker records payload keys nothing could place. Satisfied by
// catalog.Service.
type UnknownTracker interface {
	TrackUnknownField(ctx context.Context, obs catalog.Observation) error
}

type Mapper struct {
	persister RulePersister
	tracker   UnknownTracker
	logger    logger.Logger
}

func NewMapper(persister RulePersister, tracker UnknownTracker, log logger.Logger) *Mapper {
	return &Mapper{
		persister: persister,
		tracker:   tracker,
		logger:    log,
	}
}

// Input carries the scope of one mapping run.
type Input struct {
	TenantID     string
	OwnerID      string
	VendorID     string
	SourceID     string
	Rules        []source.MappingRule
	AutoDiscover bool
}

// Apply projects a raw payload onto the canonical schema. With
// auto-discovery on, canonical keys pass through directly, alias hits
// get a rule persisted for next time, and misses land in the
// unknown-field ledger with a null-target rule so they are probed only
// once. Declared rules then run: exact key, then a forgiving
// normalized-key fallback, then the default value. A required rule that
// stays unresolved is skipped without failing the record.
func (m *Mapper) Apply(ctx context.Context, payload map[string]interface{}, idx *catalog.Index, in Input) map[string]interface{} {
	result := make(map[string]interface{})

	mapped := make(map[string]bool, len(in.Rules))
	for _, r := range in.Rules {
		mapped[r.SourceField] = true
	}

	if in.AutoDiscover {
		for key, value := range payload {
			if strings.HasPrefix(key, "_") {
				continue
			}

			if idx.HasKey(key) {
				result[key] = value
				if !mapped[key] {
					m.persistRule(ctx, in, key, &key)
					mapped[key] = true
				}
				continue
			}

			if mapped[key] {
				continue
			}

			if target, ok := idx.Resolve(key, in.OwnerID, in.VendorID, in.SourceID); ok {
				result[target] = value
				m.persistRule(ctx, in, key, &target)
				mapped[key] = true
				continue
			}

			m.persistRule(ctx, in, key, nil)
			mapped[key] = true
			if err := m.tracker.TrackUnknownField(ctx, catalog.Observation{
				TenantID:    in.TenantID,
				OwnerID:     in.OwnerID,
				SourceID:    in.SourceID,
				FieldName:   key,
				SampleValue: value,
			}); err != nil {
				m.logger.WarnwCtx(ctx, "Failed to track unknown field",
					"field_name", key,
					"error", err,
				)
			}
		}
	}

	// forgiving lookup: normalized payload key -> original key
	relaxed := make(map[string]string, len(payload))
	for k := range payload {
		relaxed[relaxKey(k)] = k
	}

	for _, rule := range in.Rules {
		val, ok := payload[rule.SourceField]
		if !ok || val == nil {
			if orig, found := relaxed[relaxKey(rule.SourceField)]; found {
				val = payload[orig]
			}
		}
		if val == nil && rule.DefaultValue != nil && *rule.DefaultValue != "" {
			val = *rule.DefaultValue
		}

		if val != nil && rule.TargetField != nil && *rule.TargetField != "" {
			result[*rule.TargetField] = val
		} else if rule.IsRequired {
			m.logger.DebugwCtx(ctx, "Required mapping rule unresolved",
				"source_field", rule.SourceField,
				"source_id", in.SourceID,
			)
		}
	}

	return result
}

func (m *Mapper) persistRule(ctx context.Context, in Input, sourceField string, targetField *string) {
	rule := source.MappingRule{SourceField: sourceField}
	if targetField != nil {
		target := *targetField
		rule.TargetField = &target
	}
	if err := m.persister.AppendMappingRule(ctx, in.VendorID, in.SourceID, rule); err != nil {
		m.logger.WarnwCtx(ctx, "Failed to persist discovered mapping rule",
			"source_field", sourceField,
			"source_id", in.SourceID,
			"error", err,
		)
	}
}

func relaxKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "_", "")
	return strings.ReplaceAll(key, " ", "")
}
