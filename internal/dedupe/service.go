package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/dikshant-ux/vellkopoint/internal/config"
	"github.com/dikshant-ux/vellkopoint/internal/constants"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/source"
	"github.com/dikshant-ux/vellkopoint/pkg/metrics"
	"github.com/dikshant-ux/vellkopoint/pkg/tracing"
)

// Result is the outcome of one duplicate check.
type Result struct {
	IsDuplicate bool
	Reason      string
}

// Service runs duplicate detection for a source: a Redis fast path
// keyed by a hash of the configured fields, backed by the
// authoritative lead store. The cache is populated by MarkSeen after a
// lead is persisted, never during Check, so a redelivered job whose
// insert failed is not misread as a duplicate.
type Service struct {
	store  Store
	cache  Cache
	hasher *Hasher
	cfg    config.DedupConfig
	logger logger.Logger
}

func NewService(store Store, cache Cache, cfg config.DedupConfig, log logger.Logger) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		hasher: NewHasher(cfg.HashAlgorithm),
		cfg:    cfg,
		logger: log,
	}
}

// Check evaluates the source's dedupe config against canonical data.
// Skips entirely when dedupe is off or no configured field carries a
// value. The returned reason is suitable for the lead's rejection field.
func (s *Service) Check(ctx context.Context, src *source.Source, data map[string]interface{}) (*Result, error) {
	ctx, span := tracing.GetTracer("ingest-service").Start(ctx, "dedupe.check")
	defer span.End()

	start := time.Now()
	cfg := src.Config.Dedupe
	if !cfg.Enabled {
		return &Result{}, nil
	}

	fields, values := s.configuredValues(cfg, data)
	if len(values) == 0 {
		metrics.IncDedupCheck("skipped")
		return &Result{}, nil
	}

	// a cache hit decides immediately; the key was written only after a
	// matching lead made it into the store
	if dup, decided := s.checkCache(ctx, src.ID, data, fields); decided && dup {
		s.observe(start, true)
		return s.duplicateResult(cfg), nil
	}

	operator := cfg.Operator
	if operator == "" {
		operator = "or"
	}

	found, err := s.store.FindDuplicate(ctx, src.ID, values, operator, cfg.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("duplicate lookup failed: %w", err)
	}

	s.observe(start, found)
	if found {
		return s.duplicateResult(cfg), nil
	}
	return &Result{}, nil
}

// MarkSeen records a persisted lead's hash in the cache so identical
// payloads short-circuit. Call it only after the lead is stored; cache
// failures are advisory since the store still answers Check.
func (s *Service) MarkSeen(ctx context.Context, src *source.Source, data map[string]interface{}) {
	cfg := src.Config.Dedupe
	if !cfg.Enabled {
		return
	}
	fields, values := s.configuredValues(cfg, data)
	if len(values) == 0 {
		return
	}

	hash, err := s.hasher.ComputeHash(src.ID, data, fields)
	if err != nil {
		return
	}

	ttl := time.Duration(0)
	if cfg.WindowDays > 0 {
		ttl = time.Duration(cfg.WindowDays) * 24 * time.Hour
	}

	if _, err := s.cache.SetNX(ctx, constants.CacheKeyPrefixDedup+hash, 1, ttl); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to record lead in dedupe cache",
			"source_id", src.ID,
			"error", err,
		)
	}
}

func (s *Service) configuredValues(cfg source.DedupeConfig, data map[string]interface{}) ([]string, map[string]interface{}) {
	fields := cfg.Fields
	if len(fields) == 0 {
		fields = []string{"email"}
	}

	values := make(map[string]interface{})
	for _, field := range fields {
		if val, ok := data[field]; ok && val != nil && val != "" {
			values[field] = val
		}
	}
	return fields, values
}

// checkCache consults the fast path. The second return value is false
// when Redis failed and the configured fallback says the authoritative
// store must decide alone; a deny fallback short-circuits to duplicate.
func (s *Service) checkCache(ctx context.Context, sourceID string, data map[string]interface{}, fields []string) (bool, bool) {
	hash, err := s.hasher.ComputeHash(sourceID, data, fields)
	if err != nil {
		return false, false
	}

	seen, err := s.cache.Exists(ctx, constants.CacheKeyPrefixDedup+hash)
	if err != nil {
		strategy := s.cfg.OnRedisError
		metrics.FallbackUsageTotal.WithLabelValues("ingest-service", strategy, "redis_error").Inc()
		s.logger.WarnwCtx(ctx, "Dedupe cache unavailable, applying fallback",
			"strategy", strategy,
			"error", err,
		)
		if strategy == constants.FallbackDeny {
			return true, true
		}
		return false, false
	}

	return seen, true
}

func (s *Service) duplicateResult(cfg source.DedupeConfig) *Result {
	reason := "Duplicate lead found"
	if cfg.WindowDays > 0 {
		reason = fmt.Sprintf("Duplicate lead found within %d days", cfg.WindowDays)
	}
	return &Result{IsDuplicate: true, Reason: reason}
}

func (s *Service) observe(start time.Time, duplicate bool) {
	result := "unique"
	if duplicate {
		result = "duplicate"
	}
	metrics.IncDedupCheck(result)
	metrics.ObserveDedupCheckDuration(time.Since(start), result)
}
