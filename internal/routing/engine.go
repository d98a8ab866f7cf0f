package routing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dikshant-ux/vellkopoint/internal/config"
	"github.com/dikshant-ux/vellkopoint/internal/lead"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/mapping"
	"github.com/dikshant-ux/vellkopoint/internal/rules"
	"github.com/dikshant-ux/vellkopoint/internal/target"
	"github.com/dikshant-ux/vellkopoint/pkg/metrics"
	"github.com/dikshant-ux/vellkopoint/pkg/tracing"
)

// Routing outcomes reported per lead.
const (
	OutcomeRouted     = "routed"
	OutcomeUnmatched  = "unmatched"
	OutcomeSkipped    = "skipped"
	OutcomeLeadMissed = "lead_missing"
)

// Skip reasons reported per target.
const (
	SkipSourceNotAllowed   = "source_not_allowed"
	SkipSchedule           = "schedule"
	SkipDailyCap           = "daily_cap"
	SkipHourlyCap          = "hourly_cap"
	SkipLifetimeCap        = "lifetime_cap"
	SkipCapCheckError      = "cap_check_error"
	SkipRules              = "rules"
	SkipEndpointMissing    = "endpoint_missing"
	SkipEndpointDisabled   = "endpoint_disabled"
	SkipEndpointUnapproved = "endpoint_unapproved"
)

// Sender pushes an outbound payload to an endpoint. Satisfied by
// delivery.Dispatcher.
type Sender interface {
	Send(ctx context.Context, cfg target.EndpointConfig, payload map[string]interface{}) error
}

// Engine matches processed leads against enabled targets and fans the
// lead out to every eligible one. A lead is delivered to all matches,
// not just the highest priority; priority only orders the attempts.
type Engine struct {
	leads   lead.Repository
	targets target.Repository
	sender  Sender
	mapper  *mapping.Mapper
	cfg     config.RoutingConfig
	logger  logger.Logger

	now func() time.Time
}

func NewEngine(leads lead.Repository, targets target.Repository, sender Sender, mapper *mapping.Mapper, cfg config.RoutingConfig, log logger.Logger) *Engine {
	return &Engine{
		leads:   leads,
		targets: targets,
		sender:  sender,
		mapper:  mapper,
		cfg:     cfg,
		logger:  log,
		now:     time.Now,
	}
}

type candidate struct {
	group  target.Group
	target target.Target
}

// Route loads the lead, finds every eligible target, and delivers to
// each one, appending a delivery result per attempt. Leads that are not
// in processed state are skipped without error so requeued duplicates
// and rejects drain cleanly.
func (e *Engine) Route(ctx context.Context, leadID string) error {
	tracer := tracing.GetTracer("routing-service")
	ctx, span := tracer.Start(ctx, "routing.route",
		trace.WithAttributes(attribute.String("lead.id", leadID)),
	)
	defer span.End()

	l, err := e.leads.GetByID(ctx, leadID)
	if err != nil {
		if err == lead.ErrLeadNotFound {
			e.logger.WarnwCtx(ctx, "Routing requested for unknown lead", "lead_id", leadID)
			metrics.RoutingLeadsTotal.WithLabelValues(OutcomeLeadMissed).Inc()
			return nil
		}
		return fmt.Errorf("failed to load lead: %w", err)
	}

	if l.Status != lead.StatusProcessed {
		e.logger.InfowCtx(ctx, "Lead not routable, skipping",
			"lead_id", l.ID,
			"status", l.Status,
		)
		metrics.RoutingLeadsTotal.WithLabelValues(OutcomeSkipped).Inc()
		return nil
	}

	eligible, err := e.eligibleTargets(ctx, l)
	if err != nil {
		return err
	}

	// Highest priority delivers first. Stable so equal priorities keep
	// group listing order.
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].target.Config.Priority > eligible[j].target.Config.Priority
	})

	if e.cfg.MaxTargetsPerLead > 0 && len(eligible) > e.cfg.MaxTargetsPerLead {
		e.logger.InfowCtx(ctx, "Capping fan-out for lead",
			"lead_id", l.ID,
			"eligible", len(eligible),
			"max", e.cfg.MaxTargetsPerLead,
		)
		eligible = eligible[:e.cfg.MaxTargetsPerLead]
	}

	metrics.ObserveEligibleTargets(l.TenantID, len(eligible))

	if len(eligible) == 0 {
		e.logger.InfowCtx(ctx, "No eligible targets for lead",
			"lead_id", l.ID,
			"source_id", l.SourceID,
		)
		metrics.RoutingLeadsTotal.WithLabelValues(OutcomeUnmatched).Inc()
		return nil
	}

	for _, c := range eligible {
		e.deliver(ctx, l, c)
	}

	metrics.RoutingLeadsTotal.WithLabelValues(OutcomeRouted).Inc()
	return nil
}

// eligibleTargets walks every enabled group's enabled targets and keeps
// the ones whose source allow-list, schedule, caps, and filtering rules
// all admit the lead.
func (e *Engine) eligibleTargets(ctx context.Context, l *lead.Lead) ([]candidate, error) {
	groups, err := e.targets.ListEnabledGroups(ctx, l.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list target groups: %w", err)
	}

	var eligible []candidate
	for _, g := range groups {
		targets, err := e.targets.ListEnabledTargets(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list targets for group %s: %w", g.ID, err)
		}

		for _, t := range targets {
			if !t.AllowsSource(l.SourceID) {
				metrics.IncRoutingSkippedTarget(SkipSourceNotAllowed)
				continue
			}

			if reason, open := e.capsOpen(ctx, t); !open {
				e.logger.InfowCtx(ctx, "Target not accepting leads",
					"target_id", t.ID,
					"target_name", t.Name,
					"reason", reason,
				)
				metrics.IncRoutingSkippedTarget(reason)
				continue
			}

			if !rules.Evaluate(l.Data, t.FilterTree()) {
				metrics.IncRoutingSkippedTarget(SkipRules)
				continue
			}

			eligible = append(eligible, candidate{group: g, target: t})
		}
	}

	return eligible, nil
}

// capsOpen checks the target's schedule window and capacity caps.
// A failed cap count closes the target for this lead rather than
// risking an over-delivery.
func (e *Engine) capsOpen(ctx context.Context, t target.Target) (string, bool) {
	cfg := t.Config
	now := e.now().UTC()

	if !cfg.AllDay {
		// HH:MM strings compare lexically.
		current := now.Format("15:04")
		if cfg.StartTime != "" && current < cfg.StartTime {
			return SkipSchedule, false
		}
		if cfg.EndTime != "" && current > cfg.EndTime {
			return SkipSchedule, false
		}
	}

	if dayCap := cfg.WeekdayCap(now.Weekday()); dayCap != nil {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		delivered, err := e.leads.CountDeliveredSince(ctx, t.ID, dayStart)
		if err != nil {
			e.logger.WarnwCtx(ctx, "Daily cap check failed", "target_id", t.ID, "error", err)
			return SkipCapCheckError, false
		}
		if delivered >= int64(*dayCap) {
			return SkipDailyCap, false
		}
	}

	if cfg.HourlyCap != nil {
		hourStart := now.Truncate(time.Hour)
		delivered, err := e.leads.CountDeliveredSince(ctx, t.ID, hourStart)
		if err != nil {
			e.logger.WarnwCtx(ctx, "Hourly cap check failed", "target_id", t.ID, "error", err)
			return SkipCapCheckError, false
		}
		if delivered >= int64(*cfg.HourlyCap) {
			return SkipHourlyCap, false
		}
	}

	if cfg.LifetimeMax != nil {
		delivered, err := e.leads.CountDeliveredTotal(ctx, t.ID)
		if err != nil {
			e.logger.WarnwCtx(ctx, "Lifetime cap check failed", "target_id", t.ID, "error", err)
			return SkipCapCheckError, false
		}
		if delivered >= int64(*cfg.LifetimeMax) {
			return SkipLifetimeCap, false
		}
	}

	return "", true
}

// deliver resolves the target's endpoint, shapes the outbound payload,
// sends it, and records the attempt on the lead. Endpoint problems skip
// the target without recording a result.
func (e *Engine) deliver(ctx context.Context, l *lead.Lead, c candidate) {
	t := c.target

	ep, err := e.targets.GetEndpoint(ctx, t.EndpointID)
	if err != nil {
		e.logger.WarnwCtx(ctx, "Endpoint lookup failed, skipping target",
			"target_id", t.ID,
			"endpoint_id", t.EndpointID,
			"error", err,
		)
		metrics.IncRoutingSkippedTarget(SkipEndpointMissing)
		return
	}
	if !ep.Enabled {
		e.logger.WarnwCtx(ctx, "Endpoint disabled, skipping target",
			"target_id", t.ID,
			"endpoint_id", ep.ID,
		)
		metrics.IncRoutingSkippedTarget(SkipEndpointDisabled)
		return
	}
	if ep.ApprovalStatus != target.ApprovalApproved {
		e.logger.WarnwCtx(ctx, "Endpoint not approved, skipping target",
			"target_id", t.ID,
			"endpoint_id", ep.ID,
			"approval_status", ep.ApprovalStatus,
		)
		metrics.IncRoutingSkippedTarget(SkipEndpointUnapproved)
		return
	}

	payload := e.outboundPayload(ctx, l, t)

	result := lead.DeliveryResult{
		TargetGroupID:   c.group.ID,
		TargetGroupName: c.group.Name,
		TargetID:        t.ID,
		TargetName:      t.Name,
		EndpointID:      ep.ID,
		EndpointName:    ep.Name,
		Status:          lead.DeliveryStatusDelivered,
		DeliveredAt:     e.now().UTC(),
	}

	if err := e.sender.Send(ctx, ep.Config, payload); err != nil {
		e.logger.ErrorwCtx(ctx, "Delivery failed",
			"lead_id", l.ID,
			"target_id", t.ID,
			"endpoint_id", ep.ID,
			"error", err,
		)
		result.Status = lead.DeliveryStatusFailed
		result.ErrorMessage = err.Error()
	} else {
		e.logger.InfowCtx(ctx, "Lead delivered",
			"lead_id", l.ID,
			"target_id", t.ID,
			"target_name", t.Name,
		)
	}

	if err := e.leads.AppendDeliveryResult(ctx, l.ID, result); err != nil {
		e.logger.ErrorwCtx(ctx, "Failed to record delivery result",
			"lead_id", l.ID,
			"target_id", t.ID,
			"error", err,
		)
	}
}

// outboundPayload reshapes the lead's canonical data through the
// target's mapping. Discovery stays off here; only declared rules
// apply, plus static fields injected into every delivery.
func (e *Engine) outboundPayload(ctx context.Context, l *lead.Lead, t target.Target) map[string]interface{} {
	payload := e.mapper.Apply(ctx, l.Data, nil, mapping.Input{
		TenantID:     l.TenantID,
		OwnerID:      l.OwnerID,
		VendorID:     l.VendorID,
		SourceID:     l.SourceID,
		Rules:        t.Mapping.Rules,
		AutoDiscover: false,
	})

	for _, rule := range t.Mapping.Rules {
		if rule.IsStatic && rule.TargetField != nil && *rule.TargetField != "" &&
			rule.DefaultValue != nil && *rule.DefaultValue != "" {
			payload[*rule.TargetField] = *rule.DefaultValue
		}
	}

	return payload
}
