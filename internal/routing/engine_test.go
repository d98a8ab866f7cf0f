package routing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dikshant-ux/vellkopoint/internal/config"
	"github.com/dikshant-ux/vellkopoint/internal/lead"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/mapping"
	"github.com/dikshant-ux/vellkopoint/internal/rules"
	"github.com/dikshant-ux/vellkopoint/internal/source"
	"github.com/dikshant-ux/vellkopoint/internal/target"
)

// Wednesday, 14:30 UTC.
var testNow = time.Date(2025, 3, 12, 14, 30, 0, 0, time.UTC)

type fakeLeadRepo struct {
	leads          map[string]*lead.Lead
	deliveredSince map[string]int64
	deliveredTotal map[string]int64
	countErr       error
	appended       []lead.DeliveryResult
}

func (f *fakeLeadRepo) Insert(ctx context.Context, l *lead.Lead) error { return nil }

func (f *fakeLeadRepo) GetByID(ctx context.Context, id string) (*lead.Lead, error) {
	l, ok := f.leads[id]
	if !ok {
		return nil, lead.ErrLeadNotFound
	}
	return l, nil
}

func (f *fakeLeadRepo) ReplaceData(ctx context.Context, id string, data map[string]interface{}) error {
	return nil
}

func (f *fakeLeadRepo) AppendDeliveryResult(ctx context.Context, id string, result lead.DeliveryResult) error {
	f.appended = append(f.appended, result)
	return nil
}

func (f *fakeLeadRepo) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	return nil
}

func (f *fakeLeadRepo) CountDeliveredSince(ctx context.Context, targetID string, since time.Time) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.deliveredSince[targetID], nil
}

func (f *fakeLeadRepo) CountDeliveredTotal(ctx context.Context, targetID string) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.deliveredTotal[targetID], nil
}

func (f *fakeLeadRepo) IterateBySource(ctx context.Context, sourceID string, fn func(*lead.Lead) error) error {
	return nil
}

func (f *fakeLeadRepo) StripOldPayloads(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

type fakeTargetRepo struct {
	groups         []target.Group
	targetsByGroup map[string][]target.Target
	endpoints      map[string]*target.Endpoint
}

func (f *fakeTargetRepo) ListEnabledGroups(ctx context.Context, tenantID string) ([]target.Group, error) {
	return f.groups, nil
}

func (f *fakeTargetRepo) ListEnabledTargets(ctx context.Context, groupID string) ([]target.Target, error) {
	return f.targetsByGroup[groupID], nil
}

func (f *fakeTargetRepo) GetEndpoint(ctx context.Context, endpointID string) (*target.Endpoint, error) {
	ep, ok := f.endpoints[endpointID]
	if !ok {
		return nil, target.ErrEndpointNotFound
	}
	return ep, nil
}

type sentCall struct {
	cfg     target.EndpointConfig
	payload map[string]interface{}
}

type fakeSender struct {
	sent []sentCall
	err  error
}

func (f *fakeSender) Send(ctx context.Context, cfg target.EndpointConfig, payload map[string]interface{}) error {
	f.sent = append(f.sent, sentCall{cfg: cfg, payload: payload})
	return f.err
}

func newTestEngine(t *testing.T, leads *fakeLeadRepo, targets *fakeTargetRepo, sender *fakeSender) *Engine {
	log, err := logger.New("error")
	require.NoError(t, err)

	e := NewEngine(leads, targets, sender, mapping.NewMapper(nil, nil, log), config.RoutingConfig{}, log)
	e.now = func() time.Time { return testNow }
	return e
}

func processedLead() *lead.Lead {
	return &lead.Lead{
		ID:       "lead-1",
		TenantID: "tenant-1",
		OwnerID:  "owner-1",
		VendorID: "vendor-1",
		SourceID: "src-1",
		Status:   lead.StatusProcessed,
		Data: map[string]interface{}{
			"email":   "a@b.com",
			"country": "US",
		},
	}
}

func enabledEndpoint(id string) *target.Endpoint {
	return &target.Endpoint{
		ID:             id,
		Name:           "ep " + id,
		Config:         target.EndpointConfig{URL: "http://example.com/" + id, Method: "POST"},
		Enabled:        true,
		ApprovalStatus: target.ApprovalApproved,
	}
}

func simpleTarget(id, groupID string, priority int) target.Target {
	return target.Target{
		ID:         id,
		GroupID:    groupID,
		Name:       "target " + id,
		EndpointID: "ep-" + id,
		Config:     target.Config{Priority: priority, AllDay: true},
	}
}

func singleGroupSetup(targets ...target.Target) *fakeTargetRepo {
	repo := &fakeTargetRepo{
		groups:         []target.Group{{ID: "grp-1", Name: "Group One", Status: target.StatusEnabled}},
		targetsByGroup: map[string][]target.Target{"grp-1": targets},
		endpoints:      map[string]*target.Endpoint{},
	}
	for _, t := range targets {
		repo.endpoints[t.EndpointID] = enabledEndpoint(t.EndpointID)
	}
	return repo
}

func TestRouteSkipsUnprocessedLead(t *testing.T) {
	l := processedLead()
	l.Status = lead.StatusRejected
	leads := &fakeLeadRepo{leads: map[string]*lead.Lead{"lead-1": l}}
	sender := &fakeSender{}

	e := newTestEngine(t, leads, singleGroupSetup(simpleTarget("t1", "grp-1", 0)), sender)

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	assert.Empty(t, sender.sent)
	assert.Empty(t, leads.appended)
}

func TestRouteUnknownLeadIsNotAnError(t *testing.T) {
	leads := &fakeLeadRepo{leads: map[string]*lead.Lead{}}
	sender := &fakeSender{}

	e := newTestEngine(t, leads, singleGroupSetup(), sender)

	require.NoError(t, e.Route(context.Background(), "missing"))
	assert.Empty(t, sender.sent)
}

func TestRouteDeliversToAllEligibleByPriority(t *testing.T) {
	leads := &fakeLeadRepo{leads: map[string]*lead.Lead{"lead-1": processedLead()}}
	sender := &fakeSender{}
	targets := singleGroupSetup(
		simpleTarget("low", "grp-1", 1),
		simpleTarget("high", "grp-1", 10),
	)

	e := newTestEngine(t, leads, targets, sender)

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "http://example.com/ep-high", sender.sent[0].cfg.URL)
	assert.Equal(t, "http://example.com/ep-low", sender.sent[1].cfg.URL)

	require.Len(t, leads.appended, 2)
	assert.Equal(t, "high", leads.appended[0].TargetID)
	assert.Equal(t, lead.DeliveryStatusDelivered, leads.appended[0].Status)
	assert.Equal(t, "Group One", leads.appended[0].TargetGroupName)
	assert.Equal(t, testNow, leads.appended[0].DeliveredAt)
}

func TestRouteCapsFanOut(t *testing.T) {
	leads := &fakeLeadRepo{leads: map[string]*lead.Lead{"lead-1": processedLead()}}
	sender := &fakeSender{}
	targets := singleGroupSetup(
		simpleTarget("a", "grp-1", 3),
		simpleTarget("b", "grp-1", 2),
		simpleTarget("c", "grp-1", 1),
	)

	e := newTestEngine(t, leads, targets, sender)
	e.cfg.MaxTargetsPerLead = 2

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "a", leads.appended[0].TargetID)
	assert.Equal(t, "b", leads.appended[1].TargetID)
}

func TestRouteRespectsSourceAllowList(t *testing.T) {
	leads := &fakeLeadRepo{leads: map[string]*lead.Lead{"lead-1": processedLead()}}
	sender := &fakeSender{}

	allowed := simpleTarget("allowed", "grp-1", 0)
	allowed.SourceIDs = []string{"src-1"}
	blocked := simpleTarget("blocked", "grp-1", 0)
	blocked.SourceIDs = []string{"other-source"}

	e := newTestEngine(t, leads, singleGroupSetup(allowed, blocked), sender)

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "allowed", leads.appended[0].TargetID)
}

func TestRouteRespectsFilteringRules(t *testing.T) {
	leads := &fakeLeadRepo{leads: map[string]*lead.Lead{"lead-1": processedLead()}}
	sender := &fakeSender{}

	matching := simpleTarget("us-only", "grp-1", 0)
	matching.Rules = source.Rules{Filtering: &rules.Group{
		Logic:      rules.LogicAnd,
		Conditions: []rules.Node{{Condition: &rules.Condition{Field: "country", Op: rules.OpEq, Value: "US"}}},
	}}
	rejecting := simpleTarget("uk-only", "grp-1", 0)
	rejecting.Rules = source.Rules{Filtering: &rules.Group{
		Logic:      rules.LogicAnd,
		Conditions: []rules.Node{{Condition: &rules.Condition{Field: "country", Op: rules.OpEq, Value: "UK"}}},
	}}

	e := newTestEngine(t, leads, singleGroupSetup(matching, rejecting), sender)

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	require.Len(t, leads.appended, 1)
	assert.Equal(t, "us-only", leads.appended[0].TargetID)
}

func TestRouteRespectsScheduleWindow(t *testing.T) {
	leads := &fakeLeadRepo{leads: map[string]*lead.Lead{"lead-1": processedLead()}}
	sender := &fakeSender{}

	// Test clock reads 14:30.
	closed := simpleTarget("after-hours", "grp-1", 0)
	closed.Config.AllDay = false
	closed.Config.StartTime = "18:00"
	closed.Config.EndTime = "23:00"

	open := simpleTarget("office-hours", "grp-1", 0)
	open.Config.AllDay = false
	open.Config.StartTime = "09:00"
	open.Config.EndTime = "17:00"

	e := newTestEngine(t, leads, singleGroupSetup(closed, open), sender)

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	require.Len(t, leads.appended, 1)
	assert.Equal(t, "office-hours", leads.appended[0].TargetID)
}

func TestRouteRespectsDailyCap(t *testing.T) {
	capped := simpleTarget("capped", "grp-1", 0)
	five := 5
	capped.Config.WednesdayCap = &five

	leads := &fakeLeadRepo{
		leads:          map[string]*lead.Lead{"lead-1": processedLead()},
		deliveredSince: map[string]int64{"capped": 5},
	}
	sender := &fakeSender{}

	e := newTestEngine(t, leads, singleGroupSetup(capped), sender)

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	assert.Empty(t, sender.sent)
}

func TestRouteDailyCapUnderLimit(t *testing.T) {
	capped := simpleTarget("capped", "grp-1", 0)
	five := 5
	capped.Config.WednesdayCap = &five

	leads := &fakeLeadRepo{
		leads:          map[string]*lead.Lead{"lead-1": processedLead()},
		deliveredSince: map[string]int64{"capped": 4},
	}
	sender := &fakeSender{}

	e := newTestEngine(t, leads, singleGroupSetup(capped), sender)

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	require.Len(t, sender.sent, 1)
}

func TestRouteRespectsLifetimeMax(t *testing.T) {
	capped := simpleTarget("capped", "grp-1", 0)
	hundred := 100
	capped.Config.LifetimeMax = &hundred

	leads := &fakeLeadRepo{
		leads:          map[string]*lead.Lead{"lead-1": processedLead()},
		deliveredTotal: map[string]int64{"capped": 100},
	}
	sender := &fakeSender{}

	e := newTestEngine(t, leads, singleGroupSetup(capped), sender)

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	assert.Empty(t, sender.sent)
}

func TestRouteCapCheckErrorClosesTarget(t *testing.T) {
	capped := simpleTarget("capped", "grp-1", 0)
	one := 1
	capped.Config.HourlyCap = &one

	leads := &fakeLeadRepo{
		leads:    map[string]*lead.Lead{"lead-1": processedLead()},
		countErr: fmt.Errorf("mongo down"),
	}
	sender := &fakeSender{}

	e := newTestEngine(t, leads, singleGroupSetup(capped), sender)

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	assert.Empty(t, sender.sent)
}

func TestRouteSkipsDisabledAndUnapprovedEndpoints(t *testing.T) {
	leads := &fakeLeadRepo{leads: map[string]*lead.Lead{"lead-1": processedLead()}}
	sender := &fakeSender{}

	targets := singleGroupSetup(
		simpleTarget("disabled", "grp-1", 0),
		simpleTarget("pending", "grp-1", 0),
		simpleTarget("ok", "grp-1", 0),
	)
	targets.endpoints["ep-disabled"].Enabled = false
	targets.endpoints["ep-pending"].ApprovalStatus = target.ApprovalPending

	e := newTestEngine(t, leads, targets, sender)

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	require.Len(t, sender.sent, 1)
	require.Len(t, leads.appended, 1)
	assert.Equal(t, "ok", leads.appended[0].TargetID)
}

func TestRouteMissingEndpointSkipsTarget(t *testing.T) {
	leads := &fakeLeadRepo{leads: map[string]*lead.Lead{"lead-1": processedLead()}}
	sender := &fakeSender{}

	targets := singleGroupSetup(simpleTarget("orphan", "grp-1", 0))
	delete(targets.endpoints, "ep-orphan")

	e := newTestEngine(t, leads, targets, sender)

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	assert.Empty(t, sender.sent)
	assert.Empty(t, leads.appended)
}

func TestRouteRecordsFailedDelivery(t *testing.T) {
	leads := &fakeLeadRepo{leads: map[string]*lead.Lead{"lead-1": processedLead()}}
	sender := &fakeSender{err: fmt.Errorf("endpoint returned status: 502")}

	e := newTestEngine(t, leads, singleGroupSetup(simpleTarget("t1", "grp-1", 0)), sender)

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	require.Len(t, leads.appended, 1)
	assert.Equal(t, lead.DeliveryStatusFailed, leads.appended[0].Status)
	assert.Contains(t, leads.appended[0].ErrorMessage, "502")
}

func TestRouteAppliesOutboundMappingAndStaticFields(t *testing.T) {
	leads := &fakeLeadRepo{leads: map[string]*lead.Lead{"lead-1": processedLead()}}
	sender := &fakeSender{}

	emailTarget := "email_address"
	campaignField := "campaign_code"
	campaignValue := "SPRING24"

	mapped := simpleTarget("mapped", "grp-1", 0)
	mapped.Mapping = source.Mapping{Rules: []source.MappingRule{
		{SourceField: "email", TargetField: &emailTarget},
		{SourceField: "campaign", TargetField: &campaignField, DefaultValue: &campaignValue, IsStatic: true},
	}}

	e := newTestEngine(t, leads, singleGroupSetup(mapped), sender)

	require.NoError(t, e.Route(context.Background(), "lead-1"))
	require.Len(t, sender.sent, 1)

	payload := sender.sent[0].payload
	assert.Equal(t, "a@b.com", payload["email_address"])
	assert.Equal(t, "SPRING24", payload["campaign_code"])
	assert.NotContains(t, payload, "country")
}
