package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/dikshant-ux/vellkopoint/internal/catalog"
	"github.com/dikshant-ux/vellkopoint/internal/config"
	"github.com/dikshant-ux/vellkopoint/internal/dedupe"
	"github.com/dikshant-ux/vellkopoint/internal/lead"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/mapping"
	"github.com/dikshant-ux/vellkopoint/internal/rules"
	"github.com/dikshant-ux/vellkopoint/internal/source"
	"github.com/dikshant-ux/vellkopoint/pkg/models"
)

var pipelineNow = time.Date(2025, 3, 12, 14, 30, 0, 0, time.UTC)

type fakeSourceRepo struct {
	vendors []source.Vendor
	rules   []source.MappingRule
}

func (f *fakeSourceRepo) GetVendor(ctx context.Context, vendorID string) (*source.Vendor, error) {
	for i := range f.vendors {
		if f.vendors[i].ID == vendorID {
			return &f.vendors[i], nil
		}
	}
	return nil, source.ErrSourceNotFound
}

func (f *fakeSourceRepo) GetBySourceID(ctx context.Context, sourceID string) (*source.Vendor, *source.Source, error) {
	for i := range f.vendors {
		if s := f.vendors[i].FindSource(sourceID); s != nil {
			return &f.vendors[i], s, nil
		}
	}
	return nil, nil, source.ErrSourceNotFound
}

func (f *fakeSourceRepo) GetByAPIKey(ctx context.Context, apiKey string) (*source.Vendor, *source.Source, error) {
	return nil, nil, source.ErrSourceNotFound
}

func (f *fakeSourceRepo) GetVendorsBySourceIDs(ctx context.Context, sourceIDs []string) ([]source.Vendor, error) {
	return nil, nil
}

func (f *fakeSourceRepo) ListVendorsByTenant(ctx context.Context, tenantID string) ([]source.Vendor, error) {
	return f.vendors, nil
}

func (f *fakeSourceRepo) AppendMappingRule(ctx context.Context, vendorID, sourceID string, rule source.MappingRule) error {
	f.rules = append(f.rules, rule)
	return nil
}

func (f *fakeSourceRepo) SetMappingRuleTarget(ctx context.Context, vendorID, sourceID, sourceField, targetField string) error {
	return nil
}

type fakeFieldRepo struct {
	fields  []catalog.CanonicalField
	unknown []catalog.UnknownField
}

func (f *fakeFieldRepo) ListFields(ctx context.Context, tenantID string) ([]catalog.CanonicalField, error) {
	return f.fields, nil
}

func (f *fakeFieldRepo) GetFieldByKey(ctx context.Context, tenantID, fieldKey string) (*catalog.CanonicalField, error) {
	return nil, catalog.ErrFieldNotFound
}

func (f *fakeFieldRepo) InsertField(ctx context.Context, field catalog.CanonicalField) error {
	f.fields = append(f.fields, field)
	return nil
}

func (f *fakeFieldRepo) AddAlias(ctx context.Context, tenantID, fieldKey string, entry catalog.AliasEntry) error {
	return nil
}

func (f *fakeFieldRepo) GetUnknownField(ctx context.Context, tenantID, fieldName string) (*catalog.UnknownField, error) {
	return nil, nil
}

func (f *fakeFieldRepo) InsertUnknownField(ctx context.Context, field catalog.UnknownField) error {
	f.unknown = append(f.unknown, field)
	return nil
}

func (f *fakeFieldRepo) UpdateUnknownFieldSighting(ctx context.Context, field catalog.UnknownField) error {
	return nil
}

func (f *fakeFieldRepo) ListUnknownFields(ctx context.Context, tenantID, status string, limit int64) ([]catalog.UnknownField, error) {
	return f.unknown, nil
}

func (f *fakeFieldRepo) ListUnknownFieldSources(ctx context.Context, tenantID, fieldName string) ([]string, error) {
	return nil, nil
}

func (f *fakeFieldRepo) SetUnknownFieldStatus(ctx context.Context, tenantID, fieldName, status string) error {
	return nil
}

func (f *fakeFieldRepo) DeleteUnknownFields(ctx context.Context, tenantID, fieldName string, sourceIDs []string) error {
	return nil
}

type pipelineLeadRepo struct {
	inserted []*lead.Lead
	stored   []*lead.Lead
	replaced map[string]map[string]interface{}
}

func (f *pipelineLeadRepo) Insert(ctx context.Context, l *lead.Lead) error {
	f.inserted = append(f.inserted, l)
	return nil
}

func (f *pipelineLeadRepo) GetByID(ctx context.Context, id string) (*lead.Lead, error) {
	return nil, lead.ErrLeadNotFound
}

func (f *pipelineLeadRepo) ReplaceData(ctx context.Context, id string, data map[string]interface{}) error {
	if f.replaced == nil {
		f.replaced = map[string]map[string]interface{}{}
	}
	f.replaced[id] = data
	return nil
}

func (f *pipelineLeadRepo) AppendDeliveryResult(ctx context.Context, id string, result lead.DeliveryResult) error {
	return nil
}

func (f *pipelineLeadRepo) MarkProcessed(ctx context.Context, id string, processedAt time.Time) error {
	return nil
}

func (f *pipelineLeadRepo) CountDeliveredSince(ctx context.Context, targetID string, since time.Time) (int64, error) {
	return 0, nil
}

func (f *pipelineLeadRepo) CountDeliveredTotal(ctx context.Context, targetID string) (int64, error) {
	return 0, nil
}

func (f *pipelineLeadRepo) IterateBySource(ctx context.Context, sourceID string, fn func(*lead.Lead) error) error {
	for _, l := range f.stored {
		if l.SourceID != sourceID {
			continue
		}
		if err := fn(l); err != nil {
			return err
		}
	}
	return nil
}

func (f *pipelineLeadRepo) StripOldPayloads(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

type publishedJob struct {
	topic string
	job   models.Job
}

type fakeProducer struct {
	published []publishedJob
	err       error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, job models.Job) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedJob{topic: topic, job: job})
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type fakeDedupeStore struct {
	found bool
	err   error
}

func (f *fakeDedupeStore) FindDuplicate(ctx context.Context, sourceID string, values map[string]interface{}, operator string, windowDays int) (bool, error) {
	return f.found, f.err
}

type fakeDedupeCache struct {
	marked []string
}

func (f *fakeDedupeCache) Exists(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (f *fakeDedupeCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	f.marked = append(f.marked, key)
	return true, nil
}

type pipelineFixture struct {
	svc        *Service
	sources    *fakeSourceRepo
	fields     *fakeFieldRepo
	leads      *pipelineLeadRepo
	producer   *fakeProducer
	dupes      *fakeDedupeStore
	dedupCache *fakeDedupeCache
}

func newPipelineFixture(t *testing.T, vendors ...source.Vendor) *pipelineFixture {
	log, err := logger.New("error")
	require.NoError(t, err)

	sources := &fakeSourceRepo{vendors: vendors}
	leads := &pipelineLeadRepo{}
	producer := &fakeProducer{}
	dupes := &fakeDedupeStore{}

	fields := &fakeFieldRepo{fields: []catalog.CanonicalField{
		{FieldKey: "email", TenantID: "tenant-1"},
		{FieldKey: "first_name", TenantID: "tenant-1"},
		{FieldKey: "country", TenantID: "tenant-1"},
	}}
	cat := catalog.NewService(fields, sources, producer, "lead_reprocess", log)

	mapper := mapping.NewMapper(sources, cat, log)
	dedupCache := &fakeDedupeCache{}
	dedupSvc := dedupe.NewService(dupes, dedupCache, config.DedupConfig{
		HashAlgorithm: "sha256",
		OnRedisError:  "allow",
	}, log)

	svc := NewService(sources, leads, cat, mapper, dedupSvc, producer, "lead_process", "lead_route", log)
	svc.now = func() time.Time { return pipelineNow }

	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%06d", seq)
	}

	return &pipelineFixture{svc: svc, sources: sources, fields: fields, leads: leads, producer: producer, dupes: dupes, dedupCache: dedupCache}
}

func testVendor(src source.Source) source.Vendor {
	return source.Vendor{
		ID:       "vendor-1",
		TenantID: "tenant-1",
		OwnerID:  "owner-1",
		Name:     "Acme Media",
		Sources:  []source.Source{src},
	}
}

func enabledSource() source.Source {
	return source.Source{
		ID:     "src-1",
		Name:   "Acme Webhook",
		Config: source.Config{Status: source.StatusEnabled},
	}
}

func processJob(payload map[string]interface{}) models.Job {
	return models.Job{
		ID:        "job-1",
		Kind:      models.JobKindProcess,
		TenantID:  "tenant-1",
		OwnerID:   "owner-1",
		VendorID:  "vendor-1",
		SourceID:  "src-1",
		Timestamp: pipelineNow,
		Payload:   payload,
	}
}

func TestProcessLeadPersistsAndQueuesRouting(t *testing.T) {
	f := newPipelineFixture(t, testVendor(enabledSource()))

	err := f.svc.ProcessLead(context.Background(), processJob(map[string]interface{}{
		"email":   "A@B.com",
		"country": "US",
	}))
	require.NoError(t, err)

	require.Len(t, f.leads.inserted, 1)
	l := f.leads.inserted[0]
	assert.Equal(t, lead.StatusProcessed, l.Status)
	assert.Equal(t, "vendor-1", l.VendorID)
	assert.Equal(t, "src-1", l.SourceID)
	assert.Equal(t, "A@B.com", l.Data["email"])
	assert.Equal(t, lead.ReadableID(l.ID), l.ReadableID)
	require.NotNil(t, l.ProcessedAt)

	require.Len(t, f.producer.published, 1)
	routeJob := f.producer.published[0]
	assert.Equal(t, "lead_route", routeJob.topic)
	assert.Equal(t, models.JobKindRoute, routeJob.job.Kind)
	assert.Equal(t, l.ID, routeJob.job.LeadID)
}

func TestProcessLeadAppliesNormalization(t *testing.T) {
	src := enabledSource()
	src.Normalization = source.Normalization{Rules: []source.NormalizationRule{
		{Field: "email", Operation: mapping.OpLowercase},
	}}
	f := newPipelineFixture(t, testVendor(src))

	err := f.svc.ProcessLead(context.Background(), processJob(map[string]interface{}{
		"email": "  A@B.COM",
	}))
	require.NoError(t, err)

	require.Len(t, f.leads.inserted, 1)
	assert.Equal(t, "  a@b.com", f.leads.inserted[0].Data["email"])
}

func TestProcessLeadRejectsOnSourceRules(t *testing.T) {
	src := enabledSource()
	src.Rules = source.Rules{Filtering: &rules.Group{
		Logic: rules.LogicAnd,
		Conditions: []rules.Node{
			{Condition: &rules.Condition{Field: "country", Op: rules.OpEq, Value: "US"}},
		},
	}}
	f := newPipelineFixture(t, testVendor(src))

	err := f.svc.ProcessLead(context.Background(), processJob(map[string]interface{}{
		"email":   "a@b.com",
		"country": "DE",
	}))
	require.NoError(t, err)

	require.Len(t, f.leads.inserted, 1)
	l := f.leads.inserted[0]
	assert.Equal(t, lead.StatusRejected, l.Status)
	assert.Equal(t, "Source rules failed", l.RejectionReason)
	assert.Empty(t, f.producer.published)
}

func TestProcessLeadRejectsDuplicates(t *testing.T) {
	src := enabledSource()
	src.Config.Dedupe = source.DedupeConfig{Enabled: true, Fields: []string{"email"}, WindowDays: 30}
	f := newPipelineFixture(t, testVendor(src))
	f.dupes.found = true

	err := f.svc.ProcessLead(context.Background(), processJob(map[string]interface{}{
		"email": "a@b.com",
	}))
	require.NoError(t, err)

	require.Len(t, f.leads.inserted, 1)
	l := f.leads.inserted[0]
	assert.Equal(t, lead.StatusRejected, l.Status)
	assert.Equal(t, "Duplicate lead found within 30 days", l.RejectionReason)
	assert.Empty(t, f.producer.published)
}

func TestProcessLeadMarksDedupeCacheAfterPersist(t *testing.T) {
	src := enabledSource()
	src.Config.Dedupe = source.DedupeConfig{Enabled: true, Fields: []string{"email"}, WindowDays: 30}
	f := newPipelineFixture(t, testVendor(src))

	err := f.svc.ProcessLead(context.Background(), processJob(map[string]interface{}{
		"email": "a@b.com",
	}))
	require.NoError(t, err)

	// The cache entry appears only once the lead is stored.
	require.Len(t, f.leads.inserted, 1)
	assert.Len(t, f.dedupCache.marked, 1)
}

func TestProcessLeadDivertsDuplicate(t *testing.T) {
	src := enabledSource()
	src.Config.Dedupe = source.DedupeConfig{
		Enabled:    true,
		Fields:     []string{"email"},
		RedirectTo: "src-2",
	}
	f := newPipelineFixture(t, testVendor(src))
	f.dupes.found = true

	err := f.svc.ProcessLead(context.Background(), processJob(map[string]interface{}{
		"email": "a@b.com",
	}))
	require.NoError(t, err)

	require.Len(t, f.leads.inserted, 1)
	assert.Equal(t, "Duplicate - Diverted to src-2", f.leads.inserted[0].RejectionReason)

	require.Len(t, f.producer.published, 1)
	redirect := f.producer.published[0]
	assert.Equal(t, "lead_process", redirect.topic)
	assert.Equal(t, models.JobKindProcess, redirect.job.Kind)
	assert.Equal(t, "src-2", redirect.job.SourceID)
	assert.Equal(t, []string{"src-1"}, redirect.job.RedirectHistory)
	assert.Equal(t, "src-1", redirect.job.Metadata.DivertedFrom)
}

func TestProcessLeadRedirectLoopGuard(t *testing.T) {
	src := enabledSource()
	src.Config.Dedupe = source.DedupeConfig{
		Enabled:    true,
		Fields:     []string{"email"},
		RedirectTo: "src-2",
	}
	f := newPipelineFixture(t, testVendor(src))
	f.dupes.found = true

	job := processJob(map[string]interface{}{"email": "a@b.com"})
	job.RedirectHistory = []string{"src-2"}

	require.NoError(t, f.svc.ProcessLead(context.Background(), job))

	assert.Empty(t, f.producer.published)
	assert.Equal(t, "Duplicate lead found", f.leads.inserted[0].RejectionReason)
}

func TestProcessLeadRenamesLanguageField(t *testing.T) {
	f := newPipelineFixture(t, testVendor(enabledSource()))

	err := f.svc.ProcessLead(context.Background(), processJob(map[string]interface{}{
		"email":    "a@b.com",
		"language": "en ",
	}))
	require.NoError(t, err)

	require.Len(t, f.leads.inserted, 1)
	l := f.leads.inserted[0]
	assert.NotContains(t, l.Data, "language")
	assert.NotContains(t, l.OriginalPayload, "language")
	assert.Equal(t, "en ", l.OriginalPayload["source_language"])
}

func TestProcessLeadUnknownSourceIsSwallowed(t *testing.T) {
	f := newPipelineFixture(t, testVendor(enabledSource()))

	job := processJob(map[string]interface{}{"email": "a@b.com"})
	job.SourceID = "missing"

	require.NoError(t, f.svc.ProcessLead(context.Background(), job))
	assert.Empty(t, f.leads.inserted)
}

func TestProcessLeadTracksUnknownFields(t *testing.T) {
	f := newPipelineFixture(t, testVendor(enabledSource()))

	err := f.svc.ProcessLead(context.Background(), processJob(map[string]interface{}{
		"email":           "a@b.com",
		"utm_fancy_param": "x",
	}))
	require.NoError(t, err)

	// The unmapped key gets a null-target rule so it is probed only once.
	var nullRules int
	for _, r := range f.sources.rules {
		if r.SourceField == "utm_fancy_param" && r.TargetField == nil {
			nullRules++
		}
	}
	assert.Equal(t, 1, nullRules)
}

func TestProcessLeadDiscoversByDefault(t *testing.T) {
	// Source documents provisioned before the opt-out flag existed carry
	// only rules; discovery must still run for them.
	raw, err := bson.Marshal(bson.M{"rules": bson.A{}})
	require.NoError(t, err)

	src := enabledSource()
	require.NoError(t, bson.Unmarshal(raw, &src.Mapping))

	f := newPipelineFixture(t, testVendor(src))

	err = f.svc.ProcessLead(context.Background(), processJob(map[string]interface{}{
		"email":    "a@b.com",
		"phone_no": "555-0100",
	}))
	require.NoError(t, err)

	require.Len(t, f.leads.inserted, 1)
	assert.Equal(t, "a@b.com", f.leads.inserted[0].Data["email"])

	require.Len(t, f.fields.unknown, 1)
	assert.Equal(t, "phone_no", f.fields.unknown[0].FieldName)

	var nullRules int
	for _, r := range f.sources.rules {
		if r.SourceField == "phone_no" && r.TargetField == nil {
			nullRules++
		}
	}
	assert.Equal(t, 1, nullRules)
}

func TestReprocessSourceRebuildsData(t *testing.T) {
	email := "email_address"
	src := enabledSource()
	src.Mapping = source.Mapping{
		DisableAutoDiscover: true,
		Rules: []source.MappingRule{
			{SourceField: "email", TargetField: &email},
		},
	}
	f := newPipelineFixture(t, testVendor(src))
	f.leads.stored = []*lead.Lead{
		{
			ID:              "lead-1",
			TenantID:        "tenant-1",
			OwnerID:         "owner-1",
			SourceID:        "src-1",
			Data:            map[string]interface{}{"old": true},
			OriginalPayload: map[string]interface{}{"email": "a@b.com"},
		},
		{
			ID:       "lead-2",
			TenantID: "tenant-1",
			SourceID: "src-1",
			// No original payload, nothing to rebuild from.
		},
	}

	job := processJob(nil)
	job.Kind = models.JobKindReprocess

	require.NoError(t, f.svc.ReprocessSource(context.Background(), job))

	require.Len(t, f.leads.replaced, 1)
	assert.Equal(t, "a@b.com", f.leads.replaced["lead-1"]["email_address"])
	assert.NotContains(t, f.leads.replaced, "lead-2")
}

func TestHandlerDispatchesByKind(t *testing.T) {
	f := newPipelineFixture(t, testVendor(enabledSource()))
	log, err := logger.New("error")
	require.NoError(t, err)
	h := NewHandler(f.svc, log)

	require.NoError(t, h.Handle(context.Background(), processJob(map[string]interface{}{"email": "a@b.com"})))
	assert.Len(t, f.leads.inserted, 1)

	unknown := processJob(nil)
	unknown.Kind = "unknown"
	require.NoError(t, h.Handle(context.Background(), unknown))
}
