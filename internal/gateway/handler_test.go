package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dikshant-ux/vellkopoint/internal/catalog"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/source"
	"github.com/dikshant-ux/vellkopoint/pkg/models"
)

type fakeSourceRepo struct {
	vendors []source.Vendor
}

func (f *fakeSourceRepo) GetVendor(ctx context.Context, vendorID string) (*source.Vendor, error) {
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
	for i := range f.vendors {
		for j := range f.vendors[i].Sources {
			if f.vendors[i].Sources[j].APIKey == apiKey {
				return &f.vendors[i], &f.vendors[i].Sources[j], nil
			}
		}
	}
	return nil, nil, source.ErrSourceNotFound
}

func (f *fakeSourceRepo) GetVendorsBySourceIDs(ctx context.Context, sourceIDs []string) ([]source.Vendor, error) {
	return nil, nil
}

func (f *fakeSourceRepo) ListVendorsByTenant(ctx context.Context, tenantID string) ([]source.Vendor, error) {
	return f.vendors, nil
}

func (f *fakeSourceRepo) AppendMappingRule(ctx context.Context, vendorID, sourceID string, rule source.MappingRule) error {
	return nil
}

func (f *fakeSourceRepo) SetMappingRuleTarget(ctx context.Context, vendorID, sourceID, sourceField, targetField string) error {
	return nil
}

type fakeFieldRepo struct {
	fields  []catalog.CanonicalField
	unknown []catalog.UnknownField
	ignored []string
}

func (f *fakeFieldRepo) ListFields(ctx context.Context, tenantID string) ([]catalog.CanonicalField, error) {
	return f.fields, nil
}

func (f *fakeFieldRepo) GetFieldByKey(ctx context.Context, tenantID, fieldKey string) (*catalog.CanonicalField, error) {
	for i := range f.fields {
		if f.fields[i].FieldKey == fieldKey {
			return &f.fields[i], nil
		}
	}
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
	var out []catalog.UnknownField
	for _, u := range f.unknown {
		if u.TenantID == tenantID && u.Status == status {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeFieldRepo) ListUnknownFieldSources(ctx context.Context, tenantID, fieldName string) ([]string, error) {
	var out []string
	for _, u := range f.unknown {
		if u.FieldName == fieldName {
			out = append(out, u.SourceID)
		}
	}
	return out, nil
}

func (f *fakeFieldRepo) SetUnknownFieldStatus(ctx context.Context, tenantID, fieldName, status string) error {
	f.ignored = append(f.ignored, fieldName)
	return nil
}

func (f *fakeFieldRepo) DeleteUnknownFields(ctx context.Context, tenantID, fieldName string, sourceIDs []string) error {
	return nil
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

type gatewayFixture struct {
	router   *gin.Engine
	producer *fakeProducer
	fields   *fakeFieldRepo
	sources  *fakeSourceRepo
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	gin.SetMode(gin.TestMode)

	log, err := logger.New("error")
	require.NoError(t, err)

	sources := &fakeSourceRepo{vendors: []source.Vendor{
		{
			ID:       "vendor-1",
			TenantID: "tenant-1",
			OwnerID:  "owner-1",
			Name:     "Acme Media",
			Sources: []source.Source{
				{
					ID:     "src-1",
					Name:   "Acme Webhook",
					APIKey: "key-enabled",
					Config: source.Config{Status: source.StatusEnabled},
				},
				{
					ID:     "src-2",
					Name:   "Acme Legacy",
					APIKey: "key-disabled",
					Config: source.Config{Status: source.StatusDisabled},
				},
			},
		},
	}}

	producer := &fakeProducer{}
	fields := &fakeFieldRepo{}
	cat := catalog.NewService(fields, sources, producer, "lead_reprocess", log)

	svc := NewService(sources, producer, "lead_process", log)
	svc.now = func() time.Time { return time.Date(2025, 3, 12, 14, 30, 0, 0, time.UTC) }

	router := gin.New()
	NewHandler(svc, cat, log).RegisterRoutes(router)

	return &gatewayFixture{router: router, producer: producer, fields: fields, sources: sources}
}

func TestIngestAcceptsJSONPayload(t *testing.T) {
	f := newGatewayFixture(t)

	body := bytes.NewBufferString(`{"email": "a@b.com", "first_name": "Ann"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/key-enabled", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp IntakeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "received", resp.Status)
	assert.Equal(t, "src-1", resp.SourceID)
	assert.Equal(t, "vendor-1", resp.VendorID)
	assert.NotEmpty(t, resp.JobID)

	require.Len(t, f.producer.published, 1)
	job := f.producer.published[0]
	assert.Equal(t, "lead_process", job.topic)
	assert.Equal(t, models.JobKindProcess, job.job.Kind)
	assert.Equal(t, "tenant-1", job.job.TenantID)
	assert.Equal(t, "a@b.com", job.job.Payload["email"])
}

func TestIngestAcceptsQueryParams(t *testing.T) {
	f := newGatewayFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ingest/key-enabled?email=a%40b.com&api_key=leaked", nil)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.producer.published, 1)

	payload := f.producer.published[0].job.Payload
	assert.Equal(t, "a@b.com", payload["email"])
	assert.NotContains(t, payload, "api_key")
}

func TestIngestAcceptsFormPayload(t *testing.T) {
	f := newGatewayFixture(t)

	form := url.Values{"email": {"a@b.com"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/key-enabled", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.producer.published, 1)
	assert.Equal(t, "a@b.com", f.producer.published[0].job.Payload["email"])
}

func TestIngestRejectsUnknownKey(t *testing.T) {
	f := newGatewayFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/nope", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.producer.published)
}

func TestIngestRejectsDisabledSource(t *testing.T) {
	f := newGatewayFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/key-disabled", bytes.NewBufferString(`{"email":"a@b.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, f.producer.published)
}

func TestIngestBrokerDownReturns503(t *testing.T) {
	f := newGatewayFixture(t)
	f.producer.err = assert.AnError

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/key-enabled", bytes.NewBufferString(`{"email":"a@b.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListUnknownFieldsRequiresTenant(t *testing.T) {
	f := newGatewayFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schema/unknown-fields", nil)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListUnknownFields(t *testing.T) {
	f := newGatewayFixture(t)
	f.fields.unknown = []catalog.UnknownField{
		{ID: "u1", TenantID: "tenant-1", FieldName: "utm_campaign", SourceID: "src-1", Status: catalog.UnknownStatusUnmapped},
		{ID: "u2", TenantID: "tenant-2", FieldName: "other_tenant", SourceID: "src-9", Status: catalog.UnknownStatusUnmapped},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schema/unknown-fields?tenant_id=tenant-1", nil)
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var fields []catalog.UnknownField
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fields))
	require.Len(t, fields, 1)
	assert.Equal(t, "utm_campaign", fields[0].FieldName)
}

func TestMapUnknownFieldToMissingCanonicalField(t *testing.T) {
	f := newGatewayFixture(t)

	body := bytes.NewBufferString(`{
		"tenant_id": "tenant-1",
		"source_id": "src-1",
		"field_name": "e_mail",
		"target_field": "email"
	}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schema/unknown-fields/map", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMapUnknownFieldCreatesFieldAndResponds(t *testing.T) {
	f := newGatewayFixture(t)
	f.fields.unknown = []catalog.UnknownField{
		{ID: "u1", TenantID: "tenant-1", FieldName: "e_mail", SourceID: "src-1", Status: catalog.UnknownStatusUnmapped},
	}

	body := bytes.NewBufferString(`{
		"tenant_id": "tenant-1",
		"owner_id": "owner-1",
		"source_id": "src-1",
		"field_name": "e_mail",
		"target_field": "email",
		"create_field": true
	}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schema/unknown-fields/map", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var result catalog.RemapResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "email", result.TargetField)

	// Creating the canonical field is part of the remap.
	created := false
	for _, fld := range f.fields.fields {
		if fld.FieldKey == "email" {
			created = true
		}
	}
	assert.True(t, created)
}

func TestIgnoreUnknownField(t *testing.T) {
	f := newGatewayFixture(t)

	body := bytes.NewBufferString(`{"tenant_id": "tenant-1", "field_name": "junk"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schema/unknown-fields/ignore", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"junk"}, f.fields.ignored)
}
