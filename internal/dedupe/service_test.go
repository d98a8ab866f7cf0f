package dedupe

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dikshant-ux/vellkopoint/internal/config"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/source"
)

type fakeStore struct {
	found     bool
	err       error
	gotValues map[string]interface{}
	gotOp     string
	gotWindow int
	gotSource string
	callCount int
}

func (f *fakeStore) FindDuplicate(ctx context.Context, sourceID string, values map[string]interface{}, operator string, windowDays int) (bool, error) {
	f.callCount++
	f.gotSource = sourceID
	f.gotValues = values
	f.gotOp = operator
	f.gotWindow = windowDays
	return f.found, f.err
}

type fakeCache struct {
	seen    map[string]bool
	err     error
	lastTTL time.Duration
}

func (f *fakeCache) Exists(ctx context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.seen[key], nil
}

func (f *fakeCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.lastTTL = ttl
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func newTestDedupeService(t *testing.T, store Store, cache Cache, onRedisError string) *Service {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	cfg := config.DedupConfig{HashAlgorithm: "md5", OnRedisError: onRedisError}
	return NewService(store, cache, cfg, log)
}

func dedupeSource(enabled bool, fields []string, operator string, windowDays int) *source.Source {
	return &source.Source{
		ID: "s1",
		Config: source.Config{Dedupe: source.DedupeConfig{
			Enabled:    enabled,
			Fields:     fields,
			Operator:   operator,
			WindowDays: windowDays,
		}},
	}
}

func TestCheck_DisabledIsNotDuplicate(t *testing.T) {
	store := &fakeStore{found: true}
	svc := newTestDedupeService(t, store, &fakeCache{}, "allow")

	result, err := svc.Check(context.Background(), dedupeSource(false, []string{"email"}, "or", 7), map[string]interface{}{"email": "a@b.c"})
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	assert.Zero(t, store.callCount)
}

func TestCheck_SkipsWhenNoConfiguredFieldHasValue(t *testing.T) {
	store := &fakeStore{found: true}
	svc := newTestDedupeService(t, store, &fakeCache{}, "allow")

	data := map[string]interface{}{"email": "", "other": "x"}
	result, err := svc.Check(context.Background(), dedupeSource(true, []string{"email", "phone"}, "or", 7), data)
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	assert.Zero(t, store.callCount)
}

func TestCheck_WindowedDuplicate(t *testing.T) {
	store := &fakeStore{found: true}
	svc := newTestDedupeService(t, store, &fakeCache{}, "allow")

	data := map[string]interface{}{"email": "a@b.c"}
	result, err := svc.Check(context.Background(), dedupeSource(true, []string{"email"}, "or", 7), data)
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, "Duplicate lead found within 7 days", result.Reason)
	assert.Equal(t, "s1", store.gotSource)
	assert.Equal(t, 7, store.gotWindow)
	assert.Equal(t, "or", store.gotOp)
}

func TestCheck_UnboundedDuplicateReason(t *testing.T) {
	store := &fakeStore{found: true}
	svc := newTestDedupeService(t, store, &fakeCache{}, "allow")

	data := map[string]interface{}{"email": "a@b.c"}
	result, err := svc.Check(context.Background(), dedupeSource(true, []string{"email"}, "or", 0), data)
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, "Duplicate lead found", result.Reason)
}

func TestCheck_OperatorDefaultsToOr(t *testing.T) {
	store := &fakeStore{}
	svc := newTestDedupeService(t, store, &fakeCache{}, "allow")

	data := map[string]interface{}{"email": "a@b.c", "phone": "+49"}
	_, err := svc.Check(context.Background(), dedupeSource(true, []string{"email", "phone"}, "", 7), data)
	require.NoError(t, err)
	assert.Equal(t, "or", store.gotOp)
	assert.Len(t, store.gotValues, 2)
}

func TestCheck_CacheHitShortCircuitsStore(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{}
	svc := newTestDedupeService(t, store, cache, "allow")

	src := dedupeSource(true, []string{"email"}, "or", 7)
	data := map[string]interface{}{"email": "a@b.c"}

	// first pass consults the store and leaves the cache untouched
	result, err := svc.Check(context.Background(), src, data)
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	assert.Equal(t, 1, store.callCount)
	assert.Empty(t, cache.seen)

	// the lead was persisted, so mark it
	svc.MarkSeen(context.Background(), src, data)
	assert.Equal(t, 7*24*time.Hour, cache.lastTTL)

	// an identical payload is now caught by the cache alone
	result, err = svc.Check(context.Background(), src, data)
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Equal(t, 1, store.callCount)
}

func TestCheck_FailedPersistRedeliveryStaysUnique(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{}
	svc := newTestDedupeService(t, store, cache, "allow")

	src := dedupeSource(true, []string{"email"}, "or", 7)
	data := map[string]interface{}{"email": "a@b.c"}

	result, err := svc.Check(context.Background(), src, data)
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)

	// The insert failed, so MarkSeen never ran. The redelivered job must
	// get a fresh store verdict instead of a cache rejection.
	result, err = svc.Check(context.Background(), src, data)
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	assert.Equal(t, 2, store.callCount)
}

func TestMarkSeen_SkipsDisabledAndEmpty(t *testing.T) {
	cache := &fakeCache{}
	svc := newTestDedupeService(t, &fakeStore{}, cache, "allow")

	svc.MarkSeen(context.Background(), dedupeSource(false, []string{"email"}, "or", 7), map[string]interface{}{"email": "a@b.c"})
	svc.MarkSeen(context.Background(), dedupeSource(true, []string{"email"}, "or", 7), map[string]interface{}{"email": ""})
	assert.Empty(t, cache.seen)
}

func TestCheck_RedisErrorFallbackAllow(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{err: fmt.Errorf("connection refused")}
	svc := newTestDedupeService(t, store, cache, "allow")

	data := map[string]interface{}{"email": "a@b.c"}
	result, err := svc.Check(context.Background(), dedupeSource(true, []string{"email"}, "or", 7), data)
	require.NoError(t, err)
	assert.False(t, result.IsDuplicate)
	// the authoritative store still ran
	assert.Equal(t, 1, store.callCount)
}

func TestCheck_RedisErrorFallbackDeny(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{err: fmt.Errorf("connection refused")}
	svc := newTestDedupeService(t, store, cache, "deny")

	data := map[string]interface{}{"email": "a@b.c"}
	result, err := svc.Check(context.Background(), dedupeSource(true, []string{"email"}, "or", 7), data)
	require.NoError(t, err)
	assert.True(t, result.IsDuplicate)
	assert.Zero(t, store.callCount)
}

func TestCheck_StoreErrorPropagates(t *testing.T) {
	store := &fakeStore{err: fmt.Errorf("mongo down")}
	svc := newTestDedupeService(t, store, &fakeCache{}, "allow")

	data := map[string]interface{}{"email": "a@b.c"}
	_, err := svc.Check(context.Background(), dedupeSource(true, []string{"email"}, "or", 7), data)
	assert.Error(t, err)
}

func TestHasher_DeterministicAndScoped(t *testing.T) {
	h := NewHasher("sha256")
	data := map[string]interface{}{"email": "a@b.c", "phone": "+49"}

	h1, err := h.ComputeHash("s1", data, []string{"email", "phone"})
	require.NoError(t, err)
	h2, err := h.ComputeHash("s1", data, []string{"email", "phone"})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// same values under a different source hash differently
	h3, err := h.ComputeHash("s2", data, []string{"email", "phone"})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	_, err = h.ComputeHash("s1", data, nil)
	assert.Error(t, err)
}
