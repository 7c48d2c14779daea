package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
	"github.com/Ananth-NQI/menuchat-backend/internal/storage"
)

// slowSource counts loads and can block them until released.
type slowSource struct {
	mu      sync.Mutex
	loads   int
	err     error
	conf    *models.TenantConfig
	allow   []string
	release chan struct{}
}

func (s *slowSource) GetTenantConfig(_ context.Context, tenantID string) (*models.TenantConfig, error) {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	conf := *s.conf
	conf.TenantID = tenantID
	return &conf, nil
}

func (s *slowSource) ListAllowList(context.Context, string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return append([]string(nil), s.allow...), nil
}

func (s *slowSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *slowSource) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func TestTenantConfigCache_ServesWithinTTL(t *testing.T) {
	clock := newManualClock()
	source := &slowSource{conf: testConfig()}
	cache := NewTenantConfigCache(source, time.Minute, nopLogger)
	cache.now = clock.Now

	for i := 0; i < 3; i++ {
		conf, err := cache.Get(context.Background(), "t1")
		require.NoError(t, err)
		assert.Equal(t, "t1", conf.TenantID)
	}
	assert.Equal(t, 1, source.loadCount())

	clock.Advance(time.Minute)
	_, err := cache.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, source.loadCount())
}

func TestTenantConfigCache_FallsBackToLastGood(t *testing.T) {
	clock := newManualClock()
	source := &slowSource{conf: testConfig()}
	cache := NewTenantConfigCache(source, time.Minute, nopLogger)
	cache.now = clock.Now

	first, err := cache.Get(context.Background(), "t1")
	require.NoError(t, err)

	source.setErr(errBoom)
	clock.Advance(2 * time.Minute)

	conf, err := cache.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Same(t, first, conf)
}

func TestTenantConfigCache_NothingCached(t *testing.T) {
	source := &slowSource{conf: testConfig(), err: errBoom}
	cache := NewTenantConfigCache(source, time.Minute, nopLogger)

	_, err := cache.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrConfigUnavailable)
	assert.ErrorIs(t, err, errBoom)
}

func TestTenantConfigCache_UnknownTenant(t *testing.T) {
	source := &slowSource{conf: testConfig(), err: storage.ErrNotFound}
	cache := NewTenantConfigCache(source, time.Minute, nopLogger)

	_, err := cache.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrConfigUnavailable)
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestTenantConfigCache_ConcurrentMissesShareOneLoad(t *testing.T) {
	source := &slowSource{conf: testConfig(), release: make(chan struct{})}
	cache := NewTenantConfigCache(source, time.Minute, nopLogger)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background(), "t1")
			assert.NoError(t, err)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(source.release)
	wg.Wait()

	assert.Equal(t, 1, source.loadCount())
}

func TestTenantConfigCache_Invalidate(t *testing.T) {
	source := &slowSource{conf: testConfig()}
	cache := NewTenantConfigCache(source, time.Hour, nopLogger)

	_, err := cache.Get(context.Background(), "t1")
	require.NoError(t, err)
	cache.Invalidate("t1")
	_, err = cache.Get(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, 2, source.loadCount())
}

func TestTenantConfigCache_InvalidateKeepsFallback(t *testing.T) {
	source := &slowSource{conf: testConfig()}
	cache := NewTenantConfigCache(source, time.Hour, nopLogger)

	first, err := cache.Get(context.Background(), "t1")
	require.NoError(t, err)

	cache.Invalidate("t1")
	source.setErr(errBoom)

	conf, err := cache.Get(context.Background(), "t1")
	require.NoError(t, err)
	assert.Same(t, first, conf)
	assert.Equal(t, 2, source.loadCount(), "invalidated entry is reloaded before falling back")
}

func TestAllowListCache_Lookup(t *testing.T) {
	source := &slowSource{allow: []string{"whatsapp:+15550001111", " +15550002222 "}}
	cache := NewAllowListCache(source, time.Minute, nopLogger)

	ok, err := cache.IsAllowed(context.Background(), "t1", "+15550001111")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.IsAllowed(context.Background(), "t1", "whatsapp:+15550002222")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.IsAllowed(context.Background(), "t1", "+15550003333")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, source.loadCount())
}

func TestAllowListCache_StaleSnapshotOnFailure(t *testing.T) {
	clock := newManualClock()
	source := &slowSource{allow: []string{"+1"}}
	cache := NewAllowListCache(source, time.Minute, nopLogger)
	cache.now = clock.Now

	ok, err := cache.IsAllowed(context.Background(), "t1", "+1")
	require.NoError(t, err)
	require.True(t, ok)

	source.setErr(errBoom)
	clock.Advance(5 * time.Minute)

	ok, err = cache.IsAllowed(context.Background(), "t1", "+1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowListCache_DeniesWithoutSnapshot(t *testing.T) {
	source := &slowSource{allow: []string{"+1"}, err: errBoom}
	cache := NewAllowListCache(source, time.Minute, nopLogger)

	ok, err := cache.IsAllowed(context.Background(), "t1", "+1")
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, ok)
}

func TestAllowListCache_Invalidate(t *testing.T) {
	source := &slowSource{}
	cache := NewAllowListCache(source, time.Hour, nopLogger)

	ok, _ := cache.IsAllowed(context.Background(), "t1", "+1")
	assert.False(t, ok)

	source.mu.Lock()
	source.allow = []string{"+1"}
	source.mu.Unlock()
	cache.Invalidate("t1")

	ok, _ = cache.IsAllowed(context.Background(), "t1", "+1")
	assert.True(t, ok)

	cache.Invalidate("t1")
	source.setErr(errBoom)
	ok, err := cache.IsAllowed(context.Background(), "t1", "+1")
	require.NoError(t, err)
	assert.True(t, ok, "previous snapshot serves when the reload fails")
}

func TestDedupeCache_CheckAndMark(t *testing.T) {
	clock := newManualClock()
	cache := NewDedupeCache(time.Minute, 10)
	defer cache.Close()
	cache.now = clock.Now

	assert.False(t, cache.CheckAndMark("a"))
	assert.True(t, cache.CheckAndMark("a"))

	clock.Advance(time.Minute)
	assert.False(t, cache.CheckAndMark("a"), "expired keys are new again")
	assert.True(t, cache.CheckAndMark("a"))
}

func TestDedupeCache_EvictsOldest(t *testing.T) {
	cache := NewDedupeCache(time.Hour, 2)
	defer cache.Close()

	cache.CheckAndMark("a")
	cache.CheckAndMark("b")
	cache.CheckAndMark("c")

	assert.Equal(t, 2, cache.Len())
	assert.False(t, cache.CheckAndMark("a"), "a was evicted")
	assert.True(t, cache.CheckAndMark("c"))
}

func TestDedupeCache_PurgeExpired(t *testing.T) {
	clock := newManualClock()
	cache := NewDedupeCache(time.Minute, 10)
	defer cache.Close()
	cache.now = clock.Now

	cache.CheckAndMark("a")
	clock.Advance(30 * time.Second)
	cache.CheckAndMark("b")
	clock.Advance(30 * time.Second)

	cache.purgeExpired()
	assert.Equal(t, 1, cache.Len())

	cache.Close()
	cache.Close()
}
