package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
	"github.com/Ananth-NQI/menuchat-backend/internal/storage"
)

// ConfigSource loads a tenant's config from the backing store.
type ConfigSource interface {
	GetTenantConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error)
}

type cachedConfig struct {
	conf      *models.TenantConfig
	fetchedAt time.Time
}

// TenantConfigCache serves tenant configs with a TTL. Concurrent misses for
// the same tenant share one load, and a failed refresh falls back to the last
// config that loaded successfully.
//
// Returned configs are shared and must be treated as read-only.
type TenantConfigCache struct {
	source ConfigSource
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
	group  singleflight.Group

	mu      sync.RWMutex
	entries map[string]cachedConfig
}

// NewTenantConfigCache creates a cache in front of source.
func NewTenantConfigCache(source ConfigSource, ttl time.Duration, logger zerolog.Logger) *TenantConfigCache {
	return &TenantConfigCache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
		entries: make(map[string]cachedConfig),
	}
}

// Get returns the tenant's config. It fails with ErrConfigUnavailable only
// when the load fails and nothing was ever cached for the tenant.
func (c *TenantConfigCache) Get(ctx context.Context, tenantID string) (*models.TenantConfig, error) {
	c.mu.RLock()
	entry, cached := c.entries[tenantID]
	c.mu.RUnlock()

	if cached && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.conf, nil
	}

	v, err, _ := c.group.Do(tenantID, func() (interface{}, error) {
		conf, err := c.source.GetTenantConfig(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[tenantID] = cachedConfig{conf: conf, fetchedAt: c.now()}
		c.mu.Unlock()
		return conf, nil
	})
	if err == nil {
		return v.(*models.TenantConfig), nil
	}

	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w: %s", ErrConfigUnavailable, ErrTenantNotFound, tenantID)
	}
	if cached {
		c.logger.Warn().Err(err).Str("tenant_id", tenantID).
			Time("fetched_at", entry.fetchedAt).
			Msg("tenant config refresh failed, serving last good copy")
		return entry.conf, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrConfigUnavailable, err)
}

// Invalidate marks the tenant's cached config expired so the next Get
// reloads it. The entry stays as the fallback if that reload fails.
func (c *TenantConfigCache) Invalidate(tenantID string) {
	c.mu.Lock()
	if entry, ok := c.entries[tenantID]; ok {
		entry.fetchedAt = time.Time{}
		c.entries[tenantID] = entry
	}
	c.mu.Unlock()
}
