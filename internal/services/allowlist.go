package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Ananth-NQI/menuchat-backend/internal/utils"
)

// AllowListSource loads a tenant's allowed customer addresses.
type AllowListSource interface {
	ListAllowList(ctx context.Context, tenantID string) ([]string, error)
}

type allowSnapshot struct {
	addresses map[string]struct{}
	fetchedAt time.Time
}

// AllowListCache answers allow-list lookups from a per-tenant snapshot
// refreshed every ttl. When a refresh fails the previous snapshot is used;
// with no snapshot at all every address is denied.
type AllowListCache struct {
	source AllowListSource
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
	group  singleflight.Group

	mu        sync.RWMutex
	snapshots map[string]allowSnapshot
}

// NewAllowListCache creates a cache in front of source.
func NewAllowListCache(source AllowListSource, ttl time.Duration, logger zerolog.Logger) *AllowListCache {
	return &AllowListCache{
		source:    source,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
		snapshots: make(map[string]allowSnapshot),
	}
}

// IsAllowed reports whether address may talk to the tenant. A non-nil error
// always comes with false.
func (c *AllowListCache) IsAllowed(ctx context.Context, tenantID, address string) (bool, error) {
	addresses, err := c.snapshot(ctx, tenantID)
	if err != nil {
		return false, err
	}
	_, ok := addresses[utils.NormalizeAddress(address)]
	return ok, nil
}

func (c *AllowListCache) snapshot(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	c.mu.RLock()
	snap, cached := c.snapshots[tenantID]
	c.mu.RUnlock()

	if cached && c.now().Sub(snap.fetchedAt) < c.ttl {
		return snap.addresses, nil
	}

	v, err, _ := c.group.Do(tenantID, func() (interface{}, error) {
		list, err := c.source.ListAllowList(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		addresses := make(map[string]struct{}, len(list))
		for _, address := range list {
			addresses[utils.NormalizeAddress(address)] = struct{}{}
		}
		c.mu.Lock()
		c.snapshots[tenantID] = allowSnapshot{addresses: addresses, fetchedAt: c.now()}
		c.mu.Unlock()
		return addresses, nil
	})
	if err == nil {
		return v.(map[string]struct{}), nil
	}

	if cached {
		c.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("allow-list refresh failed, using previous snapshot")
		return snap.addresses, nil
	}
	return nil, fmt.Errorf("load allow-list for %s: %w", tenantID, err)
}

// Invalidate expires the tenant's snapshot, keeping it as the fallback.
func (c *AllowListCache) Invalidate(tenantID string) {
	c.mu.Lock()
	if snap, ok := c.snapshots[tenantID]; ok {
		snap.fetchedAt = time.Time{}
		c.snapshots[tenantID] = snap
	}
	c.mu.Unlock()
}
