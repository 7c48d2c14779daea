package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
)

// MemoryStore holds all data in memory for development and tests
type MemoryStore struct {
	tenants   map[string]*models.Tenant
	allowList map[string]map[string]struct{} // tenantID -> address set
	orders    map[string]*models.Order

	// Mutexes for thread safety
	tenantMu sync.RWMutex
	allowMu  sync.RWMutex
	orderMu  sync.RWMutex

	// Counter for ID generation
	orderCounter int
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:   make(map[string]*models.Tenant),
		allowList: make(map[string]map[string]struct{}),
		orders:    make(map[string]*models.Order),
	}
}

// Tenant operations
func (m *MemoryStore) SaveTenant(_ context.Context, tenant *models.Tenant) error {
	if tenant.ID == "" {
		return fmt.Errorf("tenant id is required")
	}

	m.tenantMu.Lock()
	defer m.tenantMu.Unlock()

	now := time.Now()
	stored := copyTenant(tenant)
	if existing, ok := m.tenants[tenant.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	m.tenants[tenant.ID] = stored
	return nil
}

func (m *MemoryStore) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	m.tenantMu.RLock()
	defer m.tenantMu.RUnlock()

	tenant, exists := m.tenants[id]
	if !exists {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	return copyTenant(tenant), nil
}

func (m *MemoryStore) ListTenants(_ context.Context) ([]*models.Tenant, error) {
	m.tenantMu.RLock()
	defer m.tenantMu.RUnlock()

	tenants := make([]*models.Tenant, 0, len(m.tenants))
	for _, tenant := range m.tenants {
		tenants = append(tenants, copyTenant(tenant))
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].ID < tenants[j].ID })
	return tenants, nil
}

func (m *MemoryStore) GetTenantConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error) {
	tenant, err := m.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return tenant.Config(), nil
}

// Allow-list operations
func (m *MemoryStore) AddAllowListEntry(_ context.Context, tenantID, address string) error {
	m.allowMu.Lock()
	defer m.allowMu.Unlock()

	set, ok := m.allowList[tenantID]
	if !ok {
		set = make(map[string]struct{})
		m.allowList[tenantID] = set
	}
	set[address] = struct{}{}
	return nil
}

func (m *MemoryStore) ListAllowList(_ context.Context, tenantID string) ([]string, error) {
	m.allowMu.RLock()
	defer m.allowMu.RUnlock()

	addresses := make([]string, 0, len(m.allowList[tenantID]))
	for address := range m.allowList[tenantID] {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses, nil
}

// Order operations
func (m *MemoryStore) CreateOrder(_ context.Context, order *models.Order) (*models.Order, error) {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	m.orderCounter++
	created := *order
	created.ID = fmt.Sprintf("ORD%05d", m.orderCounter)
	if created.Status == "" {
		created.Status = models.OrderStatusReceived
	}
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt

	m.orders[created.ID] = &created
	result := created
	return &result, nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	order, exists := m.orders[id]
	if !exists {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	result := *order
	return &result, nil
}

func (m *MemoryStore) GetOrdersByTenant(_ context.Context, tenantID string) ([]*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	var orders []*models.Order
	for _, order := range m.orders {
		if order.TenantID == tenantID {
			result := *order
			orders = append(orders, &result)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func copyTenant(t *models.Tenant) *models.Tenant {
	c := *t
	c.MenuItems = append([]models.MenuItem(nil), t.MenuItems...)
	c.Sizes = append([]models.SizePrice(nil), t.Sizes...)
	c.Drinks = append([]models.Drink(nil), t.Drinks...)
	return &c
}
