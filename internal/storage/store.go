package storage

import (
	"context"
	"errors"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for storage operations
type Store interface {
	// Tenant operations
	SaveTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	GetTenantConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error)

	// Allow-list operations
	AddAllowListEntry(ctx context.Context, tenantID, address string) error
	ListAllowList(ctx context.Context, tenantID string) ([]string, error)

	// Order operations
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrdersByTenant(ctx context.Context, tenantID string) ([]*models.Order, error)

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
}
