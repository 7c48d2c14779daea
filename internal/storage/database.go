package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
)

// DatabaseStore persists tenants, allow-lists and orders through GORM.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a store backed by an open GORM connection
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Tenant operations

// SaveTenant upserts the tenant and replaces its menu, sizes and drinks.
func (d *DatabaseStore) SaveTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == "" {
		return fmt.Errorf("tenant id is required")
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, child := range []any{&models.MenuItem{}, &models.SizePrice{}, &models.Drink{}} {
			if err := tx.Where("tenant_id = ?", tenant.ID).Delete(child).Error; err != nil {
				return fmt.Errorf("clear tenant children: %w", err)
			}
		}

		for i := range tenant.MenuItems {
			tenant.MenuItems[i].ID = 0
		}
		for i := range tenant.Sizes {
			tenant.Sizes[i].ID = 0
		}
		for i := range tenant.Drinks {
			tenant.Drinks[i].ID = 0
		}

		if err := tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(tenant).Error; err != nil {
			return fmt.Errorf("save tenant: %w", err)
		}
		return nil
	})
}

func (d *DatabaseStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := d.withChildren(ctx).First(&tenant, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant %s: %w", id, err)
	}
	return &tenant, nil
}

func (d *DatabaseStore) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	if err := d.withChildren(ctx).Order("id").Find(&tenants).Error; err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

func (d *DatabaseStore) GetTenantConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error) {
	tenant, err := d.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return tenant.Config(), nil
}

func (d *DatabaseStore) withChildren(ctx context.Context) *gorm.DB {
	return d.db.WithContext(ctx).
		Preload("MenuItems").
		Preload("Sizes").
		Preload("Drinks")
}

// Allow-list operations

func (d *DatabaseStore) AddAllowListEntry(ctx context.Context, tenantID, address string) error {
	entry := models.AllowListEntry{TenantID: tenantID, Address: address}
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("add allow-list entry: %w", err)
	}
	return nil
}

func (d *DatabaseStore) ListAllowList(ctx context.Context, tenantID string) ([]string, error) {
	var addresses []string
	err := d.db.WithContext(ctx).
		Model(&models.AllowListEntry{}).
		Where("tenant_id = ?", tenantID).
		Order("address").
		Pluck("address", &addresses).Error
	if err != nil {
		return nil, fmt.Errorf("list allow-list: %w", err)
	}
	return addresses, nil
}

// Order operations

func (d *DatabaseStore) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	created := *order
	created.ID = uuid.New().String()
	if created.Status == "" {
		created.Status = models.OrderStatusReceived
	}
	if err := d.db.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return &created, nil
}

func (d *DatabaseStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return &order, nil
}

func (d *DatabaseStore) GetOrdersByTenant(ctx context.Context, tenantID string) ([]*models.Order, error) {
	var orders []*models.Order
	err := d.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (d *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
