package storage

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
)

// SeedFile is the YAML layout used to bootstrap tenants.
//
//	tenants:
//	  - id: pizzeria
//	    name: Pizzeria Napoli
//	    sizes: [{size: S, price: 1000}, {size: M, price: 1500}]
//	    allow_list: ["+15550001111"]
type SeedFile struct {
	Tenants []SeedTenant `yaml:"tenants"`
}

// SeedTenant is a tenant plus its allow-list.
type SeedTenant struct {
	models.Tenant `yaml:",inline"`
	AllowList     []string `yaml:"allow_list"`
}

// ParseSeed decodes a seed document.
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for i, t := range seed.Tenants {
		if t.ID == "" {
			return nil, fmt.Errorf("seed tenant %d: id is required", i)
		}
	}
	return &seed, nil
}

// LoadSeedFile reads path and writes every tenant and allow-list entry into
// store. It returns the loaded tenants.
func LoadSeedFile(ctx context.Context, store Store, path string) ([]*models.Tenant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return nil, err
	}
	return ApplySeed(ctx, store, seed)
}

// ApplySeed writes a parsed seed into store.
func ApplySeed(ctx context.Context, store Store, seed *SeedFile) ([]*models.Tenant, error) {
	tenants := make([]*models.Tenant, 0, len(seed.Tenants))
	for i := range seed.Tenants {
		tenant := seed.Tenants[i].Tenant
		tenant.FillPositions()

		if err := store.SaveTenant(ctx, &tenant); err != nil {
			return nil, fmt.Errorf("seed tenant %s: %w", tenant.ID, err)
		}
		for _, address := range seed.Tenants[i].AllowList {
			if err := store.AddAllowListEntry(ctx, tenant.ID, address); err != nil {
				return nil, fmt.Errorf("seed allow-list for %s: %w", tenant.ID, err)
			}
		}
		tenants = append(tenants, &tenant)
	}
	return tenants, nil
}
