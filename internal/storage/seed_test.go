package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
tenants:
  - id: napoli
    name: Pizzeria Napoli
    privacy_mode: true
    delivery_fee: 500
    open_hours: "11:00-23:00"
    menu_items:
      - name: Margherita
      - name: Pepperoni
    sizes:
      - {size: S, label: Small, price: 1000}
      - {size: L, label: Large, price: 2000}
    drinks:
      - {name: Cola, price: 250}
    allow_list: ["+15550001111"]
  - id: roma
    name: Roma
`

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, seed.Tenants, 2)

	napoli := seed.Tenants[0]
	assert.Equal(t, "Pizzeria Napoli", napoli.Name)
	assert.True(t, napoli.PrivacyMode)
	assert.Equal(t, int64(500), napoli.DeliveryFee)
	assert.Len(t, napoli.MenuItems, 2)
	assert.Equal(t, int64(2000), napoli.Sizes[1].Price)
	assert.Equal(t, []string{"+15550001111"}, napoli.AllowList)
}

func TestParseSeed_Errors(t *testing.T) {
	_, err := ParseSeed([]byte("tenants: [{name: missing-id}]"))
	assert.ErrorContains(t, err, "id is required")

	_, err = ParseSeed([]byte("tenants: {"))
	assert.Error(t, err)
}

func TestLoadSeedFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	store := NewMemoryStore()
	tenants, err := LoadSeedFile(ctx, store, path)
	require.NoError(t, err)
	assert.Len(t, tenants, 2)

	conf, err := store.GetTenantConfig(ctx, "napoli")
	require.NoError(t, err)
	assert.Equal(t, []string{"Margherita", "Pepperoni"}, conf.Menu)
	assert.Equal(t, "Cola", conf.Drinks[0].Name)

	stored, err := store.GetTenant(ctx, "napoli")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.MenuItems[1].Position)

	allow, err := store.ListAllowList(ctx, "napoli")
	require.NoError(t, err)
	assert.Equal(t, []string{"+15550001111"}, allow)

	_, err = LoadSeedFile(ctx, store, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
