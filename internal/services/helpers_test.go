package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
)

var errBoom = errors.New("boom")

func testTenant(id string) *models.Tenant {
	return &models.Tenant{
		ID:          id,
		Name:        "Pizzeria " + id,
		Currency:    "$",
		DeliveryFee: 500,
		MenuItems: []models.MenuItem{
			{Position: 1, Name: "Margherita"},
			{Position: 2, Name: "Pepperoni"},
			{Position: 3, Name: "Veggie"},
		},
		Sizes: []models.SizePrice{
			{Size: "S", Label: "Small", Price: 1000},
			{Size: "M", Label: "Medium", Price: 1500},
			{Size: "L", Label: "Large", Price: 2000},
		},
		Drinks: []models.Drink{
			{Position: 1, Name: "Cola", Price: 250},
			{Position: 2, Name: "Lemonade", Price: 300},
		},
	}
}

func testConfig() *models.TenantConfig {
	return testTenant("t1").Config()
}

// fakeConfigs serves configs from a map and can be made to fail.
type fakeConfigs struct {
	mu      sync.Mutex
	configs map[string]*models.TenantConfig
	err     error
	calls   int
}

func newFakeConfigs(confs ...*models.TenantConfig) *fakeConfigs {
	f := &fakeConfigs{configs: make(map[string]*models.TenantConfig)}
	for _, conf := range confs {
		f.configs[conf.TenantID] = conf
	}
	return f
}

func (f *fakeConfigs) Get(_ context.Context, tenantID string) (*models.TenantConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	conf, ok := f.configs[tenantID]
	if !ok {
		return nil, ErrConfigUnavailable
	}
	return conf, nil
}

func (f *fakeConfigs) GetTenantConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error) {
	return f.Get(ctx, tenantID)
}

func (f *fakeConfigs) set(conf *models.TenantConfig) {
	f.mu.Lock()
	f.configs[conf.TenantID] = conf
	f.mu.Unlock()
}

func (f *fakeConfigs) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// fakeOrders records created orders.
type fakeOrders struct {
	mu     sync.Mutex
	orders []*models.Order
	err    error
}

func (f *fakeOrders) CreateOrder(_ context.Context, order *models.Order) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	created := *order
	created.ID = fmt.Sprintf("ORD%05d", len(f.orders)+1)
	f.orders = append(f.orders, &created)
	return &created, nil
}

func (f *fakeOrders) all() []*models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Order(nil), f.orders...)
}

// recordingPublisher collects operator events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.OperatorEvent
}

func (p *recordingPublisher) Publish(ev models.OperatorEvent) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) ofType(typ models.EventType) []models.OperatorEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.OperatorEvent
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// manualClock is a settable clock.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestSession(tenantID, address string) *models.Session {
	now := time.Now()
	return &models.Session{
		Key:            models.SessionKey{TenantID: tenantID, Address: address},
		State:          models.StateStart,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

func recvErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for routed message")
		return nil
	}
}

var nopLogger = zerolog.Nop()
