package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
)

// AllTenants subscribes to every tenant's events.
const AllTenants = "*"

const subscriberBufferSize = 64

// EventBroadcaster fans operator events out to subscribers of a tenant (or
// of AllTenants). Publishing never blocks: a slow subscriber loses events.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan models.OperatorEvent // tenantID -> subID -> ch
	now         func() time.Time
	logger      zerolog.Logger
}

// NewEventBroadcaster creates a broadcaster.
func NewEventBroadcaster(logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan models.OperatorEvent),
		now:         time.Now,
		logger:      logger,
	}
}

// Subscribe registers for tenantID's events. The subscription ends, and the
// channel is closed, when ctx is cancelled or Unsubscribe is called.
func (b *EventBroadcaster) Subscribe(ctx context.Context, tenantID string) (<-chan models.OperatorEvent, string) {
	subID := uuid.New().String()
	ch := make(chan models.OperatorEvent, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[tenantID]; !ok {
		b.subscribers[tenantID] = make(map[string]chan models.OperatorEvent)
	}
	b.subscribers[tenantID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug().Str("tenant_id", tenantID).Str("sub_id", subID).Msg("subscriber added")

	go func() {
		<-ctx.Done()
		b.Unsubscribe(tenantID, subID)
	}()

	return ch, subID
}

// Publish delivers ev to the tenant's subscribers and to AllTenants
// subscribers.
func (b *EventBroadcaster) Publish(ev models.OperatorEvent) {
	if ev.At.IsZero() {
		ev.At = b.now()
	}

	// Sends happen under the read lock so Unsubscribe cannot close a channel
	// mid-send; they never block.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, key := range []string{ev.TenantID, AllTenants} {
		for subID, ch := range b.subscribers[key] {
			select {
			case ch <- ev:
			default:
				b.logger.Debug().
					Str("tenant_id", ev.TenantID).
					Str("sub_id", subID).
					Str("type", string(ev.Type)).
					Msg("dropped event for slow subscriber")
			}
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(tenantID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[tenantID]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, tenantID)
	}

	b.logger.Debug().Str("tenant_id", tenantID).Str("sub_id", subID).Msg("subscriber removed")
}

// SubscriberCount returns the number of subscriptions for tenantID.
func (b *EventBroadcaster) SubscriberCount(tenantID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[tenantID])
}

// Close closes every subscriber channel.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for tenantID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, tenantID)
	}
}
