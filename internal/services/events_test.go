package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
)

func recvEvent(t *testing.T, ch <-chan models.OperatorEvent) models.OperatorEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		require.FailNow(t, "timed out waiting for event")
		return models.OperatorEvent{}
	}
}

func TestBroadcaster_TenantSubscriber(t *testing.T) {
	b := NewEventBroadcaster(nopLogger)
	defer b.Close()

	ch, _ := b.Subscribe(testContext(t), "t1")
	b.Publish(models.OperatorEvent{Type: models.EventConnected, TenantID: "t1"})
	b.Publish(models.OperatorEvent{Type: models.EventConnected, TenantID: "t2"})

	ev := recvEvent(t, ch)
	assert.Equal(t, "t1", ev.TenantID)
	assert.False(t, ev.At.IsZero())

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for %s", ev.TenantID)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroadcaster_AllTenantsSubscriber(t *testing.T) {
	b := NewEventBroadcaster(nopLogger)
	defer b.Close()

	ch, _ := b.Subscribe(testContext(t), AllTenants)
	b.Publish(models.OperatorEvent{Type: models.EventPairingReady, TenantID: "t1", Artifact: "123-456"})
	b.Publish(models.OperatorEvent{Type: models.EventDegraded, TenantID: "t2"})

	first := recvEvent(t, ch)
	second := recvEvent(t, ch)
	assert.Equal(t, "123-456", first.Artifact)
	assert.Equal(t, models.EventDegraded, second.Type)
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewEventBroadcaster(nopLogger)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "t1")
	require.Equal(t, 1, b.SubscriberCount("t1"))

	cancel()
	require.Eventually(t, func() bool { return b.SubscriberCount("t1") == 0 }, time.Second, 5*time.Millisecond)

	_, open := <-ch
	assert.False(t, open)
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewEventBroadcaster(nopLogger)
	defer b.Close()

	b.Subscribe(testContext(t), "t1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(models.OperatorEvent{Type: models.EventConnected, TenantID: "t1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBroadcaster_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewEventBroadcaster(nopLogger)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		b.Subscribe(ctx, "t1")
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Publish(models.OperatorEvent{Type: models.EventConnected, TenantID: "t1"})
		}()
		go func() {
			defer wg.Done()
			cancel()
		}()
	}
	wg.Wait()
}

// testContext returns a context cancelled when the test finishes (stand-in
// for testing.T.Context, added in Go 1.24).
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
