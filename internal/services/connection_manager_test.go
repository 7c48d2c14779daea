package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
)

const eventually = 2 * time.Second
const tick = 5 * time.Millisecond

type recordingHandler struct {
	mu       sync.Mutex
	routed   []InboundMessage
	pairings []string
}

func (h *recordingHandler) Route(_ context.Context, _ string, msg InboundMessage) <-chan error {
	h.mu.Lock()
	h.routed = append(h.routed, msg)
	h.mu.Unlock()
	done := make(chan error)
	close(done)
	return done
}

func (h *recordingHandler) ForwardPairing(_, artifact string) {
	h.mu.Lock()
	h.pairings = append(h.pairings, artifact)
	h.mu.Unlock()
}

func (h *recordingHandler) messages() []InboundMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]InboundMessage(nil), h.routed...)
}

func (h *recordingHandler) artifacts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.pairings...)
}

type managerFixture struct {
	dialer  *SimulatedDialer
	events  *recordingPublisher
	handler *recordingHandler
	manager *ConnectionManager
}

func newManagerFixture(t *testing.T, requirePairing bool) *managerFixture {
	t.Helper()
	f := &managerFixture{
		dialer:  NewSimulatedDialer(requirePairing, nopLogger),
		events:  &recordingPublisher{},
		handler: &recordingHandler{},
	}
	f.manager = NewConnectionManager(f.dialer, f.events, nopLogger)
	f.manager.SetHandler(f.handler)
	t.Cleanup(f.manager.StopAll)
	return f
}

func (f *managerFixture) startConnected(t *testing.T, tenantID string) {
	t.Helper()
	_, err := f.manager.Start(context.Background(), tenantID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.manager.IsConnected(tenantID) }, eventually, tick)
}

func TestConnectionManager_StartIsIdempotent(t *testing.T) {
	f := newManagerFixture(t, false)
	f.startConnected(t, "t1")

	info, err := f.manager.Start(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionConnected, info.Status)
	assert.Equal(t, 1, f.dialer.DialCount("t1"))
	require.Eventually(t, func() bool { return len(f.events.ofType(models.EventConnected)) == 1 }, eventually, tick)
}

func TestConnectionManager_StartWhileAwaitingPairingIsIdempotent(t *testing.T) {
	f := newManagerFixture(t, true)

	_, err := f.manager.Start(context.Background(), "t1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.manager.Status("t1").Status == models.ConnectionAwaitingPairing
	}, eventually, tick)

	info, err := f.manager.Start(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionAwaitingPairing, info.Status)
	assert.Equal(t, 1, f.dialer.DialCount("t1"))
}

func TestConnectionManager_PairingFlow(t *testing.T) {
	f := newManagerFixture(t, true)

	_, err := f.manager.Start(context.Background(), "t1")
	require.NoError(t, err)

	code, err := f.dialer.PairingCode("t1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.manager.Status("t1").Status == models.ConnectionAwaitingPairing
	}, eventually, tick)

	assert.Equal(t, code, f.manager.Status("t1").PairingArtifact)
	require.Eventually(t, func() bool { return len(f.handler.artifacts()) == 1 }, eventually, tick)
	assert.Equal(t, []string{code}, f.handler.artifacts())
	assert.False(t, f.manager.IsConnected("t1"))

	assert.ErrorIs(t, f.dialer.Pair("t1", "000-000x"), ErrPairingMismatch)
	require.NoError(t, f.dialer.Pair("t1", code))

	require.Eventually(t, func() bool { return f.manager.IsConnected("t1") }, eventually, tick)
	status := f.manager.Status("t1")
	assert.Empty(t, status.PairingArtifact)
	assert.Empty(t, status.LastError)
	assert.False(t, status.LastConnected.IsZero())
}

func TestConnectionManager_SendRequiresConnection(t *testing.T) {
	f := newManagerFixture(t, true)

	err := f.manager.Send(context.Background(), "t1", "+1555", "hello")
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = f.manager.Start(context.Background(), "t1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.manager.Status("t1").Status == models.ConnectionAwaitingPairing
	}, eventually, tick)

	err = f.manager.Send(context.Background(), "t1", "+1555", "hello")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectionManager_SendReturnsTransportResult(t *testing.T) {
	f := newManagerFixture(t, false)
	f.startConnected(t, "t1")

	require.NoError(t, f.manager.Send(context.Background(), "t1", "+1555", "hello"))
	sent := f.dialer.Sent("t1")
	require.Len(t, sent, 1)
	assert.Equal(t, "+1555", sent[0].To)
	assert.Equal(t, "hello", sent[0].Text)

	f.dialer.FailSends("t1", errBoom)
	assert.ErrorIs(t, f.manager.Send(context.Background(), "t1", "+1555", "again"), errBoom)
	assert.Equal(t, 2, f.dialer.SendAttempts("t1"))
}

func TestConnectionManager_DialErrorIsIsolated(t *testing.T) {
	f := newManagerFixture(t, false)
	f.startConnected(t, "t1")

	f.dialer.FailDial("t2", errBoom)
	info, err := f.manager.Start(context.Background(), "t2")
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, models.ConnectionError, info.Status)
	assert.Equal(t, "boom", f.manager.Status("t2").LastError)

	assert.True(t, f.manager.IsConnected("t1"))
	errorsPublished := f.events.ofType(models.EventError)
	require.Len(t, errorsPublished, 1)
	assert.Equal(t, "t2", errorsPublished[0].TenantID)

	// A later start retries the dial
	f.dialer.FailDial("t2", nil)
	f.startConnected(t, "t2")
	assert.Empty(t, f.manager.Status("t2").LastError)
}

func TestConnectionManager_DisconnectDropsHandle(t *testing.T) {
	f := newManagerFixture(t, false)
	f.startConnected(t, "t1")

	require.NoError(t, f.dialer.Drop("t1", errBoom))
	require.Eventually(t, func() bool {
		return f.manager.Status("t1").Status == models.ConnectionDisconnected
	}, eventually, tick)

	assert.False(t, f.manager.IsConnected("t1"))
	assert.Equal(t, "boom", f.manager.Status("t1").LastError)
	assert.ErrorIs(t, f.manager.Send(context.Background(), "t1", "+1", "x"), ErrNotConnected)
	require.Eventually(t, func() bool { return len(f.events.ofType(models.EventDisconnected)) == 1 }, eventually, tick)

	f.startConnected(t, "t1")
	assert.Equal(t, 2, f.dialer.DialCount("t1"))
}

func TestConnectionManager_StopIsIdempotent(t *testing.T) {
	f := newManagerFixture(t, false)
	f.startConnected(t, "t1")

	f.manager.Stop("t1")
	f.manager.Stop("t1")
	f.manager.Stop("never-started")

	assert.Equal(t, models.ConnectionIdle, f.manager.Status("t1").Status)
	assert.False(t, f.manager.IsConnected("t1"))
	assert.Empty(t, f.manager.Statuses())

	disconnected := f.events.ofType(models.EventDisconnected)
	require.Len(t, disconnected, 1)
	assert.Equal(t, "stopped", disconnected[0].Detail)
}

func TestConnectionManager_RoutesInboundMessages(t *testing.T) {
	f := newManagerFixture(t, false)
	f.startConnected(t, "t1")

	require.NoError(t, f.dialer.Inject("t1", "+1555", "first"))
	require.NoError(t, f.dialer.Inject("t1", "+1555", "second"))

	require.Eventually(t, func() bool { return len(f.handler.messages()) == 2 }, eventually, tick)
	msgs := f.handler.messages()
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
}

func TestConnectionManager_Stale(t *testing.T) {
	clock := newManualClock()
	f := newManagerFixture(t, false)
	f.manager.now = clock.Now

	f.startConnected(t, "t1")
	f.dialer.FailDial("t2", errBoom)
	_, _ = f.manager.Start(context.Background(), "t2")

	assert.Empty(t, f.manager.Stale(10*time.Minute))

	clock.Advance(11 * time.Minute)
	stale := f.manager.Stale(10 * time.Minute)
	require.Len(t, stale, 2)
	assert.Equal(t, "t1", stale[0].TenantID)
	assert.Equal(t, "t2", stale[1].TenantID)

	// Traffic refreshes liveness
	require.NoError(t, f.dialer.Inject("t1", "+1555", "hi"))
	require.Eventually(t, func() bool { return len(f.handler.messages()) == 1 }, eventually, tick)
	stale = f.manager.Stale(10 * time.Minute)
	require.Len(t, stale, 1)
	assert.Equal(t, "t2", stale[0].TenantID)
}

func TestConnectionManager_Statuses(t *testing.T) {
	f := newManagerFixture(t, false)
	f.startConnected(t, "b")
	f.startConnected(t, "a")

	statuses := f.manager.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "a", statuses[0].TenantID)
	assert.Equal(t, "b", statuses[1].TenantID)
}

// trackedConn is a Conn that records whether it was closed.
type trackedConn struct {
	*eventStream
	closed atomic.Bool
}

func (c *trackedConn) Send(context.Context, string, string) error { return nil }

func (c *trackedConn) Close() error {
	c.closed.Store(true)
	c.close()
	return nil
}

// gatedDialer hands out trackedConns, holding every Dial until release is
// closed.
type gatedDialer struct {
	mu      sync.Mutex
	conns   []*trackedConn
	release chan struct{}
}

func (d *gatedDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	conn := &trackedConn{eventStream: newEventStream()}
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()

	select {
	case <-d.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	conn.emit(TransportEvent{Type: TransportConnected})
	return conn, nil
}

func (d *gatedDialer) dialed() []*trackedConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*trackedConn(nil), d.conns...)
}

func TestConnectionManager_DialOutlivingStopIsClosed(t *testing.T) {
	dialer := &gatedDialer{release: make(chan struct{})}
	manager := NewConnectionManager(dialer, &recordingPublisher{}, nopLogger)
	manager.SetHandler(&recordingHandler{})

	var wg sync.WaitGroup
	start := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Start(context.Background(), "t1")
			assert.NoError(t, err)
		}()
	}

	start()
	require.Eventually(t, func() bool { return len(dialer.dialed()) == 1 }, eventually, tick)
	manager.Stop("t1")

	start()
	require.Eventually(t, func() bool { return len(dialer.dialed()) == 2 }, eventually, tick)

	close(dialer.release)
	wg.Wait()

	conns := dialer.dialed()
	assert.True(t, conns[0].closed.Load(), "connection dialed before Stop must be closed")
	assert.False(t, conns[1].closed.Load())
	require.Eventually(t, func() bool { return manager.IsConnected("t1") }, eventually, tick)

	manager.Stop("t1")
	assert.True(t, conns[1].closed.Load())
	assert.False(t, manager.IsConnected("t1"))
}
