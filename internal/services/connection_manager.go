package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
)

// InboundHandler receives what the manager's pumps read off transports.
type InboundHandler interface {
	Route(ctx context.Context, tenantID string, msg InboundMessage) <-chan error
	ForwardPairing(tenantID, artifact string)
}

// EventPublisher pushes operator events outward.
type EventPublisher interface {
	Publish(ev models.OperatorEvent)
}

// ConnectionManager owns one transport connection per tenant. Each tenant is
// an isolated unit of failure: a dial error or a dropped connection never
// touches other tenants.
type ConnectionManager struct {
	dialer  Dialer
	events  EventPublisher
	logger  zerolog.Logger
	now     func() time.Time
	handler InboundHandler

	mu      sync.RWMutex
	conns   map[string]*tenantConn
	nextGen uint64 // Never reset, so a dial outliving Stop+Start is still told apart
}

type tenantConn struct {
	info   models.TenantConnection
	conn   Conn
	cancel context.CancelFunc
	gen    uint64 // Unique per dial so stale dials and pumps can tell they were replaced
}

// NewConnectionManager creates a manager dialing through dialer.
func NewConnectionManager(dialer Dialer, events EventPublisher, logger zerolog.Logger) *ConnectionManager {
	return &ConnectionManager{
		dialer: dialer,
		events: events,
		logger: logger,
		now:    time.Now,
		conns:  make(map[string]*tenantConn),
	}
}

// SetHandler wires the router. It must be called before the first Start.
func (m *ConnectionManager) SetHandler(handler InboundHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Start opens the tenant's connection. It is idempotent: a tenant that is
// connected, dialing or waiting for pairing gets its current status back.
func (m *ConnectionManager) Start(ctx context.Context, tenantID string) (models.TenantConnection, error) {
	m.mu.Lock()
	tc, exists := m.conns[tenantID]
	if exists && (tc.conn != nil || tc.info.Status == models.ConnectionConnecting) {
		info := tc.info
		m.mu.Unlock()
		return info, nil
	}
	if !exists {
		tc = &tenantConn{info: models.TenantConnection{TenantID: tenantID}}
		m.conns[tenantID] = tc
	}
	m.nextGen++
	tc.gen = m.nextGen
	gen := tc.gen
	tc.info.Status = models.ConnectionConnecting
	tc.info.StartedAt = m.now()
	tc.info.PairingArtifact = ""
	tc.info.LastError = ""
	m.mu.Unlock()

	m.logger.Info().Str("tenant_id", tenantID).Msg("connecting tenant transport")

	conn, err := m.dialer.Dial(ctx, tenantID)

	m.mu.Lock()
	cur, ok := m.conns[tenantID]
	if !ok || cur.gen != gen {
		// Stopped while dialing
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return models.TenantConnection{TenantID: tenantID, Status: models.ConnectionIdle}, nil
	}

	if err != nil {
		cur.info.Status = models.ConnectionError
		cur.info.LastError = err.Error()
		info := cur.info
		m.mu.Unlock()

		m.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("tenant transport dial failed")
		m.publish(models.OperatorEvent{Type: models.EventError, TenantID: tenantID, Detail: err.Error()})
		return info, fmt.Errorf("dial tenant %s: %w", tenantID, err)
	}

	oldConn, oldCancel := cur.conn, cur.cancel
	pumpCtx, cancel := context.WithCancel(context.Background())
	cur.conn = conn
	cur.cancel = cancel
	info := cur.info
	m.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}
	if oldConn != nil && oldConn != conn {
		_ = oldConn.Close()
	}

	go m.pump(pumpCtx, tenantID, gen, conn)
	return info, nil
}

// Stop closes the tenant's connection and forgets it. Customer sessions are
// not touched so a later Start resumes mid-order.
func (m *ConnectionManager) Stop(tenantID string) {
	m.mu.Lock()
	tc, exists := m.conns[tenantID]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.conns, tenantID)
	m.mu.Unlock()

	if tc.cancel != nil {
		tc.cancel()
	}
	if tc.conn != nil {
		if err := tc.conn.Close(); err != nil {
			m.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("closing tenant transport")
		}
	}

	m.logger.Info().Str("tenant_id", tenantID).Msg("tenant transport stopped")
	m.publish(models.OperatorEvent{Type: models.EventDisconnected, TenantID: tenantID, Detail: "stopped"})
}

// StopAll stops every tenant, used at shutdown.
func (m *ConnectionManager) StopAll() {
	for _, info := range m.Statuses() {
		m.Stop(info.TenantID)
	}
}

// Status returns a snapshot of the tenant's connection. Unknown tenants are
// reported idle.
func (m *ConnectionManager) Status(tenantID string) models.TenantConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tc, ok := m.conns[tenantID]
	if !ok {
		return models.TenantConnection{TenantID: tenantID, Status: models.ConnectionIdle}
	}
	return tc.info
}

// IsConnected reports whether the tenant can send right now.
func (m *ConnectionManager) IsConnected(tenantID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tc, ok := m.conns[tenantID]
	return ok && tc.conn != nil && tc.info.Status == models.ConnectionConnected
}

// Statuses returns every known tenant connection ordered by tenant ID.
func (m *ConnectionManager) Statuses() []models.TenantConnection {
	m.mu.RLock()
	result := make([]models.TenantConnection, 0, len(m.conns))
	for _, tc := range m.conns {
		result = append(result, tc.info)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].TenantID < result[j].TenantID })
	return result
}

// Stale returns the connections whose last-connected time (or start time,
// for tenants that never connected) is older than threshold.
func (m *ConnectionManager) Stale(threshold time.Duration) []models.TenantConnection {
	now := m.now()
	var stale []models.TenantConnection
	for _, info := range m.Statuses() {
		ref := info.LastConnected
		if ref.IsZero() {
			ref = info.StartedAt
		}
		if now.Sub(ref) > threshold {
			stale = append(stale, info)
		}
	}
	return stale
}

// Send delivers text to a customer through the tenant's connection. It fails
// with ErrNotConnected unless the tenant is connected and otherwise returns
// the transport's result unchanged.
func (m *ConnectionManager) Send(ctx context.Context, tenantID, to, text string) error {
	m.mu.RLock()
	tc, ok := m.conns[tenantID]
	var conn Conn
	if ok && tc.info.Status == models.ConnectionConnected {
		conn = tc.conn
	}
	m.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, tenantID)
	}
	return conn.Send(ctx, to, text)
}

// pump is the tenant's dedicated event loop; it consumes the connection's
// events serially until the connection dies or the tenant is stopped.
func (m *ConnectionManager) pump(ctx context.Context, tenantID string, gen uint64, conn Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-conn.Events():
			if !m.handleEvent(ctx, tenantID, gen, conn, ev) {
				return
			}
		}
	}
}

// handleEvent applies one transport event. It returns false when the pump
// should exit.
func (m *ConnectionManager) handleEvent(ctx context.Context, tenantID string, gen uint64, conn Conn, ev TransportEvent) bool {
	m.mu.Lock()
	tc, ok := m.conns[tenantID]
	if !ok || tc.gen != gen {
		m.mu.Unlock()
		return false
	}
	handler := m.handler

	switch ev.Type {
	case TransportPairing:
		tc.info.Status = models.ConnectionAwaitingPairing
		tc.info.PairingArtifact = ev.Artifact
		m.mu.Unlock()

		m.logger.Info().Str("tenant_id", tenantID).Msg("tenant awaiting pairing")
		if handler != nil {
			handler.ForwardPairing(tenantID, ev.Artifact)
		}

	case TransportConnected:
		tc.info.Status = models.ConnectionConnected
		tc.info.PairingArtifact = ""
		tc.info.LastError = ""
		tc.info.LastConnected = m.now()
		m.mu.Unlock()

		m.logger.Info().Str("tenant_id", tenantID).Msg("tenant transport connected")
		m.publish(models.OperatorEvent{Type: models.EventConnected, TenantID: tenantID})

	case TransportDisconnected:
		tc.info.Status = models.ConnectionDisconnected
		if ev.Err != nil {
			tc.info.LastError = ev.Err.Error()
		}
		tc.conn = nil
		cancel := tc.cancel
		tc.cancel = nil
		m.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		_ = conn.Close()

		detail := ""
		if ev.Err != nil {
			detail = ev.Err.Error()
		}
		m.logger.Warn().Str("tenant_id", tenantID).Str("cause", detail).Msg("tenant transport disconnected")
		m.publish(models.OperatorEvent{Type: models.EventDisconnected, TenantID: tenantID, Detail: detail})
		return false

	case TransportHeartbeat:
		if tc.info.Status == models.ConnectionConnected {
			tc.info.LastConnected = m.now()
		}
		m.mu.Unlock()

	case TransportMessage:
		if tc.info.Status == models.ConnectionConnected {
			tc.info.LastConnected = m.now()
		}
		m.mu.Unlock()

		if ev.Message == nil {
			return true
		}
		if handler == nil {
			m.logger.Warn().Str("tenant_id", tenantID).Msg("dropping inbound message, no handler wired")
			return true
		}
		handler.Route(ctx, tenantID, *ev.Message)

	default:
		m.mu.Unlock()
		m.logger.Debug().Str("tenant_id", tenantID).Str("type", string(ev.Type)).Msg("ignoring unknown transport event")
	}
	return true
}

func (m *ConnectionManager) publish(ev models.OperatorEvent) {
	if m.events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = m.now()
	}
	m.events.Publish(ev)
}
