package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/menuchat-backend/internal/utils"
)

// SentMessage is an outbound message recorded by the simulated transport.
type SentMessage struct {
	To   string    `json:"to"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// SimulatedDialer is an in-process transport with a QR-style pairing flow.
// Dial issues a pairing code; the connection becomes live once Pair is called
// with that code. It backs development mode and tests.
type SimulatedDialer struct {
	requirePairing bool
	logger         zerolog.Logger

	mu        sync.Mutex
	conns     map[string]*SimulatedConn
	dialErrs  map[string]error
	sendErrs  map[string]error
	dialCount map[string]int
}

// NewSimulatedDialer creates a simulated transport. With requirePairing
// false, connections report connected immediately.
func NewSimulatedDialer(requirePairing bool, logger zerolog.Logger) *SimulatedDialer {
	return &SimulatedDialer{
		requirePairing: requirePairing,
		logger:         logger.With().Str("transport", "simulated").Logger(),
		conns:          make(map[string]*SimulatedConn),
		dialErrs:       make(map[string]error),
		sendErrs:       make(map[string]error),
		dialCount:      make(map[string]int),
	}
}

// SimulatedConn is one simulated tenant connection.
type SimulatedConn struct {
	*eventStream
	tenantID    string
	pairingCode string
	dialer      *SimulatedDialer

	mu       sync.Mutex
	paired   bool
	sent     []SentMessage
	attempts int
}

// Dial implements Dialer.
func (d *SimulatedDialer) Dial(_ context.Context, tenantID string) (Conn, error) {
	d.mu.Lock()
	d.dialCount[tenantID]++
	if err, ok := d.dialErrs[tenantID]; ok {
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	conn := &SimulatedConn{
		eventStream: newEventStream(),
		tenantID:    tenantID,
		dialer:      d,
	}

	if d.requirePairing {
		code, err := utils.GeneratePairingCode()
		if err != nil {
			return nil, err
		}
		conn.pairingCode = code
		conn.emit(TransportEvent{Type: TransportPairing, Artifact: code})
	} else {
		conn.paired = true
		conn.emit(TransportEvent{Type: TransportConnected})
	}

	d.mu.Lock()
	d.conns[tenantID] = conn
	d.mu.Unlock()

	d.logger.Debug().Str("tenant_id", tenantID).Bool("pairing", d.requirePairing).Msg("simulated connection dialed")
	return conn, nil
}

func (d *SimulatedDialer) conn(tenantID string) (*SimulatedConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, ok := d.conns[tenantID]
	if !ok || conn.isClosed() {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, tenantID)
	}
	return conn, nil
}

// PairingCode returns the code issued to the tenant's open connection.
func (d *SimulatedDialer) PairingCode(tenantID string) (string, error) {
	conn, err := d.conn(tenantID)
	if err != nil {
		return "", err
	}
	return conn.pairingCode, nil
}

// Pair completes pairing for the tenant if code matches the issued code.
func (d *SimulatedDialer) Pair(tenantID, code string) error {
	conn, err := d.conn(tenantID)
	if err != nil {
		return err
	}

	conn.mu.Lock()
	if conn.paired {
		conn.mu.Unlock()
		return nil
	}
	if code != conn.pairingCode {
		conn.mu.Unlock()
		return ErrPairingMismatch
	}
	conn.paired = true
	conn.mu.Unlock()

	conn.emit(TransportEvent{Type: TransportConnected})
	return nil
}

// Inject delivers an inbound customer message through the tenant's connection.
func (d *SimulatedDialer) Inject(tenantID, from, text string) error {
	conn, err := d.conn(tenantID)
	if err != nil {
		return err
	}
	msg := &InboundMessage{
		ID:         uuid.New().String(),
		From:       from,
		Text:       text,
		ReceivedAt: time.Now(),
	}
	if !conn.emit(TransportEvent{Type: TransportMessage, Message: msg}) {
		return ErrTransportClosed
	}
	return nil
}

// Drop simulates the transport losing the tenant's connection.
func (d *SimulatedDialer) Drop(tenantID string, cause error) error {
	conn, err := d.conn(tenantID)
	if err != nil {
		return err
	}
	conn.emit(TransportEvent{Type: TransportDisconnected, Err: cause})
	return nil
}

// FailDial makes every subsequent Dial for tenantID fail with err; a nil err
// clears the failure.
func (d *SimulatedDialer) FailDial(tenantID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.dialErrs, tenantID)
		return
	}
	d.dialErrs[tenantID] = err
}

// FailSends makes every Send for tenantID fail with err; a nil err clears it.
func (d *SimulatedDialer) FailSends(tenantID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.sendErrs, tenantID)
		return
	}
	d.sendErrs[tenantID] = err
}

// Sent returns the messages successfully sent through the tenant's current
// connection.
func (d *SimulatedDialer) Sent(tenantID string) []SentMessage {
	conn, err := d.conn(tenantID)
	if err != nil {
		return nil
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return append([]SentMessage(nil), conn.sent...)
}

// SendAttempts returns how many sends were attempted on the tenant's current
// connection, failed ones included.
func (d *SimulatedDialer) SendAttempts(tenantID string) int {
	conn, err := d.conn(tenantID)
	if err != nil {
		return 0
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.attempts
}

// DialCount returns how many times Dial was called for the tenant.
func (d *SimulatedDialer) DialCount(tenantID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialCount[tenantID]
}

// Send implements Conn.
func (c *SimulatedConn) Send(_ context.Context, to, text string) error {
	if c.isClosed() {
		return ErrTransportClosed
	}

	c.dialer.mu.Lock()
	sendErr := c.dialer.sendErrs[c.tenantID]
	c.dialer.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts++
	if sendErr != nil {
		return sendErr
	}
	c.sent = append(c.sent, SentMessage{To: to, Text: text, At: time.Now()})
	c.dialer.logger.Debug().
		Str("tenant_id", c.tenantID).
		Str("to", to).
		Str("text", utils.Truncate(text, 50)).
		Msg("simulated message sent")
	return nil
}

// Close implements Conn.
func (c *SimulatedConn) Close() error {
	c.close()
	return nil
}
