package services

import (
	"context"
	"sync"
	"time"
)

// TransportEventType enumerates what a transport connection can report.
type TransportEventType string

const (
	TransportPairing      TransportEventType = "pairing"
	TransportConnected    TransportEventType = "connected"
	TransportDisconnected TransportEventType = "disconnected"
	TransportMessage      TransportEventType = "message"
	TransportHeartbeat    TransportEventType = "heartbeat"
)

// InboundMessage is a text message received from a customer.
type InboundMessage struct {
	ID         string    `json:"id,omitempty"` // Transport message ID, used for dedupe
	From       string    `json:"from"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// TransportEvent is one item of a connection's event stream.
type TransportEvent struct {
	Type     TransportEventType
	Artifact string          // Pairing code or QR payload, for TransportPairing
	Message  *InboundMessage // For TransportMessage
	Err      error           // Cause, for TransportDisconnected
}

// Conn is one tenant's live transport connection.
//
// Events are delivered in order on a single channel. After a
// TransportDisconnected event the connection is dead and the manager drops it.
type Conn interface {
	Events() <-chan TransportEvent
	Send(ctx context.Context, to, text string) error
	Close() error
}

// Dialer opens transport connections for tenants.
type Dialer interface {
	Dial(ctx context.Context, tenantID string) (Conn, error)
}

const eventBufferSize = 64

// eventStream is the shared plumbing behind every Conn implementation: it
// turns push callbacks from a transport library into an ordered channel.
type eventStream struct {
	events chan TransportEvent
	done   chan struct{}
	once   sync.Once
}

func newEventStream() *eventStream {
	return &eventStream{
		events: make(chan TransportEvent, eventBufferSize),
		done:   make(chan struct{}),
	}
}

// emit blocks until the event is queued or the stream is closed. It returns
// false when the stream was closed.
func (s *eventStream) emit(ev TransportEvent) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *eventStream) Events() <-chan TransportEvent {
	return s.events
}

func (s *eventStream) close() bool {
	closed := false
	s.once.Do(func() {
		close(s.done)
		closed = true
	})
	return closed
}

func (s *eventStream) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
