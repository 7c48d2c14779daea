package models

import "time"

// EventType names an operator-facing event.
type EventType string

const (
	EventPairingReady EventType = "pairing-ready"
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventDegraded     EventType = "degraded"
	EventError        EventType = "error"
)

// OperatorEvent is pushed to dashboards watching a tenant.
type OperatorEvent struct {
	Type     EventType `json:"type"`
	TenantID string    `json:"tenant_id"`
	Artifact string    `json:"artifact,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}
