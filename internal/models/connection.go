package models

import "time"

// ConnectionStatus is the lifecycle state of a tenant's transport connection.
type ConnectionStatus string

const (
	ConnectionIdle            ConnectionStatus = "idle"
	ConnectionConnecting      ConnectionStatus = "connecting"
	ConnectionAwaitingPairing ConnectionStatus = "awaiting-pairing"
	ConnectionConnected       ConnectionStatus = "connected"
	ConnectionError           ConnectionStatus = "error"
	ConnectionDisconnected    ConnectionStatus = "disconnected"
)

// TenantConnection is a point-in-time snapshot of a tenant's connection.
type TenantConnection struct {
	TenantID        string           `json:"tenant_id"`
	Status          ConnectionStatus `json:"status"`
	PairingArtifact string           `json:"pairing_artifact,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	LastConnected   time.Time        `json:"last_connected,omitempty"`
	LastError       string           `json:"last_error,omitempty"`
}
