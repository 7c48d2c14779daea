package services

import "errors"

var (
	// ErrNotConnected is returned by Send when the tenant has no connected
	// transport. Callers decide whether to retry; the core never does.
	ErrNotConnected = errors.New("tenant transport not connected")

	// ErrTenantNotFound indicates the tenant is unknown to the store.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrConfigUnavailable means no tenant config could be loaded and none is
	// cached.
	ErrConfigUnavailable = errors.New("tenant config unavailable")

	// ErrPersistenceFailure wraps an order that could not be saved.
	ErrPersistenceFailure = errors.New("order persistence failed")

	// ErrNotAllowed is returned when privacy mode rejects an address.
	ErrNotAllowed = errors.New("address not on allow-list")

	// ErrPairingMismatch is returned when a pairing code does not match the
	// one issued to the tenant.
	ErrPairingMismatch = errors.New("pairing code mismatch")

	// ErrTransportClosed is returned when sending through a closed connection.
	ErrTransportClosed = errors.New("transport connection closed")

	// ErrRouterClosed is returned for messages routed after shutdown began.
	ErrRouterClosed = errors.New("router closed")

	// ErrInvalidAddress is returned for inbound messages without a sender.
	ErrInvalidAddress = errors.New("invalid customer address")
)
