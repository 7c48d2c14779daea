package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
	"github.com/Ananth-NQI/menuchat-backend/internal/services"
)

// Pinger checks that a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionLister lists tenant connections.
type ConnectionLister interface {
	Statuses() []models.TenantConnection
}

// SessionStatter reports session statistics.
type SessionStatter interface {
	Stats() *services.SessionStats
}

// HealthHandler handles health check requests
type HealthHandler struct {
	Version   string
	Storage   string
	Transport string

	store    Pinger
	conns    ConnectionLister
	sessions SessionStatter
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, storage, transport string, store Pinger, conns ConnectionLister, sessions SessionStatter) *HealthHandler {
	return &HealthHandler{
		Version:   version,
		Storage:   storage,
		Transport: transport,
		store:     store,
		conns:     conns,
		sessions:  sessions,
	}
}

// Check returns the health status of the service. Storage being unreachable
// makes the service unhealthy; tenant connections are reported, not judged.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	statusCode := fiber.StatusOK
	storage := fiber.Map{"type": h.Storage, "status": "connected"}
	if err := h.store.Ping(ctx); err != nil {
		status = "unhealthy"
		statusCode = fiber.StatusServiceUnavailable
		storage["status"] = "error: " + err.Error()
	}

	byStatus := make(map[models.ConnectionStatus]int)
	for _, conn := range h.conns.Statuses() {
		byStatus[conn.Status]++
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"service":   "MenuChat Backend",
		"version":   h.Version,
		"storage":   storage,
		"transport": h.Transport,
		"tenants":   byStatus,
		"sessions":  h.sessions.Stats().ActiveSessions,
	})
}

// Sessions returns session statistics.
func (h *HealthHandler) Sessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"stats":   h.sessions.Stats(),
	})
}
