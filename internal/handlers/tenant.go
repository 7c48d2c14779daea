package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
	"github.com/Ananth-NQI/menuchat-backend/internal/services"
	"github.com/Ananth-NQI/menuchat-backend/internal/storage"
)

const sseKeepAlive = 15 * time.Second

// ConnectionController is the tenant connection lifecycle.
type ConnectionController interface {
	Start(ctx context.Context, tenantID string) (models.TenantConnection, error)
	Stop(tenantID string)
	Status(tenantID string) models.TenantConnection
	Statuses() []models.TenantConnection
}

// MessageRouter accepts inbound customer messages.
type MessageRouter interface {
	Route(ctx context.Context, tenantID string, msg services.InboundMessage) <-chan error
}

// EventSubscriber streams operator events.
type EventSubscriber interface {
	Subscribe(ctx context.Context, tenantID string) (<-chan models.OperatorEvent, string)
}

// Pairer completes a pairing handshake with the code shown to the operator.
type Pairer interface {
	Pair(tenantID, code string) error
}

// TenantLookup finds tenants.
type TenantLookup interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
}

// TenantHandler serves the tenant connection endpoints.
type TenantHandler struct {
	tenants      TenantLookup
	connections  ConnectionController
	router       MessageRouter
	events       EventSubscriber
	pairer       Pairer // nil unless the transport pairs by code
	simulateWait time.Duration
	logger       zerolog.Logger
}

// NewTenantHandler creates a tenant handler. pairer may be nil.
func NewTenantHandler(tenants TenantLookup, connections ConnectionController, router MessageRouter, events EventSubscriber, pairer Pairer, simulateWait time.Duration, logger zerolog.Logger) *TenantHandler {
	return &TenantHandler{
		tenants:      tenants,
		connections:  connections,
		router:       router,
		events:       events,
		pairer:       pairer,
		simulateWait: simulateWait,
		logger:       logger,
	}
}

// Start opens the tenant's transport connection.
func (h *TenantHandler) Start(c *fiber.Ctx) error {
	tenantID := c.Params("id")
	if err := h.requireTenant(c.UserContext(), tenantID); err != nil {
		return err
	}

	conn, err := h.connections.Start(c.UserContext(), tenantID)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":      err.Error(),
			"connection": conn,
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":    true,
		"connection": conn,
	})
}

// Stop closes the tenant's transport connection. Stopping an idle tenant
// succeeds.
func (h *TenantHandler) Stop(c *fiber.Ctx) error {
	tenantID := c.Params("id")
	h.connections.Stop(tenantID)

	return c.JSON(fiber.Map{
		"success":    true,
		"connection": h.connections.Status(tenantID),
	})
}

// Status reports one tenant's connection.
func (h *TenantHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":    true,
		"connection": h.connections.Status(c.Params("id")),
	})
}

// StatusAll reports every known tenant connection.
func (h *TenantHandler) StatusAll(c *fiber.Ctx) error {
	statuses := h.connections.Statuses()
	return c.JSON(fiber.Map{
		"success":     true,
		"connections": statuses,
		"count":       len(statuses),
	})
}

// Pair submits the pairing code the operator read off the pairing event.
func (h *TenantHandler) Pair(c *fiber.Ctx) error {
	if h.pairer == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "transport does not pair by code")
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "code is required",
		})
	}

	tenantID := c.Params("id")
	if err := h.pairer.Pair(tenantID, req.Code); err != nil {
		status := fiber.StatusConflict
		if errors.Is(err, services.ErrPairingMismatch) {
			status = fiber.StatusUnauthorized
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"success": true})
}

// SimulateRequest is an inbound message injected over HTTP.
type SimulateRequest struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// Simulate routes a message as if the tenant's transport had received it and
// waits for it to be processed.
func (h *TenantHandler) Simulate(c *fiber.Ctx) error {
	tenantID := c.Params("id")

	var req SimulateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.From == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "from is required",
		})
	}
	if err := h.requireTenant(c.UserContext(), tenantID); err != nil {
		return err
	}

	msg := services.InboundMessage{
		ID:         "sim-" + uuid.New().String(),
		From:       req.From,
		Text:       req.Text,
		ReceivedAt: time.Now(),
	}
	h.logger.Debug().Str("tenant_id", tenantID).Str("from", req.From).Msg("simulated inbound message")

	done := h.router.Route(context.Background(), tenantID, msg)

	select {
	case err := <-done:
		switch {
		case err == nil:
			return c.JSON(fiber.Map{"success": true, "status": "processed", "message_id": msg.ID})
		case errors.Is(err, services.ErrNotAllowed):
			return c.JSON(fiber.Map{"success": true, "status": "dropped", "message_id": msg.ID})
		case errors.Is(err, services.ErrNotConnected):
			// The conversation advanced; only the replies were lost.
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"status":     "undelivered",
				"message_id": msg.ID,
				"error":      err.Error(),
			})
		default:
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"message_id": msg.ID,
				"error":      err.Error(),
			})
		}
	case <-time.After(h.simulateWait):
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"success":    true,
			"status":     "queued",
			"message_id": msg.ID,
		})
	}
}

// Events streams operator events for one tenant (or "*" for all) as
// server-sent events. The first event is the current connection status.
func (h *TenantHandler) Events(c *fiber.Ctx) error {
	tenantID := c.Params("id")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(context.Background())
	events, subID := h.events.Subscribe(ctx, tenantID)

	var initial []models.TenantConnection
	if tenantID == services.AllTenants {
		initial = h.connections.Statuses()
	} else {
		initial = []models.TenantConnection{h.connections.Status(tenantID)}
	}

	h.logger.Debug().Str("tenant_id", tenantID).Str("sub_id", subID).Msg("operator event stream opened")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		for _, conn := range initial {
			if err := writeSSE(w, "status", conn); err != nil {
				return
			}
		}

		ticker := time.NewTicker(sseKeepAlive)
		defer ticker.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := writeSSE(w, string(ev.Type), ev); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func (h *TenantHandler) requireTenant(ctx context.Context, tenantID string) error {
	if _, err := h.tenants.GetTenant(ctx, tenantID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "tenant not found")
		}
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return nil
}

func writeSSE(w *bufio.Writer, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
