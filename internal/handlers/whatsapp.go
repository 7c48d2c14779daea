package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/menuchat-backend/internal/services"
	"github.com/Ananth-NQI/menuchat-backend/internal/utils"
)

// Deliverer hands webhook messages to a tenant's live connection.
type Deliverer interface {
	Deliver(tenantID string, msg services.InboundMessage) error
}

// WhatsAppHandler handles Twilio WhatsApp webhook requests
type WhatsAppHandler struct {
	deliverer Deliverer
	logger    zerolog.Logger
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(deliverer Deliverer, logger zerolog.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{
		deliverer: deliverer,
		logger:    logger,
	}
}

// TwilioWebhookPayload represents incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid          string `form:"MessageSid"`
	AccountSid          string `form:"AccountSid"`
	MessagingServiceSid string `form:"MessagingServiceSid"`
	From                string `form:"From"` // WhatsApp number (whatsapp:+919876543210)
	To                  string `form:"To"`   // Tenant's Twilio number
	Body                string `form:"Body"` // Message text
	NumMedia            string `form:"NumMedia"`
}

// HandleWebhook feeds an inbound WhatsApp message into the tenant's
// connection. Status callbacks (no body) are acknowledged and ignored.
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	tenantID := c.Params("tenantID")

	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		h.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("unparseable webhook payload")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	if payload.From == "" || payload.Body == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	h.logger.Info().
		Str("tenant_id", tenantID).
		Str("from", utils.NormalizeAddress(payload.From)).
		Str("sid", payload.MessageSid).
		Str("body", utils.Truncate(payload.Body, 40)).
		Msg("WhatsApp message received")

	err := h.deliverer.Deliver(tenantID, services.InboundMessage{
		ID:         payload.MessageSid,
		From:       payload.From,
		Text:       payload.Body,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("could not deliver webhook message")
		status := fiber.StatusInternalServerError
		if errors.Is(err, services.ErrNotConnected) || errors.Is(err, services.ErrTransportClosed) {
			// Twilio retries; the retry is deduplicated by MessageSid.
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	// Acknowledge webhook receipt
	return c.SendStatus(fiber.StatusOK)
}
