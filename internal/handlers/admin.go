package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/menuchat-backend/internal/models"
	"github.com/Ananth-NQI/menuchat-backend/internal/storage"
	"github.com/Ananth-NQI/menuchat-backend/internal/utils"
)

// Invalidator drops a tenant's cached data.
type Invalidator interface {
	Invalidate(tenantID string)
}

// AdminHandler handles tenant administration
type AdminHandler struct {
	store     storage.Store
	configs   Invalidator
	allowList Invalidator
	logger    zerolog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store storage.Store, configs, allowList Invalidator, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		store:     store,
		configs:   configs,
		allowList: allowList,
		logger:    logger,
	}
}

// ListTenants lists every tenant with its menu and prices
func (h *AdminHandler) ListTenants(c *fiber.Ctx) error {
	tenants, err := h.store.ListTenants(c.UserContext())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list tenants")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch tenants",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"tenants": tenants,
		"count":   len(tenants),
	})
}

// GetTenant returns one tenant
func (h *AdminHandler) GetTenant(c *fiber.Ctx) error {
	tenant, err := h.store.GetTenant(c.UserContext(), c.Params("id"))
	if err != nil {
		return notFoundOr500(c, err, "tenant")
	}
	return c.JSON(fiber.Map{"success": true, "tenant": tenant})
}

// SaveTenant creates or replaces a tenant. New prices apply from the next
// priced step of every conversation.
func (h *AdminHandler) SaveTenant(c *fiber.Ctx) error {
	var tenant models.Tenant
	if err := c.BodyParser(&tenant); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	tenant.ID = c.Params("id")
	if tenant.Name == "" || len(tenant.MenuItems) == 0 || len(tenant.Sizes) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name, menu_items and sizes are required",
		})
	}
	if tenant.OpenHours != "" {
		if _, _, err := models.ParseOpenHours(tenant.OpenHours); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	tenant.FillPositions()

	// Credentials are never accepted over the API; keep the stored ones.
	if existing, err := h.store.GetTenant(c.UserContext(), tenant.ID); err == nil {
		tenant.MatrixAccessToken = existing.MatrixAccessToken
		tenant.CreatedAt = existing.CreatedAt
	}

	if err := h.store.SaveTenant(c.UserContext(), &tenant); err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenant.ID).Msg("failed to save tenant")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save tenant",
		})
	}
	h.configs.Invalidate(tenant.ID)

	h.logger.Info().Str("tenant_id", tenant.ID).Msg("tenant saved")
	return c.JSON(fiber.Map{"success": true, "tenant": tenant})
}

// ListOrders lists a tenant's orders
func (h *AdminHandler) ListOrders(c *fiber.Ctx) error {
	orders, err := h.store.GetOrdersByTenant(c.UserContext(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch orders",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"orders":  orders,
		"count":   len(orders),
	})
}

// GetOrder returns one order
func (h *AdminHandler) GetOrder(c *fiber.Ctx) error {
	order, err := h.store.GetOrder(c.UserContext(), c.Params("orderID"))
	if err != nil {
		return notFoundOr500(c, err, "order")
	}
	return c.JSON(fiber.Map{"success": true, "order": order})
}

// GetAllowList returns a tenant's allowed customer addresses
func (h *AdminHandler) GetAllowList(c *fiber.Ctx) error {
	addresses, err := h.store.ListAllowList(c.UserContext(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch allow-list",
		})
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"addresses": addresses,
		"count":     len(addresses),
	})
}

// AddAllowListEntry allows one more customer address
func (h *AdminHandler) AddAllowListEntry(c *fiber.Ctx) error {
	tenantID := c.Params("id")

	var req struct {
		Address string `json:"address"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	address := utils.NormalizeAddress(req.Address)
	if address == "" || strings.ContainsAny(address, " \t") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "a single address is required",
		})
	}

	if _, err := h.store.GetTenant(c.UserContext(), tenantID); err != nil {
		return notFoundOr500(c, err, "tenant")
	}
	if err := h.store.AddAllowListEntry(c.UserContext(), tenantID, address); err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to add allow-list entry")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to add allow-list entry",
		})
	}
	h.allowList.Invalidate(tenantID)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"address": address,
	})
}

func notFoundOr500(c *fiber.Ctx, err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": what + " not found",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to fetch " + what,
	})
}
