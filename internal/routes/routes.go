package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Ananth-NQI/menuchat-backend/internal/handlers"
)

// Handlers bundles everything SetupRoutes mounts. WhatsApp and
// TwilioAuth are nil unless the Twilio transport is in use.
type Handlers struct {
	Tenant     *handlers.TenantHandler
	Admin      *handlers.AdminHandler
	Health     *handlers.HealthHandler
	WhatsApp   *handlers.WhatsAppHandler
	TwilioAuth fiber.Handler
}

// NewApp creates the fiber app with the shared error handler and middleware.
func NewApp(appName string, requestLogging bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: appName,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	if requestLogging {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	return app
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, h Handlers) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to MenuChat Backend!",
			"version": h.Health.Version,
			"endpoints": fiber.Map{
				"health":  "/health",
				"api":     "/api",
				"webhook": "/webhook/twilio/:tenantID",
			},
		})
	})

	app.Get("/health", h.Health.Check)

	api := app.Group("/api")
	api.Get("/sessions", h.Health.Sessions)

	// Tenant connection lifecycle
	tenants := api.Group("/tenants")
	tenants.Get("/status", h.Tenant.StatusAll)
	tenants.Post("/:id/start", h.Tenant.Start)
	tenants.Post("/:id/stop", h.Tenant.Stop)
	tenants.Get("/:id/status", h.Tenant.Status)
	tenants.Post("/:id/pair", h.Tenant.Pair)
	tenants.Post("/:id/simulate", h.Tenant.Simulate)
	tenants.Get("/:id/events", h.Tenant.Events)

	// Tenant administration
	admin := api.Group("/admin")
	admin.Get("/tenants", h.Admin.ListTenants)
	admin.Get("/tenants/:id", h.Admin.GetTenant)
	admin.Put("/tenants/:id", h.Admin.SaveTenant)
	admin.Get("/tenants/:id/orders", h.Admin.ListOrders)
	admin.Get("/tenants/:id/allowlist", h.Admin.GetAllowList)
	admin.Post("/tenants/:id/allowlist", h.Admin.AddAllowListEntry)
	admin.Get("/orders/:orderID", h.Admin.GetOrder)

	if h.WhatsApp != nil {
		webhook := app.Group("/webhook")
		if h.TwilioAuth != nil {
			webhook.Post("/twilio/:tenantID", h.TwilioAuth, h.WhatsApp.HandleWebhook)
		} else {
			webhook.Post("/twilio/:tenantID", h.WhatsApp.HandleWebhook)
		}
	}
}
