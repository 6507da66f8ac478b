package router

import (
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get("/healthz", h.handlers.Health.HandleHealth)

	// Billing provider webhooks (no CSRF, signature-verified in the processor)
	app.Post("/webhook", h.handlers.Billing.HandleWebhook)
	app.Post("/webhooks/stripe", h.handlers.Billing.HandleWebhook)
}
