package router

import (
	"github.com/ManuelReschke/PlaceFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
	handlers Handlers
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	user := env.GetEnv("STATS_USER", "admin")
	password := env.GetEnv("STATS_PASSWORD", "")
	if password == "" {
		log.Info("STATS_PASSWORD not set, /api/billing/stats is disabled")
		return
	}

	api := app.Group("/api", limiter.New())
	api.Get("/billing/stats", basicauth.New(basicauth.Config{
		Users: map[string]string{user: password},
	}), h.handlers.Health.HandleWebhookStats)
}

func NewApiRouter(handlers Handlers) *ApiRouter {
	return &ApiRouter{handlers: handlers}
}
