package router

import (
	"github.com/ManuelReschke/PlaceFox/app/controllers"
	"github.com/gofiber/fiber/v2"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Handlers are the controllers the routers mount.
type Handlers struct {
	Billing *controllers.BillingController
	Health  *controllers.HealthController
}

func InstallRouter(app *fiber.App, h Handlers) {
	setup(app, NewHttpRouter(h), NewApiRouter(h))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
