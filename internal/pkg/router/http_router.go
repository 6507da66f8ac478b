package router

import (
	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
	handlers Handlers
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	h.registerPublicRoutes(app)
}

func NewHttpRouter(handlers Handlers) *HttpRouter {
	return &HttpRouter{handlers: handlers}
}
