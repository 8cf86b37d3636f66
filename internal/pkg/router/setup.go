package router

import (
	"github.com/gofiber/fiber/v2"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter registers the system routes first so health and metrics stay
// outside the API rate limit.
func InstallRouter(app *fiber.App, h Handlers) {
	setup(app, NewSystemRouter(h.Health), NewApiRouter(h))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
