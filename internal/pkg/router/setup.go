package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/inspecto-app/inspecto/app/repository"
	"github.com/inspecto-app/inspecto/internal/pkg/billing"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the services the routes are wired to.
type Dependencies struct {
	Billing      *billing.Service
	Repositories *repository.Repositories
	JWTSecret    []byte
	TokenTTL     time.Duration
	PublicURL    string
	// LimiterStorage backs the API rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	// Now is the clock of the route gate; nil means time.Now.
	Now func() time.Time
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// The HTTP router installs the global UserContext middleware, which the API
	// routes depend on, so it goes first.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
