package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/inspecto-app/inspecto/app/controllers"
	"github.com/inspecto-app/inspecto/internal/pkg/constants"
	"github.com/inspecto-app/inspecto/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	billingController := controllers.NewBillingController(h.deps.Billing, h.deps.PublicURL)
	accountController := controllers.NewAccountController(h.deps.Repositories, h.deps.JWTSecret, h.deps.TokenTTL)

	api := app.Group("/api", cors.New(), limiter.New(limiter.Config{
		Max:          120,
		Expiration:   1 * time.Minute,
		KeyGenerator: controllers.ClientIP,
		Storage:      h.deps.LimiterStorage,
		// The checkout wait holds a request open; it is bounded by its own timeout.
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == constants.APIPrefix+"/billing/checkout/wait"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "too many requests"})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	v1.Get("/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ping": "pong"})
	})
	v1.Post("/signup", accountController.HandleSignup)

	authed := v1.Group("", middleware.RequireAPIAuth)
	authed.Get("/account", accountController.HandleGetAccount)
	authed.Patch("/account", accountController.HandleUpdateAccount)
	authed.Get("/account/members", accountController.HandleListMembers)
	authed.Post("/account/members", middleware.RequireAPIAdmin, accountController.HandleAddMember)
	authed.Delete("/account/members/:id", middleware.RequireAPIAdmin, accountController.HandleRemoveMember)

	authed.Get("/billing/status", billingController.HandleStatus)
	authed.Get("/billing/history", billingController.HandleHistory)
	authed.Get("/billing/checkout/wait", billingController.HandleCheckoutWait)
	authed.Post("/billing/checkout", middleware.RequireAPIAdmin, billingController.HandleCheckout)
	authed.Post("/billing/portal", middleware.RequireAPIAdmin, billingController.HandlePortal)
}
