package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"

	"github.com/inspecto-app/inspecto/app/controllers"
	"github.com/inspecto-app/inspecto/internal/pkg/constants"
	"github.com/inspecto-app/inspecto/internal/pkg/env"
	"github.com/inspecto-app/inspecto/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Dependencies
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	billingController := controllers.NewBillingController(h.deps.Billing, h.deps.PublicURL)
	pageController := controllers.NewPageController(h.deps.Billing)

	// Processor webhooks are signature-verified in the controller and carry no
	// user, so they are registered before the user context.
	app.Post(constants.WebhookStripeRoute, billingController.HandleStripeWebhook)

	// Apply UserContext middleware globally
	app.Use(middleware.UserContextMiddleware(h.deps.JWTSecret, h.deps.Repositories.User))

	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/")
		},
	}

	// Every page below runs through the route gate.
	gate := middleware.BillingGate(h.deps.Billing, h.deps.Now)
	web := app.Group("", csrf.New(csrfConf))
	web.Get(constants.PublicRoute, gate, pageController.HandleDashboard)
	web.Get(constants.LoginRoute, gate, pageController.HandleLogin)
	web.Get(constants.DashboardRoute, gate, pageController.HandleDashboard)
	web.Get(constants.StartTrialRoute, gate, pageController.HandleStartTrial)
	web.Get(constants.PaymentSetupRoute, gate, pageController.HandlePaymentSetup)
	web.Get(constants.SubscriptionRequiredRoute, gate, pageController.HandleSubscriptionRequired)
	web.Get(constants.AccessRestrictedRoute, gate, pageController.HandleAccessRestricted)
	web.Get(constants.CheckoutSuccessRoute, gate, pageController.HandleCheckoutSuccess)

	// Billing forms
	web.Post(constants.WebCheckoutRoute, middleware.RequireAdmin, billingController.HandleWebCheckout)
	web.Post(constants.WebPortalRoute, middleware.RequireAdmin, billingController.HandleWebPortal)
	web.Post(constants.LogoutRoute, middleware.RequireAuth, pageController.HandleLogout)
}
