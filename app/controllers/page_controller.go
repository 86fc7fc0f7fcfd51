package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/inspecto-app/inspecto/app/models"
	"github.com/inspecto-app/inspecto/internal/pkg/constants"
	"github.com/inspecto-app/inspecto/internal/pkg/entitlements"
	"github.com/inspecto-app/inspecto/internal/pkg/env"
	"github.com/inspecto-app/inspecto/internal/pkg/usercontext"
)

// TenantSnapshots returns the tenant billing record a page is rendered from.
type TenantSnapshots interface {
	TenantSnapshot(ctx context.Context, tenantID uint) (*models.Tenant, error)
}

// PageController renders the HTML screens the route gate sends users to.
type PageController struct {
	snapshots TenantSnapshots
	now       func() time.Time
}

func NewPageController(snapshots TenantSnapshots) *PageController {
	return &PageController{snapshots: snapshots, now: time.Now}
}

// data is the layout payload shared by all pages.
func (pc *PageController) data(c *fiber.Ctx, title string) fiber.Map {
	uc := usercontext.GetUserContext(c)
	m := fiber.Map{
		"Title":  title,
		"User":   uc,
		"Flash":  flash.Get(c),
		"IsDev":  env.IsDev(),
		"CSRF":   c.Locals("csrf"),
		"Access": entitlements.Access{},
	}
	if access, ok := c.Locals(usercontext.AccessKey).(entitlements.Access); ok {
		m["Access"] = access
	}
	if uc.IsLoggedIn {
		if t, err := pc.snapshots.TenantSnapshot(c.UserContext(), uc.TenantID); err == nil {
			m["Tenant"] = t
			m["Limits"] = entitlements.LimitsFor(t.Tier)
			if t.TrialEndsAt != nil {
				m["TrialDaysLeft"] = trialDaysLeft(*t.TrialEndsAt, pc.now())
			}
		}
	}
	return m
}

func (pc *PageController) render(c *fiber.Ctx, view, title string) error {
	return c.Render(view, pc.data(c, title), "layouts/main")
}

// HandleLogin links to the hosted identity provider, which issues the token.
func (pc *PageController) HandleLogin(c *fiber.Ctx) error {
	m := pc.data(c, "Sign in")
	m["LoginURL"] = env.GetEnv("IDENTITY_LOGIN_URL", "/")
	return c.Render("login", m, "layouts/main")
}

func (pc *PageController) HandleDashboard(c *fiber.Ctx) error {
	return pc.render(c, "dashboard", "Dashboard")
}

func (pc *PageController) HandleStartTrial(c *fiber.Ctx) error {
	return pc.render(c, "billing/start_trial", "Start your free trial")
}

func (pc *PageController) HandlePaymentSetup(c *fiber.Ctx) error {
	return pc.render(c, "billing/payment_setup", "Add a payment method")
}

func (pc *PageController) HandleSubscriptionRequired(c *fiber.Ctx) error {
	return pc.render(c, "billing/subscription_required", "Subscription required")
}

func (pc *PageController) HandleAccessRestricted(c *fiber.Ctx) error {
	return pc.render(c, "billing/access_restricted", "Access restricted")
}

// HandleCheckoutSuccess is where the processor sends the browser after checkout.
// The page waits for the webhook through the checkout wait API.
func (pc *PageController) HandleCheckoutSuccess(c *fiber.Ctx) error {
	m := pc.data(c, "Finishing your subscription")
	m["SessionID"] = c.Query("session_id")
	m["WaitURL"] = constants.APIPrefix + "/billing/checkout/wait"
	m["DashboardURL"] = constants.DashboardRoute
	return c.Render("billing/success", m, "layouts/main")
}

// HandleLogout drops the token cookie.
func (pc *PageController) HandleLogout(c *fiber.Ctx) error {
	c.ClearCookie(usercontext.TokenCookie)
	return c.Redirect(constants.LoginRoute, fiber.StatusSeeOther)
}

func trialDaysLeft(end, now time.Time) int {
	if !end.After(now) {
		return 0
	}
	days := int(end.Sub(now) / (24 * time.Hour))
	if end.Sub(now)%(24*time.Hour) != 0 {
		days++
	}
	return days
}
