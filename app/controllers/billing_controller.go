package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/sujit-baniya/flash"

	"github.com/inspecto-app/inspecto/app/models"
	"github.com/inspecto-app/inspecto/internal/pkg/billing"
	"github.com/inspecto-app/inspecto/internal/pkg/constants"
	"github.com/inspecto-app/inspecto/internal/pkg/entitlements"
	"github.com/inspecto-app/inspecto/internal/pkg/metrics"
	"github.com/inspecto-app/inspecto/internal/pkg/usercontext"
)

const (
	billingRequestTimeout = 20 * time.Second
	webhookTimeout        = 15 * time.Second
)

// BillingController serves the billing API, the processor webhook and the web
// checkout form.
type BillingController struct {
	svc       *billing.Service
	validate  *validator.Validate
	publicURL string
	now       func() time.Time
}

// NewBillingController creates the controller. publicURL is the externally
// reachable base used for processor redirects from the web form.
func NewBillingController(svc *billing.Service, publicURL string) *BillingController {
	return &BillingController{
		svc:       svc,
		validate:  validator.New(),
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
}

type checkoutRequest struct {
	PriceID    string `json:"price_id" validate:"required,max=191"`
	Mode       string `json:"mode"`
	SkipTrial  bool   `json:"skip_trial"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

type portalRequest struct {
	ReturnURL string `json:"return_url" validate:"required,url"`
}

// HandleCheckout opens a hosted checkout for the caller's tenant.
// POST /api/v1/billing/checkout
func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsAdmin {
		return billingError(c, billing.ErrForbidden)
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	if err := bc.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	session, err := bc.svc.StartCheckout(ctx, billing.CheckoutRequest{
		TenantID:    uc.TenantID,
		AdminUserID: uc.UserID,
		AdminEmail:  uc.Email,
		PriceID:     req.PriceID,
		Mode:        req.Mode,
		SkipTrial:   req.SkipTrial,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
	})
	if err != nil {
		metrics.CheckoutTotal.WithLabelValues("error").Inc()
		return billingError(c, err)
	}
	metrics.CheckoutTotal.WithLabelValues("opened").Inc()
	return c.JSON(fiber.Map{"session_url": session.URL})
}

// HandlePortal opens the processor's customer portal.
// POST /api/v1/billing/portal
func (bc *BillingController) HandlePortal(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsAdmin {
		return billingError(c, billing.ErrForbidden)
	}

	var req portalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	if err := bc.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	url, err := bc.svc.OpenPortal(ctx, uc.TenantID, req.ReturnURL)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleStatus returns the tenant's billing record, the access decision and the
// tier limits.
// GET /api/v1/billing/status
func (bc *BillingController) HandleStatus(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	t, err := bc.svc.TenantSnapshot(c.UserContext(), uc.TenantID)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(statusView(t, entitlements.Evaluate(t, bc.now())))
}

// HandleHistory returns orders and invoices for the tenant.
// GET /api/v1/billing/history
func (bc *BillingController) HandleHistory(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)

	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	h, err := bc.svc.History(ctx, uc.TenantID)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(h)
}

// HandleCheckoutWait blocks until the webhook for the checkout session landed or
// the wait times out, then returns the fresh access decision.
// GET /api/v1/billing/checkout/wait?session_id=cs_...
func (bc *BillingController) HandleCheckoutWait(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "session_id missing"})
	}

	settled, err := bc.svc.WaitForCheckout(c.UserContext(), uc.TenantID, sessionID, 0)
	if err != nil {
		return billingError(c, err)
	}

	t, err := bc.svc.TenantSnapshot(c.UserContext(), uc.TenantID)
	if err != nil {
		return billingError(c, err)
	}
	return c.JSON(fiber.Map{
		"settled": settled,
		"access":  entitlements.Evaluate(t, bc.now()),
	})
}

// HandleStripeWebhook applies one processor event. Non-2xx answers make the
// processor redeliver.
// POST /webhooks/stripe
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	started := time.Now()
	payload := append([]byte(nil), c.Body()...)
	signature := c.Get("Stripe-Signature")

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	result, err := bc.svc.HandleWebhook(ctx, payload, signature)
	if err != nil {
		status := fiber.StatusInternalServerError
		code := "webhook_failed"
		switch {
		case errors.Is(err, billing.ErrInvalidSignature):
			status, code = fiber.StatusBadRequest, "invalid_signature"
		case errors.Is(err, billing.ErrDecode):
			status, code = fiber.StatusBadRequest, "invalid_payload"
		case errors.Is(err, billing.ErrAttribution):
			status, code = fiber.StatusBadRequest, "unknown_customer"
		}
		metrics.WebhookRequestsTotal.WithLabelValues("unprocessed", statusLabel(status)).Inc()
		fiberlog.Warnf("[Billing] webhook rejected with %d: %v", status, err)
		return c.Status(status).JSON(fiber.Map{"error": code, "message": err.Error()})
	}

	metrics.WebhookRequestsTotal.WithLabelValues(result.EventType, statusLabel(fiber.StatusOK)).Inc()
	metrics.WebhookDuration.WithLabelValues(result.EventType).Observe(time.Since(started).Seconds())
	return c.JSON(fiber.Map{
		"ok":        true,
		"event_id":  result.EventID,
		"duplicate": result.Duplicate,
		"ignored":   result.Ignored,
	})
}

// HandleWebCheckout is the form on the start-trial and subscription-required
// screens. It picks the default price of the chosen tier and sends the browser
// to the hosted checkout.
// POST /billing/checkout
func (bc *BillingController) HandleWebCheckout(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	back := c.FormValue("from")
	if !entitlements.IsBillingScreen(back) {
		back = constants.SubscriptionRequiredRoute
	}

	priceID, err := bc.svc.Catalog().PriceForTier(c.FormValue("tier", models.TierStarter))
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "This plan is not available right now."}).Redirect(back)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	session, err := bc.svc.StartCheckout(ctx, billing.CheckoutRequest{
		TenantID:    uc.TenantID,
		AdminUserID: uc.UserID,
		AdminEmail:  uc.Email,
		PriceID:     priceID,
		Mode:        billing.CheckoutModeSubscription,
		SkipTrial:   c.FormValue("skip_trial") == "1",
		SuccessURL:  bc.publicURL + constants.CheckoutSuccessRoute,
		CancelURL:   bc.publicURL + back,
	})
	if err != nil {
		metrics.CheckoutTotal.WithLabelValues("error").Inc()
		fiberlog.Warnf("[Billing] web checkout for tenant %d: %v", uc.TenantID, err)
		return flash.WithError(c, fiber.Map{"type": "error", "message": userMessage(err)}).Redirect(back)
	}
	metrics.CheckoutTotal.WithLabelValues("opened").Inc()
	return c.Redirect(session.URL, fiber.StatusSeeOther)
}

// HandleWebPortal sends the admin to the processor's customer portal.
// POST /billing/portal
func (bc *BillingController) HandleWebPortal(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	back := constants.DashboardRoute

	ctx, cancel := context.WithTimeout(c.UserContext(), billingRequestTimeout)
	defer cancel()

	url, err := bc.svc.OpenPortal(ctx, uc.TenantID, bc.publicURL+constants.DashboardRoute)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": userMessage(err)}).Redirect(back)
	}
	return c.Redirect(url, fiber.StatusSeeOther)
}

func statusView(t *models.Tenant, access entitlements.Access) fiber.Map {
	return fiber.Map{
		"tenant": fiber.Map{
			"id":                  t.ID,
			"uuid":                t.UUID,
			"name":                t.Name,
			"subscription_status": t.SubscriptionStatus,
			"tier":                t.Tier,
			"has_customer":        t.HasCustomer(),
			"trial_started_at":    formatTimePtr(t.TrialStartedAt),
			"trial_ends_at":       formatTimePtr(t.TrialEndsAt),
			"current_period_end":  formatTimePtr(t.CurrentPeriodEnd),
			"payment_method":      t.PaymentMethod,
		},
		"access": access,
		"limits": entitlements.LimitsFor(t.Tier),
	}
}

// billingError maps billing errors to JSON responses. Clients sign out on 401.
func billingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, billing.ErrAuth):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "sign in again"})
	case errors.Is(err, billing.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "only the account admin can manage billing"})
	case errors.Is(err, billing.ErrTenantNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "account not found"})
	case errors.Is(err, billing.ErrConfig), errors.Is(err, billing.ErrStaleCustomer):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unprocessable", "message": err.Error()})
	case errors.Is(err, billing.ErrInvalidSignature), errors.Is(err, billing.ErrDecode), errors.Is(err, billing.ErrAttribution):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	case errors.Is(err, context.Canceled):
		return c.Status(fiber.StatusRequestTimeout).JSON(fiber.Map{"error": "canceled", "message": "request canceled"})
	}
	fiberlog.Errorf("[Billing] request %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": err.Error()})
}

// userMessage is the toast text for a failed web billing action.
func userMessage(err error) string {
	switch {
	case errors.Is(err, billing.ErrStaleCustomer):
		return "Your billing account needs attention. Please contact support."
	case errors.Is(err, billing.ErrConfig):
		return "Billing is not available for this account yet."
	}
	return "Could not reach the payment provider. Please try again."
}
