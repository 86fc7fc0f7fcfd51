package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/inspecto-app/inspecto/app/models"
	"github.com/inspecto-app/inspecto/app/repository"
	"github.com/inspecto-app/inspecto/internal/pkg/auth"
	"github.com/inspecto-app/inspecto/internal/pkg/billing"
	"github.com/inspecto-app/inspecto/internal/pkg/middleware"
)

const (
	testSecret        = "controller-test"
	testWebhookSecret = "whsec_controller_test"
)

type stubProcessor struct {
	mu        sync.Mutex
	customers int
	sessions  int
}

func (p *stubProcessor) CreateCustomer(_ context.Context, in billing.CustomerInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customers++
	return fmt.Sprintf("cus_%d", in.TenantID), nil
}

func (p *stubProcessor) CustomerExists(context.Context, string) (bool, error) { return true, nil }

func (p *stubProcessor) CreateCheckoutSession(_ context.Context, in billing.CheckoutInput) (*billing.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions++
	id := "cs_" + strconv.Itoa(p.sessions)
	return &billing.CheckoutSession{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (p *stubProcessor) CreatePortalSession(_ context.Context, customerRef, _ string) (string, error) {
	return "https://portal.test/" + customerRef, nil
}

func (p *stubProcessor) PaymentMethod(context.Context, string) (*models.PaymentMethod, error) {
	return &models.PaymentMethod{Brand: "visa", Last4: "4242"}, nil
}

func (p *stubProcessor) ListInvoices(context.Context, string, int) ([]billing.Invoice, error) {
	return []billing.Invoice{{ID: "in_1", Status: "paid", AmountPaid: 4900, Currency: "eur"}}, nil
}

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	admin  *models.User
	member *models.User
	tenant *models.Tenant
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&models.Tenant{},
		&models.User{},
		&models.BillingCustomer{},
		&models.BillingOrder{},
		&models.BillingWebhookEvent{},
	))

	repos := repository.NewRepositories(db)
	admin := &models.User{Name: "Dana Owner", Email: "dana@acme.test"}
	tenant, err := repos.Tenant.Provision("Acme Inspections", admin)
	require.NoError(t, err)
	member, err := models.NewUser(tenant.ID, "Sam Inspector", "sam@acme.test", models.ROLE_MEMBER)
	require.NoError(t, err)
	require.NoError(t, repos.User.Create(member))

	catalog, err := billing.NewCatalog(map[string][]string{
		models.TierStarter:      {"price_starter_m"},
		models.TierProfessional: {"price_pro_m"},
	})
	require.NoError(t, err)
	svc := billing.NewServiceFromDB(db, &stubProcessor{}, catalog, testWebhookSecret, billing.WithCheckoutWait(200*time.Millisecond))

	bc := NewBillingController(svc, "https://app.test")
	ac := NewAccountController(repos, []byte(testSecret), time.Hour)

	app := fiber.New()
	app.Post("/webhooks/stripe", bc.HandleStripeWebhook)
	app.Use(middleware.UserContextMiddleware([]byte(testSecret), repos.User))
	app.Post("/api/v1/signup", ac.HandleSignup)
	api := app.Group("/api/v1", middleware.RequireAPIAuth)
	api.Get("/account", ac.HandleGetAccount)
	api.Patch("/account", ac.HandleUpdateAccount)
	api.Get("/account/members", ac.HandleListMembers)
	api.Post("/account/members", middleware.RequireAPIAdmin, ac.HandleAddMember)
	api.Delete("/account/members/:id", middleware.RequireAPIAdmin, ac.HandleRemoveMember)
	api.Post("/billing/checkout", bc.HandleCheckout)
	api.Post("/billing/portal", bc.HandlePortal)
	api.Get("/billing/status", bc.HandleStatus)
	api.Get("/billing/history", bc.HandleHistory)
	api.Get("/billing/checkout/wait", bc.HandleCheckoutWait)
	app.Post("/billing/checkout", middleware.RequireAdmin, bc.HandleWebCheckout)

	return &testEnv{app: app, db: db, admin: admin, member: member, tenant: tenant}
}

func (e *testEnv) token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := auth.IssueToken([]byte(testSecret), u.ID, u.TenantID, u.Role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) call(t *testing.T, method, path, bearer string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func (e *testEnv) webhook(t *testing.T, id, eventType string, object map[string]interface{}, secret string) (*http.Response, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":      id,
		"object":  "event",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func checkoutBody(price string) fiber.Map {
	return fiber.Map{
		"price_id":    price,
		"mode":        "subscription",
		"success_url": "https://app.test/billing/success",
		"cancel_url":  "https://app.test/billing/start-trial",
	}
}

func TestCheckoutEndpoint(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.call(t, http.MethodPost, "/api/v1/billing/checkout", e.token(t, e.admin), checkoutBody("price_pro_m"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "https://checkout.test/cs_1", body["session_url"])

	var tenant models.Tenant
	require.NoError(t, e.db.First(&tenant, e.tenant.ID).Error)
	assert.Equal(t, fmt.Sprintf("cus_%d", e.tenant.ID), tenant.CustomerID())
	assert.Equal(t, models.BillingStatusNone, tenant.SubscriptionStatus)
}

func TestCheckoutEndpointErrors(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		bearer string
		body   interface{}
		status int
		code   string
	}{
		{name: "anonymous", body: checkoutBody("price_pro_m"), status: fiber.StatusUnauthorized, code: "unauthorized"},
		{name: "member", bearer: e.token(t, e.member), body: checkoutBody("price_pro_m"), status: fiber.StatusForbidden, code: "forbidden"},
		{name: "missing urls", bearer: e.token(t, e.admin), body: fiber.Map{"price_id": "price_pro_m"}, status: fiber.StatusBadRequest, code: "validation_failed"},
		{name: "unknown price", bearer: e.token(t, e.admin), body: checkoutBody("price_gold"), status: fiber.StatusUnprocessableEntity, code: "unprocessable"},
		{name: "payment mode", bearer: e.token(t, e.admin), body: fiber.Map{
			"price_id": "price_pro_m", "mode": "payment",
			"success_url": "https://app.test/s", "cancel_url": "https://app.test/c",
		}, status: fiber.StatusUnprocessableEntity, code: "unprocessable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := e.call(t, http.MethodPost, "/api/v1/billing/checkout", tt.bearer, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestPortalRequiresCustomer(t *testing.T) {
	e := newTestEnv(t)
	admin := e.token(t, e.admin)

	resp, _ := e.call(t, http.MethodPost, "/api/v1/billing/portal", admin, fiber.Map{"return_url": "https://app.test/dashboard"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = e.call(t, http.MethodPost, "/api/v1/billing/checkout", admin, checkoutBody("price_starter_m"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := e.call(t, http.MethodPost, "/api/v1/billing/portal", admin, fiber.Map{"return_url": "https://app.test/dashboard"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, fmt.Sprintf("https://portal.test/cus_%d", e.tenant.ID), body["url"])
}

func TestWebhookToStatusFlow(t *testing.T) {
	e := newTestEnv(t)
	admin := e.token(t, e.admin)

	resp, _ := e.call(t, http.MethodPost, "/api/v1/billing/checkout", admin, checkoutBody("price_pro_m"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	customer := fmt.Sprintf("cus_%d", e.tenant.ID)
	checkout := map[string]interface{}{
		"id":             "cs_1",
		"customer":       customer,
		"subscription":   "sub_1",
		"amount_total":   0,
		"currency":       "eur",
		"payment_status": "no_payment_required",
		"metadata": map[string]string{
			"tenant_id":  strconv.FormatUint(uint64(e.tenant.ID), 10),
			"price_id":   "price_pro_m",
			"trial_days": "14",
		},
	}

	resp, body := e.webhook(t, "evt_1", billing.EventCheckoutCompleted, checkout, "whsec_wrong")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_signature", body["error"])

	resp, body = e.webhook(t, "evt_1", billing.EventCheckoutCompleted, checkout, testWebhookSecret)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, false, body["duplicate"])

	resp, body = e.webhook(t, "evt_1", billing.EventCheckoutCompleted, checkout, testWebhookSecret)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["duplicate"])

	resp, body = e.call(t, http.MethodGet, "/api/v1/billing/status", e.token(t, e.member), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	tenant := body["tenant"].(map[string]interface{})
	assert.Equal(t, models.BillingStatusTrialing, tenant["subscription_status"])
	assert.Equal(t, models.TierProfessional, tenant["tier"])
	access := body["access"].(map[string]interface{})
	assert.Equal(t, true, access["is_trial_active"])
	assert.Equal(t, true, access["needs_payment_setup"])
	limits := body["limits"].(map[string]interface{})
	assert.EqualValues(t, 10, limits["inspector_seats"])

	resp, body = e.call(t, http.MethodGet, "/api/v1/billing/checkout/wait?session_id=cs_1", admin, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["settled"])

	resp, body = e.call(t, http.MethodGet, "/api/v1/billing/history", admin, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["orders"], 1)
	assert.Len(t, body["invoices"], 1)
	assert.Equal(t, false, body["partial"])
}

func TestWebhookUnknownCustomerIsRejected(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.webhook(t, "evt_9", billing.EventSubscriptionUpdated, map[string]interface{}{
		"id":       "sub_9",
		"customer": "cus_nobody",
		"status":   "active",
	}, testWebhookSecret)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unknown_customer", body["error"])
}

func TestCheckoutWaitTimesOut(t *testing.T) {
	e := newTestEnv(t)
	admin := e.token(t, e.admin)

	resp, _ := e.call(t, http.MethodGet, "/api/v1/billing/checkout/wait", admin, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body := e.call(t, http.MethodGet, "/api/v1/billing/checkout/wait?session_id=cs_missing", admin, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["settled"])
	assert.Equal(t, false, body["access"].(map[string]interface{})["has_active_subscription"])
}

func TestWebCheckoutRedirects(t *testing.T) {
	e := newTestEnv(t)

	form := url.Values{"tier": {"professional"}, "from": {"/billing/start-trial"}}
	req := httptest.NewRequest(http.MethodPost, "/billing/checkout", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+e.token(t, e.admin))
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "https://checkout.test/cs_1", resp.Header.Get(fiber.HeaderLocation))

	form = url.Values{"tier": {"platinum"}, "from": {"/billing/start-trial"}}
	req = httptest.NewRequest(http.MethodPost, "/billing/checkout", strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+e.token(t, e.admin))
	resp, err = e.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/billing/start-trial", resp.Header.Get(fiber.HeaderLocation))
}

func TestSignupAndAccount(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.call(t, http.MethodPost, "/api/v1/signup", "", fiber.Map{
		"company": "Northside Surveys",
		"name":    "Riley Admin",
		"email":   "Riley@Northside.test",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	token := body["access_token"].(string)

	resp, body = e.call(t, http.MethodGet, "/api/v1/account", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "riley@northside.test", body["user"].(map[string]interface{})["email"])
	assert.Equal(t, true, body["user"].(map[string]interface{})["is_admin"])
	assert.Equal(t, "Northside Surveys", body["tenant"].(map[string]interface{})["name"])

	resp, _ = e.call(t, http.MethodPost, "/api/v1/signup", "", fiber.Map{
		"company": "Again", "name": "Riley Admin", "email": "riley@northside.test",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	var tenant models.Tenant
	require.NoError(t, e.db.Where("name = ?", "Northside Surveys").First(&tenant).Error)
	assert.Equal(t, models.BillingStatusNone, tenant.SubscriptionStatus)
}

func TestUpdateAccount(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.call(t, http.MethodPatch, "/api/v1/account", e.token(t, e.member), fiber.Map{"company": "Taken Over"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := e.call(t, http.MethodPatch, "/api/v1/account", e.token(t, e.member), fiber.Map{"name": "Sam Senior"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Sam Senior", body["user"].(map[string]interface{})["name"])

	resp, body = e.call(t, http.MethodPatch, "/api/v1/account", e.token(t, e.admin), fiber.Map{"company": "Acme Property Checks"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Acme Property Checks", body["tenant"].(map[string]interface{})["name"])

	resp, _ = e.call(t, http.MethodPatch, "/api/v1/account", e.token(t, e.admin), fiber.Map{"name": "X"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestMemberSeatsFollowTier(t *testing.T) {
	e := newTestEnv(t)
	admin := e.token(t, e.admin)

	// starter allows two seats, both taken by the fixture users
	resp, body := e.call(t, http.MethodPost, "/api/v1/account/members", admin, fiber.Map{"name": "Alex Third", "email": "alex@acme.test"})
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "seat_limit_reached", body["error"])

	require.NoError(t, e.db.Model(&models.Tenant{}).Where("id = ?", e.tenant.ID).Update("tier", models.TierProfessional).Error)
	resp, body = e.call(t, http.MethodPost, "/api/v1/account/members", admin, fiber.Map{"name": "Alex Third", "email": "alex@acme.test"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)

	resp, _ = e.call(t, http.MethodPost, "/api/v1/account/members", e.token(t, e.member), fiber.Map{"name": "Nope Member", "email": "nope@acme.test"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body = e.call(t, http.MethodGet, "/api/v1/account/members", e.token(t, e.member), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["members"], 3)

	resp, _ = e.call(t, http.MethodDelete, "/api/v1/account/members/"+strconv.FormatUint(uint64(e.admin.ID), 10), admin, nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp, _ = e.call(t, http.MethodDelete, "/api/v1/account/members/"+strconv.FormatUint(uint64(e.member.ID), 10), admin, nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	resp, _ = e.call(t, http.MethodDelete, "/api/v1/account/members/9999", admin, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestTrialDaysLeft(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, trialDaysLeft(now.Add(-time.Hour), now))
	assert.Equal(t, 1, trialDaysLeft(now.Add(time.Hour), now))
	assert.Equal(t, 14, trialDaysLeft(now.Add(14*24*time.Hour), now))
}
