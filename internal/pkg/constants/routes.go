package constants

// Web routes the billing gate redirects between.
const (
	LoginRoute                = "/login"
	DashboardRoute            = "/dashboard"
	StartTrialRoute           = "/billing/start-trial"
	PaymentSetupRoute         = "/billing/payment-setup"
	SubscriptionRequiredRoute = "/billing/subscription-required"
	AccessRestrictedRoute     = "/billing/access-restricted"
	CheckoutSuccessRoute      = "/billing/success"
	PublicRoute               = "/"
	LogoutRoute               = "/logout"
	WebCheckoutRoute          = "/billing/checkout"
	WebPortalRoute            = "/billing/portal"
)

// BillingScreens are the routes that exist only to resolve a billing state.
var BillingScreens = []string{
	StartTrialRoute,
	PaymentSetupRoute,
	SubscriptionRequiredRoute,
	AccessRestrictedRoute,
}

// API routes.
const (
	APIPrefix           = "/api/v1"
	WebhookStripeRoute  = "/webhooks/stripe"
	MetricsRoute        = "/metrics"
	APIDocsRoute        = "/docs/api"
	APIDocsSpecFilePath = "./public/docs/v1/openapi.yml"
)
