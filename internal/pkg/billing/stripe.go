package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/paymentmethod"

	"github.com/inspecto-app/inspecto/app/models"
	"github.com/inspecto-app/inspecto/internal/pkg/env"
)

// StripeProcessor implements Processor against the Stripe API. Each processor
// carries its own key and backend; the SDK's package-level key is never set.
type StripeProcessor struct {
	APIKey string

	customers      *customer.Client
	checkouts      *checkoutsession.Client
	portals        *portalsession.Client
	paymentMethods *paymentmethod.Client
	invoices       *invoice.Client
}

// NewStripeProcessor builds a processor for the given secret key.
func NewStripeProcessor(apiKey string) *StripeProcessor {
	key := strings.TrimSpace(apiKey)
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: 15 * time.Second},
		MaxNetworkRetries: stripe.Int64(2),
	})
	return &StripeProcessor{
		APIKey:         key,
		customers:      &customer.Client{B: backend, Key: key},
		checkouts:      &checkoutsession.Client{B: backend, Key: key},
		portals:        &portalsession.Client{B: backend, Key: key},
		paymentMethods: &paymentmethod.Client{B: backend, Key: key},
		invoices:       &invoice.Client{B: backend, Key: key},
	}
}

func NewStripeProcessorFromEnv() *StripeProcessor {
	return NewStripeProcessor(env.GetEnv("STRIPE_SECRET_KEY", ""))
}

func (p *StripeProcessor) configured() error {
	if p.APIKey == "" {
		return fmt.Errorf("%w: STRIPE_SECRET_KEY is not configured", ErrConfig)
	}
	return nil
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	if err := p.configured(); err != nil {
		return "", err
	}
	params := &stripe.CustomerParams{
		Email: stripe.String(in.Email),
		Name:  stripe.String(in.Name),
		Metadata: map[string]string{
			"tenant_id":   fmt.Sprint(in.TenantID),
			"tenant_uuid": in.TenantUUID,
		},
	}
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	c, err := p.customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return c.ID, nil
}

func (p *StripeProcessor) CustomerExists(ctx context.Context, customerRef string) (bool, error) {
	if err := p.configured(); err != nil {
		return false, err
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := p.customers.Get(customerRef, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("stripe: get customer: %w", err)
	}
	return !c.Deleted, nil
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error) {
	if err := p.configured(); err != nil {
		return nil, err
	}
	params := &stripe.CheckoutSessionParams{
		Mode:                    stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:                stripe.String(in.CustomerRef),
		SuccessURL:              stripe.String(withSessionPlaceholder(in.SuccessURL)),
		CancelURL:               stripe.String(in.CancelURL),
		PaymentMethodCollection: stripe.String(string(stripe.CheckoutSessionPaymentMethodCollectionAlways)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: in.Metadata,
		},
		Metadata: in.Metadata,
	}
	if in.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(in.TrialDays)
	}
	if ref := in.Metadata[metaTenantID]; ref != "" {
		params.ClientReferenceID = stripe.String(ref)
	}
	params.Context = ctx

	s, err := p.checkouts.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	if strings.TrimSpace(s.URL) == "" {
		return nil, errors.New("stripe: checkout session returned empty url")
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProcessor) CreatePortalSession(ctx context.Context, customerRef, returnURL string) (string, error) {
	if err := p.configured(); err != nil {
		return "", err
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerRef),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	s, err := p.portals.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create portal session: %w", err)
	}
	return s.URL, nil
}

func (p *StripeProcessor) PaymentMethod(ctx context.Context, paymentMethodRef string) (*models.PaymentMethod, error) {
	if err := p.configured(); err != nil {
		return nil, err
	}
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx

	pm, err := p.paymentMethods.Get(paymentMethodRef, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get payment method: %w", err)
	}
	if pm.Card == nil {
		return nil, fmt.Errorf("stripe: payment method %s has no card details", paymentMethodRef)
	}
	return &models.PaymentMethod{Brand: string(pm.Card.Brand), Last4: pm.Card.Last4}, nil
}

func (p *StripeProcessor) ListInvoices(ctx context.Context, customerRef string, limit int) ([]Invoice, error) {
	if err := p.configured(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	params := &stripe.InvoiceListParams{Customer: stripe.String(customerRef)}
	params.Limit = stripe.Int64(int64(limit))
	params.Context = ctx

	var out []Invoice
	it := p.invoices.List(params)
	for it.Next() && len(out) < limit {
		inv := it.Invoice()
		out = append(out, Invoice{
			ID:         inv.ID,
			Number:     inv.Number,
			Status:     string(inv.Status),
			AmountPaid: inv.AmountPaid,
			Currency:   string(inv.Currency),
			CreatedAt:  time.Unix(inv.Created, 0).UTC(),
			HostedURL:  inv.HostedInvoiceURL,
		})
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("stripe: list invoices: %w", err)
	}
	return out, nil
}

func withSessionPlaceholder(successURL string) string {
	if strings.Contains(successURL, "{CHECKOUT_SESSION_ID}") {
		return successURL
	}
	sep := "?"
	if strings.Contains(successURL, "?") {
		sep = "&"
	}
	return successURL + sep + "session_id={CHECKOUT_SESSION_ID}"
}
