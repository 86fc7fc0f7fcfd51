package billing

import (
	"context"

	"github.com/inspecto-app/inspecto/app/models"
)

// Processor is the subset of the payment processor API the billing service uses.
type Processor interface {
	// CreateCustomer creates a customer. Calls carrying the same idempotency key
	// return the same customer.
	CreateCustomer(ctx context.Context, in CustomerInput) (string, error)
	// CustomerExists reports whether the customer is still live upstream.
	CustomerExists(ctx context.Context, customerRef string) (bool, error)
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerRef, returnURL string) (string, error)
	// PaymentMethod fetches card details for a payment method id.
	PaymentMethod(ctx context.Context, paymentMethodRef string) (*models.PaymentMethod, error)
	ListInvoices(ctx context.Context, customerRef string, limit int) ([]Invoice, error)
}
