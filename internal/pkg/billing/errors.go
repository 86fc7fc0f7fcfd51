package billing

import "errors"

// Error kinds surfaced by the billing service. Callers classify with errors.Is;
// the service wraps them with context.
var (
	// ErrAuth means the caller's session or token is not valid.
	ErrAuth = errors.New("billing: authentication required")
	// ErrForbidden means the caller is authenticated but may not manage billing.
	ErrForbidden = errors.New("billing: caller may not manage billing")
	// ErrInvalidSignature means a webhook payload failed signature verification.
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")
	// ErrDecode means a verified webhook event lacks fields its kind requires.
	ErrDecode = errors.New("billing: malformed webhook event")
	// ErrAttribution means a webhook event references a customer with no local mirror.
	ErrAttribution = errors.New("billing: event cannot be attributed to a tenant")
	// ErrConfig means an unknown price/tier or missing billing configuration.
	ErrConfig = errors.New("billing: configuration error")
	// ErrStaleCustomer means the recorded processor customer no longer exists upstream.
	ErrStaleCustomer = errors.New("billing: processor customer no longer exists")
	// ErrTenantNotFound means no tenant exists for the given id.
	ErrTenantNotFound = errors.New("billing: tenant not found")
)
