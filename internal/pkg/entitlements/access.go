package entitlements

import (
	"time"

	"github.com/inspecto-app/inspecto/app/models"
)

// Access is the access decision derived from a tenant billing record.
type Access struct {
	IsTrialActive         bool `json:"is_trial_active"`
	IsTrialExpired        bool `json:"is_trial_expired"`
	HasActiveSubscription bool `json:"has_active_subscription"`
	NeedsPaymentSetup     bool `json:"needs_payment_setup"`
	RequiresPayment       bool `json:"requires_payment"`
}

// Evaluate derives the access decision from persisted state alone. A trialing
// record without a trial end counts as expired.
func Evaluate(t *models.Tenant, now time.Time) Access {
	if t == nil {
		return Access{}
	}
	status := t.SubscriptionStatus
	trialing := status == models.BillingStatusTrialing

	var a Access
	if trialing {
		a.IsTrialActive = t.TrialEndsAt != nil && t.TrialEndsAt.After(now)
		a.IsTrialExpired = !a.IsTrialActive
	}
	a.HasActiveSubscription = status == models.BillingStatusActive || trialing
	a.NeedsPaymentSetup = trialing && t.HasCustomer() && t.PaymentMethod.IsZero()

	switch status {
	case models.BillingStatusPastDue, models.BillingStatusCanceled, models.BillingStatusIncomplete:
		a.RequiresPayment = true
	default:
		a.RequiresPayment = a.IsTrialExpired
	}
	return a
}
