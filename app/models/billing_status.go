package models

// Subscription statuses mirrored from the payment processor. BillingStatusNone is
// the implicit state of a freshly provisioned tenant.
const (
	BillingStatusNone       = "none"
	BillingStatusTrialing   = "trialing"
	BillingStatusActive     = "active"
	BillingStatusPastDue    = "past_due"
	BillingStatusCanceled   = "canceled"
	BillingStatusIncomplete = "incomplete"
)

// Purchasable tiers, lowest first.
const (
	TierStarter      = "starter"
	TierProfessional = "professional"
	TierEnterprise   = "enterprise"
)

// IsTerminalBillingStatus reports whether a status ends the subscription it belongs to.
func IsTerminalBillingStatus(status string) bool {
	return status == BillingStatusCanceled
}

// IsLiveBillingStatus reports whether a status grants access through its subscription.
func IsLiveBillingStatus(status string) bool {
	return status == BillingStatusActive || status == BillingStatusTrialing
}
