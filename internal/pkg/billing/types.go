package billing

import (
	"time"

	"github.com/inspecto-app/inspecto/app/models"
)

// CheckoutRequest is the input for opening a hosted checkout for a tenant.
type CheckoutRequest struct {
	TenantID    uint
	AdminUserID uint
	AdminEmail  string
	PriceID     string
	Mode        string
	SkipTrial   bool
	SuccessURL  string
	CancelURL   string
}

// CustomerInput describes a processor customer to create.
type CustomerInput struct {
	TenantID       uint
	TenantUUID     string
	Name           string
	Email          string
	IdempotencyKey string
}

// CheckoutInput is what the processor needs to open a checkout session.
type CheckoutInput struct {
	CustomerRef string
	PriceID     string
	TrialDays   int64
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

// CheckoutSession is the processor's answer to a checkout request.
type CheckoutSession struct {
	ID  string
	URL string
}

// Invoice is a read-only processor invoice used for billing history.
type Invoice struct {
	ID         string    `json:"id"`
	Number     string    `json:"number"`
	Status     string    `json:"status"`
	AmountPaid int64     `json:"amount_paid"`
	Currency   string    `json:"currency"`
	CreatedAt  time.Time `json:"created_at"`
	HostedURL  string    `json:"hosted_url,omitempty"`
}

// History combines local orders with processor invoices. Partial is set when the
// processor could not be queried.
type History struct {
	Orders   []models.BillingOrder `json:"orders"`
	Invoices []Invoice             `json:"invoices"`
	Partial  bool                  `json:"partial"`
}

// WebhookResult reports how an inbound event was handled.
type WebhookResult struct {
	EventID   string
	EventType string
	Duplicate bool
	Ignored   bool
}

// BillingUpdate is a status-bearing write to a tenant's billing record. Nil
// pointer fields are left unchanged. OccurredAt guards against older events
// overwriting newer state.
type BillingUpdate struct {
	Status                string
	Tier                  string
	ActiveSubscriptionRef *string
	ClearSubscriptionRef  bool
	CurrentPeriodEnd      *time.Time
	TrialStartedAt        *time.Time
	TrialEndsAt           *time.Time
	OccurredAt            time.Time
}
