package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentMethod is an informational card snapshot taken from processor payloads.
type PaymentMethod struct {
	Brand string `gorm:"type:varchar(32);default:''" json:"brand"`
	Last4 string `gorm:"type:varchar(4);default:''" json:"last4"`
}

// IsZero reports whether no card has been captured.
func (p PaymentMethod) IsZero() bool {
	return p.Brand == "" && p.Last4 == ""
}

// Tenant is a company account and holds its billing record. Billing columns are
// written only by the webhook processor (and CustomerRef by checkout initiation).
type Tenant struct {
	ID                    uint          `gorm:"primaryKey" json:"id"`
	UUID                  string        `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	Name                  string        `gorm:"type:varchar(200);not null" json:"name"`
	OwnerUserID           uint          `gorm:"index" json:"owner_user_id"`
	CustomerRef           *string       `gorm:"type:varchar(191);uniqueIndex" json:"customer_ref,omitempty"`
	SubscriptionStatus    string        `gorm:"type:varchar(32);not null;default:'none';index" json:"subscription_status"`
	Tier                  string        `gorm:"type:varchar(32);not null;default:'starter'" json:"tier"`
	TrialStartedAt        *time.Time    `gorm:"type:timestamp;default:null" json:"trial_started_at,omitempty"`
	TrialEndsAt           *time.Time    `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`
	ActiveSubscriptionRef *string       `gorm:"type:varchar(191);index" json:"active_subscription_ref,omitempty"`
	PaymentMethod         PaymentMethod `gorm:"embedded;embeddedPrefix:payment_method_" json:"payment_method"`
	CurrentPeriodEnd      *time.Time    `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	StatusEventAt         *time.Time    `gorm:"type:timestamp;default:null" json:"status_event_at,omitempty"`
	CreatedAt             time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate fills defaults for newly provisioned tenants.
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == "" {
		t.UUID = uuid.New().String()
	}
	if t.SubscriptionStatus == "" {
		t.SubscriptionStatus = BillingStatusNone
	}
	if t.Tier == "" {
		t.Tier = TierStarter
	}
	return nil
}

// HasCustomer reports whether a processor customer has been linked.
func (t *Tenant) HasCustomer() bool {
	return t.CustomerRef != nil && *t.CustomerRef != ""
}

// CustomerID returns the processor customer id or "".
func (t *Tenant) CustomerID() string {
	if t.CustomerRef == nil {
		return ""
	}
	return *t.CustomerRef
}

// SubscriptionID returns the active processor subscription id or "".
func (t *Tenant) SubscriptionID() string {
	if t.ActiveSubscriptionRef == nil {
		return ""
	}
	return *t.ActiveSubscriptionRef
}
