package models

import "time"

// BillingOrder is written once per completed checkout session and never changed
// afterwards; re-delivery of the same webhook keeps the stored row.
type BillingOrder struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	TenantID          uint      `gorm:"not null;index" json:"tenant_id"`
	CheckoutSessionID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"checkout_session_id"`
	PaymentIntentRef  string    `gorm:"type:varchar(191);default:''" json:"payment_intent_ref"`
	CustomerRef       string    `gorm:"type:varchar(191);not null;index" json:"customer_ref"`
	SubscriptionRef   string    `gorm:"type:varchar(191);default:''" json:"subscription_ref"`
	AmountTotal       int64     `gorm:"not null;default:0" json:"amount_total"`
	Currency          string    `gorm:"type:varchar(8);default:''" json:"currency"`
	PaymentStatus     string    `gorm:"type:varchar(32);default:''" json:"payment_status"`
	CreatedAt         time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
