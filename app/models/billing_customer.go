package models

import "time"

// BillingCustomer mirrors the processor customer created for a tenant. Webhook
// events are attributed to tenants through this table.
type BillingCustomer struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TenantID    uint      `gorm:"not null;uniqueIndex" json:"tenant_id"`
	CustomerRef string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"customer_ref"`
	Email       string    `gorm:"type:varchar(200);default:''" json:"email"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
