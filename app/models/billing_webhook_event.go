package models

import "time"

// BillingWebhookEvent stores processor webhook payloads keyed by the processor
// event id so that re-deliveries can be recognised.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	EventID         string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	EventCreatedAt  *time.Time `gorm:"type:timestamp;default:null" json:"event_created_at,omitempty"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProcessedOK reports whether a previous delivery was handled without error.
func (e *BillingWebhookEvent) ProcessedOK() bool {
	return e != nil && e.ProcessedAt != nil && e.ProcessingError == ""
}
