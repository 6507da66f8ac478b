package models

import "time"

const (
	BillingProviderStripe = "stripe"
)

// BillingEvent is the durable, uniquely keyed record of one inbound provider
// webhook delivery. It backs idempotent processing and is kept verbatim for
// audit and replay.
type BillingEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;index:ux_billing_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	SubscriberID    *uint      `gorm:"index" json:"subscriber_id,omitempty"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	Processed       bool       `gorm:"default:false;index" json:"processed"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	Attempts        int        `gorm:"not null;default:0" json:"attempts"` // failed processing attempts
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
