package models

import "time"

// History actions recorded for a subscriber's billing lifecycle.
const (
	HistoryActionCheckoutCompleted     = "checkout_completed"
	HistoryActionTrialEnding           = "trial_ending"
	HistoryActionPaymentFailed         = "payment_failed"
	HistoryActionPaymentActionRequired = "payment_action_required"
	HistoryActionPaymentMethodAdded    = "payment_method_added"
	HistoryActionSubscriptionCanceled  = "subscription_canceled"
)

// SubscriptionHistory is an append-only audit entry. Rows are never updated
// or deleted; (ProviderEventID, Action) is unique so a redelivered event can
// not add a second entry.
type SubscriptionHistory struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SubscriberID    uint      `gorm:"not null;index" json:"subscriber_id"`
	Action          string    `gorm:"type:varchar(50);not null;index:ux_subscription_histories_event_action,unique,priority:2" json:"action"`
	EffectiveAt     time.Time `gorm:"type:timestamp" json:"effective_at"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;index:ux_subscription_histories_event_action,unique,priority:1" json:"provider_event_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}
