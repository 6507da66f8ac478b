package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// Subscription tiers a business owner can be billed for.
const (
	TierFree       = "free"
	TierPremium    = "premium"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Subscription states. Suspended mirrors the provider's past_due/unpaid
// states: access is degraded, not terminated.
const (
	SubscriptionStatusNone      = "none"
	SubscriptionStatusTrialing  = "trialing"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusSuspended = "suspended"
	SubscriptionStatusCanceled  = "canceled"
)

var ErrTrialWindowInverted = errors.New("trial end must not be before trial start")

// Subscriber is the billing identity of a tenant's business owner. Rows are
// created by the signup flow and only mutated by the billing event processor.
// They are never hard-deleted; cancellation moves Status to canceled.
type Subscriber struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	TenantID               uint       `gorm:"not null;default:0;index" json:"tenant_id"`
	Email                  string     `gorm:"type:varchar(200);not null;default:''" json:"email" validate:"omitempty,email,max=200"`
	ProviderCustomerID     *string    `gorm:"type:varchar(191);uniqueIndex:ux_subscribers_provider_customer" json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID *string    `gorm:"type:varchar(191);index" json:"provider_subscription_id,omitempty"`
	Tier                   string     `gorm:"type:varchar(20);not null;default:'free'" json:"tier" validate:"oneof=free premium pro enterprise"`
	Status                 string     `gorm:"type:varchar(20);not null;default:'none';index" json:"status" validate:"oneof=none trialing active suspended canceled"`
	TrialStartAt           *time.Time `gorm:"type:timestamp;default:null" json:"trial_start_at,omitempty"`
	TrialEndAt             *time.Time `gorm:"type:timestamp;default:null" json:"trial_end_at,omitempty"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Subscriber) Validate() error {
	v := validator.New()
	if err := v.Struct(s); err != nil {
		return err
	}
	if s.TrialStartAt != nil && s.TrialEndAt != nil && s.TrialEndAt.Before(*s.TrialStartAt) {
		return ErrTrialWindowInverted
	}
	return nil
}

// IsTrialing reports whether the subscriber is inside a running trial at t.
func (s *Subscriber) IsTrialing(t time.Time) bool {
	return s.Status == SubscriptionStatusTrialing && s.TrialEndAt != nil && s.TrialEndAt.After(t)
}

// HasPaidAccess reports whether the subscriber should get paid-tier features.
// Suspended subscribers keep access in a degraded state until the next
// successful payment or cancellation.
func (s *Subscriber) HasPaidAccess() bool {
	if s.Tier == TierFree {
		return false
	}
	switch s.Status {
	case SubscriptionStatusTrialing, SubscriptionStatusActive, SubscriptionStatusSuspended:
		return true
	default:
		return false
	}
}

// CustomerID returns the linked provider customer id or "".
func (s *Subscriber) CustomerID() string {
	if s.ProviderCustomerID == nil {
		return ""
	}
	return *s.ProviderCustomerID
}
