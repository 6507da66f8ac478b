package models

import "time"

// ReferralConversion links a referred subscriber to the referrer code it
// signed up with. ConvertedAt is set once, on the first completed checkout.
type ReferralConversion struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	ReferredSubscriberID uint       `gorm:"not null;uniqueIndex" json:"referred_subscriber_id"`
	ReferrerCode         string     `gorm:"type:varchar(64);not null;index" json:"referrer_code"`
	ConvertedAt          *time.Time `gorm:"type:timestamp;default:null" json:"converted_at,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *ReferralConversion) IsConverted() bool {
	return r.ConvertedAt != nil
}
