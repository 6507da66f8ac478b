// Package referral records referral conversions for the billing processor.
package referral

import (
	"context"
	"time"

	"github.com/ManuelReschke/PlaceFox/app/models"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/billing"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Tracker marks a referred subscriber as converted on its first completed
// checkout. Later calls leave ConvertedAt untouched.
type Tracker struct {
	db  *gorm.DB
	now func() time.Time
}

var _ billing.ReferralTracker = (*Tracker)(nil)

func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (t *Tracker) TrackReferralConversion(ctx context.Context, subscriberID uint) error {
	tx := t.db.WithContext(ctx).Model(&models.ReferralConversion{}).
		Where("referred_subscriber_id = ? AND converted_at IS NULL", subscriberID).
		Update("converted_at", t.now())
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected > 0 {
		log.Infof("[Referral] Subscriber %d converted", subscriberID)
	}
	return nil
}
