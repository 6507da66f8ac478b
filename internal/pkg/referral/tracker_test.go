package referral

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ManuelReschke/PlaceFox/app/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.ReferralConversion{}))
	return db
}

func TestTrackReferralConversionIsIdempotent(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.Create(&models.ReferralConversion{ReferredSubscriberID: 5, ReferrerCode: "BAKERY10"}).Error)

	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(db)
	tracker.now = func() time.Time { return first }
	require.NoError(t, tracker.TrackReferralConversion(context.Background(), 5))

	tracker.now = func() time.Time { return first.Add(24 * time.Hour) }
	require.NoError(t, tracker.TrackReferralConversion(context.Background(), 5))

	var rc models.ReferralConversion
	require.NoError(t, db.Where("referred_subscriber_id = ?", 5).First(&rc).Error)
	require.True(t, rc.IsConverted())
	assert.True(t, first.Equal(*rc.ConvertedAt))
}

func TestTrackReferralConversionWithoutReferral(t *testing.T) {
	db := openDB(t)
	assert.NoError(t, NewTracker(db).TrackReferralConversion(context.Background(), 42))

	var count int64
	require.NoError(t, db.Model(&models.ReferralConversion{}).Count(&count).Error)
	assert.Zero(t, count)
}
