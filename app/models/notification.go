package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const NotificationTypeBilling = "billing"

// Notification is an in-app message shown on the business owner's dashboard.
// A subscriber gets at most one notification per title and triggering event.
type Notification struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	SubscriberID uint           `gorm:"uniqueIndex:ux_notifications_subscriber_reference_title,priority:1" json:"subscriber_id"`
	Type         string         `gorm:"type:varchar(50)" json:"type" validate:"oneof=billing"`
	Title        string         `gorm:"type:varchar(200);uniqueIndex:ux_notifications_subscriber_reference_title,priority:3" json:"title"`
	Content      string         `gorm:"type:text" json:"content"`
	IsRead       bool           `gorm:"default:false" json:"is_read"`
	ReferenceID  string         `gorm:"type:varchar(191);uniqueIndex:ux_notifications_subscriber_reference_title,priority:2" json:"reference_id"` // provider event id that triggered it
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// CreateNotification stores a new unread notification for a subscriber. It
// reports false when the same notification already exists.
func CreateNotification(db *gorm.DB, subscriberID uint, notificationType, title, content, referenceID string) (bool, error) {
	notification := Notification{
		SubscriberID: subscriberID,
		Type:         notificationType,
		Title:        title,
		Content:      content,
		ReferenceID:  referenceID,
		IsRead:       false,
	}

	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "subscriber_id"},
			{Name: "reference_id"},
			{Name: "title"},
		},
		DoNothing: true,
	}).Create(&notification)
	return tx.RowsAffected > 0, tx.Error
}
