package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/PlaceFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the persistence operations used by the billing
// processor. Every state mutation is a single conditional statement so that
// concurrent deliveries never lose updates.
type Repository interface {
	Transaction(ctx context.Context, fn func(repo Repository) error) error

	CreateEventIfNotExists(ctx context.Context, event *models.BillingEvent) (bool, *models.BillingEvent, error)
	MarkEventProcessed(ctx context.Context, id uint, processedAt time.Time) (bool, error)
	MarkEventFailed(ctx context.Context, id uint, processingError string) error
	ListReplayableEvents(ctx context.Context, createdBefore time.Time, maxAttempts, limit int) ([]models.BillingEvent, error)

	GetSubscriberByID(ctx context.Context, id uint) (*models.Subscriber, error)
	GetSubscriberByCustomerID(ctx context.Context, customerID string) (*models.Subscriber, error)
	StartTrial(ctx context.Context, subscriberID uint, in TrialStart) error
	SyncSubscription(ctx context.Context, subscriberID uint, in SubscriptionSync) error
	CancelSubscription(ctx context.Context, subscriberID uint) error
	EndTrialEarly(ctx context.Context, subscriberID uint, at time.Time) (bool, error)
	ReactivateSuspended(ctx context.Context, subscriberID uint) (bool, error)
	SuspendActive(ctx context.Context, subscriberID uint) (bool, error)

	UpsertInvoice(ctx context.Context, inv *models.Invoice) error
	GetInvoiceByProviderID(ctx context.Context, providerInvoiceID string) (*models.Invoice, error)

	AppendHistory(ctx context.Context, entry *models.SubscriptionHistory) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreateEventIfNotExists(ctx context.Context, event *models.BillingEvent) (bool, *models.BillingEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// MarkEventProcessed claims an unprocessed event. It reports false when the
// row was already processed; inside a transaction the row lock makes a
// concurrent claim wait for the first one to commit or roll back.
func (r *gormRepository) MarkEventProcessed(ctx context.Context, id uint, processedAt time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.BillingEvent{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(map[string]interface{}{
			"processed":        true,
			"processed_at":     processedAt,
			"processing_error": "",
		})
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) MarkEventFailed(ctx context.Context, id uint, processingError string) error {
	return r.db.WithContext(ctx).Model(&models.BillingEvent{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(map[string]interface{}{
			"processing_error": processingError,
			"attempts":         gorm.Expr("attempts + 1"),
		}).Error
}

// ListReplayableEvents returns unprocessed events old enough not to be in
// flight, oldest first.
func (r *gormRepository) ListReplayableEvents(ctx context.Context, createdBefore time.Time, maxAttempts, limit int) ([]models.BillingEvent, error) {
	var events []models.BillingEvent
	err := r.db.WithContext(ctx).
		Where("processed = ? AND created_at < ? AND attempts < ?", false, createdBefore, maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormRepository) GetSubscriberByID(ctx context.Context, id uint) (*models.Subscriber, error) {
	var s models.Subscriber
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) GetSubscriberByCustomerID(ctx context.Context, customerID string) (*models.Subscriber, error) {
	var s models.Subscriber
	if err := r.db.WithContext(ctx).Where("provider_customer_id = ?", customerID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// StartTrial moves a subscriber into a fresh trial window. The customer id is
// only written while it is still NULL.
func (r *gormRepository) StartTrial(ctx context.Context, subscriberID uint, in TrialStart) error {
	updates := map[string]interface{}{
		"status":         models.SubscriptionStatusTrialing,
		"tier":           in.Tier,
		"trial_start_at": in.StartAt,
		"trial_end_at":   in.EndAt,
	}
	if in.ProviderCustomerID != "" {
		updates["provider_customer_id"] = gorm.Expr("COALESCE(provider_customer_id, ?)", in.ProviderCustomerID)
	}
	if in.ProviderSubscriptionID != "" {
		updates["provider_subscription_id"] = in.ProviderSubscriptionID
	}
	return r.db.WithContext(ctx).Model(&models.Subscriber{}).Where("id = ?", subscriberID).Updates(updates).Error
}

func (r *gormRepository) SyncSubscription(ctx context.Context, subscriberID uint, in SubscriptionSync) error {
	updates := map[string]interface{}{
		"status":               in.Status,
		"current_period_start": in.CurrentPeriodStart,
		"current_period_end":   in.CurrentPeriodEnd,
		"cancel_at_period_end": in.CancelAtPeriodEnd,
	}
	if in.ProviderSubscriptionID != "" {
		updates["provider_subscription_id"] = in.ProviderSubscriptionID
	}
	if in.Tier != "" {
		updates["tier"] = in.Tier
	}
	return r.db.WithContext(ctx).Model(&models.Subscriber{}).Where("id = ?", subscriberID).Updates(updates).Error
}

func (r *gormRepository) CancelSubscription(ctx context.Context, subscriberID uint) error {
	return r.db.WithContext(ctx).Model(&models.Subscriber{}).Where("id = ?", subscriberID).Updates(map[string]interface{}{
		"status":                   models.SubscriptionStatusCanceled,
		"tier":                     models.TierFree,
		"provider_subscription_id": nil,
		"cancel_at_period_end":     false,
	}).Error
}

// EndTrialEarly closes a running trial at the given time. Trials that already
// ended, or subscribers that are not trialing, are left untouched.
func (r *gormRepository) EndTrialEarly(ctx context.Context, subscriberID uint, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Subscriber{}).
		Where("id = ? AND status = ? AND trial_end_at > ?", subscriberID, models.SubscriptionStatusTrialing, at).
		Where("trial_start_at IS NULL OR trial_start_at <= ?", at).
		Update("trial_end_at", at)
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) ReactivateSuspended(ctx context.Context, subscriberID uint) (bool, error) {
	return r.transitionStatus(ctx, subscriberID, models.SubscriptionStatusSuspended, models.SubscriptionStatusActive)
}

func (r *gormRepository) SuspendActive(ctx context.Context, subscriberID uint) (bool, error) {
	return r.transitionStatus(ctx, subscriberID, models.SubscriptionStatusActive, models.SubscriptionStatusSuspended)
}

func (r *gormRepository) transitionStatus(ctx context.Context, subscriberID uint, from, to string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Subscriber{}).
		Where("id = ? AND status = ?", subscriberID, from).
		Update("status", to)
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) UpsertInvoice(ctx context.Context, inv *models.Invoice) error {
	columns := []string{
		"subscriber_id",
		"status",
		"subtotal",
		"tax",
		"total",
		"amount_due",
		"amount_paid",
		"currency",
		"invoice_date",
		"due_date",
		"metadata_json",
		"updated_at",
	}
	// A later non-paid event must not erase a recorded payment time.
	if inv.PaidAt != nil {
		columns = append(columns, "paid_at")
	}

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_invoice_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(inv).Error; err != nil {
		return err
	}

	// Ensure ID and the merged row are populated after upsert.
	var stored models.Invoice
	if err := r.db.WithContext(ctx).Where("provider_invoice_id = ?", inv.ProviderInvoiceID).First(&stored).Error; err != nil {
		return err
	}
	*inv = stored
	return nil
}

func (r *gormRepository) GetInvoiceByProviderID(ctx context.Context, providerInvoiceID string) (*models.Invoice, error) {
	var inv models.Invoice
	if err := r.db.WithContext(ctx).Where("provider_invoice_id = ?", providerInvoiceID).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *gormRepository) AppendHistory(ctx context.Context, entry *models.SubscriptionHistory) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_event_id"},
			{Name: "action"},
		},
		DoNothing: true,
	}).Create(entry)
	return tx.RowsAffected > 0, tx.Error
}
