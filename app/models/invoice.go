package models

import "time"

// Invoice states mirrored from the provider's invoice lifecycle.
const (
	InvoiceStatusDraft          = "draft"
	InvoiceStatusOpen           = "open"
	InvoiceStatusPaid           = "paid"
	InvoiceStatusPaymentFailed  = "payment_failed"
	InvoiceStatusRequiresAction = "requires_action"
)

// Invoice is the local mirror of a provider invoice. Amounts are minor-unit
// integers (cents) in Currency.
type Invoice struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	ProviderInvoiceID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_invoices_provider_invoice" json:"provider_invoice_id"`
	SubscriberID      uint       `gorm:"not null;index" json:"subscriber_id"`
	Status            string     `gorm:"type:varchar(32);not null;default:'open';index" json:"status"`
	Subtotal          int64      `gorm:"not null;default:0" json:"subtotal"`
	Tax               int64      `gorm:"not null;default:0" json:"tax"`
	Total             int64      `gorm:"not null;default:0" json:"total"`
	AmountDue         int64      `gorm:"not null;default:0" json:"amount_due"`
	AmountPaid        int64      `gorm:"not null;default:0" json:"amount_paid"`
	Currency          string     `gorm:"type:varchar(3);not null;default:''" json:"currency"`
	InvoiceDate       time.Time  `gorm:"type:timestamp" json:"invoice_date"`
	DueDate           *time.Time `gorm:"type:timestamp;default:null" json:"due_date,omitempty"`
	PaidAt            *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	MetadataJSON      string     `gorm:"type:text" json:"metadata_json"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i *Invoice) IsPaid() bool {
	return i.Status == InvoiceStatusPaid
}
