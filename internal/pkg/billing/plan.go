package billing

import (
	"strings"

	"github.com/ManuelReschke/PlaceFox/app/models"
)

// normalizeTier returns a known tier or "" when the input is not one.
func normalizeTier(tier string) string {
	switch t := strings.ToLower(strings.TrimSpace(tier)); t {
	case models.TierFree, models.TierPremium, models.TierPro, models.TierEnterprise:
		return t
	default:
		return ""
	}
}

func tierFromMetadata(md map[string]string) string {
	for _, key := range []string{"tier", "plan"} {
		if t := normalizeTier(md[key]); t != "" {
			return t
		}
	}
	return ""
}

// subscriptionStatusFromProvider maps provider subscription states onto the
// local state machine.
func subscriptionStatusFromProvider(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "active":
		return models.SubscriptionStatusActive
	case "past_due", "unpaid", "paused":
		return models.SubscriptionStatusSuspended
	case "canceled", "incomplete_expired":
		return models.SubscriptionStatusCanceled
	default:
		return models.SubscriptionStatusNone
	}
}

// invoiceStatusFromProvider maps the provider's initial invoice state for
// invoice.created deliveries.
func invoiceStatusFromProvider(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "draft":
		return models.InvoiceStatusDraft
	case "paid":
		return models.InvoiceStatusPaid
	case "uncollectible":
		return models.InvoiceStatusPaymentFailed
	default:
		return models.InvoiceStatusOpen
	}
}
