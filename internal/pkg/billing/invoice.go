package billing

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ManuelReschke/PlaceFox/app/models"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/lo"
)

// handleInvoice upserts the invoice mirror and applies the subscription
// consequences of payment outcomes.
func (p *Processor) handleInvoice(ctx context.Context, tx Repository, ev *Event, own owner) ([]Task, bool, error) {
	if own.SubscriberID == 0 {
		warnUnresolved(ev)
		return nil, true, nil
	}

	inv := p.invoiceFromEvent(ev, own.SubscriberID)
	if err := tx.UpsertInvoice(ctx, inv); err != nil {
		return nil, false, errors.Wrapf(err, "upsert invoice %s", inv.ProviderInvoiceID)
	}
	log.Infof("[Billing] Invoice %s for subscriber %d is %s (%d %s due)",
		inv.ProviderInvoiceID, own.SubscriberID, inv.Status, inv.AmountDue, inv.Currency)

	switch ev.Kind {
	case KindInvoicePaid:
		now := p.now()
		ended, err := tx.EndTrialEarly(ctx, own.SubscriberID, now)
		if err != nil {
			return nil, false, errors.Wrapf(err, "end trial for subscriber %d", own.SubscriberID)
		}
		if ended {
			log.Infof("[Billing] Subscriber %d trial ended early by payment of %s", own.SubscriberID, inv.ProviderInvoiceID)
		}
		recovered, err := tx.ReactivateSuspended(ctx, own.SubscriberID)
		if err != nil {
			return nil, false, errors.Wrapf(err, "reactivate subscriber %d", own.SubscriberID)
		}
		if recovered {
			log.Infof("[Billing] Subscriber %d reactivated after payment of %s", own.SubscriberID, inv.ProviderInvoiceID)
		}
		return nil, false, nil

	case KindInvoicePaymentFailed:
		suspended, err := tx.SuspendActive(ctx, own.SubscriberID)
		if err != nil {
			return nil, false, errors.Wrapf(err, "suspend subscriber %d", own.SubscriberID)
		}
		if suspended {
			log.Warnf("[Billing] Subscriber %d suspended after failed payment of %s", own.SubscriberID, inv.ProviderInvoiceID)
		}
		return []Task{
			p.historyTask(own.SubscriberID, models.HistoryActionPaymentFailed, ev),
			p.notifyTask(Notice{
				SubscriberID: own.SubscriberID,
				Action:       models.HistoryActionPaymentFailed,
				Title:        "Payment failed",
				Body:         "We could not charge your payment method. Please update it to keep your listing active.",
				EventID:      ev.ID,
			}),
		}, false, nil

	case KindInvoiceActionRequired:
		return []Task{
			p.historyTask(own.SubscriberID, models.HistoryActionPaymentActionRequired, ev),
			p.notifyTask(Notice{
				SubscriberID: own.SubscriberID,
				Action:       models.HistoryActionPaymentActionRequired,
				Title:        "Payment needs your confirmation",
				Body:         "Your bank asked for additional authentication. Please confirm the payment to complete it.",
				EventID:      ev.ID,
			}),
		}, false, nil
	}
	return nil, false, nil
}

// invoiceFromEvent synthesises the local invoice row from the payload, so an
// invoice event arriving before invoice.created still produces a full row.
func (p *Processor) invoiceFromEvent(ev *Event, subscriberID uint) *models.Invoice {
	src := ev.Invoice

	status := invoiceStatusFromProvider(src.Status)
	switch ev.Kind {
	case KindInvoicePaid:
		status = models.InvoiceStatusPaid
	case KindInvoicePaymentFailed:
		status = models.InvoiceStatusPaymentFailed
	case KindInvoiceActionRequired:
		status = models.InvoiceStatusRequiresAction
	}

	inv := &models.Invoice{
		ProviderInvoiceID: src.ID,
		SubscriberID:      subscriberID,
		Status:            status,
		Subtotal:          src.Subtotal,
		Tax:               src.TaxAmount(),
		Total:             src.Total,
		AmountDue:         src.AmountDue,
		AmountPaid:        src.AmountPaid,
		Currency:          strings.ToLower(src.Currency),
		InvoiceDate:       lo.FromPtrOr(unixPtr(src.Created), p.effectiveAt(ev)),
		DueDate:           unixPtr(src.DueDate),
	}
	if inv.IsPaid() {
		inv.PaidAt = lo.ToPtr(lo.FromPtrOr(unixPtr(src.StatusTransitions.PaidAt), p.now()))
	}
	if len(src.Metadata) > 0 {
		if b, err := json.Marshal(src.Metadata); err == nil {
			inv.MetadataJSON = string(b)
		}
	}
	return inv
}
