package billing

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v82"
)

// EventKind is the closed set of event categories the dispatcher handles.
type EventKind string

const (
	KindCheckoutCompleted     EventKind = "checkout_completed"
	KindSubscriptionCreated   EventKind = "subscription_created"
	KindSubscriptionUpdated   EventKind = "subscription_updated"
	KindSubscriptionDeleted   EventKind = "subscription_deleted"
	KindTrialWillEnd          EventKind = "trial_will_end"
	KindInvoiceCreated        EventKind = "invoice_created"
	KindInvoicePaid           EventKind = "invoice_paid"
	KindInvoicePaymentFailed  EventKind = "invoice_payment_failed"
	KindInvoiceActionRequired EventKind = "invoice_action_required"
	KindPaymentMethodAttached EventKind = "payment_method_attached"
	KindUnhandled             EventKind = "unhandled"
)

var eventKinds = map[stripe.EventType]EventKind{
	stripe.EventTypeCheckoutSessionCompleted:         KindCheckoutCompleted,
	stripe.EventTypeCustomerSubscriptionCreated:      KindSubscriptionCreated,
	stripe.EventTypeCustomerSubscriptionUpdated:      KindSubscriptionUpdated,
	stripe.EventTypeCustomerSubscriptionDeleted:      KindSubscriptionDeleted,
	stripe.EventTypeCustomerSubscriptionTrialWillEnd: KindTrialWillEnd,
	stripe.EventTypeInvoiceCreated:                   KindInvoiceCreated,
	stripe.EventTypeInvoicePaid:                      KindInvoicePaid,
	stripe.EventTypeInvoicePaymentFailed:             KindInvoicePaymentFailed,
	stripe.EventTypeInvoicePaymentActionRequired:     KindInvoiceActionRequired,
	stripe.EventTypePaymentMethodAttached:            KindPaymentMethodAttached,
}

// Event is a verified provider event decoded into a tagged union. Exactly one
// payload pointer is set, selected by Kind; Unhandled events carry none.
type Event struct {
	ID      string
	Type    string
	Kind    EventKind
	Created time.Time
	Raw     []byte

	Checkout      *CheckoutSession
	Subscription  *Subscription
	Invoice       *Invoice
	PaymentMethod *PaymentMethod
}

// CheckoutSession is the subset of a checkout session we act on.
type CheckoutSession struct {
	ID                string            `json:"id" validate:"required"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// Subscription is the subset of a provider subscription we mirror. Period
// bounds moved onto subscription items in newer API versions, so both
// locations are decoded.
type Subscription struct {
	ID                 string            `json:"id" validate:"required"`
	Customer           string            `json:"customer" validate:"required"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	TrialEnd           int64             `json:"trial_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

// Invoice is the subset of a provider invoice mirrored into the ledger.
type Invoice struct {
	ID         string `json:"id" validate:"required"`
	Customer   string `json:"customer" validate:"required"`
	Status     string `json:"status"`
	Currency   string `json:"currency"`
	Subtotal   int64  `json:"subtotal"`
	Tax        *int64 `json:"tax"`
	TotalTaxes []struct {
		Amount int64 `json:"amount"`
	} `json:"total_taxes"`
	Total             int64             `json:"total"`
	AmountDue         int64             `json:"amount_due"`
	AmountPaid        int64             `json:"amount_paid"`
	Created           int64             `json:"created"`
	DueDate           int64             `json:"due_date"`
	Metadata          map[string]string `json:"metadata"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
}

// PaymentMethod is the subset of an attached payment method we record.
type PaymentMethod struct {
	ID       string `json:"id" validate:"required"`
	Type     string `json:"type"`
	Customer string `json:"customer" validate:"required"`
}

var payloadValidator = validator.New()

// DecodeEvent turns a verified stripe.Event into the closed Event union.
// Unknown event types decode to KindUnhandled without error.
func DecodeEvent(se stripe.Event, raw []byte) (*Event, error) {
	ev := &Event{
		ID:   strings.TrimSpace(se.ID),
		Type: string(se.Type),
		Raw:  raw,
	}
	if se.Created > 0 {
		ev.Created = time.Unix(se.Created, 0).UTC()
	}
	if ev.ID == "" {
		return nil, errors.Wrap(ErrInvalidPayload, "event id is empty")
	}

	kind, ok := eventKinds[se.Type]
	if !ok {
		ev.Kind = KindUnhandled
		return ev, nil
	}
	ev.Kind = kind

	if se.Data == nil || len(se.Data.Raw) == 0 {
		return nil, errors.Wrapf(ErrInvalidPayload, "event %s has no data object", ev.ID)
	}
	object := se.Data.Raw

	var target any
	switch kind {
	case KindCheckoutCompleted:
		ev.Checkout = &CheckoutSession{}
		target = ev.Checkout
	case KindSubscriptionCreated, KindSubscriptionUpdated, KindSubscriptionDeleted, KindTrialWillEnd:
		ev.Subscription = &Subscription{}
		target = ev.Subscription
	case KindInvoiceCreated, KindInvoicePaid, KindInvoicePaymentFailed, KindInvoiceActionRequired:
		ev.Invoice = &Invoice{}
		target = ev.Invoice
	case KindPaymentMethodAttached:
		ev.PaymentMethod = &PaymentMethod{}
		target = ev.PaymentMethod
	}

	if err := json.Unmarshal(object, target); err != nil {
		return nil, errors.Wrapf(errors.Mark(err, ErrInvalidPayload), "decode %s", ev.Type)
	}
	if err := payloadValidator.Struct(target); err != nil {
		return nil, errors.Wrapf(errors.Mark(err, ErrInvalidPayload), "validate %s", ev.Type)
	}
	return ev, nil
}

// CustomerID returns the provider customer id carried by the payload.
func (e *Event) CustomerID() string {
	switch {
	case e.Checkout != nil:
		return strings.TrimSpace(e.Checkout.Customer)
	case e.Subscription != nil:
		return strings.TrimSpace(e.Subscription.Customer)
	case e.Invoice != nil:
		return strings.TrimSpace(e.Invoice.Customer)
	case e.PaymentMethod != nil:
		return strings.TrimSpace(e.PaymentMethod.Customer)
	default:
		return ""
	}
}

// MetadataSubscriberID returns the local subscriber id a checkout or
// subscription was created with, if any.
func (e *Event) MetadataSubscriberID() (uint, bool) {
	var candidates []string
	switch {
	case e.Checkout != nil:
		candidates = append(candidates, e.Checkout.Metadata["subscriber_id"], e.Checkout.ClientReferenceID)
	case e.Subscription != nil:
		candidates = append(candidates, e.Subscription.Metadata["subscriber_id"])
	case e.Invoice != nil:
		candidates = append(candidates, e.Invoice.Metadata["subscriber_id"])
	}
	for _, c := range candidates {
		id, err := strconv.ParseUint(strings.TrimSpace(c), 10, 64)
		if err == nil && id > 0 {
			return uint(id), true
		}
	}
	return 0, false
}

// PeriodBounds returns the current billing period, preferring top-level
// fields and falling back to the first subscription item.
func (s *Subscription) PeriodBounds() (*time.Time, *time.Time) {
	start, end := s.CurrentPeriodStart, s.CurrentPeriodEnd
	if start == 0 && end == 0 && len(s.Items.Data) > 0 {
		start, end = s.Items.Data[0].CurrentPeriodStart, s.Items.Data[0].CurrentPeriodEnd
	}
	return unixPtr(start), unixPtr(end)
}

// TaxAmount returns the invoice tax in minor units.
func (i *Invoice) TaxAmount() int64 {
	if i.Tax != nil {
		return *i.Tax
	}
	var sum int64
	for _, t := range i.TotalTaxes {
		sum += t.Amount
	}
	return sum
}

func unixPtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
