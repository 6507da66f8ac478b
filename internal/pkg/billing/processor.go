package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/PlaceFox/app/models"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

const defaultTrialLength = 14 * 24 * time.Hour

// errAlreadyProcessed rolls back a delivery that lost the claim on its event.
var errAlreadyProcessed = errors.New("event already processed")

// Processor verifies, records and dispatches provider webhook events.
type Processor struct {
	cfg       Config
	repo      Repository
	ledger    *Ledger
	lookup    AccountLookup
	referrals ReferralTracker
	notifier  Notifier
	effects   *SideEffects
	clock     Clock
}

// Option customises a Processor.
type Option func(*Processor)

func WithClock(clock Clock) Option {
	return func(p *Processor) { p.clock = clock }
}

func WithAccountLookup(lookup AccountLookup) Option {
	return func(p *Processor) { p.lookup = lookup }
}

func WithReferralTracker(t ReferralTracker) Option {
	return func(p *Processor) { p.referrals = t }
}

func WithNotifier(n Notifier) Option {
	return func(p *Processor) { p.notifier = n }
}

// NewProcessor wires a processor around an injected repository.
func NewProcessor(cfg Config, repo Repository, opts ...Option) *Processor {
	if cfg.TrialLength <= 0 {
		cfg.TrialLength = defaultTrialLength
	}
	if normalizeTier(cfg.DefaultCheckoutTier) == "" {
		cfg.DefaultCheckoutTier = models.TierPremium
	}

	p := &Processor{
		cfg:       cfg,
		repo:      repo,
		ledger:    NewLedger(repo),
		lookup:    NewRepositoryLookup(repo),
		referrals: noopReferralTracker{},
		notifier:  noopNotifier{},
		effects:   NewSideEffects(),
		clock:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one raw webhook delivery. The returned error is one of
// ErrInvalidSignature, ErrInvalidPayload or ErrPrimaryFailed (checked with
// errors.Is); everything else is acknowledged.
func (p *Processor) Process(ctx context.Context, payload []byte, signatureHeader string) (Result, error) {
	se, err := VerifyStripeWebhook(payload, signatureHeader, p.cfg.WebhookSecret, p.cfg.SignatureTolerance)
	if err != nil {
		log.Warnf("[Billing] Rejected webhook: %v", err)
		return Result{}, err
	}

	ev, err := DecodeEvent(se, payload)
	if err != nil {
		log.Warnf("[Billing] Undecodable %s event %s: %v", se.Type, se.ID, err)
		p.recordUndecodable(ctx, &Event{ID: se.ID, Type: string(se.Type), Raw: payload}, err)
		return Result{EventID: se.ID, EventType: string(se.Type)}, err
	}
	return p.ProcessEvent(ctx, ev)
}

// ProcessEvent runs an already verified event through the ledger, the
// dispatcher and the side-effect coordinator.
func (p *Processor) ProcessEvent(ctx context.Context, ev *Event) (Result, error) {
	res := Result{EventID: ev.ID, EventType: ev.Type}

	own, resolveErr := p.resolveOwner(ctx, ev)
	if resolveErr != nil {
		log.Warnf("[Billing] Subscriber resolution for event %s failed: %v", ev.ID, resolveErr)
	}

	rec, err := p.ledger.Record(ctx, ev, own.auditID())
	if err != nil {
		return res, errors.Mark(err, ErrPrimaryFailed)
	}
	if rec.Duplicate {
		log.Infof("[Billing] Duplicate event %s (%s) acknowledged without changes", ev.ID, ev.Type)
		res.Duplicate = true
		return res, nil
	}
	if rec.Retry {
		log.Infof("[Billing] Retrying previously failed event %s (%s)", ev.ID, ev.Type)
	}
	if resolveErr != nil {
		return res, p.fail(ctx, rec, ev, resolveErr)
	}

	var (
		tasks   []Task
		ignored bool
	)
	err = p.repo.Transaction(ctx, func(tx Repository) error {
		claimed, cerr := p.ledger.Claim(ctx, tx, rec, p.clock())
		if cerr != nil {
			return cerr
		}
		if !claimed {
			return errAlreadyProcessed
		}
		var herr error
		tasks, ignored, herr = p.dispatch(ctx, tx, ev, own)
		return herr
	})
	if errors.Is(err, errAlreadyProcessed) {
		log.Infof("[Billing] Event %s (%s) was processed by a concurrent delivery", ev.ID, ev.Type)
		res.Duplicate = true
		return res, nil
	}
	if err != nil {
		return res, p.fail(ctx, rec, ev, err)
	}

	res.Ignored = ignored
	res.SideEffects = p.effects.Run(ctx, ev.ID, tasks...)
	return res, nil
}

// dispatch routes the event to exactly one handler. It runs inside the
// transaction that claimed the ledger row.
func (p *Processor) dispatch(ctx context.Context, tx Repository, ev *Event, own owner) ([]Task, bool, error) {
	switch ev.Kind {
	case KindCheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, tx, ev, own)
	case KindSubscriptionCreated, KindSubscriptionUpdated:
		return p.handleSubscriptionChanged(ctx, tx, ev, own)
	case KindSubscriptionDeleted:
		return p.handleSubscriptionDeleted(ctx, tx, ev, own)
	case KindTrialWillEnd:
		return p.handleTrialWillEnd(ctx, tx, ev, own)
	case KindInvoiceCreated, KindInvoicePaid, KindInvoicePaymentFailed, KindInvoiceActionRequired:
		return p.handleInvoice(ctx, tx, ev, own)
	case KindPaymentMethodAttached:
		return p.handlePaymentMethodAttached(ctx, tx, ev, own)
	case KindUnhandled:
		log.Infof("[Billing] Ignoring unhandled event type %s (%s)", ev.Type, ev.ID)
		return nil, true, nil
	default:
		log.Warnf("[Billing] Event %s has unknown kind %q", ev.ID, ev.Kind)
		return nil, true, nil
	}
}

// owner is the result of subscriber resolution for one event.
type owner struct {
	// SubscriberID is the subscriber handlers may mutate; zero if unresolved.
	SubscriberID uint
	// MetadataID is an unverified id from payload metadata, kept for audit.
	MetadataID uint
	// LinkCustomer allows a checkout to store the event's customer id.
	LinkCustomer bool
}

func (o owner) auditID() uint {
	if o.SubscriberID > 0 {
		return o.SubscriberID
	}
	return o.MetadataID
}

// resolveOwner finds the subscriber by provider customer id. Checkouts may
// also resolve through metadata, since they are what links the customer id.
// Only transient lookup failures are returned as errors.
func (p *Processor) resolveOwner(ctx context.Context, ev *Event) (owner, error) {
	var own owner
	if id, ok := ev.MetadataSubscriberID(); ok {
		own.MetadataID = id
	}

	customerID := ev.CustomerID()
	var customerOwner uint
	if customerID != "" {
		id, err := p.lookup.SubscriberIDByCustomerID(ctx, customerID)
		switch {
		case err == nil:
			customerOwner = id
		case errors.Is(err, ErrSubscriberNotFound):
		default:
			return own, errors.Wrapf(err, "lookup customer %s", customerID)
		}
	}

	if ev.Kind == KindCheckoutCompleted && own.MetadataID > 0 {
		_, err := p.repo.GetSubscriberByID(ctx, own.MetadataID)
		switch {
		case err == nil:
			own.SubscriberID = own.MetadataID
			own.LinkCustomer = customerID != "" && (customerOwner == 0 || customerOwner == own.MetadataID)
			if customerOwner != 0 && customerOwner != own.MetadataID {
				log.Warnf("[Billing] Customer %s already belongs to subscriber %d, not linking to %d",
					customerID, customerOwner, own.MetadataID)
			}
			return own, nil
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return own, errors.Wrapf(err, "load subscriber %d", own.MetadataID)
		}
	}

	own.SubscriberID = customerOwner
	return own, nil
}

func (p *Processor) fail(ctx context.Context, rec Recorded, ev *Event, cause error) error {
	log.Errorf("[Billing] Processing event %s (%s) failed: %v", ev.ID, ev.Type, cause)
	if err := p.ledger.MarkFailed(ctx, rec, cause); err != nil {
		log.Errorf("[Billing] Could not store processing error for event %s: %v", ev.ID, err)
	}
	return errors.Mark(errors.Wrapf(cause, "process event %s", ev.ID), ErrPrimaryFailed)
}

func (p *Processor) recordUndecodable(ctx context.Context, ev *Event, cause error) {
	if ev.ID == "" {
		return
	}
	rec, err := p.ledger.Record(ctx, ev, 0)
	if err != nil {
		log.Errorf("[Billing] Could not record undecodable event %s: %v", ev.ID, err)
		return
	}
	if rec.Duplicate {
		return
	}
	if err := p.ledger.MarkFailed(ctx, rec, cause); err != nil {
		log.Errorf("[Billing] Could not store decode error for event %s: %v", ev.ID, err)
	}
}

func (p *Processor) now() time.Time {
	return p.clock()
}

func (p *Processor) effectiveAt(ev *Event) time.Time {
	if ev.Created.IsZero() {
		return p.now()
	}
	return ev.Created
}

func warnUnresolved(ev *Event) {
	log.Warnf("[Billing] No subscriber for customer %q on event %s (%s); acknowledged without changes",
		ev.CustomerID(), ev.ID, ev.Type)
}
