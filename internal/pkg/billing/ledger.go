package billing

import (
	"context"
	"strings"
	"time"

	"github.com/ManuelReschke/PlaceFox/app/models"
	"github.com/cockroachdb/errors"
)

// Ledger is the idempotency ledger: every authentic delivery is appended
// before dispatch, keyed by the provider's event id.
type Ledger struct {
	repo Repository
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Recorded is the outcome of appending an event to the ledger.
type Recorded struct {
	Event *models.BillingEvent
	// Duplicate is set when the event was already recorded and fully
	// processed. An event that was recorded but not processed is not a
	// duplicate yet; whoever claims it first runs it.
	Duplicate bool
	// Retry is set when an earlier attempt of the event failed.
	Retry bool
}

// Record appends ev to the ledger. subscriberID is the best-effort owner and
// may be zero.
func (l *Ledger) Record(ctx context.Context, ev *Event, subscriberID uint) (Recorded, error) {
	if ev == nil || strings.TrimSpace(ev.ID) == "" {
		return Recorded{}, errors.New("event id is required")
	}

	row := &models.BillingEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		PayloadJSON:     string(ev.Raw),
	}
	if subscriberID > 0 {
		id := subscriberID
		row.SubscriberID = &id
	}

	created, stored, err := l.repo.CreateEventIfNotExists(ctx, row)
	if err != nil {
		return Recorded{}, errors.Wrapf(err, "record event %s", ev.ID)
	}
	if created {
		return Recorded{Event: stored}, nil
	}
	return Recorded{Event: stored, Duplicate: stored.Processed, Retry: !stored.Processed && stored.Attempts > 0}, nil
}

// Claim sets the idempotency marker inside the transaction that also holds
// the primary state write. It reports false when another delivery of the
// same event already committed.
func (l *Ledger) Claim(ctx context.Context, repo Repository, rec Recorded, at time.Time) (bool, error) {
	return repo.MarkEventProcessed(ctx, rec.Event.ID, at)
}

// MarkFailed stores the processing error so the next redelivery retries.
func (l *Ledger) MarkFailed(ctx context.Context, rec Recorded, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return l.repo.MarkEventFailed(ctx, rec.Event.ID, msg)
}
