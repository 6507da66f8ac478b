package billing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ManuelReschke/PlaceFox/app/models"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
)

// ReplayOptions bound one replay sweep.
type ReplayOptions struct {
	// Grace skips events younger than this; they may still be in flight.
	Grace       time.Duration
	MaxAttempts int
	BatchSize   int
}

// ReplaySummary counts the outcome of one sweep.
type ReplaySummary struct {
	Replayed int
	Failed   int
}

// Replay runs a stored event through the processor again. Rows are only
// written after signature verification, so the payload is trusted.
func (p *Processor) Replay(ctx context.Context, row models.BillingEvent) (Result, error) {
	var se stripe.Event
	if err := json.Unmarshal([]byte(row.PayloadJSON), &se); err != nil {
		return Result{EventID: row.ProviderEventID}, errors.Mark(errors.Wrap(err, "decode stored payload"), ErrInvalidPayload)
	}
	ev, err := DecodeEvent(se, []byte(row.PayloadJSON))
	if err != nil {
		rec := Recorded{Event: &row, Retry: true}
		if merr := p.ledger.MarkFailed(ctx, rec, err); merr != nil {
			log.Errorf("[Billing] Could not store decode error for event %s: %v", row.ProviderEventID, merr)
		}
		return Result{EventID: row.ProviderEventID, EventType: row.EventType}, err
	}
	return p.ProcessEvent(ctx, ev)
}

// ReplayPending replays unprocessed events that the provider has not
// successfully redelivered.
func (p *Processor) ReplayPending(ctx context.Context, opts ReplayOptions) (ReplaySummary, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}

	rows, err := p.repo.ListReplayableEvents(ctx, p.now().Add(-opts.Grace), opts.MaxAttempts, opts.BatchSize)
	if err != nil {
		return ReplaySummary{}, errors.Wrap(err, "list replayable events")
	}

	var sum ReplaySummary
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if _, err := p.Replay(ctx, row); err != nil {
			sum.Failed++
			log.Warnf("[Billing] Replay of event %s (attempt %d) failed: %v", row.ProviderEventID, row.Attempts+1, err)
			continue
		}
		sum.Replayed++
	}
	if len(rows) > 0 {
		log.Infof("[Billing] Replay sweep: %d replayed, %d failed", sum.Replayed, sum.Failed)
	}
	return sum, nil
}
