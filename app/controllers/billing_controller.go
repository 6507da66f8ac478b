package controllers

import (
	"context"
	"time"

	"github.com/ManuelReschke/PlaceFox/internal/pkg/billing"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/metrics/counter"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const webhookTimeout = 15 * time.Second

// WebhookProcessor is the part of billing.Processor the HTTP boundary needs.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signatureHeader string) (billing.Result, error)
}

// OutcomeRecorder counts webhook outcomes per event type.
type OutcomeRecorder interface {
	Add(ctx context.Context, eventType, outcome string) error
}

// BillingController receives payment provider webhooks.
type BillingController struct {
	processor WebhookProcessor
	outcomes  OutcomeRecorder
}

// NewBillingController creates the webhook controller; outcomes may be nil.
func NewBillingController(processor WebhookProcessor, outcomes OutcomeRecorder) *BillingController {
	return &BillingController{processor: processor, outcomes: outcomes}
}

// HandleWebhook answers 400 for deliveries that are not authentic or can not
// be decoded, 500 when a primary mutation failed so the provider redelivers,
// and 200 for everything else including duplicates and ignored events.
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get(billing.SignatureHeader)

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	res, err := bc.processor.Process(ctx, rawBody, signature)
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrInvalidSignature):
		bc.count(res.EventType, counter.OutcomeInvalidSignature)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	case errors.Is(err, billing.ErrInvalidPayload):
		bc.count(res.EventType, counter.OutcomeInvalidPayload)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	default:
		bc.count(res.EventType, counter.OutcomeFailed)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}

	body := fiber.Map{"received": true}
	outcome := counter.OutcomeProcessed
	if res.Duplicate {
		body["duplicate"] = true
		outcome = counter.OutcomeDuplicate
	}
	if res.Ignored {
		body["ignored"] = true
		outcome = counter.OutcomeIgnored
	}
	bc.count(res.EventType, outcome)
	return c.Status(fiber.StatusOK).JSON(body)
}

// count is best effort and detached from the request context.
func (bc *BillingController) count(eventType, outcome string) {
	if bc.outcomes == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bc.outcomes.Add(ctx, eventType, outcome); err != nil {
		log.Warnf("[Billing] Could not count %s webhook outcome: %v", outcome, err)
	}
}
