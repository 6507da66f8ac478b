package billing

import (
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidSignature rejects a delivery before anything is persisted.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrInvalidPayload marks an authentic event whose payload can not be decoded.
	ErrInvalidPayload = errors.New("invalid webhook payload")
	// ErrSubscriberNotFound is a data-consistency gap, not a processing failure.
	ErrSubscriberNotFound = errors.New("subscriber not found")
	// ErrPrimaryFailed asks the provider to redeliver.
	ErrPrimaryFailed = errors.New("primary billing mutation failed")
)

// Config holds the billing processor settings.
type Config struct {
	WebhookSecret       string
	SignatureTolerance  time.Duration
	TrialLength         time.Duration
	DefaultCheckoutTier string
	CustomerCacheTTL    time.Duration

	// Replay of stored events that never completed.
	ReplayInterval    time.Duration
	ReplayGrace       time.Duration
	ReplayMaxAttempts int
}

// Clock returns the processing time. Tests pin it.
type Clock func() time.Time

// TrialStart is the write applied on a completed checkout.
type TrialStart struct {
	Tier                   string
	ProviderCustomerID     string
	ProviderSubscriptionID string
	StartAt                time.Time
	EndAt                  time.Time
}

// SubscriptionSync mirrors the provider's view of a subscription.
type SubscriptionSync struct {
	ProviderSubscriptionID string
	Status                 string
	Tier                   string // empty keeps the stored tier
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
}

// Result is what the HTTP boundary needs to build its acknowledgement.
type Result struct {
	EventID   string
	EventType string
	Duplicate bool
	Ignored   bool
	// SideEffects is only populated for tests and logging; failures in it
	// never change the outcome.
	SideEffects []TaskResult
}
