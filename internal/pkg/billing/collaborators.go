package billing

import "context"

// ReferralTracker records that a referred subscriber converted. It must be
// idempotent; the processor may call it again for a redelivered checkout.
type ReferralTracker interface {
	TrackReferralConversion(ctx context.Context, subscriberID uint) error
}

// Notice is a lifecycle notification addressed to a subscriber.
type Notice struct {
	SubscriberID uint
	Action       string
	Title        string
	Body         string
	EventID      string
}

// Notifier delivers lifecycle notices (in-app, e-mail).
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

type noopReferralTracker struct{}

func (noopReferralTracker) TrackReferralConversion(context.Context, uint) error { return nil }

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notice) error { return nil }
