package billing

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// SignatureHeader carries the provider's timestamped HMAC-SHA256 signature.
const SignatureHeader = "Stripe-Signature"

// VerifyStripeWebhook authenticates a raw webhook body against the
// Stripe-Signature header and the endpoint secret. It never touches storage.
// A zero tolerance falls back to the library default of five minutes.
func VerifyStripeWebhook(payload []byte, signatureHeader, webhookSecret string, tolerance time.Duration) (stripe.Event, error) {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" {
		return stripe.Event{}, errors.Wrap(ErrInvalidSignature, "missing signature header")
	}
	if secret == "" {
		return stripe.Event{}, errors.Wrap(ErrInvalidSignature, "webhook secret not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, errors.Mark(errors.Wrap(err, "construct event"), ErrInvalidSignature)
	}
	return event, nil
}
