package billingtest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/PlaceFox/internal/pkg/billing"
)

// TestSecret is the endpoint secret used by fixtures.
const TestSecret = "whsec_test_secret"

// Sign returns a Stripe-Signature header for payload signed at ts.
func Sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

// SignNow signs payload with TestSecret at the current time.
func SignNow(payload []byte) string {
	return Sign(payload, TestSecret, time.Now())
}

// EventJSON builds a webhook body wrapping object as data.object.
func EventJSON(id, eventType string, object map[string]any) []byte {
	body, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": "2025-07-30.basil",
		"created":     time.Now().Unix(),
		"livemode":    false,
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		panic(err)
	}
	return body
}

func CheckoutCompleted(eventID, customerID string, subscriberID uint, tier string) []byte {
	md := map[string]any{"subscriber_id": fmt.Sprint(subscriberID)}
	if tier != "" {
		md["tier"] = tier
	}
	return EventJSON(eventID, "checkout.session.completed", map[string]any{
		"id":           "cs_" + eventID,
		"object":       "checkout.session",
		"mode":         "subscription",
		"customer":     customerID,
		"subscription": "sub_" + customerID,
		"metadata":     md,
	})
}

func SubscriptionEvent(eventID, eventType, customerID, status string, metadata map[string]any) []byte {
	now := time.Now()
	return EventJSON(eventID, eventType, map[string]any{
		"id":                   "sub_" + customerID,
		"object":               "subscription",
		"customer":             customerID,
		"status":               status,
		"cancel_at_period_end": false,
		"trial_end":            now.Add(72 * time.Hour).Unix(),
		"metadata":             metadata,
		"items": map[string]any{
			"data": []map[string]any{{
				"current_period_start": now.Unix(),
				"current_period_end":   now.AddDate(0, 1, 0).Unix(),
			}},
		},
	})
}

func InvoiceEvent(eventID, eventType, invoiceID, customerID, status string) []byte {
	obj := map[string]any{
		"id":          invoiceID,
		"object":      "invoice",
		"customer":    customerID,
		"status":      status,
		"currency":    "EUR",
		"subtotal":    2000,
		"total":       2380,
		"amount_due":  2380,
		"amount_paid": 0,
		"created":     time.Now().Add(-time.Hour).Unix(),
		"total_taxes": []map[string]any{{"amount": 380}},
	}
	if status == "paid" {
		obj["amount_paid"] = 2380
		obj["status_transitions"] = map[string]any{"paid_at": time.Now().Unix()}
	}
	return EventJSON(eventID, eventType, obj)
}

// RecordingNotifier collects notices.
type RecordingNotifier struct {
	mu      sync.Mutex
	notices []billing.Notice
	Err     error
}

func (n *RecordingNotifier) Notify(_ context.Context, notice billing.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.Err
}

func (n *RecordingNotifier) Notices() []billing.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]billing.Notice(nil), n.notices...)
}

// RecordingReferrals collects referral conversions.
type RecordingReferrals struct {
	mu    sync.Mutex
	calls []uint
	Err   error
}

func (r *RecordingReferrals) TrackReferralConversion(_ context.Context, subscriberID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, subscriberID)
	return r.Err
}

func (r *RecordingReferrals) Calls() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.calls...)
}
