package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func decodeFixture(t *testing.T, body string) (*Event, error) {
	t.Helper()
	var se stripe.Event
	require.NoError(t, json.Unmarshal([]byte(body), &se))
	return DecodeEvent(se, []byte(body))
}

func TestDecodeCheckoutSession(t *testing.T) {
	ev, err := decodeFixture(t, `{
		"id": "evt_checkout",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {
			"id": "cs_1",
			"mode": "subscription",
			"customer": "cus_1",
			"subscription": "sub_1",
			"client_reference_id": "42",
			"metadata": {"tier": "pro"}
		}}
	}`)
	require.NoError(t, err)

	assert.Equal(t, KindCheckoutCompleted, ev.Kind)
	require.NotNil(t, ev.Checkout)
	assert.Nil(t, ev.Subscription)
	assert.Nil(t, ev.Invoice)
	assert.Equal(t, "cus_1", ev.CustomerID())
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.Created)

	id, ok := ev.MetadataSubscriberID()
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)
}

func TestDecodeMetadataSubscriberIDWins(t *testing.T) {
	ev, err := decodeFixture(t, `{
		"id": "evt_checkout_md",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_2", "customer": "cus_2", "client_reference_id": "7", "metadata": {"subscriber_id": "9"}}}
	}`)
	require.NoError(t, err)

	id, ok := ev.MetadataSubscriberID()
	assert.True(t, ok)
	assert.Equal(t, uint(9), id)
	assert.True(t, ev.Created.IsZero())
}

func TestDecodeSubscriptionPeriodFromItems(t *testing.T) {
	ev, err := decodeFixture(t, `{
		"id": "evt_sub",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"status": "past_due",
			"items": {"data": [{"current_period_start": 1700000000, "current_period_end": 1702592000}]}
		}}
	}`)
	require.NoError(t, err)
	require.NotNil(t, ev.Subscription)

	start, end := ev.Subscription.PeriodBounds()
	require.NotNil(t, start)
	require.NotNil(t, end)
	assert.Equal(t, int64(1700000000), start.Unix())
	assert.Equal(t, int64(1702592000), end.Unix())
}

func TestDecodeInvoiceTax(t *testing.T) {
	ev, err := decodeFixture(t, `{
		"id": "evt_inv",
		"type": "invoice.paid",
		"data": {"object": {
			"id": "in_1",
			"customer": "cus_1",
			"total": 1190,
			"total_taxes": [{"amount": 100}, {"amount": 90}]
		}}
	}`)
	require.NoError(t, err)
	assert.Equal(t, KindInvoicePaid, ev.Kind)
	assert.Equal(t, int64(190), ev.Invoice.TaxAmount())

	tax := int64(5)
	ev.Invoice.Tax = &tax
	assert.Equal(t, int64(5), ev.Invoice.TaxAmount())
}

func TestDecodeUnknownTypeIsUnhandled(t *testing.T) {
	ev, err := decodeFixture(t, `{"id": "evt_x", "type": "charge.refunded", "data": {"object": {"id": "ch_1"}}}`)
	require.NoError(t, err)
	assert.Equal(t, KindUnhandled, ev.Kind)
	assert.Empty(t, ev.CustomerID())
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing id", `{"type": "invoice.paid", "data": {"object": {"id": "in_1", "customer": "cus_1"}}}`},
		{"missing data", `{"id": "evt_1", "type": "invoice.paid"}`},
		{"missing customer", `{"id": "evt_1", "type": "invoice.paid", "data": {"object": {"id": "in_1"}}}`},
		{"wrong type", `{"id": "evt_1", "type": "customer.subscription.deleted", "data": {"object": {"id": 12}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeFixture(t, tt.body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPayload))
		})
	}
}
