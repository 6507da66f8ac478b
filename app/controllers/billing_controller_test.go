package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/ManuelReschke/PlaceFox/app/models"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/billing"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/billing/billingtest"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebhookApp(p WebhookProcessor) *fiber.App {
	app := fiber.New()
	app.Post("/webhook", NewBillingController(p, nil).HandleWebhook)
	return app
}

func postWebhook(t *testing.T, app *fiber.App, payload []byte, signature string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set(billing.SignatureHeader, signature)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

func newTestProcessor(repo billing.Repository) *billing.Processor {
	return billing.NewProcessor(billing.Config{WebhookSecret: billingtest.TestSecret}, repo)
}

func TestHandleWebhookAcknowledgesAndDeduplicates(t *testing.T) {
	repo := billingtest.NewMemoryRepository()
	id := repo.AddSubscriber(models.Subscriber{TenantID: 1})
	app := newWebhookApp(newTestProcessor(repo))
	payload := billingtest.CheckoutCompleted("evt_http", "cus_1", id, models.TierPremium)

	status, body := postWebhook(t, app, payload, billingtest.SignNow(payload))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, map[string]any{"received": true}, body)
	assert.Equal(t, models.SubscriptionStatusTrialing, repo.Subscriber(id).Status)

	status, body = postWebhook(t, app, payload, billingtest.SignNow(payload))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	repo := billingtest.NewMemoryRepository()
	app := newWebhookApp(newTestProcessor(repo))
	payload := billingtest.InvoiceEvent("evt_forged", "invoice.paid", "in_1", "cus_1", "paid")

	status, body := postWebhook(t, app, payload, "t=1,v1=deadbeef")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_signature", body["error"])

	status, _ = postWebhook(t, app, payload, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, 0, repo.EventCount())
}

func TestHandleWebhookIgnoredEvent(t *testing.T) {
	app := newWebhookApp(newTestProcessor(billingtest.NewMemoryRepository()))
	payload := billingtest.EventJSON("evt_other", "charge.refunded", map[string]any{"id": "ch_1"})

	status, body := postWebhook(t, app, payload, billingtest.SignNow(payload))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["received"])
	assert.Equal(t, true, body["ignored"])
}

func TestHandleWebhookPrimaryFailureIs500(t *testing.T) {
	repo := billingtest.NewMemoryRepository()
	repo.AddSubscriber(models.Subscriber{TenantID: 1, ProviderCustomerID: lo.ToPtr("cus_1"), Status: models.SubscriptionStatusActive})
	repo.Fail("UpsertInvoice", errors.New("lock wait timeout"))
	app := newWebhookApp(newTestProcessor(repo))
	payload := billingtest.InvoiceEvent("evt_fail", "invoice.payment_failed", "in_1", "cus_1", "open")

	status, body := postWebhook(t, app, payload, billingtest.SignNow(payload))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "processing_failed", body["error"])
}

type stubProcessor struct {
	err error
}

func (s stubProcessor) Process(context.Context, []byte, string) (billing.Result, error) {
	return billing.Result{}, s.err
}

func TestHandleWebhookInvalidPayloadIs400(t *testing.T) {
	app := newWebhookApp(stubProcessor{err: errors.Wrap(billing.ErrInvalidPayload, "decode invoice.paid")})

	status, body := postWebhook(t, app, []byte(`{}`), "t=1,v1=00")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_payload", body["error"])
}

type recordedOutcomes []string

func (r *recordedOutcomes) Add(_ context.Context, eventType, outcome string) error {
	*r = append(*r, eventType+"="+outcome)
	return nil
}

func TestHandleWebhookCountsOutcomes(t *testing.T) {
	repo := billingtest.NewMemoryRepository()
	var outcomes recordedOutcomes
	app := fiber.New()
	app.Post("/webhook", NewBillingController(newTestProcessor(repo), &outcomes).HandleWebhook)
	payload := billingtest.EventJSON("evt_other", "charge.refunded", map[string]any{"id": "ch_1"})

	postWebhook(t, app, payload, billingtest.SignNow(payload))
	postWebhook(t, app, payload, billingtest.SignNow(payload))
	postWebhook(t, app, payload, "t=1,v1=00")

	assert.Equal(t, recordedOutcomes{
		"charge.refunded=ignored",
		"charge.refunded=duplicate",
		"=invalid_signature",
	}, outcomes)
}

func TestHandleWebhookCountsInvalidPayloadSeparately(t *testing.T) {
	var outcomes recordedOutcomes
	app := fiber.New()
	app.Post("/webhook", NewBillingController(stubProcessor{err: errors.Wrap(billing.ErrInvalidPayload, "decode invoice.paid")}, &outcomes).HandleWebhook)

	postWebhook(t, app, []byte(`{}`), "t=1,v1=00")

	assert.Equal(t, recordedOutcomes{"=invalid_payload"}, outcomes)
}
