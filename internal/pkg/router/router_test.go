package router

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/ManuelReschke/PlaceFox/app/controllers"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/billing"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/billing/billingtest"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	proc := billing.NewProcessor(billing.Config{WebhookSecret: billingtest.TestSecret}, billingtest.NewMemoryRepository())
	app := fiber.New()
	InstallRouter(app, Handlers{
		Billing: controllers.NewBillingController(proc, nil),
		Health: controllers.NewHealthController(map[string]controllers.Pinger{
			"database": func(context.Context) error { return nil },
		}, nil),
	})
	return app
}

func TestWebhookRoutes(t *testing.T) {
	app := newTestApp(t)
	payload := billingtest.EventJSON("evt_route", "charge.refunded", map[string]any{"id": "ch_1"})

	for _, path := range []string{"/webhook", "/webhooks/stripe"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(payload))
			req.Header.Set(billing.SignatureHeader, billingtest.SignNow(payload))
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)

			req = httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(payload))
			resp, err = app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHealthRoute(t *testing.T) {
	resp, err := newTestApp(t).Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestStatsRouteRequiresAuth(t *testing.T) {
	t.Setenv("STATS_PASSWORD", "secret")
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/billing/stats", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/api/billing/stats", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "stats disabled without a counter")
}
