package controllers

import (
	"context"
	"time"

	"github.com/ManuelReschke/PlaceFox/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/lo"
)

// Pinger is a dependency the health check probes.
type Pinger func(ctx context.Context) error

// HealthController reports liveness of the webhook service and its stores.
type HealthController struct {
	checks map[string]Pinger
	stats  *counter.WebhookCounter
}

// NewHealthController creates the controller; stats may be nil.
func NewHealthController(checks map[string]Pinger, stats *counter.WebhookCounter) *HealthController {
	return &HealthController{checks: checks, stats: stats}
}

// HandleHealth answers 200 when every check passes and 503 otherwise.
func (hc *HealthController) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	results := make(map[string]string, len(hc.checks))
	healthy := true
	for name, ping := range hc.checks {
		if err := ping(ctx); err != nil {
			log.Warnf("Health check %s failed: %v", name, err)
			results[name] = "down"
			healthy = false
			continue
		}
		results[name] = "up"
	}

	return c.Status(lo.Ternary(healthy, fiber.StatusOK, fiber.StatusServiceUnavailable)).JSON(fiber.Map{
		"status": lo.Ternary(healthy, "ok", "degraded"),
		"checks": results,
	})
}

// HandleWebhookStats returns the webhook outcome counters.
func (hc *HealthController) HandleWebhookStats(c *fiber.Ctx) error {
	if hc.stats == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "stats_disabled"})
	}
	stats, err := hc.stats.Snapshot(c.UserContext())
	if err != nil {
		log.Warnf("Could not read webhook stats: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "stats_unavailable"})
	}
	return c.JSON(stats)
}
