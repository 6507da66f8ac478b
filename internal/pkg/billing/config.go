package billing

import (
	"time"

	"github.com/ManuelReschke/PlaceFox/app/models"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/env"
)

// ConfigFromEnv reads the processor settings from the environment.
func ConfigFromEnv() Config {
	return Config{
		WebhookSecret:       env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		SignatureTolerance:  env.GetEnvSeconds("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 5*time.Minute),
		TrialLength:         time.Duration(env.GetEnvInt("BILLING_TRIAL_DAYS", 14)) * 24 * time.Hour,
		DefaultCheckoutTier: env.GetEnv("BILLING_DEFAULT_TIER", models.TierPremium),
		CustomerCacheTTL:    env.GetEnvSeconds("BILLING_CUSTOMER_CACHE_TTL_SECONDS", 24*time.Hour),
		ReplayInterval:      env.GetEnvSeconds("BILLING_REPLAY_INTERVAL_SECONDS", 10*time.Minute),
		ReplayGrace:         env.GetEnvSeconds("BILLING_REPLAY_GRACE_SECONDS", 15*time.Minute),
		ReplayMaxAttempts:   env.GetEnvInt("BILLING_REPLAY_MAX_ATTEMPTS", 5),
	}
}
