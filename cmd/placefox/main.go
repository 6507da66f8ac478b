package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/PlaceFox/app/controllers"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/billing"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/cache"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/database"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/env"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/mail"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/notify"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/referral"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/router"
)

func main() {
	app, replay := NewApplication()
	replay.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down webhook server")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Errorf("Shutdown failed: %v", err)
		}
		replay.Stop()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	if env.IsDev() {
		log.SetLevel(log.LevelDebug)
	}

	db, err := database.SetupDatabase()
	if err != nil {
		log.Fatalf("Database setup failed: %v", err)
	}
	redisClient := cache.SetupCache()

	cfg := billing.ConfigFromEnv()
	if cfg.WebhookSecret == "" {
		log.Warn("STRIPE_WEBHOOK_SECRET not set, every webhook will be rejected")
	}
	repo := billing.NewRepository(db)
	processor := billing.NewProcessor(cfg, repo,
		billing.WithAccountLookup(billing.NewCachedAccountLookup(billing.NewRepositoryLookup(repo), redisClient, cfg.CustomerCacheTTL)),
		billing.WithReferralTracker(referral.NewTracker(db)),
		billing.WithNotifier(notify.NewNotifier(db, mail.NewSMTPMailerFromEnv())),
	)

	stats := counter.NewWebhookCounter(redisClient)
	health := controllers.NewHealthController(map[string]controllers.Pinger{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"cache": cache.Ping,
	}, stats)

	// webhook payloads are small; the provider caps them well below this
	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	if password := env.GetEnv("METRICS_PASSWORD", ""); password != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				env.GetEnv("METRICS_USER", "admin"): password,
			},
		}), monitor.New())
	}

	// ROUTER
	router.InstallRouter(app, router.Handlers{
		Billing: controllers.NewBillingController(processor, stats),
		Health:  health,
	})

	replay := jobqueue.NewManager(processor, cfg.ReplayInterval, billing.ReplayOptions{
		Grace:       cfg.ReplayGrace,
		MaxAttempts: cfg.ReplayMaxAttempts,
	})

	return app, replay
}
