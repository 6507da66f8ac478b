package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/PlaceFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// SetupCache initializes the connection to the Redis-compatible cache server.
// A failed ping is only logged; callers treat the cache as optional.
func SetupCache() *redis.Client {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := Ping(ctx); err != nil {
		log.Warnf("Could not connect to cache at %s:%s: %v", host, port, err)
	} else {
		log.Infof("Successfully connected to cache at %s:%s", host, port)
	}
	return client
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// SetClient replaces the shared client, e.g. with one pointing at miniredis.
func SetClient(c *redis.Client) {
	client = c
}

// Ping checks that the cache answers.
func Ping(ctx context.Context) error {
	return GetClient().Ping(ctx).Err()
}
