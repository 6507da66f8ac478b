package counter

import (
	"context"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	webhookOutcomesKey = "billing:webhooks:outcomes"
	webhookTypesKey    = "billing:webhooks:types"
)

// Webhook delivery outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"

	OutcomeInvalidSignature = "invalid_signature"
	OutcomeInvalidPayload   = "invalid_payload"
)

// WebhookCounter keeps running totals of webhook outcomes in Redis hashes.
type WebhookCounter struct {
	client *redis.Client
}

func NewWebhookCounter(client *redis.Client) *WebhookCounter {
	return &WebhookCounter{client: client}
}

// Add increments the outcome total and the per event type total in one
// round trip.
func (c *WebhookCounter) Add(ctx context.Context, eventType, outcome string) error {
	if eventType == "" {
		eventType = "unknown"
	}
	pipe := c.client.Pipeline()
	pipe.HIncrBy(ctx, webhookOutcomesKey, outcome, 1)
	pipe.HIncrBy(ctx, webhookTypesKey, eventType+":"+outcome, 1)
	_, err := pipe.Exec(ctx)
	return err
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	Outcomes map[string]int64            `json:"outcomes"`
	ByType   map[string]map[string]int64 `json:"by_type"`
}

func (c *WebhookCounter) Snapshot(ctx context.Context) (Stats, error) {
	stats := Stats{Outcomes: map[string]int64{}, ByType: map[string]map[string]int64{}}

	outcomes, err := c.client.HGetAll(ctx, webhookOutcomesKey).Result()
	if err != nil {
		return stats, err
	}
	for k, v := range outcomes {
		stats.Outcomes[k] = parseCount(v)
	}

	types, err := c.client.HGetAll(ctx, webhookTypesKey).Result()
	if err != nil {
		return stats, err
	}
	for field, v := range types {
		i := strings.LastIndex(field, ":")
		if i <= 0 {
			continue
		}
		eventType, outcome := field[:i], field[i+1:]
		if stats.ByType[eventType] == nil {
			stats.ByType[eventType] = map[string]int64{}
		}
		stats.ByType[eventType][outcome] = parseCount(v)
	}
	return stats, nil
}

func parseCount(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
