package billing

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const customerCacheKeyPrefix = "billing:customer:"

// AccountLookup resolves a provider customer id to a local subscriber id.
// Implementations return ErrSubscriberNotFound when nothing matches.
type AccountLookup interface {
	SubscriberIDByCustomerID(ctx context.Context, customerID string) (uint, error)
}

type repositoryLookup struct {
	repo Repository
}

// NewRepositoryLookup resolves customers straight from the subscriber table.
func NewRepositoryLookup(repo Repository) AccountLookup {
	return &repositoryLookup{repo: repo}
}

func (l *repositoryLookup) SubscriberIDByCustomerID(ctx context.Context, customerID string) (uint, error) {
	s, err := l.repo.GetSubscriberByCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrSubscriberNotFound
		}
		return 0, err
	}
	return s.ID, nil
}

// CachedAccountLookup fronts another lookup with Redis. A customer id never
// changes owner once linked, so positive hits can be cached; misses are not
// cached because the link may be created by the next checkout.
type CachedAccountLookup struct {
	next   AccountLookup
	client *redis.Client
	ttl    time.Duration
}

// NewCachedAccountLookup wraps next with a Redis cache. A nil client
// disables caching.
func NewCachedAccountLookup(next AccountLookup, client *redis.Client, ttl time.Duration) *CachedAccountLookup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedAccountLookup{next: next, client: client, ttl: ttl}
}

func (c *CachedAccountLookup) SubscriberIDByCustomerID(ctx context.Context, customerID string) (uint, error) {
	if c.client == nil {
		return c.next.SubscriberIDByCustomerID(ctx, customerID)
	}

	key := customerCacheKeyPrefix + customerID
	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if id, perr := strconv.ParseUint(cached, 10, 64); perr == nil && id > 0 {
			return uint(id), nil
		}
		log.Warnf("[Billing] Ignoring malformed cache entry %s=%q", key, cached)
	case !errors.Is(err, redis.Nil):
		log.Warnf("[Billing] Customer cache read failed for %s: %v", customerID, err)
	}

	id, err := c.next.SubscriberIDByCustomerID(ctx, customerID)
	if err != nil {
		return 0, err
	}
	if err := c.client.Set(ctx, key, strconv.FormatUint(uint64(id), 10), c.ttl).Err(); err != nil {
		log.Warnf("[Billing] Customer cache write failed for %s: %v", customerID, err)
	}
	return id, nil
}
