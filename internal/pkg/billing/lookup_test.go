package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/ManuelReschke/PlaceFox/internal/pkg/billing"
	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLookup struct {
	ids   map[string]uint
	calls int
}

func (l *countingLookup) SubscriberIDByCustomerID(_ context.Context, customerID string) (uint, error) {
	l.calls++
	if id, ok := l.ids[customerID]; ok {
		return id, nil
	}
	return 0, billing.ErrSubscriberNotFound
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedAccountLookupCachesHits(t *testing.T) {
	mr, client := newRedis(t)
	next := &countingLookup{ids: map[string]uint{"cus_1": 7}}
	lookup := billing.NewCachedAccountLookup(next, client, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := lookup.SubscriberIDByCustomerID(ctx, "cus_1")
		require.NoError(t, err)
		assert.Equal(t, uint(7), id)
	}
	assert.Equal(t, 1, next.calls)

	val, err := mr.Get("billing:customer:cus_1")
	require.NoError(t, err)
	assert.Equal(t, "7", val)
	assert.Equal(t, time.Hour, mr.TTL("billing:customer:cus_1"))
}

func TestCachedAccountLookupDoesNotCacheMisses(t *testing.T) {
	mr, client := newRedis(t)
	next := &countingLookup{ids: map[string]uint{}}
	lookup := billing.NewCachedAccountLookup(next, client, time.Hour)
	ctx := context.Background()

	_, err := lookup.SubscriberIDByCustomerID(ctx, "cus_new")
	assert.True(t, errors.Is(err, billing.ErrSubscriberNotFound))
	assert.False(t, mr.Exists("billing:customer:cus_new"))

	next.ids["cus_new"] = 3
	id, err := lookup.SubscriberIDByCustomerID(ctx, "cus_new")
	require.NoError(t, err)
	assert.Equal(t, uint(3), id)
	assert.Equal(t, 2, next.calls)
}

func TestCachedAccountLookupFallsBackWhenRedisIsDown(t *testing.T) {
	mr, client := newRedis(t)
	next := &countingLookup{ids: map[string]uint{"cus_1": 7}}
	lookup := billing.NewCachedAccountLookup(next, client, time.Hour)
	mr.Close()

	id, err := lookup.SubscriberIDByCustomerID(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)
}

func TestCachedAccountLookupIgnoresMalformedEntries(t *testing.T) {
	mr, client := newRedis(t)
	require.NoError(t, mr.Set("billing:customer:cus_1", "not-a-number"))
	next := &countingLookup{ids: map[string]uint{"cus_1": 7}}

	id, err := billing.NewCachedAccountLookup(next, client, 0).SubscriberIDByCustomerID(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)
	assert.Equal(t, 1, next.calls)
}

func TestCachedAccountLookupWithoutClient(t *testing.T) {
	next := &countingLookup{ids: map[string]uint{"cus_1": 7}}
	lookup := billing.NewCachedAccountLookup(next, nil, time.Hour)

	_, _ = lookup.SubscriberIDByCustomerID(context.Background(), "cus_1")
	_, _ = lookup.SubscriberIDByCustomerID(context.Background(), "cus_1")
	assert.Equal(t, 2, next.calls)
}
