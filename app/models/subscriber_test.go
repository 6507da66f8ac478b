package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberValidate(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(14 * 24 * time.Hour)

	s := &Subscriber{Tier: TierPremium, Status: SubscriptionStatusTrialing, TrialStartAt: &start, TrialEndAt: &end}
	require.NoError(t, s.Validate())

	inverted := start.Add(-time.Hour)
	s.TrialEndAt = &inverted
	assert.ErrorIs(t, s.Validate(), ErrTrialWindowInverted)

	s.TrialEndAt = &end
	s.Tier = "gold"
	assert.Error(t, s.Validate())

	s.Tier = TierFree
	s.Status = "past_due"
	assert.Error(t, s.Validate())
}

func TestSubscriberIsTrialing(t *testing.T) {
	now := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.True(t, (&Subscriber{Status: SubscriptionStatusTrialing, TrialEndAt: &future}).IsTrialing(now))
	assert.False(t, (&Subscriber{Status: SubscriptionStatusTrialing, TrialEndAt: &past}).IsTrialing(now))
	assert.False(t, (&Subscriber{Status: SubscriptionStatusTrialing}).IsTrialing(now))
	assert.False(t, (&Subscriber{Status: SubscriptionStatusActive, TrialEndAt: &future}).IsTrialing(now))
}

func TestSubscriberHasPaidAccess(t *testing.T) {
	tests := []struct {
		tier   string
		status string
		want   bool
	}{
		{TierPremium, SubscriptionStatusTrialing, true},
		{TierPro, SubscriptionStatusActive, true},
		{TierEnterprise, SubscriptionStatusSuspended, true},
		{TierPremium, SubscriptionStatusCanceled, false},
		{TierPremium, SubscriptionStatusNone, false},
		{TierFree, SubscriptionStatusActive, false},
	}

	for _, tt := range tests {
		s := &Subscriber{Tier: tt.tier, Status: tt.status}
		assert.Equal(t, tt.want, s.HasPaidAccess(), "tier=%s status=%s", tt.tier, tt.status)
	}
}

func TestSubscriberCustomerID(t *testing.T) {
	s := &Subscriber{}
	assert.Equal(t, "", s.CustomerID())

	id := "cus_123"
	s.ProviderCustomerID = &id
	assert.Equal(t, "cus_123", s.CustomerID())
}
