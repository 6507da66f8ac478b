package billing

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/PlaceFox/app/models"
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/lo"
)

// handleCheckoutCompleted starts the trial window: * -> trialing.
func (p *Processor) handleCheckoutCompleted(ctx context.Context, tx Repository, ev *Event, own owner) ([]Task, bool, error) {
	if own.SubscriberID == 0 {
		warnUnresolved(ev)
		return nil, true, nil
	}
	session := ev.Checkout

	tier := tierFromMetadata(session.Metadata)
	if tier == "" {
		log.Warnf("[Billing] Checkout %s carries no known tier, using %s", session.ID, p.cfg.DefaultCheckoutTier)
		tier = p.cfg.DefaultCheckoutTier
	}

	now := p.now()
	in := TrialStart{
		Tier:                   tier,
		ProviderSubscriptionID: session.Subscription,
		StartAt:                now,
		EndAt:                  now.Add(p.cfg.TrialLength),
	}
	if own.LinkCustomer {
		in.ProviderCustomerID = ev.CustomerID()
	}
	if err := tx.StartTrial(ctx, own.SubscriberID, in); err != nil {
		return nil, false, errors.Wrapf(err, "start trial for subscriber %d", own.SubscriberID)
	}

	log.Infof("[Billing] Subscriber %d started %s trial until %s (checkout %s)",
		own.SubscriberID, tier, in.EndAt.Format("2006-01-02"), session.ID)

	return []Task{
		p.referralTask(own.SubscriberID),
		p.historyTask(own.SubscriberID, models.HistoryActionCheckoutCompleted, ev),
	}, false, nil
}

// handleSubscriptionChanged mirrors the provider's status, period and cancel
// flag. Deliveries are applied last-write-wins.
func (p *Processor) handleSubscriptionChanged(ctx context.Context, tx Repository, ev *Event, own owner) ([]Task, bool, error) {
	if own.SubscriberID == 0 {
		warnUnresolved(ev)
		return nil, true, nil
	}
	sub := ev.Subscription

	status := subscriptionStatusFromProvider(sub.Status)
	start, end := sub.PeriodBounds()
	in := SubscriptionSync{
		ProviderSubscriptionID: sub.ID,
		Status:                 status,
		Tier:                   lo.Ternary(status == models.SubscriptionStatusCanceled, models.TierFree, tierFromMetadata(sub.Metadata)),
		CurrentPeriodStart:     start,
		CurrentPeriodEnd:       end,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
	}
	if err := tx.SyncSubscription(ctx, own.SubscriberID, in); err != nil {
		return nil, false, errors.Wrapf(err, "sync subscription %s", sub.ID)
	}

	log.Infof("[Billing] Subscriber %d synced from %s: status=%s cancel_at_period_end=%t",
		own.SubscriberID, ev.Type, status, sub.CancelAtPeriodEnd)
	return nil, false, nil
}

// handleSubscriptionDeleted: * -> canceled, tier reset to free.
func (p *Processor) handleSubscriptionDeleted(ctx context.Context, tx Repository, ev *Event, own owner) ([]Task, bool, error) {
	if own.SubscriberID == 0 {
		warnUnresolved(ev)
		return nil, true, nil
	}
	if err := tx.CancelSubscription(ctx, own.SubscriberID); err != nil {
		return nil, false, errors.Wrapf(err, "cancel subscription for subscriber %d", own.SubscriberID)
	}

	log.Infof("[Billing] Subscriber %d canceled (subscription %s)", own.SubscriberID, ev.Subscription.ID)
	return []Task{
		p.historyTask(own.SubscriberID, models.HistoryActionSubscriptionCanceled, ev),
		p.notifyTask(Notice{
			SubscriberID: own.SubscriberID,
			Action:       models.HistoryActionSubscriptionCanceled,
			Title:        "Your subscription has ended",
			Body:         "Your listing has been moved to the free plan. You can upgrade again at any time.",
			EventID:      ev.ID,
		}),
	}, false, nil
}

// handleTrialWillEnd is informational: history entry and notice only.
func (p *Processor) handleTrialWillEnd(_ context.Context, _ Repository, ev *Event, own owner) ([]Task, bool, error) {
	if own.SubscriberID == 0 {
		warnUnresolved(ev)
		return nil, true, nil
	}

	body := "Your trial ends soon. Add a payment method to keep your premium listing."
	if end := unixPtr(ev.Subscription.TrialEnd); end != nil {
		body = fmt.Sprintf("Your trial ends on %s. Add a payment method to keep your premium listing.", end.Format("2006-01-02"))
	}
	return []Task{
		p.historyTask(own.SubscriberID, models.HistoryActionTrialEnding, ev),
		p.notifyTask(Notice{
			SubscriberID: own.SubscriberID,
			Action:       models.HistoryActionTrialEnding,
			Title:        "Your trial is ending",
			Body:         body,
			EventID:      ev.ID,
		}),
	}, false, nil
}

func (p *Processor) handlePaymentMethodAttached(_ context.Context, _ Repository, ev *Event, own owner) ([]Task, bool, error) {
	if own.SubscriberID == 0 {
		warnUnresolved(ev)
		return nil, true, nil
	}
	return []Task{
		p.historyTask(own.SubscriberID, models.HistoryActionPaymentMethodAdded, ev),
	}, false, nil
}

func (p *Processor) referralTask(subscriberID uint) Task {
	return Task{
		Name: "referral_conversion",
		Run: func(ctx context.Context) error {
			return p.referrals.TrackReferralConversion(ctx, subscriberID)
		},
	}
}

func (p *Processor) historyTask(subscriberID uint, action string, ev *Event) Task {
	entry := &models.SubscriptionHistory{
		SubscriberID:    subscriberID,
		Action:          action,
		EffectiveAt:     p.effectiveAt(ev),
		ProviderEventID: ev.ID,
	}
	return Task{
		Name: "history:" + action,
		Run: func(ctx context.Context) error {
			created, err := p.repo.AppendHistory(ctx, entry)
			if err != nil {
				return err
			}
			if !created {
				log.Debugf("[Billing] History %s for event %s already recorded", action, ev.ID)
			}
			return nil
		},
	}
}

func (p *Processor) notifyTask(n Notice) Task {
	return Task{
		Name: "notify:" + n.Action,
		Run: func(ctx context.Context) error {
			return p.notifier.Notify(ctx, n)
		},
	}
}
