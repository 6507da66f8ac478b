// Package billingtest provides fakes and fixtures for exercising the billing
// processor without a database.
package billingtest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/PlaceFox/app/models"
	"github.com/ManuelReschke/PlaceFox/internal/pkg/billing"
	"gorm.io/gorm"
)

// ErrDuplicateKey mimics a unique-constraint violation.
var ErrDuplicateKey = errors.New("duplicate key")

// MemoryRepository is an in-memory billing.Repository. Conditional writes
// follow the same predicates as the SQL implementation. Transactions are
// emulated by snapshotting state and restoring it when fn fails; they run
// one at a time, like transactions contending for the same rows.
type MemoryRepository struct {
	txMu        sync.Mutex
	mu          sync.Mutex
	nextID      uint
	subscribers map[uint]models.Subscriber
	events      map[string]models.BillingEvent
	invoices    map[string]models.Invoice
	history     []models.SubscriptionHistory
	faults      map[string]error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		subscribers: map[uint]models.Subscriber{},
		events:      map[string]models.BillingEvent{},
		invoices:    map[string]models.Invoice{},
		faults:      map[string]error{},
	}
}

// Fail makes every later call of method return err. A nil err clears it.
func (r *MemoryRepository) Fail(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.faults, method)
		return
	}
	r.faults[method] = err
}

// AddSubscriber stores s with a fresh id and returns the id.
func (r *MemoryRepository) AddSubscriber(s models.Subscriber) uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	s.ID = r.nextID
	if s.Tier == "" {
		s.Tier = models.TierFree
	}
	if s.Status == "" {
		s.Status = models.SubscriptionStatusNone
	}
	r.subscribers[s.ID] = s
	return s.ID
}

// Subscriber returns a copy of the stored subscriber.
func (r *MemoryRepository) Subscriber(id uint) models.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribers[id]
}

// Event returns the ledger row for a provider event id.
func (r *MemoryRepository) Event(providerEventID string) (models.BillingEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[eventKey(models.BillingProviderStripe, providerEventID)]
	return ev, ok
}

func (r *MemoryRepository) EventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *MemoryRepository) Invoices() []models.Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		out = append(out, inv)
	}
	return out
}

// History returns the entries recorded for a subscriber in insertion order.
func (r *MemoryRepository) History(subscriberID uint) []models.SubscriptionHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SubscriptionHistory
	for _, h := range r.history {
		if h.SubscriberID == subscriberID {
			out = append(out, h)
		}
	}
	return out
}

func (r *MemoryRepository) Transaction(ctx context.Context, fn func(repo billing.Repository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	if err := r.faults["Transaction"]; err != nil {
		r.mu.Unlock()
		return err
	}
	snap := r.snapshot()
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.restore(snap)
		r.mu.Unlock()
		return err
	}
	return nil
}

type snapshot struct {
	nextID      uint
	subscribers map[uint]models.Subscriber
	events      map[string]models.BillingEvent
	invoices    map[string]models.Invoice
	history     []models.SubscriptionHistory
}

func (r *MemoryRepository) snapshot() snapshot {
	s := snapshot{
		nextID:      r.nextID,
		subscribers: make(map[uint]models.Subscriber, len(r.subscribers)),
		events:      make(map[string]models.BillingEvent, len(r.events)),
		invoices:    make(map[string]models.Invoice, len(r.invoices)),
		history:     append([]models.SubscriptionHistory(nil), r.history...),
	}
	for k, v := range r.subscribers {
		s.subscribers[k] = v
	}
	for k, v := range r.events {
		s.events[k] = v
	}
	for k, v := range r.invoices {
		s.invoices[k] = v
	}
	return s
}

func (r *MemoryRepository) restore(s snapshot) {
	r.nextID = s.nextID
	r.subscribers = s.subscribers
	r.events = s.events
	r.invoices = s.invoices
	r.history = s.history
}

func (r *MemoryRepository) CreateEventIfNotExists(_ context.Context, event *models.BillingEvent) (bool, *models.BillingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.faults["CreateEventIfNotExists"]; err != nil {
		return false, nil, err
	}

	key := eventKey(event.Provider, event.ProviderEventID)
	if stored, ok := r.events[key]; ok {
		return false, &stored, nil
	}
	r.nextID++
	event.ID = r.nextID
	event.CreatedAt = time.Now().UTC()
	r.events[key] = *event
	stored := *event
	return true, &stored, nil
}

func (r *MemoryRepository) MarkEventProcessed(_ context.Context, id uint, processedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.faults["MarkEventProcessed"]; err != nil {
		return false, err
	}
	for k, ev := range r.events {
		if ev.ID == id && !ev.Processed {
			ev.Processed = true
			at := processedAt
			ev.ProcessedAt = &at
			ev.ProcessingError = ""
			r.events[k] = ev
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) MarkEventFailed(_ context.Context, id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, ev := range r.events {
		if ev.ID == id && !ev.Processed {
			ev.ProcessingError = processingError
			ev.Attempts++
			r.events[k] = ev
		}
	}
	return nil
}

func (r *MemoryRepository) ListReplayableEvents(_ context.Context, createdBefore time.Time, maxAttempts, limit int) ([]models.BillingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.faults["ListReplayableEvents"]; err != nil {
		return nil, err
	}
	var out []models.BillingEvent
	for _, ev := range r.events {
		if !ev.Processed && ev.CreatedAt.Before(createdBefore) && ev.Attempts < maxAttempts {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) GetSubscriberByID(_ context.Context, id uint) (*models.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.faults["GetSubscriberByID"]; err != nil {
		return nil, err
	}
	s, ok := r.subscribers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) GetSubscriberByCustomerID(_ context.Context, customerID string) (*models.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.faults["GetSubscriberByCustomerID"]; err != nil {
		return nil, err
	}
	for _, s := range r.subscribers {
		if s.ProviderCustomerID != nil && *s.ProviderCustomerID == customerID {
			found := s
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryRepository) StartTrial(_ context.Context, subscriberID uint, in billing.TrialStart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.faults["StartTrial"]; err != nil {
		return err
	}
	s, ok := r.subscribers[subscriberID]
	if !ok {
		return nil
	}
	if in.ProviderCustomerID != "" && s.ProviderCustomerID == nil {
		for id, other := range r.subscribers {
			if id != subscriberID && other.ProviderCustomerID != nil && *other.ProviderCustomerID == in.ProviderCustomerID {
				return ErrDuplicateKey
			}
		}
		cid := in.ProviderCustomerID
		s.ProviderCustomerID = &cid
	}
	if in.ProviderSubscriptionID != "" {
		sid := in.ProviderSubscriptionID
		s.ProviderSubscriptionID = &sid
	}
	start, end := in.StartAt, in.EndAt
	s.Status = models.SubscriptionStatusTrialing
	s.Tier = in.Tier
	s.TrialStartAt = &start
	s.TrialEndAt = &end
	r.subscribers[subscriberID] = s
	return nil
}

func (r *MemoryRepository) SyncSubscription(_ context.Context, subscriberID uint, in billing.SubscriptionSync) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.faults["SyncSubscription"]; err != nil {
		return err
	}
	s, ok := r.subscribers[subscriberID]
	if !ok {
		return nil
	}
	s.Status = in.Status
	s.CurrentPeriodStart = in.CurrentPeriodStart
	s.CurrentPeriodEnd = in.CurrentPeriodEnd
	s.CancelAtPeriodEnd = in.CancelAtPeriodEnd
	if in.ProviderSubscriptionID != "" {
		sid := in.ProviderSubscriptionID
		s.ProviderSubscriptionID = &sid
	}
	if in.Tier != "" {
		s.Tier = in.Tier
	}
	r.subscribers[subscriberID] = s
	return nil
}

func (r *MemoryRepository) CancelSubscription(_ context.Context, subscriberID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.faults["CancelSubscription"]; err != nil {
		return err
	}
	s, ok := r.subscribers[subscriberID]
	if !ok {
		return nil
	}
	s.Status = models.SubscriptionStatusCanceled
	s.Tier = models.TierFree
	s.ProviderSubscriptionID = nil
	s.CancelAtPeriodEnd = false
	r.subscribers[subscriberID] = s
	return nil
}

func (r *MemoryRepository) EndTrialEarly(_ context.Context, subscriberID uint, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.faults["EndTrialEarly"]; err != nil {
		return false, err
	}
	s, ok := r.subscribers[subscriberID]
	if !ok || s.Status != models.SubscriptionStatusTrialing || s.TrialEndAt == nil || !s.TrialEndAt.After(at) {
		return false, nil
	}
	if s.TrialStartAt != nil && s.TrialStartAt.After(at) {
		return false, nil
	}
	end := at
	s.TrialEndAt = &end
	r.subscribers[subscriberID] = s
	return true, nil
}

func (r *MemoryRepository) ReactivateSuspended(_ context.Context, subscriberID uint) (bool, error) {
	return r.transition("ReactivateSuspended", subscriberID, models.SubscriptionStatusSuspended, models.SubscriptionStatusActive)
}

func (r *MemoryRepository) SuspendActive(_ context.Context, subscriberID uint) (bool, error) {
	return r.transition("SuspendActive", subscriberID, models.SubscriptionStatusActive, models.SubscriptionStatusSuspended)
}

func (r *MemoryRepository) transition(method string, subscriberID uint, from, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.faults[method]; err != nil {
		return false, err
	}
	s, ok := r.subscribers[subscriberID]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	r.subscribers[subscriberID] = s
	return true, nil
}

func (r *MemoryRepository) UpsertInvoice(_ context.Context, inv *models.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.faults["UpsertInvoice"]; err != nil {
		return err
	}
	existing, ok := r.invoices[inv.ProviderInvoiceID]
	if !ok {
		r.nextID++
		inv.ID = r.nextID
		r.invoices[inv.ProviderInvoiceID] = *inv
		return nil
	}

	merged := *inv
	merged.ID = existing.ID
	merged.CreatedAt = existing.CreatedAt
	if merged.PaidAt == nil {
		merged.PaidAt = existing.PaidAt
	}
	r.invoices[inv.ProviderInvoiceID] = merged
	*inv = merged
	return nil
}

func (r *MemoryRepository) GetInvoiceByProviderID(_ context.Context, providerInvoiceID string) (*models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[providerInvoiceID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &inv, nil
}

func (r *MemoryRepository) AppendHistory(_ context.Context, entry *models.SubscriptionHistory) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.faults["AppendHistory"]; err != nil {
		return false, err
	}
	for _, h := range r.history {
		if h.ProviderEventID == entry.ProviderEventID && h.Action == entry.Action {
			return false, nil
		}
	}
	r.nextID++
	entry.ID = r.nextID
	r.history = append(r.history, *entry)
	return true, nil
}

func eventKey(provider, eventID string) string {
	return provider + "|" + eventID
}
