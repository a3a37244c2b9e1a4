// Package memstore keeps subscriptions, memberships and plans in process
// memory. It honours the same contract as the gorm store and is the fast
// store for engine and HTTP tests. The binary always runs on gorm.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"salon-billing/internal/domain/subscriptions"
	"salon-billing/internal/domain/tenancy"
)

type Store struct {
	mu   sync.RWMutex
	rows map[string]*subscriptions.Subscription
}

func New() *Store {
	return &Store{rows: make(map[string]*subscriptions.Subscription)}
}

func (s *Store) Get(ctx context.Context, id string) (*subscriptions.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[id]
	if !ok {
		return nil, subscriptions.ErrNotFound
	}
	return row.Clone(), nil
}

func (s *Store) List(ctx context.Context, f subscriptions.Filter) ([]subscriptions.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]subscriptions.Subscription, 0)
	for _, row := range s.rows {
		if matches(row, f) {
			out = append(out, *row.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, sub *subscriptions.Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[sub.ID]; ok {
		return fmt.Errorf("insert %s: id already exists", sub.ID)
	}
	if sub.Status.Live() && s.liveExistsLocked(sub.SalonID, sub.ID) {
		return subscriptions.ErrDuplicateLive
	}
	if sub.Version == 0 {
		sub.Version = 1
	}
	s.rows[sub.ID] = sub.Clone()
	return nil
}

func (s *Store) Update(ctx context.Context, sub *subscriptions.Subscription, expectedVersion int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rows[sub.ID]
	if !ok {
		return subscriptions.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return subscriptions.ErrConflict
	}
	if sub.Status.Live() && s.liveExistsLocked(sub.SalonID, sub.ID) {
		return subscriptions.ErrDuplicateLive
	}
	sub.Version = expectedVersion + 1
	s.rows[sub.ID] = sub.Clone()
	return nil
}

func (s *Store) liveExistsLocked(salonID, exceptID string) bool {
	for id, row := range s.rows {
		if id != exceptID && row.SalonID == salonID && row.Status.Live() {
			return true
		}
	}
	return false
}

func matches(row *subscriptions.Subscription, f subscriptions.Filter) bool {
	if f.SalonID != "" && row.SalonID != f.SalonID {
		return false
	}
	if f.CustomerID != "" && row.CustomerID != f.CustomerID {
		return false
	}
	if f.StripeSubscriptionID != "" &&
		(row.StripeSubscriptionID == nil || *row.StripeSubscriptionID != f.StripeSubscriptionID) {
		return false
	}
	if f.CancelAtPeriodEnd != nil && row.CancelAtPeriodEnd != *f.CancelAtPeriodEnd {
		return false
	}
	if f.PeriodEndBefore != nil && row.CurrentPeriodEnd.After(*f.PeriodEndBefore) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if row.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Profiles is an in-memory tenancy.ProfileLookup.
type Profiles struct {
	mu       sync.RWMutex
	profiles map[string]tenancy.Profile
}

func NewProfiles() *Profiles {
	return &Profiles{profiles: make(map[string]tenancy.Profile)}
}

func (p *Profiles) Set(userID string, profile tenancy.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[userID] = profile
}

func (p *Profiles) ActiveProfile(_ context.Context, userID string) (tenancy.Profile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	profile, ok := p.profiles[userID]
	if !ok {
		return tenancy.Profile{}, tenancy.ErrNoProfile
	}
	return profile, nil
}

// Plans is a fixed plan catalog.
type Plans map[string]struct{}

func NewPlans(keys ...string) Plans {
	p := make(Plans, len(keys))
	for _, k := range keys {
		p[k] = struct{}{}
	}
	return p
}

func (p Plans) PlanExists(_ context.Context, key string) (bool, error) {
	_, ok := p[key]
	return ok, nil
}
