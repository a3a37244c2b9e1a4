package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ProviderEvent string

const (
	ProviderCreated ProviderEvent = "created"
	ProviderUpdated ProviderEvent = "updated"
	ProviderDeleted ProviderEvent = "deleted"
)

// ProviderSnapshot is the payment provider's view of a subscription, already
// mapped onto lifecycle statuses.
type ProviderSnapshot struct {
	Event                ProviderEvent
	StripeSubscriptionID string
	SalonID              string
	CustomerID           string
	PlanID               string
	Status               Status
	PeriodStart          time.Time
	PeriodEnd            time.Time
	CancelAtPeriodEnd    bool
	TrialEnd             *time.Time
}

func (p ProviderSnapshot) validate() error {
	var fields []FieldError
	if p.StripeSubscriptionID == "" {
		fields = append(fields, FieldError{Field: "stripe_subscription_id", Message: "is required"})
	}
	if p.Event != ProviderDeleted {
		if !p.Status.Valid() {
			fields = append(fields, FieldError{Field: "status", Message: "is invalid"})
		}
		if !p.PeriodEnd.After(p.PeriodStart) {
			fields = append(fields, FieldError{Field: "current_period_end", Message: "must be after current_period_start"})
		}
	}
	if len(fields) > 0 {
		return errValidation(fields)
	}
	return nil
}

// SyncFromProvider applies a provider event to the row linked by
// stripe_subscription_id. A first event links the salon's unlinked live row,
// or inserts a new one. This is the provider-driven half of period rollover,
// so there is no caller to authorise.
func (e *Engine) SyncFromProvider(ctx context.Context, snap ProviderSnapshot) (sub *Subscription, err error) {
	start := time.Now()
	defer func() { err = e.finish(ctx, OpSync, Caller{}, snap.StripeSubscriptionID, start, err) }()

	if err := snap.validate(); err != nil {
		return nil, err
	}

	found, err := e.store.List(ctx, Filter{StripeSubscriptionID: snap.StripeSubscriptionID, Limit: 1})
	if err != nil {
		return nil, err
	}
	now := e.clock()

	if len(found) == 0 {
		if snap.Event == ProviderDeleted {
			return nil, ErrNotFound
		}
		return e.linkOrInsert(ctx, snap, now)
	}
	return e.applySnapshot(ctx, &found[0], snap, now)
}

// applySnapshot copies the provider's view onto cur with a conditional write.
func (e *Engine) applySnapshot(ctx context.Context, cur *Subscription, snap ProviderSnapshot, now time.Time) (*Subscription, error) {
	next := cur.Clone()
	if next.StripeSubscriptionID == nil {
		id := snap.StripeSubscriptionID
		next.StripeSubscriptionID = &id
	}
	if snap.Event == ProviderDeleted {
		next.Status = StatusCancelled
	} else {
		next.Status = snap.Status
		next.CurrentPeriodStart = snap.PeriodStart.UTC()
		next.CurrentPeriodEnd = snap.PeriodEnd.UTC()
		next.CancelAtPeriodEnd = snap.CancelAtPeriodEnd && snap.Status != StatusCancelled
		next.TrialEnd = utcPtr(snap.TrialEnd)
		if snap.PlanID != "" {
			next.PlanID = snap.PlanID
		}
	}
	next.UpdatedAt = now

	if err := e.store.Update(ctx, next, cur.Version); err != nil {
		return nil, err
	}
	e.emit(ctx, next)
	return next, nil
}

// linkOrInsert handles the first event for a provider subscription. A salon
// subscribed through Create has a live row without a provider id, and a live
// snapshot adopts that row. A live row linked to another provider
// subscription is a duplicate.
func (e *Engine) linkOrInsert(ctx context.Context, snap ProviderSnapshot, now time.Time) (*Subscription, error) {
	if snap.SalonID != "" && snap.Status.Live() {
		live, err := e.store.List(ctx, Filter{SalonID: snap.SalonID, Statuses: LiveStatuses, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(live) > 0 {
			if live[0].StripeSubscriptionID != nil {
				return nil, ErrDuplicateLive
			}
			e.logger(ctx).Info().
				Str("subscription_id", live[0].ID).
				Str("stripe_subscription_id", snap.StripeSubscriptionID).
				Msg("linking subscription to provider")
			return e.applySnapshot(ctx, &live[0], snap, now)
		}
	}
	return e.insertFromProvider(ctx, snap, now)
}

func (e *Engine) insertFromProvider(ctx context.Context, snap ProviderSnapshot, now time.Time) (*Subscription, error) {
	var fields []FieldError
	if snap.SalonID == "" {
		fields = append(fields, FieldError{Field: "salon_id", Message: "is required"})
	}
	if snap.CustomerID == "" {
		fields = append(fields, FieldError{Field: "customer_id", Message: "is required"})
	}
	if snap.PlanID == "" {
		fields = append(fields, FieldError{Field: "plan_id", Message: "is required"})
	}
	if len(fields) > 0 {
		return nil, errValidation(fields)
	}

	stripeID := snap.StripeSubscriptionID
	sub := &Subscription{
		ID:                   uuid.NewString(),
		SalonID:              snap.SalonID,
		CustomerID:           snap.CustomerID,
		PlanID:               snap.PlanID,
		Status:               snap.Status,
		CurrentPeriodStart:   snap.PeriodStart.UTC(),
		CurrentPeriodEnd:     snap.PeriodEnd.UTC(),
		CancelAtPeriodEnd:    snap.CancelAtPeriodEnd && snap.Status != StatusCancelled,
		TrialEnd:             utcPtr(snap.TrialEnd),
		StripeSubscriptionID: &stripeID,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	sub.SetMeta(Metadata{})

	if err := e.store.Insert(ctx, sub); err != nil {
		return nil, err
	}
	e.emit(ctx, sub)
	return sub, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
