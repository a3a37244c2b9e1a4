package subscriptions

import (
	"context"
	"time"
)

// Filter selects subscriptions for List. Zero fields are ignored.
type Filter struct {
	SalonID              string
	CustomerID           string
	Statuses             []Status
	StripeSubscriptionID string
	CancelAtPeriodEnd    *bool
	PeriodEndBefore      *time.Time // current_period_end <= value
	Limit                int
}

// Store persists subscription rows.
//
// Update is a compare-on-write replace: it succeeds only when the stored
// version equals expectedVersion, writes every column of sub in one statement
// and bumps sub.Version. A mismatch yields ErrConflict, a missing row
// ErrNotFound. Insert and Update must reject a second live row for the same
// salon with ErrDuplicateLive.
type Store interface {
	Get(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context, f Filter) ([]Subscription, error)
	Insert(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, sub *Subscription, expectedVersion int) error
}

// Invalidator receives the stale view keys after every successful write.
type Invalidator interface {
	Invalidate(ctx context.Context, sig Signal) error
}

// PlanCatalog tells whether a plan key can be subscribed to.
type PlanCatalog interface {
	PlanExists(ctx context.Context, key string) (bool, error)
}

// Observer records per-operation outcomes (metrics).
type Observer interface {
	Observe(operation string, code Code, elapsed time.Duration)
}
