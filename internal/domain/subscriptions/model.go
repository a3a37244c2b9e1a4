package subscriptions

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusTrialing   Status = "trialing"
	StatusPastDue    Status = "past_due"
	StatusIncomplete Status = "incomplete"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the known lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusPastDue, StatusIncomplete, StatusCancelled:
		return true
	}
	return false
}

// Live statuses count toward the one-per-tenant limit.
func (s Status) Live() bool {
	return s == StatusActive || s == StatusTrialing
}

// LiveStatuses lists the statuses that occupy a tenant's single live slot.
var LiveStatuses = []Status{StatusActive, StatusTrialing}

type Subscription struct {
	ID                   string                       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SalonID              string                       `gorm:"type:varchar(64);not null;index:idx_subscriptions_salon_id" json:"salon_id"`
	CustomerID           string                       `gorm:"type:varchar(64);not null;index:idx_subscriptions_customer_id" json:"customer_id"`
	PlanID               string                       `gorm:"type:varchar(128);not null" json:"plan_id"`
	Status               Status                       `gorm:"type:varchar(20);not null;index:idx_subscriptions_status" json:"status"`
	CurrentPeriodStart   time.Time                    `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd     time.Time                    `gorm:"not null;index:idx_subscriptions_period_end" json:"current_period_end"`
	CancelAtPeriodEnd    bool                         `gorm:"not null" json:"cancel_at_period_end"`
	TrialEnd             *time.Time                   `json:"trial_end,omitempty"`
	Metadata             datatypes.JSONType[Metadata] `json:"metadata"`
	StripeSubscriptionID *string                      `gorm:"column:stripe_subscription_id;uniqueIndex:idx_subscriptions_stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	Version              int                          `gorm:"not null;default:1" json:"-"`
	CreatedAt            time.Time                    `json:"created_at"`
	UpdatedAt            time.Time                    `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Meta returns a copy of the metadata that is safe to mutate.
func (s *Subscription) Meta() Metadata {
	return s.Metadata.Data().Clone()
}

func (s *Subscription) SetMeta(m Metadata) {
	s.Metadata = datatypes.NewJSONType(m)
}

func (s *Subscription) Paused() bool {
	return s.Metadata.Data().Pause != nil
}

// Clone returns a deep copy so a transition never mutates the fetched entity.
func (s *Subscription) Clone() *Subscription {
	c := *s
	if s.TrialEnd != nil {
		t := *s.TrialEnd
		c.TrialEnd = &t
	}
	if s.StripeSubscriptionID != nil {
		id := *s.StripeSubscriptionID
		c.StripeSubscriptionID = &id
	}
	c.SetMeta(s.Meta())
	return &c
}

// PauseInfo records a billing pause requested by the owner or tenant staff.
type PauseInfo struct {
	Until    time.Time
	PausedAt time.Time
}

// PlanChangeInfo records where the current plan came from.
type PlanChangeInfo struct {
	PreviousPlanID string
	ChangedAt      time.Time
	Prorated       bool
}

// CancellationInfo records who asked for the subscription to end and why.
type CancellationInfo struct {
	At     time.Time
	By     string
	Reason string
}

// Metadata is the side channel stored next to the subscription row. The
// lifecycle facts are typed; anything else the caller supplies lives in Extra.
type Metadata struct {
	Pause      *PauseInfo
	PlanChange   *PlanChangeInfo
	Cancellation *CancellationInfo
	ResumedAt    *time.Time
	Extra        map[string]any
}

func (m Metadata) Clone() Metadata {
	out := Metadata{}
	if m.Pause != nil {
		p := *m.Pause
		out.Pause = &p
	}
	if m.PlanChange != nil {
		pc := *m.PlanChange
		out.PlanChange = &pc
	}
	if m.Cancellation != nil {
		c := *m.Cancellation
		out.Cancellation = &c
	}
	if m.ResumedAt != nil {
		t := *m.ResumedAt
		out.ResumedAt = &t
	}
	if len(m.Extra) > 0 {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}
