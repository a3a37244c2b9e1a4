// Package gormstore implements the subscription, tenancy and plan stores on
// gorm. Subscription writes are version-conditional replaces.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"salon-billing/internal/domain/subscriptions"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const liveIndexName = "idx_subscriptions_live_salon"

type SubscriptionStore struct {
	db *gorm.DB
}

func NewSubscriptionStore(db *gorm.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) Get(ctx context.Context, id string) (*subscriptions.Subscription, error) {
	var row subscriptions.Subscription
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscriptions.ErrNotFound
		}
		return nil, fmt.Errorf("get subscription %s: %w", id, err)
	}
	return &row, nil
}

func (s *SubscriptionStore) List(ctx context.Context, f subscriptions.Filter) ([]subscriptions.Subscription, error) {
	q := s.db.WithContext(ctx).Model(&subscriptions.Subscription{})

	if f.SalonID != "" {
		q = q.Where("salon_id = ?", f.SalonID)
	}
	if f.CustomerID != "" {
		q = q.Where("customer_id = ?", f.CustomerID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.StripeSubscriptionID != "" {
		q = q.Where("stripe_subscription_id = ?", f.StripeSubscriptionID)
	}
	if f.CancelAtPeriodEnd != nil {
		q = q.Where("cancel_at_period_end = ?", *f.CancelAtPeriodEnd)
	}
	if f.PeriodEndBefore != nil {
		q = q.Where("current_period_end <= ?", *f.PeriodEndBefore)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []subscriptions.Subscription
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return rows, nil
}

func (s *SubscriptionStore) Insert(ctx context.Context, sub *subscriptions.Subscription) error {
	if sub.Version == 0 {
		sub.Version = 1
	}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		if isLiveViolation(err) {
			return subscriptions.ErrDuplicateLive
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Update replaces the row in a single statement guarded by the version
// column, so a concurrent writer or a cancelled context leaves it untouched.
func (s *SubscriptionStore) Update(ctx context.Context, sub *subscriptions.Subscription, expectedVersion int) error {
	res := s.db.WithContext(ctx).
		Model(&subscriptions.Subscription{}).
		Where("id = ? AND version = ?", sub.ID, expectedVersion).
		Updates(map[string]interface{}{
			"salon_id":               sub.SalonID,
			"customer_id":            sub.CustomerID,
			"plan_id":                sub.PlanID,
			"status":                 string(sub.Status),
			"current_period_start":   sub.CurrentPeriodStart,
			"current_period_end":     sub.CurrentPeriodEnd,
			"cancel_at_period_end":   sub.CancelAtPeriodEnd,
			"trial_end":              sub.TrialEnd,
			"metadata":               sub.Metadata,
			"stripe_subscription_id": sub.StripeSubscriptionID,
			"version":                expectedVersion + 1,
			"updated_at":             sub.UpdatedAt,
		})
	if res.Error != nil {
		if isLiveViolation(res.Error) {
			return subscriptions.ErrDuplicateLive
		}
		return fmt.Errorf("update subscription %s: %w", sub.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(&subscriptions.Subscription{}).Where("id = ?", sub.ID).Count(&n).Error; err != nil {
			return fmt.Errorf("update subscription %s: %w", sub.ID, err)
		}
		if n == 0 {
			return subscriptions.ErrNotFound
		}
		return subscriptions.ErrConflict
	}
	sub.Version = expectedVersion + 1
	return nil
}

// isLiveViolation detects a breach of the one-live-subscription-per-salon
// index on postgres and sqlite.
func isLiveViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == liveIndexName
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "subscriptions.salon_id")
}
