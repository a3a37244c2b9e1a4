package gormstore

import (
	"context"
	"errors"
	"fmt"

	"salon-billing/internal/domain/plans"

	"gorm.io/gorm"
)

type PlanStore struct {
	db *gorm.DB
}

func NewPlanStore(db *gorm.DB) *PlanStore {
	return &PlanStore{db: db}
}

func (p *PlanStore) PlanExists(ctx context.Context, key string) (bool, error) {
	var n int64
	if err := p.db.WithContext(ctx).Model(&plans.Plan{}).
		Where("key = ? AND active = ?", key, true).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("check plan %s: %w", key, err)
	}
	return n > 0, nil
}

func (p *PlanStore) ListActive(ctx context.Context) ([]plans.Plan, error) {
	var out []plans.Plan
	if err := p.db.WithContext(ctx).
		Where("active = ?", true).
		Order("price_eur ASC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return out, nil
}

// Upsert creates or refreshes the plan identified by Key.
func (p *PlanStore) Upsert(ctx context.Context, plan plans.Plan) (created bool, err error) {
	var existing plans.Plan
	err = p.db.WithContext(ctx).Where("key = ?", plan.Key).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		active := plan.Active
		if err := p.db.WithContext(ctx).Create(&plan).Error; err != nil {
			return false, fmt.Errorf("create plan %s: %w", plan.Key, err)
		}
		// the column default swallows a false Active on insert
		if !active {
			if err := p.db.WithContext(ctx).Model(&plan).Update("active", false).Error; err != nil {
				return false, fmt.Errorf("deactivate plan %s: %w", plan.Key, err)
			}
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load plan %s: %w", plan.Key, err)
	}

	if err := p.db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"name":            plan.Name,
		"price_eur":       plan.PriceEUR,
		"stripe_price_id": plan.StripePriceID,
		"interval":        plan.Interval,
		"tier":            plan.Tier,
		"active":          plan.Active,
	}).Error; err != nil {
		return false, fmt.Errorf("update plan %s: %w", plan.Key, err)
	}
	return false, nil
}
