package gormstore

import (
	"context"
	"errors"
	"fmt"

	"salon-billing/internal/domain/tenancy"

	"gorm.io/gorm"
)

type ProfileStore struct {
	db *gorm.DB
}

func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (p *ProfileStore) ActiveProfile(ctx context.Context, userID string) (tenancy.Profile, error) {
	var m tenancy.Membership
	err := p.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("updated_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tenancy.Profile{}, tenancy.ErrNoProfile
		}
		return tenancy.Profile{}, fmt.Errorf("lookup profile for %s: %w", userID, err)
	}
	return tenancy.Profile{TenantID: m.SalonID, Role: m.Role}, nil
}
