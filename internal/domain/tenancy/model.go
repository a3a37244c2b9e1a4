package tenancy

import (
	"context"
	"errors"
	"time"
)

// Membership links a user to a salon with a role. A user may belong to many
// salons; the one marked active is the tenant they currently act for.
type Membership struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"type:varchar(64);not null;uniqueIndex:idx_memberships_user_salon"`
	SalonID   string `gorm:"type:varchar(64);not null;uniqueIndex:idx_memberships_user_salon"`
	Role      string `gorm:"type:varchar(20);not null"` // admin | owner | manager | staff | customer
	IsActive  bool   `gorm:"column:is_active;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the caller's active tenant and role there.
type Profile struct {
	TenantID string
	Role     string
}

var ErrNoProfile = errors.New("no active tenant profile")

type ProfileLookup interface {
	ActiveProfile(ctx context.Context, userID string) (Profile, error)
}
