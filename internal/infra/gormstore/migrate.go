package gormstore

import (
	"fmt"

	"salon-billing/internal/domain/plans"
	"salon-billing/internal/domain/subscriptions"
	"salon-billing/internal/domain/tenancy"

	"gorm.io/gorm"
)

// Migrate creates the tables and the partial unique index that enforces one
// active or trialing subscription per salon.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&subscriptions.Subscription{},
		&tenancy.Membership{},
		&plans.Plan{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS " + liveIndexName +
			" ON subscriptions (salon_id) WHERE status IN ('active', 'trialing')",
	).Error; err != nil {
		return fmt.Errorf("create %s: %w", liveIndexName, err)
	}
	return nil
}
