package main

import (
	"salon-billing/config"
	"salon-billing/internal/domain/subscriptions"
	"salon-billing/internal/infra/gormstore"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// newEngine builds the lifecycle engine over db. Plan keys are checked against
// the mirrored catalog only when Stripe is configured, since nothing else can
// fill it.
func newEngine(cfg config.Config, db *gorm.DB, store subscriptions.Store, inv subscriptions.Invalidator, obs subscriptions.Observer, logger zerolog.Logger) (*subscriptions.Engine, *gormstore.PlanStore) {
	planStore := gormstore.NewPlanStore(db)

	var catalog subscriptions.PlanCatalog
	if cfg.StripeSecretKey != "" {
		catalog = planStore
	}

	engine := subscriptions.NewEngine(subscriptions.Config{
		Store:       store,
		Invalidator: inv,
		Plans:       catalog,
		Observer:    obs,
		Logger:      logger,
	})
	return engine, planStore
}
