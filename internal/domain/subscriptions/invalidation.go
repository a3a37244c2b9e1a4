package subscriptions

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	salonKeyPrefix    = "subscriptions:salon:"
	customerKeyPrefix = "subscriptions:customer:"
)

// Signal announces that the views keyed by Keys no longer reflect the store.
type Signal struct {
	SubscriptionID string    `json:"subscription_id"`
	Keys           []string  `json:"keys"`
	At             time.Time `json:"at"`
}

func SalonKey(salonID string) string { return salonKeyPrefix + salonID }

func CustomerKey(customerID string) string { return customerKeyPrefix + customerID }

// InvalidationKeys derives the stale view keys for a written subscription.
func InvalidationKeys(sub *Subscription) []string {
	return []string{SalonKey(sub.SalonID), CustomerKey(sub.CustomerID)}
}

// LogInvalidator is used when no cache transport is configured.
type LogInvalidator struct {
	Logger zerolog.Logger
}

func (l LogInvalidator) Invalidate(_ context.Context, sig Signal) error {
	l.Logger.Debug().
		Str("subscription_id", sig.SubscriptionID).
		Strs("keys", sig.Keys).
		Msg("views invalidated")
	return nil
}
