package stripe

import (
	"fmt"
	"time"

	"salon-billing/internal/domain/subscriptions"

	stripego "github.com/stripe/stripe-go/v75"
)

// Snapshot converts a provider subscription object into the lifecycle view
// the engine syncs from. Salon and customer ids come from the metadata set at
// checkout.
func Snapshot(event subscriptions.ProviderEvent, sub *stripego.Subscription) (subscriptions.ProviderSnapshot, error) {
	if sub == nil || sub.ID == "" {
		return subscriptions.ProviderSnapshot{}, fmt.Errorf("subscription missing id")
	}

	snap := subscriptions.ProviderSnapshot{
		Event:                event,
		StripeSubscriptionID: sub.ID,
		PeriodStart:          unix(sub.CurrentPeriodStart),
		PeriodEnd:            unix(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if sub.Metadata != nil {
		snap.SalonID = sub.Metadata["salon_id"]
		snap.CustomerID = sub.Metadata["customer_id"]
		if snap.CustomerID == "" {
			snap.CustomerID = sub.Metadata["user_id"]
		}
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		snap.PlanID = PlanKey(sub.Items.Data[0].Price)
	}
	if sub.TrialEnd > 0 {
		t := unix(sub.TrialEnd)
		snap.TrialEnd = &t
	}

	if event == subscriptions.ProviderDeleted {
		snap.Status = subscriptions.StatusCancelled
		return snap, nil
	}
	status, ok := NormalizeStatus(sub.Status)
	if !ok {
		return snap, fmt.Errorf("unsupported subscription status %q", sub.Status)
	}
	snap.Status = status
	return snap, nil
}

func unix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
