// Package stripe maps payment-provider objects onto subscription lifecycle
// values and reads the provider's price catalog.
package stripe

import (
	"strings"

	"salon-billing/internal/domain/subscriptions"

	stripego "github.com/stripe/stripe-go/v75"
)

// NormalizeStatus folds the provider's status vocabulary onto ours. ok is
// false for statuses that have no lifecycle equivalent.
func NormalizeStatus(s stripego.SubscriptionStatus) (status subscriptions.Status, ok bool) {
	switch strings.TrimSpace(string(s)) {
	case "active":
		return subscriptions.StatusActive, true
	case "trialing":
		return subscriptions.StatusTrialing, true
	case "past_due", "unpaid", "paused":
		return subscriptions.StatusPastDue, true
	case "incomplete":
		return subscriptions.StatusIncomplete, true
	case "canceled", "incomplete_expired":
		return subscriptions.StatusCancelled, true
	default:
		return "", false
	}
}

// PlanKey names the catalog entry for a price: metadata.plan_key, then the
// lookup key, then the price id.
func PlanKey(p *stripego.Price) string {
	if p == nil {
		return ""
	}
	if p.Metadata != nil {
		if v := strings.TrimSpace(p.Metadata["plan_key"]); v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(p.LookupKey); v != "" {
		return v
	}
	return p.ID
}
