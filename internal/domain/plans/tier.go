package plans

import "strings"

// TierNone marks a plan whose price carries no tier label.
const TierNone = "none"

// NormalizeTier turns the tier label set on a provider price into a stable
// key: lower case, words joined by underscores. Tiers are whatever the salon
// catalog defines in Stripe, so no price bands are assumed here.
func NormalizeTier(label string) string {
	tier := strings.Join(strings.Fields(strings.ToLower(label)), "_")
	if tier == "" {
		return TierNone
	}
	return tier
}
