package plans

// Plan mirrors one recurring price of the payment provider. Key is what
// subscriptions store in plan_id.
type Plan struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	Key           string  `gorm:"column:key;type:varchar(128);not null;uniqueIndex:idx_plans_key" json:"key"`
	Name          string  `json:"name"`
	PriceEUR      float64 `json:"price_eur"`
	StripePriceID string  `gorm:"column:stripe_price_id;index" json:"stripe_price_id,omitempty"`
	Interval      string  `json:"interval"`
	Tier          string  `gorm:"column:tier" json:"tier"` // Stripe "tier" label, see NormalizeTier
	Active        bool    `gorm:"not null;default:true" json:"active"`
}
