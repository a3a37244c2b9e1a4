package stripe

import (
	"context"
	"fmt"

	"salon-billing/internal/domain/plans"

	stripego "github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/price"
)

// PriceCatalog lists the provider's active recurring EUR prices as plans.
type PriceCatalog struct {
	client    price.Client
	productID string
}

func NewPriceCatalog(secretKey, productID string) *PriceCatalog {
	return &PriceCatalog{
		client:    price.Client{B: stripego.GetBackend(stripego.APIBackend), Key: secretKey},
		productID: productID,
	}
}

// Plans returns the plans to sync and how many prices were skipped.
func (c *PriceCatalog) Plans(ctx context.Context) ([]plans.Plan, int, error) {
	params := &stripego.PriceListParams{}
	params.Context = ctx
	params.Active = stripego.Bool(true)
	params.Type = stripego.String("recurring")
	params.AddExpand("data.product")

	var out []plans.Plan
	skipped := 0
	it := c.client.List(params)
	for it.Next() {
		p := it.Price()
		plan, ok := PlanFromPrice(p, c.productID)
		if !ok {
			skipped++
			continue
		}
		out = append(out, plan)
	}
	if err := it.Err(); err != nil {
		return nil, skipped, fmt.Errorf("list stripe prices: %w", err)
	}
	return out, skipped, nil
}

// PlanFromPrice maps a price onto a catalog row. Prices of other products,
// non-EUR prices and prices marked visible=false are skipped.
func PlanFromPrice(p *stripego.Price, productID string) (plans.Plan, bool) {
	if p == nil || !p.Active || p.Recurring == nil || p.Product == nil || !p.Product.Active {
		return plans.Plan{}, false
	}
	if productID != "" && p.Product.ID != productID {
		return plans.Plan{}, false
	}
	if string(p.Currency) != "eur" {
		return plans.Plan{}, false
	}
	if p.Metadata != nil && p.Metadata["visible"] == "false" {
		return plans.Plan{}, false
	}

	amount := float64(p.UnitAmount) / 100.0
	name := p.Product.Name
	if v := p.Metadata["plan"]; v != "" {
		name = v
	}
	tier := p.Metadata["tier"]
	if tier == "" {
		tier = p.Product.Metadata["tier"]
	}

	return plans.Plan{
		Key:           PlanKey(p),
		Name:          name,
		PriceEUR:      amount,
		StripePriceID: p.ID,
		Interval:      string(p.Recurring.Interval),
		Tier:          plans.NormalizeTier(tier),
		Active:        true,
	}, true
}
