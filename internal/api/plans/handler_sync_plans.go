package plans

import (
	"context"
	"fmt"
	"net/http"

	"salon-billing/internal/domain/plans"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Store interface {
	ListActive(ctx context.Context) ([]plans.Plan, error)
	Upsert(ctx context.Context, plan plans.Plan) (created bool, err error)
}

// Source lists the provider's prices as plans, with a count of skipped prices.
type Source interface {
	Plans(ctx context.Context) ([]plans.Plan, int, error)
}

type Handler struct {
	store  Store
	source Source // nil when no provider key is configured
}

func NewHandler(store Store, source Source) *Handler {
	return &Handler{store: store, source: source}
}

// SyncReport counts what one catalog refresh did.
type SyncReport struct {
	Synced  int `json:"synced"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Sync mirrors the provider's prices into the plan store.
func Sync(ctx context.Context, store Store, source Source) (SyncReport, error) {
	fetched, skipped, err := source.Plans(ctx)
	if err != nil {
		return SyncReport{}, fmt.Errorf("fetch stripe prices: %w", err)
	}

	report := SyncReport{Synced: len(fetched), Skipped: skipped}
	for _, p := range fetched {
		isNew, err := store.Upsert(ctx, p)
		if err != nil {
			return report, fmt.Errorf("save plan %s: %w", p.Key, err)
		}
		if isNew {
			report.Created++
		} else {
			report.Updated++
		}
	}
	return report, nil
}

func (h *Handler) SyncPlansFromStripe(c *gin.Context) {
	if h.source == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stripe key not configured"})
		return
	}
	ctx := c.Request.Context()

	report, err := Sync(ctx, h.store, h.source)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("plan sync failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sync plans"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) ListPlans(c *gin.Context) {
	plansList, err := h.store.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load plans"})
		return
	}
	c.JSON(http.StatusOK, plansList)
}
