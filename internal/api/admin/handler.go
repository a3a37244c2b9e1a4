package admin

import (
	"net/http"
	"sort"

	subsapi "salon-billing/internal/api/subscriptions"
	"salon-billing/internal/domain/subscriptions"

	"github.com/gin-gonic/gin"
)

type AdminStats struct {
	TotalSubscriptions int            `json:"total_subscriptions"`
	PerStatus          map[string]int `json:"per_status"`
	PerPlan            map[string]int `json:"per_plan"`
	PendingCancels     int            `json:"pending_cancels"`
	Paused             int            `json:"paused"`
	TopPlans           []string       `json:"top_plans"`
}

type Handler struct {
	engine     *subscriptions.Engine
	reconciler *subscriptions.Reconciler
}

func NewHandler(engine *subscriptions.Engine, reconciler *subscriptions.Reconciler) *Handler {
	return &Handler{engine: engine, reconciler: reconciler}
}

// ListAllSubscriptions lists across tenants with the same query filters as
// the tenant listing.
func (h *Handler) ListAllSubscriptions(c *gin.Context) {
	var req subscriptions.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		subsapi.Respond(c, 0, nil, "", subscriptions.BindError(err))
		return
	}
	subs, err := h.engine.ListAll(c.Request.Context(), req)
	subsapi.Respond(c, http.StatusOK, subs, "", err)
}

func (h *Handler) AdminDashboard(c *gin.Context) {
	subs, err := h.engine.ListAll(c.Request.Context(), subscriptions.ListRequest{})
	if err != nil {
		subsapi.Respond(c, 0, nil, "", err)
		return
	}
	subsapi.Respond(c, http.StatusOK, buildStats(subs), "", nil)
}

// Reconcile runs one rollover pass on demand.
func (h *Handler) Reconcile(c *gin.Context) {
	n, err := h.reconciler.RunOnce(c.Request.Context())
	subsapi.Respond(c, http.StatusOK, gin.H{"finalized": n}, "Reconciliation complete", err)
}

func buildStats(subs []subscriptions.Subscription) AdminStats {
	stats := AdminStats{
		TotalSubscriptions: len(subs),
		PerStatus:          make(map[string]int),
		PerPlan:            make(map[string]int),
	}
	for i := range subs {
		s := &subs[i]
		stats.PerStatus[string(s.Status)]++
		if s.Status != subscriptions.StatusCancelled {
			stats.PerPlan[s.PlanID]++
		}
		if s.CancelAtPeriodEnd && s.Status != subscriptions.StatusCancelled {
			stats.PendingCancels++
		}
		if s.Paused() {
			stats.Paused++
		}
	}

	stats.TopPlans = make([]string, 0, len(stats.PerPlan))
	for plan := range stats.PerPlan {
		stats.TopPlans = append(stats.TopPlans, plan)
	}
	sort.Slice(stats.TopPlans, func(i, j int) bool {
		a, b := stats.TopPlans[i], stats.TopPlans[j]
		if stats.PerPlan[a] != stats.PerPlan[b] {
			return stats.PerPlan[a] > stats.PerPlan[b]
		}
		return a < b
	})
	return stats
}
