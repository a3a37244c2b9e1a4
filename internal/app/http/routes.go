package routes

import (
	"net/http"

	"salon-billing/internal/api/admin"
	"salon-billing/internal/api/plans"
	stripewebhooks "salon-billing/internal/api/stripewebhook"
	"salon-billing/internal/api/subscriptions"
	"salon-billing/internal/app/http/middleware"
	"salon-billing/internal/domain/tenancy"

	"github.com/gin-gonic/gin"
)

type Deps struct {
	Admin         *admin.Handler
	Subscriptions *subscriptions.Handler
	Plans         *plans.Handler
	Webhook       *stripewebhooks.Handler
	Verifier      middleware.TokenVerifier
	Profiles      tenancy.ProfileLookup
	Metrics       http.Handler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// The webhook body must reach signature verification untouched.
	r.POST("/webhook", d.Webhook.StripeWebhook)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}
	r.GET("/plans", d.Plans.ListPlans)

	// Authenticated
	auth := r.Group("/")
	auth.Use(
		middleware.AuthMiddleware(d.Verifier),
		middleware.ResolveCaller(d.Profiles),
		middleware.SanitizeAndCleanInputMiddleware(),
	)
	auth.POST("/subscriptions", d.Subscriptions.Create)
	auth.GET("/subscriptions", d.Subscriptions.List)
	auth.GET("/subscriptions/:id", d.Subscriptions.Get)
	auth.PATCH("/subscriptions/:id", d.Subscriptions.Update)
	auth.POST("/subscriptions/:id/change-plan", d.Subscriptions.ChangePlan)
	auth.POST("/subscriptions/:id/cancel", d.Subscriptions.Cancel)
	auth.POST("/subscriptions/:id/reactivate", d.Subscriptions.Reactivate)
	auth.POST("/subscriptions/:id/pause", d.Subscriptions.Pause)
	auth.POST("/subscriptions/:id/resume", d.Subscriptions.Resume)

	// Admin routes
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.AuthMiddleware(d.Verifier), middleware.RequireRole("admin"))
	adminGroup.GET("/dashboard", d.Admin.AdminDashboard)
	adminGroup.GET("/subscriptions", d.Admin.ListAllSubscriptions)
	adminGroup.POST("/reconcile", d.Admin.Reconcile)
	adminGroup.POST("/sync-plans", d.Plans.SyncPlansFromStripe)
}
