package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salon-billing/config"
	"salon-billing/database"
	adminapi "salon-billing/internal/api/admin"
	plansapi "salon-billing/internal/api/plans"
	stripewebhooks "salon-billing/internal/api/stripewebhook"
	subsapi "salon-billing/internal/api/subscriptions"
	routes "salon-billing/internal/app/http"
	"salon-billing/internal/app/http/middleware"
	"salon-billing/internal/domain/subscriptions"
	"salon-billing/internal/infra/gormstore"
	"salon-billing/internal/infra/metrics"
	"salon-billing/internal/infra/rediscache"
	stripeinfra "salon-billing/internal/infra/stripe"
	"salon-billing/internal/logging"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	logger := logging.Init(logging.Config{Format: os.Getenv("LOG_FORMAT"), Level: os.Getenv("LOG_LEVEL"), Component: "salon-billing"})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger = logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "salon-billing"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database unavailable")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := metrics.New(reg)
	if err != nil {
		logger.Fatal().Err(err).Msg("metrics registration failed")
	}

	var store subscriptions.Store = gormstore.NewSubscriptionStore(db)
	var invalidator subscriptions.Invalidator = subscriptions.LogInvalidator{Logger: logger}
	if cfg.RedisURL != "" {
		client, err := rediscache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis unavailable")
		}
		defer client.Close()
		store = rediscache.NewStore(store, client, cfg.ViewCacheTTL, logger)
		invalidator = rediscache.NewInvalidator(client)
	} else {
		logger.Warn().Msg("REDIS_URL not set, view invalidation is logged only")
	}

	engine, planStore := newEngine(cfg, db, store, invalidator, observer, logger)
	reconciler := subscriptions.NewReconciler(engine)
	go reconciler.Run(ctx, cfg.ReconcileInterval)

	var verifier middleware.TokenVerifier = middleware.NewHMACVerifier(cfg.JWTSecret)
	if cfg.OIDCIssuer != "" {
		v, err := middleware.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			logger.Fatal().Err(err).Msg("oidc provider unavailable")
		}
		verifier = v
	}

	var priceSource plansapi.Source
	if cfg.StripeSecretKey != "" {
		priceSource = stripeinfra.NewPriceCatalog(cfg.StripeSecretKey, cfg.StripeProductID)
		report, err := plansapi.Sync(ctx, planStore, priceSource)
		if err != nil {
			logger.Warn().Err(err).Msg("initial plan sync failed, run POST /admin/sync-plans")
		} else {
			logger.Info().Int("synced", report.Synced).Int("skipped", report.Skipped).Msg("plan catalog loaded")
		}
	} else {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set, plan keys are not checked against a catalog")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: cfg.CORSOrigin != "*",
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, routes.Deps{
		Admin:         adminapi.NewHandler(engine, reconciler),
		Subscriptions: subsapi.NewHandler(engine),
		Plans:         plansapi.NewHandler(planStore, priceSource),
		Webhook:       stripewebhooks.NewHandler(engine, cfg.StripeWebhookSecret),
		Verifier:      verifier,
		Profiles:      gormstore.NewProfileStore(db),
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("port", cfg.Port).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
