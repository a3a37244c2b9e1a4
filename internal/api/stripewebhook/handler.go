package stripewebhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"salon-billing/internal/domain/subscriptions"
	stripeinfra "salon-billing/internal/infra/stripe"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"
)

const maxBodyBytes = 65536

// Syncer applies provider snapshots to stored subscriptions.
type Syncer interface {
	SyncFromProvider(ctx context.Context, snap subscriptions.ProviderSnapshot) (*subscriptions.Subscription, error)
}

type Handler struct {
	syncer         Syncer
	endpointSecret string
}

func NewHandler(syncer Syncer, endpointSecret string) *Handler {
	return &Handler{syncer: syncer, endpointSecret: endpointSecret}
}

var subscriptionEvents = map[string]subscriptions.ProviderEvent{
	"customer.subscription.created": subscriptions.ProviderCreated,
	"customer.subscription.updated": subscriptions.ProviderUpdated,
	"customer.subscription.deleted": subscriptions.ProviderDeleted,
}

func (h *Handler) StripeWebhook(c *gin.Context) {
	logger := log.Ctx(c.Request.Context())
	if h.endpointSecret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STRIPE_WEBHOOK_SECRET not configured"})
		return
	}

	payload, err := readStripeBody(c, maxBodyBytes)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		c.GetHeader("Stripe-Signature"),
		h.endpointSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		logger.Warn().Err(err).Msg("Stripe signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
		return
	}

	kind, ok := subscriptionEvents[string(event.Type)]
	if !ok {
		// Acknowledge unknown events to avoid retries
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse subscription"})
		return
	}
	snap, err := stripeinfra.Snapshot(kind, &sub)
	if err != nil {
		logger.Warn().Err(err).Str("event_id", event.ID).Msg("unusable subscription event")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	_, err = h.syncer.SyncFromProvider(c.Request.Context(), snap)
	switch subscriptions.CodeOf(err) {
	case "":
		c.JSON(http.StatusOK, gin.H{"status": "received"})
	case subscriptions.CodeNotFound, subscriptions.CodeValidation, subscriptions.CodeDuplicateSubscription:
		// Retrying cannot fix these; acknowledge so the provider stops.
		logger.Warn().Err(err).Str("event_id", event.ID).Str("stripe_subscription_id", snap.StripeSubscriptionID).Msg("subscription event not applied")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	default:
		c.JSON(http.StatusInternalServerError, subscriptions.Fail(err))
	}
}

func readStripeBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}
