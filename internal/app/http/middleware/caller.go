package middleware

import (
	"errors"
	"net/http"

	"salon-billing/internal/domain/subscriptions"
	"salon-billing/internal/domain/tenancy"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const callerKey = "caller"

// ResolveCaller attaches the caller's active tenant profile. A user without a
// membership still acts as themselves, with no tenant.
func ResolveCaller(profiles tenancy.ProfileLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := subscriptions.Caller{UserID: c.GetString("user_id")}
		if caller.UserID == "" {
			c.Set(callerKey, caller)
			c.Next()
			return
		}

		profile, err := profiles.ActiveProfile(c.Request.Context(), caller.UserID)
		switch {
		case err == nil:
			caller.TenantID = profile.TenantID
			caller.Role = profile.Role
		case errors.Is(err, tenancy.ErrNoProfile):
		default:
			log.Ctx(c.Request.Context()).Error().Err(err).Str("user_id", caller.UserID).Msg("profile lookup failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, subscriptions.Fail(err))
			return
		}

		c.Set(callerKey, caller)
		c.Next()
	}
}

// CallerFrom returns the caller stored by ResolveCaller.
func CallerFrom(c *gin.Context) subscriptions.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(subscriptions.Caller); ok {
			return caller
		}
	}
	return subscriptions.Caller{UserID: c.GetString("user_id")}
}
