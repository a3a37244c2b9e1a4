// Package subscriptions exposes the subscription lifecycle over HTTP.
package subscriptions

import (
	"errors"
	"io"
	"net/http"

	"salon-billing/internal/app/http/middleware"
	domain "salon-billing/internal/domain/subscriptions"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	engine *domain.Engine
}

func NewHandler(engine *domain.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Create(c *gin.Context) {
	var req domain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Respond(c, 0, nil, "", domain.BindError(err))
		return
	}
	sub, err := h.engine.Create(c.Request.Context(), middleware.CallerFrom(c), req)
	Respond(c, http.StatusCreated, sub, "Subscription created", err)
}

func (h *Handler) Get(c *gin.Context) {
	sub, err := h.engine.Get(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"))
	Respond(c, http.StatusOK, sub, "", err)
}

func (h *Handler) List(c *gin.Context) {
	var req domain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		Respond(c, 0, nil, "", domain.BindError(err))
		return
	}
	subs, err := h.engine.List(c.Request.Context(), middleware.CallerFrom(c), req)
	Respond(c, http.StatusOK, subs, "", err)
}

func (h *Handler) Update(c *gin.Context) {
	var req domain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Respond(c, 0, nil, "", domain.BindError(err))
		return
	}
	sub, err := h.engine.Update(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), req)
	Respond(c, http.StatusOK, sub, "Subscription updated", err)
}

func (h *Handler) ChangePlan(c *gin.Context) {
	var req domain.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Respond(c, 0, nil, "", domain.BindError(err))
		return
	}
	sub, err := h.engine.ChangePlan(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), req)
	Respond(c, http.StatusOK, sub, "Plan changed", err)
}

// Cancel accepts an empty body as a cancellation at period end.
func (h *Handler) Cancel(c *gin.Context) {
	var req domain.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		Respond(c, 0, nil, "", domain.BindError(err))
		return
	}
	sub, err := h.engine.Cancel(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), req)
	msg := "Subscription will cancel at period end"
	if req.Immediately {
		msg = "Subscription cancelled"
	}
	Respond(c, http.StatusOK, sub, msg, err)
}

func (h *Handler) Reactivate(c *gin.Context) {
	sub, err := h.engine.Reactivate(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"))
	Respond(c, http.StatusOK, sub, "Subscription reactivated", err)
}

func (h *Handler) Pause(c *gin.Context) {
	var req domain.PauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Respond(c, 0, nil, "", domain.BindError(err))
		return
	}
	sub, err := h.engine.Pause(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"), req)
	Respond(c, http.StatusOK, sub, "Subscription paused", err)
}

func (h *Handler) Resume(c *gin.Context) {
	sub, err := h.engine.Resume(c.Request.Context(), middleware.CallerFrom(c), c.Param("id"))
	Respond(c, http.StatusOK, sub, "Subscription resumed", err)
}
