package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ccrelay/ccrelay/internal/apperr"
	"github.com/ccrelay/ccrelay/internal/canonical"
	"github.com/ccrelay/ccrelay/internal/dispatch"
	"github.com/ccrelay/ccrelay/internal/pool"
)

type handlers struct {
	orch   *dispatch.Orchestrator
	models map[dispatch.Family][]string
	logger *zap.Logger
	apiKey string
}

func (h *handlers) register(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/v1/models", h.listModels)
	r.GET("/account-limits", h.accountLimits)
	r.POST("/v1/messages", h.authRequired(), h.postMessages)
	r.POST("/refresh-token", h.authRequired(), h.refreshToken)
	r.POST("/clear-cache", h.authRequired(), h.clearCache)
}

// authRequired enforces the optional operator API key (spec §9's
// "apiKey" config field); absent key means the surface is unauthenticated.
func (h *handlers) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.apiKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+h.apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
}

func (h *handlers) listModels(c *gin.Context) {
	var out []gin.H
	for family, models := range h.models {
		for _, m := range models {
			out = append(out, gin.H{"id": m, "family": string(family)})
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// accountStatus is the per-account introspection shape for
// /account-limits, generalized from the teacher's ProviderStatus to
// per-account health/bucket/quota/cooldown state (SUPPLEMENTED FEATURES).
type accountStatus struct {
	ID            string             `json:"id"`
	Email         string             `json:"email,omitempty"`
	State         string             `json:"state"`
	Enabled       bool               `json:"enabled"`
	Invalid       bool               `json:"invalid"`
	InvalidReason string             `json:"invalidReason,omitempty"`
	HealthScore   int                `json:"healthScore"`
	BucketLevel   int                `json:"bucketLevel"`
	CooldownSecs  float64            `json:"cooldownSeconds"`
	QuotaByModel  map[string]float64 `json:"quotaByModel,omitempty"`
}

func (h *handlers) accountLimits(c *gin.Context) {
	now := time.Now()
	out := gin.H{}
	for family, p := range h.orch.Pools() {
		models := h.models[family]
		var accounts []accountStatus
		for _, a := range p.Accounts() {
			quota := make(map[string]float64, len(models))
			for _, m := range models {
				fraction, _ := a.QuotaFraction(m, now)
				quota[m] = fraction
			}
			accounts = append(accounts, accountStatus{
				ID:            a.ID(),
				Email:         a.Email(),
				State:         string(a.Status(now)),
				Enabled:       a.Enabled(),
				Invalid:       a.Invalid(),
				InvalidReason: a.InvalidReason(),
				HealthScore:   a.HealthScore(now),
				BucketLevel:   a.BucketLevel(now),
				CooldownSecs:  a.CooldownRemaining(now).Seconds(),
				QuotaByModel:  quota,
			})
		}
		out[string(family)] = accounts
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) postMessages(c *gin.Context) {
	var req canonical.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if stream := c.Query("stream"); stream == "true" {
		req.Stream = true
	}

	if !req.Stream {
		resp, err := h.orch.Dispatch(c.Request.Context(), req, func(canonical.Event) {})
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher := c.Writer
	_, err := h.orch.Dispatch(c.Request.Context(), req, func(e canonical.Event) {
		_ = e.Encode(flusher)
		flusher.Flush()
	})
	if err != nil {
		h.logger.Error("stream dispatch failed", zap.Error(err))
		errEvent := canonical.NewErrorEvent("upstream_error", err.Error())
		_ = errEvent.Encode(flusher)
		flusher.Flush()
	}
}

func (h *handlers) writeError(c *gin.Context, err error) {
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		c.JSON(ae.HTTPStatus(), gin.H{"error": ae.Message, "code": ae.Code})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

type refreshTokenRequest struct {
	Backend string `json:"backend" binding:"required"`
	ID      string `json:"id" binding:"required"`
}

// refreshToken clears an account's invalid latch so the next Select
// reconsiders it — the operator hook spec §6 names without prescribing the
// exact credential-refresh mechanics (those run transparently inside
// dispatch on every call instead).
func (h *handlers) refreshToken(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := h.poolFor(req.Backend)
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown backend"})
		return
	}
	if err := p.ClearInvalid(req.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type clearCacheRequest struct {
	Backend string `json:"backend" binding:"required"`
}

// clearCache resets every account's cooldown in a backend's pool without
// touching invalid latches (SUPPLEMENTED FEATURES).
func (h *handlers) clearCache(c *gin.Context) {
	var req clearCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := h.poolFor(req.Backend)
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown backend"})
		return
	}
	for _, a := range p.Accounts() {
		_ = p.ClearCooldown(a.ID())
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) poolFor(backend string) *pool.Pool {
	for family, p := range h.orch.Pools() {
		if string(family) == backend {
			return p
		}
	}
	return nil
}
