package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pushherd/internal/broadcast"
	"pushherd/internal/store"
	logx "pushherd/pkg/logx"
)

// Dispatcher is the broadcast entry point consumed by the handlers.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg broadcast.Message) (broadcast.Result, error)
}

// Handler translates HTTP requests into dispatcher and store calls. It
// carries no broadcast logic of its own.
type Handler struct {
	disp     Dispatcher
	store    store.Store
	vapidPub string
	log      logx.Logger
}

func NewHandler(disp Dispatcher, st store.Store, vapidPublicKey string, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{disp: disp, store: st, vapidPub: vapidPublicKey, log: log}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)

	api := r.Group("/api")
	{
		api.POST("/broadcast", h.broadcast)
		api.POST("/subscriptions", h.subscribe)
		api.DELETE("/subscriptions/:id", h.unsubscribe)
		api.PUT("/accounts/:user_id/tier", h.setTier)
		api.GET("/vapid-public-key", h.vapidKey)
	}
}

type broadcastRequest struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	URL    string `json:"url"`
	Filter string `json:"filter"`
}

func (h *Handler) broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	msg, err := broadcast.NewMessage(req.Title, req.Body, req.URL, req.Filter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.disp.Dispatch(c.Request.Context(), msg)
	switch {
	case errors.Is(err, broadcast.ErrRepository):
		h.log.Error("broadcast aborted: repository unreachable", logx.Err(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "subscription store unavailable"})
		return
	case err != nil && res.Total == 0:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// A cancelled batch still reports its partial counts.
	c.JSON(http.StatusOK, res)
}

type subscribeRequest struct {
	UserID   string `json:"user_id"`
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256DH string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (h *Handler) subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if strings.TrimSpace(req.Endpoint) == "" || req.Keys.P256DH == "" || req.Keys.Auth == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint and keys are required"})
		return
	}

	sub := store.Subscription{UserID: strings.TrimSpace(req.UserID)}
	sub.Credential.Endpoint = strings.TrimSpace(req.Endpoint)
	sub.Credential.P256DH = req.Keys.P256DH
	sub.Credential.Auth = req.Keys.Auth

	id, err := h.store.SaveSubscription(c.Request.Context(), sub)
	if err != nil {
		h.log.Error("subscription save failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store subscription"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) unsubscribe(c *gin.Context) {
	// Idempotent: deleting an unknown id is still a 204.
	if err := h.store.DeleteByID(c.Request.Context(), c.Param("id")); err != nil {
		h.log.Error("subscription delete failed", logx.String("sub", c.Param("id")), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete subscription"})
		return
	}
	c.Status(http.StatusNoContent)
}

type tierRequest struct {
	Tier string `json:"tier"`
}

func (h *Handler) setTier(c *gin.Context) {
	var req tierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	tier := strings.ToLower(strings.TrimSpace(req.Tier))
	switch tier {
	case "free", "gratuito", "premium", "vip", "":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier must be free, premium or vip"})
		return
	}
	if err := h.store.SetTier(c.Request.Context(), c.Param("user_id"), tier); err != nil {
		h.log.Error("tier update failed", logx.String("user", c.Param("user_id")), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update tier"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) vapidKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"public_key": h.vapidPub})
}

func (h *Handler) health(c *gin.Context) {
	n, err := h.store.CountSubscriptions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "subscriptions": n})
}
