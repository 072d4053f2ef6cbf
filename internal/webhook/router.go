// Package webhook ingests provider event deliveries and routes them by
// declared event type. The endpoint acknowledges quickly and unconditionally
// once routing completes: the provider decides on redelivery from response
// status and latency, and persistence is idempotent, so handler failures are
// logged instead of surfaced.
package webhook

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wabridge/internal/bus"
	"wabridge/internal/status"
	"wabridge/internal/store"
)

// Envelope is the provider event delivery body.
type Envelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type handlerFunc func(instance string, data json.RawMessage) error

// Router dispatches webhook deliveries to exactly one handler per event type.
type Router struct {
	db       *store.DB
	bus      *bus.Bus
	machines *status.Registry
	keys     map[string]struct{}
	logger   *zap.Logger
	handlers map[string]handlerFunc
}

// NewRouter creates the webhook router with its event handler table. A
// non-empty webhookKeys list restricts deliveries to callers presenting one
// of the keys in the apikey header; empty means any caller is accepted.
func NewRouter(db *store.DB, b *bus.Bus, machines *status.Registry, webhookKeys []string, logger *zap.Logger) *Router {
	keys := make(map[string]struct{}, len(webhookKeys))
	for _, k := range webhookKeys {
		keys[k] = struct{}{}
	}
	r := &Router{
		db:       db,
		bus:      b,
		machines: machines,
		keys:     keys,
		logger:   logger,
	}
	r.handlers = map[string]handlerFunc{
		"messages.upsert":   r.handleMessagesUpsert,
		"messages.update":   r.handleMessagesUpdate,
		"chats.upsert":      r.handleChatsUpsert,
		"chats.update":      r.handleChatsUpsert,
		"contacts.upsert":   r.handleContactsUpsert,
		"connection.update": r.handleConnectionUpdate,
	}
	return r
}

// Handler returns the gin handler for POST /webhook.
func (r *Router) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Authentication precedes the always-ack contract: the ack belongs
		// to the provider, not to arbitrary callers.
		if len(r.keys) > 0 {
			if _, ok := r.keys[c.GetHeader("apikey")]; !ok {
				r.logger.Warn("webhook delivery with unknown api key")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
		}

		var env Envelope
		if err := c.ShouldBindJSON(&env); err != nil {
			// Still an ack: a malformed body will be identical on redelivery.
			r.logger.Warn("undecodable webhook body", zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		instance := r.resolveInstance(&env, c.GetHeader("apikey"))
		if instance == "" {
			r.logger.Warn("unroutable webhook event, no instance identity",
				zap.String("event", env.Event))
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		handler, ok := r.handlers[env.Event]
		if !ok {
			// Unhandled is not an error.
			r.logger.Info("unhandled webhook event",
				zap.String("event", env.Event), zap.String("instance", instance))
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		if err := handler(instance, env.Data); err != nil {
			// Non-fatal: recovery rides on the provider's idempotent redelivery.
			r.logger.Error("webhook handler failed",
				zap.Error(err), zap.String("event", env.Event), zap.String("instance", instance))
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// resolveInstance prefers the envelope's instance field and falls back to
// the provider-identifying apikey header.
func (r *Router) resolveInstance(env *Envelope, apiKey string) string {
	if env.Instance != "" {
		return env.Instance
	}
	if apiKey == "" {
		return ""
	}
	inst, err := r.db.FindInstanceByAPIKey(apiKey)
	if err != nil {
		r.logger.Error("instance lookup by api key failed", zap.Error(err))
		return ""
	}
	if inst == nil {
		return ""
	}
	return inst.Name
}
