// Package api exposes the operator-facing pull surface over the sync proxy
// and the outbound dispatcher.
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wabridge/internal/config"
	"wabridge/internal/outbound"
	"wabridge/internal/provider"
	"wabridge/internal/store"
	"wabridge/internal/syncer"
)

const defaultPageLimit = 50

// Server holds the pull API handlers.
type Server struct {
	db         *store.DB
	proxy      *syncer.Proxy
	dispatcher *outbound.Dispatcher
	clients    *provider.Cache
	cfg        *config.Config
	logger     *zap.Logger
}

// NewServer creates the pull API server.
func NewServer(db *store.DB, proxy *syncer.Proxy, dispatcher *outbound.Dispatcher, clients *provider.Cache, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		db:         db,
		proxy:      proxy,
		dispatcher: dispatcher,
		clients:    clients,
		cfg:        cfg,
		logger:     logger,
	}
}

// Register mounts the authenticated operator routes on the engine.
func (s *Server) Register(engine *gin.Engine) {
	authed := engine.Group("/", s.authMiddleware())
	authed.GET("/instance", s.getInstance)
	authed.POST("/instance/connect", s.connectInstance)
	authed.POST("/instance/logout", s.logoutInstance)
	authed.DELETE("/instance", s.deleteInstance)
	authed.GET("/contacts", s.listContacts)
	authed.GET("/chats", s.listChats)
	authed.GET("/chats/:chatId/messages", s.listMessages)
	authed.POST("/messages/send", s.sendMessage)
	authed.GET("/status", s.getStatus)
}

// authMiddleware enforces the bearer token. Token issuance itself is an
// external concern; the middleware only checks possession.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || token != s.cfg.Server.AuthToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

// resolveInstance maps the authenticated caller to its owning instance.
func (s *Server) resolveInstance(c *gin.Context) *store.Instance {
	name := c.Query("instance")
	if name == "" {
		name = s.cfg.Provider.Instance
	}
	inst, err := s.db.GetInstance(name)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil
	}
	if inst == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "instance not connected yet"})
		return nil
	}
	return inst
}

func pageParams(c *gin.Context) (cursor string, limit int) {
	cursor = c.Query("cursor")
	limit = defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	return cursor, limit
}
