package daemon

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wabridge/internal/api"
	"wabridge/internal/config"
	"wabridge/internal/webhook"
	"wabridge/internal/ws"
)

// Server manages the HTTP surface: the provider webhook, the websocket
// upgrade endpoint, and the authenticated pull API.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer assembles the gin engine and binds it to the configured listener.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	router *webhook.Router,
	hub *ws.Hub,
	apiSrv *api.Server,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// The webhook and the upgrade endpoint are unauthenticated by the bearer
	// scheme: the webhook authenticates by apikey, the socket by room join.
	engine.POST("/webhook", router.Handler())
	engine.GET("/ws", hub.Handler())
	apiSrv.Register(engine)

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Server.Listen,
			Handler: engine,
		},
		logger: logger,
	}
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown error", zap.Error(err))
	}
}
