// Package daemon composes the bridge service: webhook ingestion, the
// canonical store, the sync proxy, websocket fan-out, and the pull API.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"wabridge/internal/api"
	"wabridge/internal/bot"
	"wabridge/internal/bus"
	"wabridge/internal/config"
	"wabridge/internal/logging"
	"wabridge/internal/outbound"
	"wabridge/internal/provider"
	"wabridge/internal/status"
	"wabridge/internal/store"
	"wabridge/internal/syncer"
	"wabridge/internal/webhook"
	"wabridge/internal/ws"
)

// Params holds the resolved startup configuration passed to the fx module.
type Params struct {
	ConfigPath string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideRegistry,
			provideStore,
			provideClientCache,
			provideHub,
			provideBridge,
			provideProxy,
			provideSender,
			provideDispatcher,
			provideWebhookRouter,
			provideBotEngine,
			provideAPIServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Server.LogPath, "wabridged")
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideRegistry(b *bus.Bus) *status.Registry {
	return status.NewRegistry(b)
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", cfg.Store.Path))
	return db, nil
}

func provideClientCache(cfg *config.Config) *provider.Cache {
	return provider.NewCache(cfg.Provider.Timeout())
}

func provideHub(logger *zap.Logger) *ws.Hub {
	return ws.NewHub(logger)
}

func provideBridge(b *bus.Bus, hub *ws.Hub) *ws.Bridge {
	return ws.NewBridge(b, hub)
}

func provideProxy(db *store.DB, clients *provider.Cache, logger *zap.Logger) *syncer.Proxy {
	return syncer.NewProxy(db, clients, logger)
}

func provideSender(clients *provider.Cache) outbound.TextSender {
	return outbound.NewCacheSender(clients)
}

func provideDispatcher(db *store.DB, sender outbound.TextSender, b *bus.Bus, logger *zap.Logger) *outbound.Dispatcher {
	return outbound.NewDispatcher(db, sender, b, logger)
}

func provideWebhookRouter(cfg *config.Config, db *store.DB, b *bus.Bus, machines *status.Registry, logger *zap.Logger) *webhook.Router {
	return webhook.NewRouter(db, b, machines, cfg.Provider.WebhookKeys, logger)
}

// provideBotEngine returns nil when the bot is disabled; the lifecycle hook
// skips a nil engine.
func provideBotEngine(cfg *config.Config, db *store.DB, dispatcher *outbound.Dispatcher, b *bus.Bus, logger *zap.Logger) *bot.Engine {
	if !cfg.Bot.Enabled {
		return nil
	}
	responder := bot.NewHTTPResponder(cfg.Bot.Endpoint, cfg.Provider.Timeout())
	return bot.NewEngine(db, responder, dispatcher, b, cfg.Bot.Attribution, cfg.Bot.FallbackReply, logger)
}

func provideAPIServer(db *store.DB, proxy *syncer.Proxy, dispatcher *outbound.Dispatcher, clients *provider.Cache, cfg *config.Config, logger *zap.Logger) *api.Server {
	return api.NewServer(db, proxy, dispatcher, clients, cfg, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, bridge *ws.Bridge, botEngine *bot.Engine, db *store.DB, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start the bus-to-websocket bridge before ingestion can publish.
			bridge.Start(context.Background())

			if botEngine != nil {
				botEngine.Start(context.Background())
				logger.Info("bot engine started", zap.String("endpoint", cfg.Bot.Endpoint))
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			logger.Info("daemon started", zap.String("listen", cfg.Server.Listen))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if botEngine != nil {
				botEngine.Stop()
			}
			bridge.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
