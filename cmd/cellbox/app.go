package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/cellbox/api"
	"github.com/isdmx/cellbox/config"
	"github.com/isdmx/cellbox/logger"
	"github.com/isdmx/cellbox/mcpserver"
	"github.com/isdmx/cellbox/namespace"
	"github.com/isdmx/cellbox/notebook"
	"github.com/isdmx/cellbox/sandbox"
	"github.com/isdmx/cellbox/store"
)

// appModule wires every component; newApp adds the transport on top
var appModule = fx.Options(
	fx.Provide(
		// Config
		config.New,

		// Logger with configuration
		logger.NewFromConfig,

		// Notebook store based on config, closed on stop
		provideStore,

		// Namespace lifecycle over the store
		provideLifecycle,

		// Cell executor based on config
		sandbox.NewFromConfig,

		// Notebook operations
		notebook.NewFromExecutor,

		// MCP Server
		mcpserver.New,

		// REST handlers
		provideHandlers,
	),

	// Use the application logger for fx logs
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log}
	}),
)

func newApp(opts ...fx.Option) *fx.App {
	return fx.New(
		appModule,
		fx.Invoke(startTransport),
		fx.Options(opts...),
	)
}

func provideStore(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config) (store.Store, error) {
	st, err := openStore(context.Background(), log, cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info("Closing store")
			return st.Close()
		},
	})
	return st, nil
}

func provideLifecycle(log *zap.Logger, cfg *config.Config, st store.Store) (namespace.Lifecycle, error) {
	return namespace.New(log, cfg, st)
}

func provideHandlers(log *zap.Logger, service *notebook.Service, st store.Store) *api.Handlers {
	handlers := api.NewHandlers(service, log.Named("api"))
	if checker, ok := st.(api.HealthChecker); ok {
		handlers.WithHealthChecker(checker)
	}
	return handlers
}

// startTransport starts the appropriate transport based on config
func startTransport(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, log *zap.Logger, handlers *api.Handlers, server *mcpserver.MCPServer) error {
	switch cfg.Server.Transport {
	case config.TransportStdio:
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				// Use fx to run this as a background task
				go func() {
					if err := server.ServeStdio(); err != nil {
						log.Error("MCP stdio server stopped", zap.Error(err))
					}
					_ = shutdowner.Shutdown()
				}()
				return nil
			},
		})
		return nil

	case config.TransportHTTP:
		router := api.NewRouter(handlers, map[string]http.Handler{
			cfg.Server.MCPPath: server.HTTPHandler(),
		})
		httpServer := api.NewServer(log.Named("http"), cfg.Server.HTTPPort, router)
		lc.Append(fx.Hook{
			OnStart: httpServer.Start,
			OnStop:  httpServer.Stop,
		})
		return nil

	default:
		return fmt.Errorf("unsupported transport: %s", cfg.Server.Transport)
	}
}
