package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/cellbox/config"
	"github.com/isdmx/cellbox/store"
	"github.com/isdmx/cellbox/store/badger"
	"github.com/isdmx/cellbox/store/memory"
	"github.com/isdmx/cellbox/store/postgres"
)

// openStore opens the backend selected by store.backend
func openStore(ctx context.Context, log *zap.Logger, cfg *config.Config) (store.Store, error) {
	log = log.Named("store")

	switch cfg.Store.Backend {
	case config.BackendMemory:
		log.Warn("Using in-memory store, notebooks are lost on restart")
		return memory.New(), nil

	case config.BackendBadger:
		log.Info("Opening badger store",
			zap.String("path", cfg.Store.Badger.Path),
			zap.Bool("in_memory", cfg.Store.Badger.InMemory))
		st, err := badger.Open(log, badger.Config{
			Path:     cfg.Store.Badger.Path,
			InMemory: cfg.Store.Badger.InMemory,
		})
		if err != nil {
			return nil, err
		}
		return st, nil

	case config.BackendPostgres:
		log.Info("Connecting to postgres store", zap.Int32("max_conns", cfg.Store.Postgres.MaxConns))
		st, err := postgres.New(ctx, log, postgres.Config{
			DSN:            cfg.Store.Postgres.DSN,
			MaxConns:       cfg.Store.Postgres.MaxConns,
			MigrateOnStart: cfg.Store.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}
