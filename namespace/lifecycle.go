package namespace

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/cellbox/config"
	"github.com/isdmx/cellbox/sandbox"
)

// Key identifies the namespace of one notebook
type Key struct {
	UserID     string
	NotebookID string
}

func (k Key) String() string {
	return k.UserID + "/" + k.NotebookID
}

// Lifecycle owns the namespaces of all notebooks
type Lifecycle interface {
	// Run holds the notebook's lock, materializes its namespace, calls fn
	// and persists whatever fn left in the namespace, even when fn fails.
	Run(ctx context.Context, key Key, fn func(ns sandbox.Namespace) error) error

	// Discard forgets the notebook's namespace
	Discard(ctx context.Context, key Key) error
}

// BlobStore persists encoded namespaces next to their notebooks
type BlobStore interface {
	LoadNamespace(ctx context.Context, userID, notebookID string) ([]byte, error)
	SaveNamespace(ctx context.Context, userID, notebookID string, blob []byte) error
}

// New creates the lifecycle selected by session.strategy
func New(logger *zap.Logger, cfg *config.Config, blobs BlobStore) (Lifecycle, error) {
	logger = logger.Named("namespace")

	switch cfg.Session.Strategy {
	case config.StrategyMemory:
		logger.Info("Using in-memory sessions",
			zap.Duration("timeout", cfg.Session.Timeout),
			zap.Duration("sweep_interval", cfg.Session.SweepInterval))
		return NewMemory(logger, cfg.Session.Timeout, cfg.Session.SweepInterval), nil
	case config.StrategyDurable:
		logger.Info("Using durable namespaces")
		return NewDurable(logger, blobs), nil
	default:
		return nil, fmt.Errorf("unsupported session strategy: %s", cfg.Session.Strategy)
	}
}
