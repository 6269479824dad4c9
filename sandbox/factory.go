package sandbox

import (
	"go.uber.org/zap"

	"github.com/isdmx/cellbox/config"
)

// NewFromConfig creates an executor from the application configuration
func NewFromConfig(logger *zap.Logger, cfg *config.Config) *Executor {
	executorConfig := Config{
		TimeoutSec:     cfg.Engine.TimeoutSec,
		MaxSteps:       cfg.Engine.MaxSteps,
		FigureWidthIn:  cfg.Engine.FigureWidthIn,
		FigureHeightIn: cfg.Engine.FigureHeightIn,
	}

	logger.Info("Creating cell executor",
		zap.Int("timeout_sec", executorConfig.TimeoutSec),
		zap.Uint64("max_steps", executorConfig.MaxSteps))

	return NewExecutor(logger.Named("sandbox"), &executorConfig)
}
