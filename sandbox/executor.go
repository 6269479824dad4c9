package sandbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/cellbox/figure"
)

// Config holds configuration for the executor
type Config struct {
	TimeoutSec     int
	MaxSteps       uint64
	FigureWidthIn  float64
	FigureHeightIn float64
}

// Executor runs snippets against notebook namespaces
type Executor struct {
	logger    *zap.Logger
	config    *Config
	evaluator Evaluator
	renderer  *figure.Renderer
}

// ExecutorOption defines a functional option for Executor
type ExecutorOption func(*Executor)

// WithEvaluator sets the Evaluator for Executor
func WithEvaluator(evaluator Evaluator) ExecutorOption {
	return func(e *Executor) {
		e.evaluator = evaluator
	}
}

// WithRenderer sets the figure Renderer for Executor
func WithRenderer(renderer *figure.Renderer) ExecutorOption {
	return func(e *Executor) {
		e.renderer = renderer
	}
}

// NewExecutor creates a new Executor backed by the Starlark evaluator unless
// another one is supplied
func NewExecutor(logger *zap.Logger, config *Config, opts ...ExecutorOption) *Executor {
	executor := &Executor{
		logger:    logger,
		config:    config,
		evaluator: NewStarlarkEvaluator(WithMaxSteps(config.MaxSteps)),
		renderer:  figure.NewRenderer(config.FigureWidthIn, config.FigureHeightIn),
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute runs source against ns and returns the normalized result.
//
// Bindings made by the snippet persist in ns, including those made before a
// failing statement. Faults raised by the snippet never escape as a Go error.
func (e *Executor) Execute(ctx context.Context, source string, ns Namespace) ExecutionResult {
	if !Guard(source) {
		e.logger.Info("Rejected snippet calling input()")
		return ExecutionResult{Text: "", Error: errorPtr(InputDisabledMessage)}
	}

	injected := e.inject(ns)
	defer strip(ns, injected)

	if e.config.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.config.TimeoutSec)*time.Second)
		defer cancel()
	}

	return e.Capture(ctx, func(capture *Capture) error {
		return e.evaluator.Evaluate(ctx, source, ns, capture)
	})
}

// Capabilities returns the names of the ambient bindings injected into every
// execution
func (e *Executor) Capabilities() []string {
	return e.evaluator.Capabilities().Names()
}

// inject binds every capability whose name is still free. A user binding
// with the same name shadows the capability.
func (e *Executor) inject(ns Namespace) Namespace {
	injected := Namespace{}
	for name, value := range e.evaluator.Capabilities() {
		if _, exists := ns[name]; exists {
			continue
		}
		ns[name] = value
		injected[name] = value
	}
	return injected
}

// strip removes injected capabilities that the snippet left untouched, so
// only user bindings remain in the namespace.
func strip(ns, injected Namespace) {
	for name, value := range injected {
		if current, ok := ns[name]; ok && current == value {
			delete(ns, name)
		}
	}
}
