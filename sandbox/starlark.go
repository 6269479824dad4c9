package sandbox

import (
	"context"
	"fmt"

	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// CellFilename is the file name reported in tracebacks
const CellFilename = "<cell>"

// figuresKey is the thread-local key holding the execution's figure list
const figuresKey = "cellbox.figures"

// StarlarkEvaluator evaluates snippets as Starlark REPL chunks
type StarlarkEvaluator struct {
	options      *syntax.FileOptions
	maxSteps     uint64
	capabilities Namespace
}

// StarlarkOption defines a functional option for StarlarkEvaluator
type StarlarkOption func(*StarlarkEvaluator)

// WithMaxSteps bounds the number of computation steps per execution.
// Zero means unbounded.
func WithMaxSteps(steps uint64) StarlarkOption {
	return func(s *StarlarkEvaluator) {
		s.maxSteps = steps
	}
}

// WithCapability adds or replaces an ambient binding
func WithCapability(name string, value starlark.Value) StarlarkOption {
	return func(s *StarlarkEvaluator) {
		s.capabilities[name] = value
	}
}

// NewStarlarkEvaluator creates an evaluator with the default capabilities
func NewStarlarkEvaluator(opts ...StarlarkOption) *StarlarkEvaluator {
	evaluator := &StarlarkEvaluator{
		options: &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
			Recursion:       true,
		},
		capabilities: Namespace{
			"plt":  NewPlotModule(),
			"math": starmath.Module,
			"json": starjson.Module,
			"time": startime.Module,
		},
	}

	for _, opt := range opts {
		opt(evaluator)
	}

	return evaluator
}

// Capabilities returns the ambient bindings
func (s *StarlarkEvaluator) Capabilities() Namespace {
	return s.capabilities
}

// Evaluate parses source and executes it against ns. Bindings made before a
// failing statement remain in ns.
func (s *StarlarkEvaluator) Evaluate(ctx context.Context, source string, ns Namespace, capture *Capture) error {
	f, err := s.options.Parse(CellFilename, source, 0)
	if err != nil {
		return err
	}

	thread := &starlark.Thread{
		Name: "cell",
		Print: func(_ *starlark.Thread, msg string) {
			capture.Stdout.WriteString(msg)
			capture.Stdout.WriteByte('\n')
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("cannot load %s: modules are not available in cells", module)
		},
	}
	thread.SetLocal(figuresKey, capture.Figures)
	if s.maxSteps > 0 {
		thread.SetMaxExecutionSteps(s.maxSteps)
	}

	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	return starlark.ExecREPLChunk(f, thread, starlark.StringDict(ns))
}
