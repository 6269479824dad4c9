package sandbox

import (
	"bytes"
	"context"

	"go.starlark.net/starlark"

	"github.com/isdmx/cellbox/figure"
)

// Namespace maps binding names to values accumulated by a notebook.
// It shares its representation with starlark.StringDict so evaluation
// mutates it in place.
type Namespace map[string]starlark.Value

// Clone returns a shallow copy of the namespace
func (ns Namespace) Clone() Namespace {
	out := make(Namespace, len(ns))
	for k, v := range ns {
		out[k] = v
	}
	return out
}

// Names returns the bound names in sorted order
func (ns Namespace) Names() []string {
	return starlark.StringDict(ns).Keys()
}

// ExecutionResult is the normalized outcome of one cell execution
type ExecutionResult struct {
	Text   string   `json:"text" yaml:"text"`
	Error  *string  `json:"error" yaml:"error,omitempty"`
	Images []string `json:"images" yaml:"images,omitempty"`
}

// Failed reports whether the execution produced an error
func (r ExecutionResult) Failed() bool {
	return r.Error != nil
}

// ErrorMessage returns the error message or an empty string
func (r ExecutionResult) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// Capture is the private output context of a single execution
type Capture struct {
	Stdout  bytes.Buffer
	Figures *figure.List
}

// NewCapture returns an empty capture context
func NewCapture() *Capture {
	return &Capture{Figures: figure.NewList()}
}

// Evaluator defines the interface for a code evaluation backend
type Evaluator interface {
	// Evaluate runs source against ns, mutating it in place. Output and
	// figures go to capture. A returned error is a fault in the snippet.
	Evaluate(ctx context.Context, source string, ns Namespace, capture *Capture) error

	// Capabilities returns the ambient bindings made available to every
	// snippet. They are injected before and stripped after each evaluation.
	Capabilities() Namespace
}

// Fixed result messages
const (
	InputDisabledMessage = "User input is disabled."
	ExecutionErrorPrefix = "Execution error: "
)

func errorPtr(msg string) *string {
	return &msg
}
