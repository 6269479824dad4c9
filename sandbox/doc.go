// Package sandbox provides the cell execution engine.
//
// The sandbox package runs one snippet against one notebook namespace.
// It applies the input guard, injects the ambient capabilities (plt, math,
// json and time), evaluates the code through a pluggable Evaluator and
// normalizes every outcome into an ExecutionResult.
//
// Each execution owns a private Capture: printed output goes to its buffer
// and figures go to its own figure list, so concurrent executions in
// different notebooks never see each other's output.
//
// Usage:
//
//	executor := sandbox.NewExecutor(logger, &sandbox.Config{TimeoutSec: 10})
//	ns := sandbox.Namespace{}
//	executor.Execute(ctx, "x = 10", ns)
//	result := executor.Execute(ctx, "print(x * 2)", ns)
//	// result.Text == "20\n"
package sandbox
