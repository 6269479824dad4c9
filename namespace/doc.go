// Package namespace owns the live namespace of every notebook.
//
// A Lifecycle serializes executions per notebook and decides where the
// namespace lives between them. The memory strategy keeps sessions in process
// and evicts idle ones; the durable strategy encodes the namespace to a CBOR
// blob after every run and restores it before the next.
//
// Usage:
//
//	lc := namespace.NewMemory(logger, 30*time.Minute, time.Minute)
//	err := lc.Run(ctx, namespace.Key{UserID: "u", NotebookID: "n"}, func(ns sandbox.Namespace) error {
//	    executor.Execute(ctx, "x = 1", ns)
//	    return nil
//	})
package namespace
