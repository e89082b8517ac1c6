// Package runtime owns the process-wide state of a tracebus instance: the
// consumer queue registry, the broker that fans events into it, metrics and
// the optional session ledger. The server entrypoint opens one Runtime and
// closes it on shutdown, which force-tears-down every remaining queue.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
//	rt.Broker().Dispatch(eventqueue.Record{Type: eventqueue.ProbeFire})
package runtime
