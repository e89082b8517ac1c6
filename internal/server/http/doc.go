// Package httpserver serves the consumer control surface as JSON over HTTP:
// the open/configure/drain/close lifecycle under /v1/consumer/, the operator
// listing, remote emit, the session ledger (with an SSE tail), health and
// Prometheus metrics. On a Unix socket each request is attributed to the
// peer process; on TCP only when anonymous callers are allowed.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, consumersvc.New(rt), logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServeUnix(ctx, "/run/tracebus.sock", 0o666)
package httpserver
