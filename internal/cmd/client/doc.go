// Package client provides the `tracebus` command-line client.
//
// The CLI talks to the daemon's gRPC or HTTP surface, normally over its
// Unix sockets so the daemon can identify the calling process.
//
// # Address configuration
//
// The gRPC target is read from TRACEBUS_GRPC (default
// unix://$XDG_RUNTIME_DIR/tracebus-grpc.sock) and the HTTP base from
// TRACEBUS_HTTP (default unix://$XDG_RUNTIME_DIR/tracebus.sock). Select the
// transport with --transport or TRACEBUS_TRANSPORT.
//
// Usage
//
//	# receive trace and probe events, filtered server-side
//	tracebus watch --types trace_start,trace_stop,probe_fire --capacity 1024 \
//	    --filter 'guest == 3'
//
//	# inject an event
//	tracebus emit --type probe_fire --guest 3 --data '{"probe":"syscall"}'
//
//	tracebus consumers
//	tracebus ledger --reverse --limit 20
//
// Notes
//
//   - watch closes its queue on exit and prints the final counters to
//     stderr. Records are printed as JSON lines with the payload decoded as
//     JSON, text or base64.
//   - A queue belongs to the process that opened it. stats looks it up by
//     owner pid: tracebus stats --pid 4321
package client
