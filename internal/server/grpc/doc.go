// Package grpcserver hosts the tracebus.v1.Consumer gRPC service and the
// standard grpc.health.v1 service, delegating to the consumers service.
// Connections accepted on a Unix socket carry the peer's credentials, which
// identify the consumer process for every call.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := grpcserver.New(rt, consumersvc.New(rt), logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServeUnix(ctx, "/run/tracebus-grpc.sock", 0o666)
package grpcserver
