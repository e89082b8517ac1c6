// Package tracebusv1 defines the tracebus.v1.Consumer gRPC service: request
// and response messages, the service descriptor, a client and the server
// interface. Messages are plain Go structs carried by the "json" codec this
// package registers, so callers must use the client constructed here (or
// set grpc.CallContentSubtype(CodecName) themselves).
package tracebusv1
