// Package auth identifies control-surface callers and decides who may open a
// consumer queue.
//
// Callers on a Unix domain socket are identified by the kernel-reported peer
// credentials of the connection (SO_PEERCRED). The identity rides on the
// request context: ConnContext does this for net/http servers and
// TransportCredentials for gRPC. The only policy decision, Authorize, is made
// once when a queue is opened.
package auth
