package auth

import (
	"context"
	"strconv"
)

// Identity is the process on the other end of a control connection.
type Identity struct {
	PID int    `json:"pid"`
	UID uint32 `json:"uid"`
	GID uint32 `json:"gid"`
	// Anonymous marks identities asserted by the caller rather than read
	// from the kernel, e.g. the pid header on the TCP listener.
	Anonymous bool `json:"anonymous,omitempty"`
}

// Known reports whether the identity names a process.
func (id Identity) Known() bool { return id.PID > 0 }

func (id Identity) String() string {
	if id.Anonymous {
		return "pid=" + strconv.Itoa(id.PID) + " anonymous"
	}
	return "pid=" + strconv.Itoa(id.PID) + " uid=" + strconv.FormatUint(uint64(id.UID), 10) +
		" gid=" + strconv.FormatUint(uint64(id.GID), 10)
}

// PIDHeader names the caller on listeners without peer credentials. It is
// only honored when anonymous callers are allowed.
const PIDHeader = "X-Tracebus-Pid"

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, ConnContext or the
// gRPC credentials.
func FromContext(ctx context.Context) (Identity, bool) {
	if id, ok := ctx.Value(identityKey{}).(Identity); ok {
		return id, true
	}
	if id, ok := fromPeer(ctx); ok {
		return id, true
	}
	return Identity{}, false
}
