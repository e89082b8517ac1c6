package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// ErrNoPeerCredentials means the connection cannot report who is calling.
var ErrNoPeerCredentials = errors.New("auth: connection has no peer credentials")

// ConnContext is an http.Server ConnContext hook that attaches the peer
// identity of Unix socket connections to every request served on them.
func ConnContext(ctx context.Context, c net.Conn) context.Context {
	id, err := PeerIdentity(c)
	if err != nil {
		return ctx
	}
	return WithIdentity(ctx, id)
}

// ListenUnix listens on a Unix socket at path, replacing a stale socket file
// and applying mode to the new one.
func ListenUnix(path string, mode os.FileMode) (net.Listener, error) {
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("listen %s: exists and is not a socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}
	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if mode != 0 {
		if err := os.Chmod(path, mode); err != nil {
			lis.Close()
			return nil, fmt.Errorf("chmod socket: %w", err)
		}
	}
	return lis, nil
}
