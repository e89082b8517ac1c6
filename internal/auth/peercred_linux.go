//go:build linux

package auth

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// PeerIdentity returns the credentials of the process on the other end of a
// Unix domain socket connection.
func PeerIdentity(c net.Conn) (Identity, error) {
	uc, ok := c.(*net.UnixConn)
	if !ok {
		return Identity{}, ErrNoPeerCredentials
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return Identity{}, fmt.Errorf("peer credentials: %w", err)
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return Identity{}, fmt.Errorf("peer credentials: %w", err)
	}
	if credErr != nil {
		return Identity{}, fmt.Errorf("peer credentials: %w", credErr)
	}
	return Identity{PID: int(cred.Pid), UID: cred.Uid, GID: cred.Gid}, nil
}
