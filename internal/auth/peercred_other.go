//go:build !linux

package auth

import "net"

// PeerIdentity is only implemented on Linux.
func PeerIdentity(net.Conn) (Identity, error) {
	return Identity{}, ErrNoPeerCredentials
}
