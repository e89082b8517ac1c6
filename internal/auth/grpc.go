package auth

import (
	"context"
	"net"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
)

// AuthInfo carries the peer identity of a gRPC connection.
type AuthInfo struct {
	credentials.CommonAuthInfo
	Identity Identity
}

func (AuthInfo) AuthType() string { return "peercred" }

// TransportCredentials are gRPC server credentials that perform no handshake
// on the wire and record the Unix socket peer identity of each connection.
// Connections without peer credentials are accepted with an unknown identity.
type TransportCredentials struct{}

func (TransportCredentials) ClientHandshake(_ context.Context, _ string, c net.Conn) (net.Conn, credentials.AuthInfo, error) {
	return c, AuthInfo{CommonAuthInfo: credentials.CommonAuthInfo{SecurityLevel: credentials.NoSecurity}}, nil
}

func (TransportCredentials) ServerHandshake(c net.Conn) (net.Conn, credentials.AuthInfo, error) {
	info := AuthInfo{CommonAuthInfo: credentials.CommonAuthInfo{SecurityLevel: credentials.NoSecurity}}
	if id, err := PeerIdentity(c); err == nil {
		info.Identity = id
	}
	return c, info, nil
}

func (TransportCredentials) Info() credentials.ProtocolInfo {
	return credentials.ProtocolInfo{SecurityProtocol: "peercred"}
}

func (t TransportCredentials) Clone() credentials.TransportCredentials { return t }

func (TransportCredentials) OverrideServerName(string) error { return nil }

func fromPeer(ctx context.Context) (Identity, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.AuthInfo == nil {
		return Identity{}, false
	}
	info, ok := p.AuthInfo.(AuthInfo)
	if !ok || !info.Identity.Known() {
		return Identity{}, false
	}
	return info.Identity, true
}
