package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrDenied is returned by Authorizers that refuse an identity.
var ErrDenied = errors.New("auth: permission denied")

// Authorizer decides whether an identity may open a consumer queue.
type Authorizer interface {
	Authorize(ctx context.Context, id Identity) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, id Identity) error

func (f AuthorizerFunc) Authorize(ctx context.Context, id Identity) error { return f(ctx, id) }

// Static allows or denies everyone.
type Static bool

func (s Static) Authorize(context.Context, Identity) error {
	if s {
		return nil
	}
	return ErrDenied
}

// CredentialPolicy allows root (when AllowRoot) and any listed uid or gid.
type CredentialPolicy struct {
	AllowRoot bool
	UIDs      []uint32
	GIDs      []uint32
}

func (p CredentialPolicy) Authorize(_ context.Context, id Identity) error {
	if !id.Known() || id.Anonymous {
		return fmt.Errorf("%w: unidentified caller", ErrDenied)
	}
	if p.AllowRoot && id.UID == 0 {
		return nil
	}
	if slices.Contains(p.UIDs, id.UID) || slices.Contains(p.GIDs, id.GID) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDenied, id)
}

// AllowAnonymous lets anonymous identities with a pid through and defers
// every other identity to next.
func AllowAnonymous(next Authorizer) Authorizer {
	return AuthorizerFunc(func(ctx context.Context, id Identity) error {
		if id.Anonymous && id.Known() {
			return nil
		}
		return next.Authorize(ctx, id)
	})
}
