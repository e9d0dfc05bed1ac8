package identity

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
)

// PublicKeyer is the custody-side source of verification keys.
type PublicKeyer interface {
	PublicKey(ctx context.Context, did string) (*ecdsa.PublicKey, error)
}

// Resolver maps did:medbridge DIDs to public keys, with a small expirable
// cache in front of key custody. Keys are immutable per identity, but the
// cache still expires so a deactivated identity stops resolving promptly.
type Resolver struct {
	keys  PublicKeyer
	cache *MemCache
}

func NewResolver(keys PublicKeyer, cache *MemCache) *Resolver {
	return &Resolver{
		keys:  keys,
		cache: cache,
	}
}

func (r *Resolver) Resolve(ctx context.Context, did string) (*ecdsa.PublicKey, error) {
	if !strings.HasPrefix(did, "did:medbridge:") {
		return nil, fmt.Errorf("did %q is not a supported did type", did)
	}

	if r.cache != nil {
		if pub, ok := r.cache.GetKey(did); ok {
			return pub, nil
		}
	}

	pub, err := r.keys.PublicKey(ctx, did)
	if err != nil {
		return nil, fmt.Errorf("could not resolve identity %s: %w", did, err)
	}

	if r.cache != nil {
		r.cache.PutKey(did, pub)
	}

	return pub, nil
}
