package revocation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/medbridge-health/medbridge/models"
)

// Store is the durable side of the registry. Entries are append-only and
// Add must be idempotent.
type Store interface {
	Add(ctx context.Context, entry *models.RevocationEntry) error
	Has(ctx context.Context, credentialID string) (bool, error)
}

// Registry answers "is this credential revoked" with a write-through
// in-memory set over a durable store. Revocation is permanent, so cached
// entries never expire and never need invalidation.
type Registry struct {
	mu     sync.RWMutex
	cache  map[string]struct{}
	store  Store
	logger *slog.Logger
}

type Args struct {
	Store  Store
	Logger *slog.Logger
}

func NewRegistry(args *Args) (*Registry, error) {
	if args.Store == nil {
		return nil, fmt.Errorf("revocation store must be set")
	}

	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	}

	return &Registry{
		cache:  map[string]struct{}{},
		store:  args.Store,
		logger: args.Logger,
	}, nil
}

// IsRevoked checks the in-memory set first, then the durable store,
// back-filling the set on a durable hit. Any storage error reports revoked:
// availability is sacrificed for safety, never the other way around.
func (r *Registry) IsRevoked(ctx context.Context, credentialID string) bool {
	r.mu.RLock()
	_, ok := r.cache[credentialID]
	r.mu.RUnlock()

	if ok {
		return true
	}

	revoked, err := r.store.Has(ctx, credentialID)
	if err != nil {
		r.logger.Error("revocation store unreachable, failing closed", "credentialId", credentialID, "error", err)
		return true
	}

	if revoked {
		r.mu.Lock()
		r.cache[credentialID] = struct{}{}
		r.mu.Unlock()
	}

	return revoked
}

// Revoke writes durably first and only then updates the in-memory set, so a
// successful return means every later IsRevoked observes true. Revoking an
// already-revoked credential is not an error.
func (r *Registry) Revoke(ctx context.Context, credentialID, revokedBy string) error {
	entry := models.RevocationEntry{
		CredentialID: credentialID,
		RevokedAt:    time.Now().UTC(),
		RevokedBy:    revokedBy,
	}

	if err := r.store.Add(ctx, &entry); err != nil {
		return fmt.Errorf("durable revocation write failed: %w", err)
	}

	r.mu.Lock()
	r.cache[credentialID] = struct{}{}
	r.mu.Unlock()

	r.logger.Info("credential revoked", "credentialId", credentialID, "revokedBy", revokedBy)

	return nil
}
