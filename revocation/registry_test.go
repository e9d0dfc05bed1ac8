package revocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/medbridge-health/medbridge/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]*models.RevocationEntry
	failAdd bool
	failHas bool
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]*models.RevocationEntry{}}
}

func (s *memStore) Add(ctx context.Context, entry *models.RevocationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAdd {
		return errors.New("store down")
	}

	if _, ok := s.entries[entry.CredentialID]; !ok {
		s.entries[entry.CredentialID] = entry
	}
	return nil
}

func (s *memStore) Has(ctx context.Context, credentialID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failHas {
		return false, errors.New("store down")
	}

	_, ok := s.entries[credentialID]
	return ok, nil
}

func newTestRegistry(t *testing.T, store Store) *Registry {
	t.Helper()

	r, err := NewRegistry(&Args{Store: store})
	require.NoError(t, err)
	return r
}

func TestRevokeThenCheck(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(t, store)
	ctx := context.Background()

	assert.False(t, r.IsRevoked(ctx, "cred-1"))

	require.NoError(t, r.Revoke(ctx, "cred-1", "did:medbridge:patient:abc"))

	assert.True(t, r.IsRevoked(ctx, "cred-1"))
	assert.False(t, r.IsRevoked(ctx, "cred-2"))

	t.Run("revocation is permanent", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			assert.True(t, r.IsRevoked(ctx, "cred-1"))
		}
	})
}

func TestRevokeIdempotent(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(t, store)
	ctx := context.Background()

	require.NoError(t, r.Revoke(ctx, "cred-1", "did:medbridge:patient:abc"))
	require.NoError(t, r.Revoke(ctx, "cred-1", "did:medbridge:hospital:xyz"))

	// First writer wins; the original revocation is preserved.
	assert.Equal(t, "did:medbridge:patient:abc", store.entries["cred-1"].RevokedBy)
}

func TestIsRevokedFailsClosed(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(t, store)
	ctx := context.Background()

	store.failHas = true

	// Storage faults report revoked for every id, revoked or not.
	assert.True(t, r.IsRevoked(ctx, "cred-1"))
	assert.True(t, r.IsRevoked(ctx, "never-issued"))
}

func TestRevokeDurableWriteFailure(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(t, store)
	ctx := context.Background()

	store.failAdd = true
	assert.Error(t, r.Revoke(ctx, "cred-1", "did:medbridge:patient:abc"))

	// The in-memory set must not claim revocation without durable backing.
	store.failAdd = false
	assert.False(t, r.IsRevoked(ctx, "cred-1"))
}

func TestIsRevokedBackfillsCache(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	// Entry written by another process before this registry started.
	require.NoError(t, store.Add(ctx, &models.RevocationEntry{CredentialID: "cred-1"}))

	r := newTestRegistry(t, store)

	assert.True(t, r.IsRevoked(ctx, "cred-1"))

	// Durable store goes away; the cached entry still answers.
	store.failHas = true
	assert.True(t, r.IsRevoked(ctx, "cred-1"))
}

func TestConcurrentRevokeAndCheck(t *testing.T) {
	store := newMemStore()
	r := newTestRegistry(t, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("cred-%d", i)

		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Revoke(ctx, id, "did:medbridge:patient:abc")
		}()
		go func() {
			defer wg.Done()
			_ = r.IsRevoked(ctx, id)
		}()
	}
	wg.Wait()

	// Once every revoke has returned, every check observes true.
	for i := 0; i < 50; i++ {
		assert.True(t, r.IsRevoked(ctx, fmt.Sprintf("cred-%d", i)))
	}
}
