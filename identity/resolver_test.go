package identity

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingKeyer struct {
	keys  map[string]*ecdsa.PublicKey
	calls int
}

func (k *countingKeyer) PublicKey(ctx context.Context, did string) (*ecdsa.PublicKey, error) {
	k.calls++
	pub, ok := k.keys[did]
	if !ok {
		return nil, errors.New("no such identity")
	}
	return pub, nil
}

func TestResolve(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	did := "did:medbridge:patient:abc123"

	keyer := &countingKeyer{keys: map[string]*ecdsa.PublicKey{did: &key.PublicKey}}
	r := NewResolver(keyer, NewMemCache(100))

	pub, err := r.Resolve(context.Background(), did)
	require.NoError(t, err)
	assert.Equal(t, &key.PublicKey, pub)

	t.Run("second resolve hits the cache", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), did)
		require.NoError(t, err)
		assert.Equal(t, 1, keyer.calls)
	})

	t.Run("unknown did", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), "did:medbridge:patient:nobody")
		assert.Error(t, err)
	})

	t.Run("unsupported did method", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), "did:web:example.com")
		assert.Error(t, err)
		// Must not fall through to custody.
		assert.Equal(t, 2, keyer.calls)
	})
}
