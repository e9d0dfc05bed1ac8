package vault

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/medbridge-health/medbridge/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memKeyStore struct {
	identities map[string]*models.PatientIdentity
}

func newMemKeyStore() *memKeyStore {
	return &memKeyStore{identities: map[string]*models.PatientIdentity{}}
}

func (s *memKeyStore) CreateIdentity(ctx context.Context, identity *models.PatientIdentity) error {
	s.identities[identity.Did] = identity
	return nil
}

func (s *memKeyStore) GetIdentity(ctx context.Context, did string) (*models.PatientIdentity, error) {
	return s.identities[did], nil
}

func newTestVault(t *testing.T, store KeyStore) *Vault {
	t.Helper()

	master := make([]byte, 32)
	_, err := rand.Read(master)
	require.NoError(t, err)

	v, err := New(&Args{Store: store, MasterKey: master})
	require.NoError(t, err)

	return v
}

func TestDeriveDID(t *testing.T) {
	did := DeriveDID("patient", "+254700111222")

	assert.True(t, strings.HasPrefix(did, "did:medbridge:patient:"))
	assert.Len(t, strings.TrimPrefix(did, "did:medbridge:patient:"), 24)

	t.Run("deterministic", func(t *testing.T) {
		assert.Equal(t, did, DeriveDID("patient", "+254700111222"))
	})

	t.Run("case insensitive on handle", func(t *testing.T) {
		assert.Equal(t, DeriveDID("hospital", "Nairobi General"), DeriveDID("hospital", "nairobi general"))
	})

	t.Run("kind separates namespaces", func(t *testing.T) {
		assert.NotEqual(t, DeriveDID("patient", "x"), DeriveDID("hospital", "x"))
	})
}

func TestCreateIdentity(t *testing.T) {
	store := newMemKeyStore()
	v := newTestVault(t, store)

	did, pub, err := v.CreateIdentity(context.Background(), "+254700111222", "+254700111222")
	require.NoError(t, err)
	require.NotNil(t, pub)

	identity := store.identities[did]
	require.NotNil(t, identity)

	t.Run("public jwk is stored in the clear", func(t *testing.T) {
		key, err := jwk.ParseKey(identity.PublicJwk)
		require.NoError(t, err)

		var raw ecdsa.PublicKey
		require.NoError(t, key.Raw(&raw))
	})

	t.Run("private jwk is sealed", func(t *testing.T) {
		// The sealed blob must not be parseable key material.
		_, err := jwk.ParseKey(identity.SealedJwk)
		assert.Error(t, err)
		assert.False(t, json.Valid(identity.SealedJwk))
		assert.NotEmpty(t, identity.KeyNonce)
	})
}

func TestSignAndVerify(t *testing.T) {
	store := newMemKeyStore()
	v := newTestVault(t, store)

	did, _, err := v.CreateIdentity(context.Background(), "+254700111222", "+254700111222")
	require.NoError(t, err)

	msg := []byte("canonical credential payload")

	sig, err := v.Sign(context.Background(), did, msg)
	require.NoError(t, err)
	require.Len(t, sig, 64)

	pub, err := v.PublicKey(context.Background(), did)
	require.NoError(t, err)

	digest := sha256.Sum256(msg)
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	assert.True(t, ecdsa.Verify(pub, digest[:], r, s))

	t.Run("signature does not verify a different message", func(t *testing.T) {
		other := sha256.Sum256([]byte("some other payload"))
		assert.False(t, ecdsa.Verify(pub, other[:], r, s))
	})
}

func TestSignUnknownDID(t *testing.T) {
	v := newTestVault(t, newMemKeyStore())

	_, err := v.Sign(context.Background(), "did:medbridge:patient:missing", []byte("msg"))
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = v.PublicKey(context.Background(), "did:medbridge:patient:missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestWrongMasterKeyCannotUnseal(t *testing.T) {
	store := newMemKeyStore()
	v1 := newTestVault(t, store)

	did, _, err := v1.CreateIdentity(context.Background(), "+254700111222", "+254700111222")
	require.NoError(t, err)

	// Same durable store, different master key: a stolen database dump.
	v2 := newTestVault(t, store)

	_, err = v2.Sign(context.Background(), did, []byte("msg"))
	assert.ErrorIs(t, err, ErrSigningFailed)
}

func TestMasterKeyLength(t *testing.T) {
	_, err := New(&Args{Store: newMemKeyStore(), MasterKey: bytes.Repeat([]byte{1}, 16)})
	assert.Error(t, err)
}
