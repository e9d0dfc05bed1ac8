package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/medbridge-health/medbridge/models"
)

var (
	ErrKeyNotFound   = errors.New("KeyNotFound")
	ErrSigningFailed = errors.New("SigningError")
)

// KeyStore is the durable backing for sealed identity keys. Implementations
// must distinguish "not found" from other failures.
type KeyStore interface {
	CreateIdentity(ctx context.Context, identity *models.PatientIdentity) error
	GetIdentity(ctx context.Context, did string) (*models.PatientIdentity, error)
}

// Vault owns the only copy of every patient signing key. Private key material
// never leaves this package; callers get a DID and a signing capability.
type Vault struct {
	store     KeyStore
	masterKey []byte
	logger    *slog.Logger
}

type Args struct {
	Store     KeyStore
	MasterKey []byte
	Logger    *slog.Logger
}

func New(args *Args) (*Vault, error) {
	if args.Store == nil {
		return nil, fmt.Errorf("key store must be set")
	}

	if len(args.MasterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(args.MasterKey))
	}

	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	}

	return &Vault{
		store:     args.Store,
		masterKey: args.MasterKey,
		logger:    args.Logger,
	}, nil
}

// DeriveDID maps a kind ("patient" or "hospital") and a stable handle (phone
// number, institutional name) to a did:medbridge DID. Deterministic, so
// re-enrolment of the same handle lands on the same identifier.
func DeriveDID(kind, handle string) string {
	h := sha256.New()
	h.Write([]byte(kind + ":" + strings.ToLower(handle)))
	bs := h.Sum(nil)

	b32 := strings.ToLower(base32.StdEncoding.EncodeToString(bs))

	return "did:medbridge:" + kind + ":" + b32[0:24]
}

// CreateIdentity generates a fresh P-256 keypair for the patient, seals the
// private half under the master key, persists it, and returns the DID with
// the public JWK. The private key is never logged or returned.
func (v *Vault) CreateIdentity(ctx context.Context, handle, phone string) (string, jwk.Key, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", nil, fmt.Errorf("generating keypair: %w", err)
	}

	privJwk, err := jwk.FromRaw(priv)
	if err != nil {
		return "", nil, fmt.Errorf("encoding private jwk: %w", err)
	}

	pubJwk, err := privJwk.PublicKey()
	if err != nil {
		return "", nil, fmt.Errorf("deriving public jwk: %w", err)
	}

	privBytes, err := json.Marshal(privJwk)
	if err != nil {
		return "", nil, err
	}

	pubBytes, err := json.Marshal(pubJwk)
	if err != nil {
		return "", nil, err
	}

	sealed, nonce, err := v.seal(privBytes)
	if err != nil {
		return "", nil, fmt.Errorf("sealing private key: %w", err)
	}

	did := DeriveDID("patient", handle)

	identity := models.PatientIdentity{
		Did:       did,
		CreatedAt: time.Now().UTC(),
		Handle:    strings.ToLower(handle),
		Phone:     phone,
		PublicJwk: pubBytes,
		SealedJwk: sealed,
		KeyNonce:  nonce,
	}

	if err := v.store.CreateIdentity(ctx, &identity); err != nil {
		return "", nil, fmt.Errorf("persisting identity: %w", err)
	}

	v.logger.Info("created identity", "did", did)

	return did, pubJwk, nil
}

// Sign hashes msg with SHA-256 and signs it with the patient's private key.
// The signature is the 64-byte R||S form used by JOSE ES256, so it can be
// appended to a JWS directly.
func (v *Vault) Sign(ctx context.Context, did string, msg []byte) ([]byte, error) {
	priv, err := v.privateKey(ctx, did)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(msg)

	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])

	return sig, nil
}

// PublicKey returns the patient's public key for signature verification.
func (v *Vault) PublicKey(ctx context.Context, did string) (*ecdsa.PublicKey, error) {
	identity, err := v.store.GetIdentity(ctx, did)
	if err != nil || identity == nil {
		return nil, ErrKeyNotFound
	}

	key, err := jwk.ParseKey(identity.PublicJwk)
	if err != nil {
		return nil, fmt.Errorf("parsing stored public jwk: %w", err)
	}

	var pub ecdsa.PublicKey
	if err := key.Raw(&pub); err != nil {
		return nil, fmt.Errorf("decoding public jwk: %w", err)
	}

	return &pub, nil
}

func (v *Vault) privateKey(ctx context.Context, did string) (*ecdsa.PrivateKey, error) {
	identity, err := v.store.GetIdentity(ctx, did)
	if err != nil || identity == nil {
		return nil, ErrKeyNotFound
	}

	privBytes, err := v.unseal(identity.SealedJwk, identity.KeyNonce)
	if err != nil {
		return nil, fmt.Errorf("%w: unsealing key: %v", ErrSigningFailed, err)
	}

	key, err := jwk.ParseKey(privBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing jwk: %v", ErrSigningFailed, err)
	}

	var priv ecdsa.PrivateKey
	if err := key.Raw(&priv); err != nil {
		return nil, fmt.Errorf("%w: decoding jwk: %v", ErrSigningFailed, err)
	}

	return &priv, nil
}

// seal envelope-encrypts key material under the master key with AES-256-GCM.
// A database dump without the master key yields nothing usable.
func (v *Vault) seal(plaintext []byte) ([]byte, []byte, error) {
	block, err := aes.NewCipher(v.masterKey)
	if err != nil {
		return nil, nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func (v *Vault) unseal(sealed, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(v.masterKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return gcm.Open(nil, nonce, sealed, nil)
}
