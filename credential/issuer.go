package credential

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/medbridge-health/medbridge/vault"
)

// Signer is the only capability Issuance needs from key custody.
type Signer interface {
	Sign(ctx context.Context, did string, msg []byte) ([]byte, error)
}

// Issuer turns a consent decision into a signed, time-bounded credential.
// It does not persist anything; the caller owns storage of what comes back.
type Issuer struct {
	signer      Signer
	maxLifetime time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

type IssuerArgs struct {
	Signer      Signer
	MaxLifetime time.Duration
	Logger      *slog.Logger
}

func NewIssuer(args *IssuerArgs) (*Issuer, error) {
	if args.Signer == nil {
		return nil, fmt.Errorf("signer must be set")
	}

	if args.MaxLifetime <= 0 {
		return nil, fmt.Errorf("max lifetime must be positive")
	}

	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	}

	return &Issuer{
		signer:      args.Signer,
		maxLifetime: args.MaxLifetime,
		logger:      args.Logger,
		now:         time.Now,
	}, nil
}

// Issue constructs the credential payload, canonicalizes it as a JWS signing
// string, signs through key custody, and returns the wire token alongside the
// parsed credential. Lifetime is clamped to the configured maximum.
func (i *Issuer) Issue(ctx context.Context, patientDID, hospitalDID string, access RecordAccess, lifetime time.Duration) (string, *VerifiableCredential, error) {
	if !validScope(access.Scope) {
		return "", nil, fmt.Errorf("%w: unknown record access scope %q", ErrMalformedCredential, access.Scope)
	}

	if lifetime <= 0 || lifetime > i.maxLifetime {
		lifetime = i.maxLifetime
	}

	now := i.now().UTC().Truncate(time.Second)

	claims := consentClaims{
		VC: VCClaim{
			Context: []string{"https://www.w3.org/2018/credentials/v1"},
			Type:    []string{"VerifiableCredential", "HealthRecordConsentCredential"},
			Issuer:  patientDID,
			CredentialSubject: CredentialSubject{
				ID:           hospitalDID,
				RecordAccess: access,
			},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    patientDID,
			Subject:   hospitalDID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, &claims)

	signingString, err := token.SigningString()
	if err != nil {
		return "", nil, fmt.Errorf("canonicalizing credential: %w", err)
	}

	sig, err := i.signer.Sign(ctx, patientDID, []byte(signingString))
	if err != nil {
		if errors.Is(err, vault.ErrKeyNotFound) {
			return "", nil, fmt.Errorf("%w: %s", ErrIdentityNotFound, patientDID)
		}
		return "", nil, err
	}

	signed := signingString + "." + base64.RawURLEncoding.EncodeToString(sig)

	i.logger.Info("issued consent credential", "issuer", patientDID, "subject", hospitalDID, "scope", access.Scope, "expires", claims.ExpiresAt.Time)

	return signed, claims.toCredential(), nil
}
