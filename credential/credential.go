package credential

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeSpecific Scope = "specific"
	ScopeCategory Scope = "category"
)

// RecordAccess is the grant carried inside a consent credential: which
// records the subject hospital may read, plus where the encrypted blob lives
// and the key to open it.
type RecordAccess struct {
	Scope           Scope    `json:"scope"`
	SpecificRecords []string `json:"specificRecords,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Cid             string   `json:"cid"`
	EncryptionKey   string   `json:"encryptionKey"`
}

type CredentialSubject struct {
	ID           string       `json:"id"`
	RecordAccess RecordAccess `json:"recordAccess"`
}

type VCClaim struct {
	Context           []string          `json:"@context"`
	Type              []string          `json:"type"`
	Issuer            string            `json:"issuer"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
}

type consentClaims struct {
	VC VCClaim `json:"vc"`
	jwt.RegisteredClaims
}

// VerifiableCredential is the strictly-parsed, immutable view of a consent
// token. Verification reads it; nothing ever mutates it.
type VerifiableCredential struct {
	ID        string
	Issuer    string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Access    RecordAccess
}

// RecordPermissions is the caller-facing extraction of what a verified
// credential allows, without the key material.
type RecordPermissions struct {
	Scope           Scope
	SpecificRecords []string
	Categories      []string
	ExpiresAt       time.Time
}

func (vc *VerifiableCredential) Permissions() RecordPermissions {
	return RecordPermissions{
		Scope:           vc.Access.Scope,
		SpecificRecords: vc.Access.SpecificRecords,
		Categories:      vc.Access.Categories,
		ExpiresAt:       vc.ExpiresAt,
	}
}

func validScope(s Scope) bool {
	switch s {
	case ScopeAll, ScopeSpecific, ScopeCategory:
		return true
	}
	return false
}

// parseStructure decomposes a token without touching the signature and
// checks that every required field is present and coherent. Anything wrong
// here is a malformed credential, not a crypto failure.
func parseStructure(token string) (*consentClaims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: token is not a three-part JWS", ErrMalformedCredential)
	}

	var claims consentClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}

	if claims.Issuer == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing issuer or subject", ErrMalformedCredential)
	}

	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing iat or exp", ErrMalformedCredential)
	}

	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return nil, fmt.Errorf("%w: exp is not after iat", ErrMalformedCredential)
	}

	if claims.VC.Issuer != claims.Issuer {
		return nil, fmt.Errorf("%w: vc issuer does not match iss", ErrMalformedCredential)
	}

	if !validScope(claims.VC.CredentialSubject.RecordAccess.Scope) {
		return nil, fmt.Errorf("%w: unknown record access scope", ErrMalformedCredential)
	}

	if claims.VC.CredentialSubject.RecordAccess.Cid == "" {
		return nil, fmt.Errorf("%w: missing content address", ErrMalformedCredential)
	}

	return &claims, nil
}

func (c *consentClaims) toCredential() *VerifiableCredential {
	id := c.ID
	if id == "" {
		// Fallback lookup key for pre-jti credentials.
		id = c.Issuer + "|" + c.Subject + "|" + c.VC.CredentialSubject.RecordAccess.Cid
	}

	return &VerifiableCredential{
		ID:        id,
		Issuer:    c.Issuer,
		Subject:   c.Subject,
		IssuedAt:  c.IssuedAt.Time,
		ExpiresAt: c.ExpiresAt.Time,
		Access:    c.VC.CredentialSubject.RecordAccess,
	}
}
