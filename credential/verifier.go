package credential

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/medbridge-health/medbridge/audit"
	"github.com/medbridge-health/medbridge/internal/helpers"
)

// KeyResolver maps an issuer DID to its public verification key.
type KeyResolver interface {
	Resolve(ctx context.Context, did string) (*ecdsa.PublicKey, error)
}

// RevocationChecker answers whether a credential id has been revoked. The
// registry behind it is fail-closed, so a bool is the whole contract.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, credentialID string) bool
}

// RecordDirectory resolves a record id to its category for scope=category
// grants.
type RecordDirectory interface {
	Category(ctx context.Context, recordID string) (string, error)
}

// VerificationResult is what a relying hospital gets on success: the
// extracted permissions plus everything needed to fetch and decrypt the
// record from the content store. The verifier itself never touches the blob.
type VerificationResult struct {
	Permissions    RecordPermissions
	DecryptionKey  string
	ContentAddress string
	Credential     *VerifiableCredential
}

// Verifier runs the consent decision state machine. It is stateless and safe
// for fully concurrent use; its only side effect is audit writes.
type Verifier struct {
	keys        KeyResolver
	revocations RevocationChecker
	records     RecordDirectory
	audits      audit.Sink
	logger      *slog.Logger
	now         func() time.Time
}

type VerifierArgs struct {
	Keys        KeyResolver
	Revocations RevocationChecker
	Records     RecordDirectory
	Audits      audit.Sink
	Logger      *slog.Logger
}

func NewVerifier(args *VerifierArgs) (*Verifier, error) {
	if args.Keys == nil || args.Revocations == nil || args.Audits == nil {
		return nil, fmt.Errorf("keys, revocations, and audits must be set")
	}

	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	}

	return &Verifier{
		keys:        args.Keys,
		revocations: args.Revocations,
		records:     args.Records,
		audits:      args.Audits,
		logger:      args.Logger,
		now:         time.Now,
	}, nil
}

// Verify evaluates the six checks in strict order and short-circuits on the
// first failure: structure, signature, expiration, revocation, subject
// binding, record permission. Every outcome is audited.
func (v *Verifier) Verify(ctx context.Context, token, hospitalDID, requestedRecordID string) (*VerificationResult, error) {
	claims, err := parseStructure(token)
	if err != nil {
		v.deny(ctx, token, hospitalDID, "", ErrMalformedCredential, audit.SeverityInfo)
		return nil, err
	}

	vc := claims.toCredential()

	if err := v.checkSignature(ctx, token); err != nil {
		sev := audit.SeverityHigh
		if errors.Is(err, ErrIdentityResolution) {
			sev = audit.SeverityWarning
		}
		v.deny(ctx, token, hospitalDID, vc.Issuer, err, sev)
		return nil, err
	}

	// No grace period: a credential is dead the instant it expires.
	if !v.now().Before(vc.ExpiresAt) {
		v.deny(ctx, token, hospitalDID, vc.Issuer, ErrExpiredCredential, audit.SeverityInfo)
		return nil, ErrExpiredCredential
	}

	if v.revocations.IsRevoked(ctx, vc.ID) {
		v.deny(ctx, token, hospitalDID, vc.Issuer, ErrRevokedCredential, audit.SeverityInfo)
		return nil, ErrRevokedCredential
	}

	if vc.Subject != hospitalDID {
		v.deny(ctx, token, hospitalDID, vc.Issuer, ErrUnauthorizedHospital, audit.SeverityHigh)
		return nil, ErrUnauthorizedHospital
	}

	if requestedRecordID != "" {
		if err := v.checkRecordPermission(ctx, vc, requestedRecordID); err != nil {
			v.deny(ctx, token, hospitalDID, vc.Issuer, err, audit.SeverityInfo)
			return nil, err
		}
	}

	v.audits.LogEvent(ctx, audit.Event{
		Kind:       "consent.verified",
		Severity:   audit.SeverityInfo,
		ActorDid:   hospitalDID,
		SubjectDid: vc.Issuer,
		Outcome:    "granted",
		Detail: map[string]any{
			"credentialId": vc.ID,
			"scope":        vc.Access.Scope,
			"record":       requestedRecordID,
			"expiresAt":    vc.ExpiresAt,
		},
	})

	return &VerificationResult{
		Permissions:    vc.Permissions(),
		DecryptionKey:  vc.Access.EncryptionKey,
		ContentAddress: vc.Access.Cid,
		Credential:     vc,
	}, nil
}

func (v *Verifier) checkSignature(ctx context.Context, token string) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	_, err := parser.ParseWithClaims(token, &consentClaims{}, func(t *jwt.Token) (any, error) {
		claims, ok := t.Claims.(*consentClaims)
		if !ok {
			return nil, ErrIdentityResolution
		}

		pub, err := v.keys.Resolve(ctx, claims.Issuer)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIdentityResolution, err)
		}

		return pub, nil
	})
	if err != nil {
		if errors.Is(err, ErrIdentityResolution) {
			return ErrIdentityResolution
		}
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return nil
}

func (v *Verifier) checkRecordPermission(ctx context.Context, vc *VerifiableCredential, recordID string) error {
	switch vc.Access.Scope {
	case ScopeAll:
		return nil
	case ScopeSpecific:
		if slices.Contains(vc.Access.SpecificRecords, recordID) {
			return nil
		}
		return ErrInsufficientPermissions
	case ScopeCategory:
		if v.records == nil {
			return ErrInsufficientPermissions
		}
		category, err := v.records.Category(ctx, recordID)
		if err != nil || category == "" {
			// Unknown record or directory fault denies, never grants.
			return ErrInsufficientPermissions
		}
		if slices.Contains(vc.Access.Categories, category) {
			return nil
		}
		return ErrInsufficientPermissions
	}

	return ErrInsufficientPermissions
}

func (v *Verifier) deny(ctx context.Context, token, hospitalDID, issuerDID string, cause error, severity string) {
	ev := audit.Event{
		Kind:       "consent.denied",
		Severity:   severity,
		ActorDid:   hospitalDID,
		SubjectDid: issuerDID,
		Outcome:    cause.Error(),
		Detail: map[string]any{
			"credentialPreview": helpers.TruncateForAudit(token),
		},
	}

	if severity == audit.SeverityHigh || severity == audit.SeverityCritical {
		v.audits.LogSecurityViolation(ctx, ev)
		return
	}

	v.audits.LogEvent(ctx, ev)
}
