package credential

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/medbridge-health/medbridge/audit"
	"github.com/medbridge-health/medbridge/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	patientDid  = "did:medbridge:patient:abc"
	hospitalDid = "did:medbridge:hospital:xyz"
	otherDid    = "did:medbridge:hospital:other"
)

type testSigner struct {
	keys map[string]*ecdsa.PrivateKey
}

func (s *testSigner) Sign(ctx context.Context, did string, msg []byte) ([]byte, error) {
	k, ok := s.keys[did]
	if !ok {
		return nil, vault.ErrKeyNotFound
	}

	digest := sha256.Sum256(msg)
	r, ss, err := ecdsa.Sign(rand.Reader, k, digest[:])
	if err != nil {
		return nil, err
	}

	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	ss.FillBytes(sig[32:])
	return sig, nil
}

type testResolver struct {
	keys map[string]*ecdsa.PublicKey
}

func (r *testResolver) Resolve(ctx context.Context, did string) (*ecdsa.PublicKey, error) {
	k, ok := r.keys[did]
	if !ok {
		return nil, fmt.Errorf("unknown did %s", did)
	}
	return k, nil
}

type testRevocations struct {
	revoked map[string]bool
	failAll bool
}

func (r *testRevocations) IsRevoked(ctx context.Context, credentialID string) bool {
	if r.failAll {
		// The real registry fails closed on storage faults.
		return true
	}
	return r.revoked[credentialID]
}

type testDirectory struct {
	categories map[string]string
}

func (d *testDirectory) Category(ctx context.Context, recordID string) (string, error) {
	return d.categories[recordID], nil
}

type recordingSink struct {
	events     []audit.Event
	violations []audit.Event
}

func (s *recordingSink) LogEvent(ctx context.Context, ev audit.Event) {
	s.events = append(s.events, ev)
}

func (s *recordingSink) LogSecurityViolation(ctx context.Context, ev audit.Event) {
	s.violations = append(s.violations, ev)
}

type fixture struct {
	issuer      *Issuer
	verifier    *Verifier
	revocations *testRevocations
	sink        *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	issuer, err := NewIssuer(&IssuerArgs{
		Signer:      &testSigner{keys: map[string]*ecdsa.PrivateKey{patientDid: key}},
		MaxLifetime: 720 * time.Hour,
	})
	require.NoError(t, err)

	revocations := &testRevocations{revoked: map[string]bool{}}
	sink := &recordingSink{}

	verifier, err := NewVerifier(&VerifierArgs{
		Keys:        &testResolver{keys: map[string]*ecdsa.PublicKey{patientDid: &key.PublicKey}},
		Revocations: revocations,
		Records:     &testDirectory{categories: map[string]string{"rec-lab-1": "lab-results", "rec-img-1": "imaging"}},
		Audits:      sink,
	})
	require.NoError(t, err)

	return &fixture{
		issuer:      issuer,
		verifier:    verifier,
		revocations: revocations,
		sink:        sink,
	}
}

func defaultAccess() RecordAccess {
	return RecordAccess{
		Scope:           ScopeSpecific,
		SpecificRecords: []string{"42"},
		Cid:             "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy",
		EncryptionKey:   "c2VjcmV0LWtleQ",
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	f := newFixture(t)

	token, vc, err := f.issuer.Issue(context.Background(), patientDid, hospitalDid, defaultAccess(), 24*time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, vc.ID)

	result, err := f.verifier.Verify(context.Background(), token, hospitalDid, "42")
	require.NoError(t, err)

	assert.Equal(t, ScopeSpecific, result.Permissions.Scope)
	assert.Equal(t, []string{"42"}, result.Permissions.SpecificRecords)
	assert.Equal(t, defaultAccess().Cid, result.ContentAddress)
	assert.Equal(t, defaultAccess().EncryptionKey, result.DecryptionKey)
	// The decoded exp comes back in a different Location than the one the
	// issuer stamped; only the instant matters.
	assert.True(t, vc.ExpiresAt.Equal(result.Permissions.ExpiresAt), "expiry instants differ: %s vs %s", vc.ExpiresAt, result.Permissions.ExpiresAt)

	t.Run("success is audited", func(t *testing.T) {
		require.NotEmpty(t, f.sink.events)
		last := f.sink.events[len(f.sink.events)-1]
		assert.Equal(t, "consent.verified", last.Kind)
		assert.Equal(t, "granted", last.Outcome)
	})

	t.Run("requested record outside grant is denied", func(t *testing.T) {
		_, err := f.verifier.Verify(context.Background(), token, hospitalDid, "99")
		assert.ErrorIs(t, err, ErrInsufficientPermissions)
	})
}

func TestVerifyMalformed(t *testing.T) {
	f := newFixture(t)

	for name, token := range map[string]string{
		"empty":           "",
		"not a jws":       "garbage",
		"two parts":       "aGVhZGVy.cGF5bG9hZA",
		"junk segments":   "a.b.c",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.verifier.Verify(context.Background(), token, hospitalDid, "")
			assert.ErrorIs(t, err, ErrMalformedCredential)
		})
	}

	t.Run("missing expiry", func(t *testing.T) {
		header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256","typ":"JWT"}`))
		payload := base64.RawURLEncoding.EncodeToString([]byte(`{"iss":"` + patientDid + `","sub":"` + hospitalDid + `","iat":1700000000}`))
		token := header + "." + payload + "." + base64.RawURLEncoding.EncodeToString(make([]byte, 64))

		_, err := f.verifier.Verify(context.Background(), token, hospitalDid, "")
		assert.ErrorIs(t, err, ErrMalformedCredential)
	})
}

func TestVerifyTamperDetection(t *testing.T) {
	f := newFixture(t)

	token, _, err := f.issuer.Issue(context.Background(), patientDid, hospitalDid, defaultAccess(), 24*time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	t.Run("payload swapped for a different valid payload", func(t *testing.T) {
		payload, err := base64.RawURLEncoding.DecodeString(parts[1])
		require.NoError(t, err)

		var claims map[string]any
		require.NoError(t, json.Unmarshal(payload, &claims))

		// Widen the grant without re-signing.
		vcClaim := claims["vc"].(map[string]any)
		subject := vcClaim["credentialSubject"].(map[string]any)
		access := subject["recordAccess"].(map[string]any)
		access["scope"] = "all"

		doctored, err := json.Marshal(claims)
		require.NoError(t, err)

		forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString(doctored) + "." + parts[2]

		_, err = f.verifier.Verify(context.Background(), forged, hospitalDid, "anything")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("signature byte flipped", func(t *testing.T) {
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}

		flipped := parts[0] + "." + parts[1] + "." + string(sig)

		_, err := f.verifier.Verify(context.Background(), flipped, hospitalDid, "42")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("rewritten issuer fails the structural cross-check", func(t *testing.T) {
		payload, err := base64.RawURLEncoding.DecodeString(parts[1])
		require.NoError(t, err)

		var claims map[string]any
		require.NoError(t, json.Unmarshal(payload, &claims))

		// Pointing iss at another patient desynchronizes it from vc.issuer,
		// so this trips the structural check before signature verification.
		// Keeping both in sync would instead fail as InvalidSignature.
		claims["iss"] = "did:medbridge:patient:zzz"

		doctored, err := json.Marshal(claims)
		require.NoError(t, err)

		forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString(doctored) + "." + parts[2]

		_, err = f.verifier.Verify(context.Background(), forged, hospitalDid, "42")
		assert.ErrorIs(t, err, ErrMalformedCredential)
	})

	t.Run("tamper is logged as a security violation", func(t *testing.T) {
		assert.NotEmpty(t, f.sink.violations)
	})
}

func TestVerifyExpiration(t *testing.T) {
	f := newFixture(t)

	token, vc, err := f.issuer.Issue(context.Background(), patientDid, hospitalDid, defaultAccess(), time.Hour)
	require.NoError(t, err)

	t.Run("valid before expiry", func(t *testing.T) {
		f.verifier.now = func() time.Time { return vc.ExpiresAt.Add(-time.Minute) }
		_, err := f.verifier.Verify(context.Background(), token, hospitalDid, "42")
		assert.NoError(t, err)
	})

	t.Run("rejected exactly at expiry", func(t *testing.T) {
		f.verifier.now = func() time.Time { return vc.ExpiresAt }
		_, err := f.verifier.Verify(context.Background(), token, hospitalDid, "42")
		assert.ErrorIs(t, err, ErrExpiredCredential)
	})

	t.Run("rejected long after expiry", func(t *testing.T) {
		f.verifier.now = func() time.Time { return vc.ExpiresAt.Add(365 * 24 * time.Hour) }
		_, err := f.verifier.Verify(context.Background(), token, hospitalDid, "42")
		assert.ErrorIs(t, err, ErrExpiredCredential)
	})
}

func TestVerifyRevocation(t *testing.T) {
	f := newFixture(t)

	token, vc, err := f.issuer.Issue(context.Background(), patientDid, hospitalDid, defaultAccess(), 24*time.Hour)
	require.NoError(t, err)

	f.revocations.revoked[vc.ID] = true

	_, err = f.verifier.Verify(context.Background(), token, hospitalDid, "42")
	assert.ErrorIs(t, err, ErrRevokedCredential)

	t.Run("registry storage fault denies everything", func(t *testing.T) {
		f2 := newFixture(t)
		token2, _, err := f2.issuer.Issue(context.Background(), patientDid, hospitalDid, defaultAccess(), 24*time.Hour)
		require.NoError(t, err)

		f2.revocations.failAll = true

		_, err = f2.verifier.Verify(context.Background(), token2, hospitalDid, "42")
		assert.ErrorIs(t, err, ErrRevokedCredential)
	})
}

func TestVerifySubjectBinding(t *testing.T) {
	f := newFixture(t)

	token, _, err := f.issuer.Issue(context.Background(), patientDid, hospitalDid, defaultAccess(), 24*time.Hour)
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), token, otherDid, "42")
	assert.ErrorIs(t, err, ErrUnauthorizedHospital)
}

func TestVerifyPermissionScopes(t *testing.T) {
	f := newFixture(t)

	issueWith := func(t *testing.T, access RecordAccess) string {
		t.Helper()
		token, _, err := f.issuer.Issue(context.Background(), patientDid, hospitalDid, access, 24*time.Hour)
		require.NoError(t, err)
		return token
	}

	t.Run("scope all satisfies any record", func(t *testing.T) {
		access := defaultAccess()
		access.Scope = ScopeAll
		access.SpecificRecords = nil
		token := issueWith(t, access)

		for _, rec := range []string{"42", "99", "rec-lab-1"} {
			_, err := f.verifier.Verify(context.Background(), token, hospitalDid, rec)
			assert.NoError(t, err, "record %s", rec)
		}
	})

	t.Run("scope specific is exact membership", func(t *testing.T) {
		token := issueWith(t, defaultAccess())

		_, err := f.verifier.Verify(context.Background(), token, hospitalDid, "42")
		assert.NoError(t, err)

		_, err = f.verifier.Verify(context.Background(), token, hospitalDid, "43")
		assert.ErrorIs(t, err, ErrInsufficientPermissions)
	})

	t.Run("scope category follows the record's category", func(t *testing.T) {
		access := defaultAccess()
		access.Scope = ScopeCategory
		access.SpecificRecords = nil
		access.Categories = []string{"lab-results"}
		token := issueWith(t, access)

		_, err := f.verifier.Verify(context.Background(), token, hospitalDid, "rec-lab-1")
		assert.NoError(t, err)

		_, err = f.verifier.Verify(context.Background(), token, hospitalDid, "rec-img-1")
		assert.ErrorIs(t, err, ErrInsufficientPermissions)

		t.Run("unknown record denies", func(t *testing.T) {
			_, err := f.verifier.Verify(context.Background(), token, hospitalDid, "rec-nope")
			assert.ErrorIs(t, err, ErrInsufficientPermissions)
		})
	})

	t.Run("no requested record skips the permission check", func(t *testing.T) {
		token := issueWith(t, defaultAccess())
		_, err := f.verifier.Verify(context.Background(), token, hospitalDid, "")
		assert.NoError(t, err)
	})
}

func TestVerifyIdentityResolution(t *testing.T) {
	f := newFixture(t)

	// Sign with a key the resolver has never heard of.
	strangerKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	strangerDid := "did:medbridge:patient:stranger"

	issuer, err := NewIssuer(&IssuerArgs{
		Signer:      &testSigner{keys: map[string]*ecdsa.PrivateKey{strangerDid: strangerKey}},
		MaxLifetime: 720 * time.Hour,
	})
	require.NoError(t, err)

	token, _, err := issuer.Issue(context.Background(), strangerDid, hospitalDid, defaultAccess(), 24*time.Hour)
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), token, hospitalDid, "42")
	assert.ErrorIs(t, err, ErrIdentityResolution)
}

func TestIssueLifetimeClamp(t *testing.T) {
	f := newFixture(t)

	_, vc, err := f.issuer.Issue(context.Background(), patientDid, hospitalDid, defaultAccess(), 5000*time.Hour)
	require.NoError(t, err)

	assert.LessOrEqual(t, vc.ExpiresAt.Sub(vc.IssuedAt), 720*time.Hour)

	t.Run("zero lifetime falls back to the maximum", func(t *testing.T) {
		_, vc, err := f.issuer.Issue(context.Background(), patientDid, hospitalDid, defaultAccess(), 0)
		require.NoError(t, err)
		assert.Equal(t, 720*time.Hour, vc.ExpiresAt.Sub(vc.IssuedAt))
	})
}

func TestIssueUnknownIdentity(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.issuer.Issue(context.Background(), "did:medbridge:patient:nobody", hospitalDid, defaultAccess(), 24*time.Hour)
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}
