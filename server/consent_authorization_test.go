package server

import (
	"testing"
	"time"

	"github.com/medbridge-health/medbridge/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newAuthDb(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ConsentAuthorization{}))

	return db
}

func seedAuthorization(t *testing.T, db *gorm.DB, code string, expiresAt time.Time) {
	t.Helper()

	require.NoError(t, db.Create(&models.ConsentAuthorization{
		Code:        code,
		PatientDid:  "did:medbridge:patient:abc",
		HospitalDid: "did:medbridge:hospital:xyz",
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}).Error)
}

func TestClaimConsentAuthorization(t *testing.T) {
	t.Run("valid code claims exactly once", func(t *testing.T) {
		db := newAuthDb(t)
		seedAuthorization(t, db, "AB1CD-EF2GH", time.Now().UTC().Add(10*time.Minute))

		ok, err := claimConsentAuthorization(db, "AB1CD-EF2GH", "did:medbridge:patient:abc", "did:medbridge:hospital:xyz")
		require.NoError(t, err)
		assert.True(t, ok)

		// Replaying the same code must not mint a second credential.
		ok, err = claimConsentAuthorization(db, "AB1CD-EF2GH", "did:medbridge:patient:abc", "did:medbridge:hospital:xyz")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown code", func(t *testing.T) {
		db := newAuthDb(t)

		ok, err := claimConsentAuthorization(db, "NO-SUCH", "did:medbridge:patient:abc", "did:medbridge:hospital:xyz")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired code", func(t *testing.T) {
		db := newAuthDb(t)
		seedAuthorization(t, db, "AB1CD-EF2GH", time.Now().UTC().Add(-time.Minute))

		ok, err := claimConsentAuthorization(db, "AB1CD-EF2GH", "did:medbridge:patient:abc", "did:medbridge:hospital:xyz")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("code is bound to the hospital it was requested for", func(t *testing.T) {
		db := newAuthDb(t)
		seedAuthorization(t, db, "AB1CD-EF2GH", time.Now().UTC().Add(10*time.Minute))

		ok, err := claimConsentAuthorization(db, "AB1CD-EF2GH", "did:medbridge:patient:abc", "did:medbridge:hospital:other")
		require.NoError(t, err)
		assert.False(t, ok)

		// The failed claim must not have burned the code for the right
		// hospital.
		ok, err = claimConsentAuthorization(db, "AB1CD-EF2GH", "did:medbridge:patient:abc", "did:medbridge:hospital:xyz")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("code is bound to the patient", func(t *testing.T) {
		db := newAuthDb(t)
		seedAuthorization(t, db, "AB1CD-EF2GH", time.Now().UTC().Add(10*time.Minute))

		ok, err := claimConsentAuthorization(db, "AB1CD-EF2GH", "did:medbridge:patient:zzz", "did:medbridge:hospital:xyz")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
