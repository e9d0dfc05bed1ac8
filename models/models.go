package models

import (
	"time"
)

type PatientIdentity struct {
	Did       string `gorm:"primaryKey"`
	CreatedAt time.Time
	Handle    string `gorm:"uniqueIndex"`
	Phone     string `gorm:"index"`
	PublicJwk []byte
	SealedJwk []byte
	KeyNonce  []byte
}

type Hospital struct {
	Did       string `gorm:"primaryKey"`
	CreatedAt time.Time
	Name      string `gorm:"uniqueIndex"`
	Email     string `gorm:"uniqueIndex"`
	Password  string
	Active    bool
}

type HospitalStaff struct {
	StaffID       string `gorm:"primaryKey"`
	HospitalDid   string `gorm:"index"`
	Name          string
	Role          string
	LicenseNumber string
	Department    string
	OnDuty        bool
	Administrator bool
	Active        bool
}

type Token struct {
	Token        string `gorm:"primaryKey"`
	Did          string `gorm:"index"`
	RefreshToken string `gorm:"index"`
	CreatedAt    time.Time
	ExpiresAt    time.Time `gorm:"index:,sort:asc"`
}

type RefreshToken struct {
	Token     string `gorm:"primaryKey"`
	Did       string `gorm:"index"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index:,sort:asc"`
}

// ConsentCredential indexes credentials this service has issued so that
// revocation and patient dashboards can find them. Verification never reads
// this table; the credential itself is the source of truth.
type ConsentCredential struct {
	Jti        string `gorm:"primaryKey"`
	IssuerDid  string `gorm:"index;index:idx_cred_issuer_subject"`
	SubjectDid string `gorm:"index;index:idx_cred_issuer_subject"`
	Cid        string `gorm:"index"`
	Scope      string
	IssuedAt   time.Time
	ExpiresAt  time.Time `gorm:"index:,sort:asc"`
	Emergency  bool
}

// ConsentAuthorization is a patient's one-time approval for a named hospital
// to be issued a consent credential. The code travels out of band to the
// patient's phone; presenting it back is what stands in for the patient's
// signature at the issuance endpoint. Single use, short lived.
type ConsentAuthorization struct {
	Code        string `gorm:"primaryKey"`
	PatientDid  string `gorm:"index"`
	HospitalDid string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	UsedAt      *time.Time
}

// RevocationEntry rows are append-only. There is no delete path anywhere in
// the codebase; once a credential id lands here it stays revoked forever.
type RevocationEntry struct {
	CredentialID string `gorm:"primaryKey"`
	RevokedAt    time.Time
	RevokedBy    string
}

type EmergencyConsentRecord struct {
	ID                    string `gorm:"primaryKey"`
	PatientDid            string `gorm:"index"`
	HospitalDid           string `gorm:"index"`
	EmergencyType         string
	MedicalJustification  string
	GrantedAt             time.Time
	ExpiresAt             time.Time `gorm:"index:,sort:asc"`
	RevokedAt             *time.Time
	PrimaryPhysicianID    string
	SecondaryAuthorizerID string
	NextOfKinContacted    bool
	NextOfKinConsented    bool
	NextOfKinVerifyCode   string
	Limitations           []byte
	AuditTrail            string
}

type EmergencyContact struct {
	ID           uint   `gorm:"primaryKey"`
	PatientDid   string `gorm:"index"`
	Name         string
	Relationship string
	Email        string
	Phone        string
	Verified     bool
}

type AuditEvent struct {
	ID         string    `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"index"`
	Kind       string    `gorm:"index"`
	Severity   string    `gorm:"index"`
	ActorDid   string    `gorm:"index"`
	SubjectDid string
	Outcome    string
	Detail     []byte
}

type Blob struct {
	Cid       []byte `gorm:"primaryKey"`
	CreatedAt time.Time
	RefCount  int
	Value     []byte
}

type MedicalRecordMeta struct {
	RecordID   string `gorm:"primaryKey"`
	PatientDid string `gorm:"index"`
	Category   string `gorm:"index"`
	Cid        string
	CreatedAt  time.Time
}
