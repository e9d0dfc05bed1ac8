package emergency

import (
	"errors"
	"time"
)

const (
	TypeLifeThreatening    = "LIFE_THREATENING"
	TypeUnconsciousPatient = "UNCONSCIOUS_PATIENT"
	TypeCriticalCare       = "CRITICAL_CARE"
	TypeSurgeryRequired    = "SURGERY_REQUIRED"
	TypeMentalHealthCrisis = "MENTAL_HEALTH_CRISIS"
)

const (
	RolePhysician       = "PHYSICIAN"
	RoleSurgeon         = "SURGEON"
	RoleEmergencyDoctor = "EMERGENCY_DOCTOR"
	RoleChiefResident   = "CHIEF_RESIDENT"
)

// MaxDuration is the legal ceiling on an emergency grant. It is a hard bound
// of the protocol, not a tunable.
const MaxDuration = 24 * time.Hour

// MinJustificationLen is the shortest acceptable medical justification.
const MinJustificationLen = 50

// Gate failures are all named. This path substitutes for patient consent, so
// a reviewer must be able to tell exactly which condition was not met.
var (
	ErrInvalidEmergencyType       = errors.New("InvalidEmergencyType")
	ErrInsufficientJustification  = errors.New("InsufficientJustification")
	ErrPatientContactNotAttempted = errors.New("PatientContactNotAttempted")
	ErrDurationExceeded           = errors.New("DurationExceeded")
	ErrAuthorizerMismatch         = errors.New("AuthorizerMismatch")
	ErrDuplicateAuthorizer        = errors.New("DuplicateAuthorizer")
	ErrUnqualifiedRole            = errors.New("UnqualifiedRole")
	ErrAuthorizerNotOnDuty        = errors.New("AuthorizerNotOnDuty")
	ErrPersistenceFailure         = errors.New("PersistenceFailure")
)

type Personnel struct {
	ID            string `json:"id" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Role          string `json:"role" validate:"required"`
	LicenseNumber string `json:"licenseNumber" validate:"required"`
	Department    string `json:"department"`
}

type NextOfKin struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
}

type Request struct {
	PatientDid              string        `json:"patientDid" validate:"required,medbridge-did"`
	HospitalDid             string        `json:"hospitalDid" validate:"required,medbridge-did"`
	EmergencyType           string        `json:"emergencyType" validate:"required"`
	MedicalJustification    string        `json:"medicalJustification" validate:"required"`
	PatientContactAttempted bool          `json:"patientContactAttempted"`
	RequestedDuration       time.Duration `json:"requestedDuration" validate:"required"`
	RequesterStaffID        string        `json:"requesterStaffId" validate:"required"`
	PrimaryPhysician        Personnel     `json:"primaryPhysician"`
	SecondaryAuthorizer     Personnel     `json:"secondaryAuthorizer"`
	NextOfKin               *NextOfKin    `json:"nextOfKin,omitempty"`
}

// OutreachOutcome records how next-of-kin contact went. It is evidence for
// the post-incident review, never a gate.
type OutreachOutcome struct {
	Attempted        bool   `json:"attempted"`
	Contacted        bool   `json:"contacted"`
	Channel          string `json:"channel,omitempty"`
	ConsentObtained  bool   `json:"consentObtained"`
	VerificationCode string `json:"-"`
	Note             string `json:"note,omitempty"`
}

type Grant struct {
	ConsentID           string          `json:"consentId"`
	TemporaryCredential string          `json:"temporaryCredential"`
	ExpiresAt           time.Time       `json:"expiresAt"`
	Limitations         []string        `json:"limitations"`
	NextOfKin           OutreachOutcome `json:"nextOfKin"`
}

// TemporaryCredential is the emergency-origin artifact. It is deliberately a
// base64 JSON object rather than a signed JWT so relying parties can never
// confuse it with a patient-issued credential.
type TemporaryCredential struct {
	ID                       string    `json:"id"`
	Type                     string    `json:"type"`
	Issuer                   string    `json:"issuer"`
	Subject                  string    `json:"subject"`
	IssuedAt                 time.Time `json:"issuedAt"`
	ExpiresAt                time.Time `json:"expiresAt"`
	GrantedToPersonnel       []string  `json:"grantedToPersonnel"`
	PatientID                string    `json:"patientId"`
	AccessLevel              string    `json:"accessLevel"`
	Limitations              []string  `json:"limitations"`
	EmergencyConsentRecordID string    `json:"emergencyConsentRecordId"`
}

func validEmergencyType(t string) bool {
	switch t {
	case TypeLifeThreatening, TypeUnconsciousPatient, TypeCriticalCare, TypeSurgeryRequired, TypeMentalHealthCrisis:
		return true
	}
	return false
}

func qualifiedRole(role string) bool {
	switch role {
	case RolePhysician, RoleSurgeon, RoleEmergencyDoctor, RoleChiefResident:
		return true
	}
	return false
}
