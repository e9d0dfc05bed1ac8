package emergency

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/medbridge-health/medbridge/audit"
	"github.com/medbridge-health/medbridge/internal/helpers"
	"github.com/medbridge-health/medbridge/models"
)

// Records persists emergency consent records. Creation must be durable before
// any credential is minted.
type Records interface {
	CreateEmergencyConsentRecord(ctx context.Context, record *models.EmergencyConsentRecord) error
}

// StaffDirectory is the external on-duty lookup. A nil row with nil error
// means the staff id is unknown.
type StaffDirectory interface {
	GetHospitalStaffByStaffID(ctx context.Context, staffID string) (*models.HospitalStaff, error)
}

// ContactBook returns only verified next-of-kin relationships on file.
type ContactBook interface {
	GetVerifiedPatientEmergencyContacts(ctx context.Context, patientDid string) ([]models.EmergencyContact, error)
}

// Notifier delivers next-of-kin outreach. Failures never block a grant.
type Notifier interface {
	SendEmail(to, subject, body string) error
	SendSMS(to, body string) error
}

// Authority runs the five-gate dual-authorization protocol that substitutes
// for patient consent. Gates are strictly sequential for one request;
// independent requests proceed concurrently with no shared state.
type Authority struct {
	records   Records
	staff     StaffDirectory
	contacts  ContactBook
	notifier  Notifier
	audits    audit.Sink
	logger    *slog.Logger
	systemDid string
	now       func() time.Time
}

type Args struct {
	Records   Records
	Staff     StaffDirectory
	Contacts  ContactBook
	Notifier  Notifier
	Audits    audit.Sink
	Logger    *slog.Logger
	SystemDid string
}

func NewAuthority(args *Args) (*Authority, error) {
	if args.Records == nil || args.Staff == nil || args.Audits == nil {
		return nil, fmt.Errorf("records, staff directory, and audits must be set")
	}

	if args.SystemDid == "" {
		return nil, fmt.Errorf("system did must be set")
	}

	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	}

	return &Authority{
		records:   args.Records,
		staff:     args.Staff,
		contacts:  args.Contacts,
		notifier:  args.Notifier,
		audits:    args.Audits,
		logger:    args.Logger,
		systemDid: args.SystemDid,
		now:       time.Now,
	}, nil
}

// Grant evaluates every gate in order and mints a temporary credential only
// when all of them pass. There is no partial grant: the first failing gate
// ends the request with a named error and a security-violation audit entry.
func (a *Authority) Grant(ctx context.Context, req *Request) (*Grant, error) {
	if err := a.validateConditions(req); err != nil {
		a.violation(ctx, req, "condition_validation", err)
		return nil, err
	}

	if err := a.checkDualAuthorization(ctx, req); err != nil {
		a.violation(ctx, req, "dual_authorization", err)
		return nil, err
	}

	outreach := a.contactNextOfKin(ctx, req)

	limitations := LimitationsFor(req.EmergencyType)

	record, err := a.createRecord(ctx, req, limitations, outreach)
	if err != nil {
		a.violation(ctx, req, "record_creation", err)
		return nil, err
	}

	cred, encoded, err := a.mintTemporaryCredential(req, record, limitations)
	if err != nil {
		a.violation(ctx, req, "credential_issuance", err)
		return nil, err
	}

	// Emergency grants are audited even on success; they are sensitive by
	// nature.
	a.audits.LogEvent(ctx, audit.Event{
		Kind:       "emergency.granted",
		Severity:   audit.SeverityWarning,
		ActorDid:   req.HospitalDid,
		SubjectDid: req.PatientDid,
		Outcome:    "granted",
		Detail: map[string]any{
			"consentId":     record.ID,
			"emergencyType": req.EmergencyType,
			"accessLevel":   cred.AccessLevel,
			"primary":       req.PrimaryPhysician.ID,
			"secondary":     req.SecondaryAuthorizer.ID,
			"expiresAt":     record.ExpiresAt,
		},
	})

	return &Grant{
		ConsentID:           record.ID,
		TemporaryCredential: encoded,
		ExpiresAt:           record.ExpiresAt,
		Limitations:         limitations,
		NextOfKin:           outreach,
	}, nil
}

// Gate 1: the request itself must describe a legitimate emergency.
func (a *Authority) validateConditions(req *Request) error {
	if !validEmergencyType(req.EmergencyType) {
		return fmt.Errorf("%w: %q", ErrInvalidEmergencyType, req.EmergencyType)
	}

	if len(req.MedicalJustification) < MinJustificationLen {
		return fmt.Errorf("%w: justification must be at least %d characters", ErrInsufficientJustification, MinJustificationLen)
	}

	if !req.PatientContactAttempted {
		return ErrPatientContactNotAttempted
	}

	if req.RequestedDuration <= 0 || req.RequestedDuration > MaxDuration {
		return fmt.Errorf("%w: requested %s, maximum %s", ErrDurationExceeded, req.RequestedDuration, MaxDuration)
	}

	return nil
}

// Gate 2: two distinct, qualified, on-duty humans, and the primary must be
// the authenticated requester.
func (a *Authority) checkDualAuthorization(ctx context.Context, req *Request) error {
	if req.PrimaryPhysician.ID != req.RequesterStaffID {
		return fmt.Errorf("%w: primary physician must be the requesting clinician", ErrAuthorizerMismatch)
	}

	if req.PrimaryPhysician.ID == req.SecondaryAuthorizer.ID {
		return fmt.Errorf("%w: primary and secondary authorizers must be distinct", ErrDuplicateAuthorizer)
	}

	if !qualifiedRole(req.PrimaryPhysician.Role) {
		return fmt.Errorf("%w: primary role %q", ErrUnqualifiedRole, req.PrimaryPhysician.Role)
	}

	if !qualifiedRole(req.SecondaryAuthorizer.Role) {
		return fmt.Errorf("%w: secondary role %q", ErrUnqualifiedRole, req.SecondaryAuthorizer.Role)
	}

	primary, err := a.lookupStaff(ctx, req.PrimaryPhysician.ID)
	if err != nil {
		return err
	}

	secondary, err := a.lookupStaff(ctx, req.SecondaryAuthorizer.ID)
	if err != nil {
		return err
	}

	if !qualifiedRole(primary.Role) {
		return fmt.Errorf("%w: directory lists primary as %q", ErrUnqualifiedRole, primary.Role)
	}

	if !qualifiedRole(secondary.Role) {
		return fmt.Errorf("%w: directory lists secondary as %q", ErrUnqualifiedRole, secondary.Role)
	}

	// An administrator may stand in for the on-duty check, but only for the
	// primary authorizer. See the post-incident review policy.
	if !primary.OnDuty && !primary.Administrator {
		return fmt.Errorf("%w: primary %s", ErrAuthorizerNotOnDuty, primary.StaffID)
	}

	if !secondary.OnDuty {
		return fmt.Errorf("%w: secondary %s", ErrAuthorizerNotOnDuty, secondary.StaffID)
	}

	return nil
}

func (a *Authority) lookupStaff(ctx context.Context, staffID string) (*models.HospitalStaff, error) {
	staff, err := a.staff.GetHospitalStaffByStaffID(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("%w: staff directory lookup for %s: %v", ErrAuthorizerNotOnDuty, staffID, err)
	}

	if staff == nil || !staff.Active {
		return nil, fmt.Errorf("%w: %s is not an active staff member", ErrAuthorizerNotOnDuty, staffID)
	}

	return staff, nil
}

// Gate 3: best-effort next-of-kin outreach. Outcomes are recorded for the
// post-incident review; nothing here can fail the grant.
func (a *Authority) contactNextOfKin(ctx context.Context, req *Request) OutreachOutcome {
	if req.NextOfKin == nil {
		return OutreachOutcome{}
	}

	outcome := OutreachOutcome{Attempted: true}

	if a.contacts == nil || a.notifier == nil {
		outcome.Note = "outreach collaborators not configured"
		return outcome
	}

	contacts, err := a.contacts.GetVerifiedPatientEmergencyContacts(ctx, req.PatientDid)
	if err != nil {
		a.logger.Warn("error fetching emergency contacts", "patient", req.PatientDid, "error", err)
		outcome.Note = "contact lookup failed"
		return outcome
	}

	var match *models.EmergencyContact
	for i := range contacts {
		if contacts[i].Relationship == req.NextOfKin.Relationship && contacts[i].Name == req.NextOfKin.Name {
			match = &contacts[i]
			break
		}
	}

	if match == nil {
		outcome.Note = "relationship not on file"
		return outcome
	}

	code, err := helpers.SecureToken(4)
	if err != nil {
		outcome.Note = "could not generate verification code"
		return outcome
	}
	outcome.VerificationCode = code

	body := fmt.Sprintf(
		"Emergency access to medical records for your %s has been requested at hospital %s. Verification code: %s. Reply or call the hospital to confirm or object.",
		match.Relationship, req.HospitalDid, code,
	)

	if match.Email != "" {
		if err := a.notifier.SendEmail(match.Email, "Emergency medical record access", body); err == nil {
			outcome.Contacted = true
			outcome.Channel = "email"
			return outcome
		}
		a.logger.Warn("next-of-kin email failed, falling back to sms", "patient", req.PatientDid)
	}

	if match.Phone != "" {
		if err := a.notifier.SendSMS(match.Phone, body); err == nil {
			outcome.Contacted = true
			outcome.Channel = "sms"
			return outcome
		}
		a.logger.Warn("next-of-kin sms failed", "patient", req.PatientDid)
	}

	outcome.Note = "contact attempts failed"
	return outcome
}

// Gate 4: the consent record must exist durably before any credential does,
// because the credential back-references it.
func (a *Authority) createRecord(ctx context.Context, req *Request, limitations []string, outreach OutreachOutcome) (*models.EmergencyConsentRecord, error) {
	now := a.now().UTC()

	limitationsJSON, err := json.Marshal(limitations)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding limitations: %v", ErrPersistenceFailure, err)
	}

	record := models.EmergencyConsentRecord{
		ID:                    uuid.NewString(),
		PatientDid:            req.PatientDid,
		HospitalDid:           req.HospitalDid,
		EmergencyType:         req.EmergencyType,
		MedicalJustification:  req.MedicalJustification,
		GrantedAt:             now,
		ExpiresAt:             now.Add(req.RequestedDuration),
		PrimaryPhysicianID:    req.PrimaryPhysician.ID,
		SecondaryAuthorizerID: req.SecondaryAuthorizer.ID,
		NextOfKinContacted:    outreach.Contacted,
		NextOfKinConsented:    outreach.ConsentObtained,
		NextOfKinVerifyCode:   outreach.VerificationCode,
		Limitations:           limitationsJSON,
		AuditTrail: fmt.Sprintf(
			"%s grant authorized by %s (%s) and %s (%s) at %s",
			req.EmergencyType,
			req.PrimaryPhysician.Name, req.PrimaryPhysician.ID,
			req.SecondaryAuthorizer.Name, req.SecondaryAuthorizer.ID,
			now.Format(time.RFC3339),
		),
	}

	if err := a.records.CreateEmergencyConsentRecord(ctx, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	return &record, nil
}

// Gate 5: the temporary credential. System-issued, base64 JSON, clearly
// marked emergency-origin so relying parties branch handling.
func (a *Authority) mintTemporaryCredential(req *Request, record *models.EmergencyConsentRecord, limitations []string) (*TemporaryCredential, string, error) {
	cred := TemporaryCredential{
		ID:                       uuid.NewString(),
		Type:                     "EmergencyAccessCredential",
		Issuer:                   a.systemDid,
		Subject:                  req.HospitalDid,
		IssuedAt:                 record.GrantedAt,
		ExpiresAt:                record.ExpiresAt,
		GrantedToPersonnel:       []string{req.PrimaryPhysician.ID, req.SecondaryAuthorizer.ID},
		PatientID:                req.PatientDid,
		AccessLevel:              AccessLevelFor(req.EmergencyType),
		Limitations:              limitations,
		EmergencyConsentRecordID: record.ID,
	}

	b, err := json.Marshal(cred)
	if err != nil {
		return nil, "", fmt.Errorf("encoding temporary credential: %w", err)
	}

	return &cred, base64.StdEncoding.EncodeToString(b), nil
}

func (a *Authority) violation(ctx context.Context, req *Request, gate string, cause error) {
	a.audits.LogSecurityViolation(ctx, audit.Event{
		Kind:       "emergency." + gate,
		Severity:   audit.SeverityHigh,
		ActorDid:   req.HospitalDid,
		SubjectDid: req.PatientDid,
		Outcome:    cause.Error(),
		Detail: map[string]any{
			"emergencyType": req.EmergencyType,
			"requester":     req.RequesterStaffID,
		},
	})
}

// DecodeTemporaryCredential parses a base64 emergency credential back into
// its structured form. Relying parties use it to apply stricter handling.
func DecodeTemporaryCredential(encoded string) (*TemporaryCredential, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding temporary credential: %w", err)
	}

	var cred TemporaryCredential
	if err := json.Unmarshal(b, &cred); err != nil {
		return nil, fmt.Errorf("parsing temporary credential: %w", err)
	}

	if cred.Type != "EmergencyAccessCredential" {
		return nil, fmt.Errorf("not an emergency access credential")
	}

	return &cred, nil
}
