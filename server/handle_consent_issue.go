package server

import (
	"errors"
	"time"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/labstack/echo/v4"
	"github.com/medbridge-health/medbridge/audit"
	"github.com/medbridge-health/medbridge/credential"
	"github.com/medbridge-health/medbridge/internal/helpers"
	"github.com/medbridge-health/medbridge/models"
)

type OrgMedbridgeConsentIssueRequest struct {
	PatientDid        string                  `json:"patientDid" validate:"required,medbridge-did"`
	AuthorizationCode string                  `json:"authorizationCode" validate:"required"`
	RecordAccess      credential.RecordAccess `json:"recordAccess"`
	LifetimeHours     int                     `json:"lifetimeHours"`
}

type OrgMedbridgeConsentIssueResponse struct {
	Credential   string    `json:"credential"`
	CredentialID string    `json:"credentialId"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (s *Server) handleConsentIssue(e echo.Context) error {
	hospital := e.Get("hospital").(*models.Hospital)

	var request OrgMedbridgeConsentIssueRequest

	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "org.medbridge.consent.issueCredential", "error", err)
		return helpers.ServerError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		var verr ValidationError
		if errors.As(err, &verr) {
			return helpers.InputError(e, to.StringPtr("Invalid"+verr.Field))
		}
		return helpers.InputError(e, nil)
	}

	// The session only proves who the hospital is. The patient's approval is
	// the authorization code delivered to their phone; without it the vault
	// must not sign in the patient's name.
	ok, err := claimConsentAuthorization(s.db, request.AuthorizationCode, request.PatientDid, hospital.Did)
	if err != nil {
		s.logger.Error("error claiming consent authorization", "error", err)
		return helpers.ServerError(e, nil)
	}
	if !ok {
		s.audits.LogSecurityViolation(e.Request().Context(), audit.Event{
			Kind:       "consent.issuance_unauthorized",
			Severity:   audit.SeverityHigh,
			ActorDid:   hospital.Did,
			SubjectDid: request.PatientDid,
			Outcome:    "InvalidAuthorizationCode",
		})
		return helpers.AuthError(e, to.StringPtr("InvalidAuthorizationCode"))
	}

	lifetime := time.Duration(request.LifetimeHours) * time.Hour

	token, vc, err := s.issuer.Issue(e.Request().Context(), request.PatientDid, hospital.Did, request.RecordAccess, lifetime)
	if err != nil {
		if errors.Is(err, credential.ErrIdentityNotFound) {
			return helpers.InputError(e, to.StringPtr("IdentityNotFound"))
		}
		if errors.Is(err, credential.ErrMalformedCredential) {
			return helpers.InputError(e, to.StringPtr("InvalidRecordAccess"))
		}
		s.logger.Error("error issuing credential", "endpoint", "org.medbridge.consent.issueCredential", "error", err)
		return helpers.ServerError(e, nil)
	}

	// Issuance itself has no persistence side effects; the index row is the
	// server's own bookkeeping for revocation and dashboards.
	row := models.ConsentCredential{
		Jti:        vc.ID,
		IssuerDid:  vc.Issuer,
		SubjectDid: vc.Subject,
		Cid:        vc.Access.Cid,
		Scope:      string(vc.Access.Scope),
		IssuedAt:   vc.IssuedAt,
		ExpiresAt:  vc.ExpiresAt,
	}
	if err := s.db.Create(&row).Error; err != nil {
		s.logger.Error("error indexing issued credential", "error", err)
		return helpers.ServerError(e, nil)
	}

	return e.JSON(200, OrgMedbridgeConsentIssueResponse{
		Credential:   token,
		CredentialID: vc.ID,
		ExpiresAt:    vc.ExpiresAt,
	})
}
