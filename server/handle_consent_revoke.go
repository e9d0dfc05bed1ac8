package server

import (
	"github.com/labstack/echo/v4"
	"github.com/medbridge-health/medbridge/audit"
	"github.com/medbridge-health/medbridge/internal/helpers"
	"github.com/medbridge-health/medbridge/internal/metrics"
	"github.com/medbridge-health/medbridge/models"
)

type OrgMedbridgeConsentRevokeRequest struct {
	CredentialID string `json:"credentialId" validate:"required"`
}

func (s *Server) handleConsentRevoke(e echo.Context) error {
	hospital := e.Get("hospital").(*models.Hospital)

	var request OrgMedbridgeConsentRevokeRequest

	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "org.medbridge.consent.revokeCredential", "error", err)
		return helpers.ServerError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		return helpers.InputError(e, nil)
	}

	if err := s.registry.Revoke(e.Request().Context(), request.CredentialID, hospital.Did); err != nil {
		s.logger.Error("error revoking credential", "credentialId", request.CredentialID, "error", err)
		return helpers.ServerError(e, nil)
	}

	metrics.Revocations.Inc()

	s.audits.LogEvent(e.Request().Context(), audit.Event{
		Kind:     "consent.revoked",
		Severity: audit.SeverityInfo,
		ActorDid: hospital.Did,
		Outcome:  "revoked",
		Detail: map[string]any{
			"credentialId": request.CredentialID,
		},
	})

	return e.JSON(200, map[string]bool{"revoked": true})
}
