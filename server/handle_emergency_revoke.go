package server

import (
	"github.com/labstack/echo/v4"
	"github.com/medbridge-health/medbridge/audit"
	"github.com/medbridge-health/medbridge/internal/helpers"
	"github.com/medbridge-health/medbridge/models"
)

type OrgMedbridgeEmergencyRevokeRequest struct {
	ConsentID string `json:"consentId" validate:"required"`
}

// Early revocation of an emergency grant. The record stays on file; only
// RevokedAt is set.
func (s *Server) handleEmergencyRevoke(e echo.Context) error {
	hospital := e.Get("hospital").(*models.Hospital)

	var request OrgMedbridgeEmergencyRevokeRequest

	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "org.medbridge.emergency.revokeConsent", "error", err)
		return helpers.ServerError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		return helpers.InputError(e, nil)
	}

	if err := s.emrecords.RevokeEarly(e.Request().Context(), request.ConsentID); err != nil {
		s.logger.Error("error revoking emergency consent", "consentId", request.ConsentID, "error", err)
		return helpers.ServerError(e, nil)
	}

	s.audits.LogEvent(e.Request().Context(), audit.Event{
		Kind:     "emergency.revoked",
		Severity: audit.SeverityWarning,
		ActorDid: hospital.Did,
		Outcome:  "revoked",
		Detail: map[string]any{
			"consentId": request.ConsentID,
		},
	})

	return e.JSON(200, map[string]bool{"revoked": true})
}
