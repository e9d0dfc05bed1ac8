package server

import (
	"errors"
	"time"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/labstack/echo/v4"
	"github.com/medbridge-health/medbridge/credential"
	"github.com/medbridge-health/medbridge/internal/helpers"
	"github.com/medbridge-health/medbridge/internal/metrics"
	"github.com/medbridge-health/medbridge/models"
)

type OrgMedbridgeConsentVerifyRequest struct {
	Credential        string `json:"credential" validate:"required"`
	RequestedRecordID string `json:"requestedRecordId"`
}

type OrgMedbridgeConsentVerifyResponse struct {
	Permissions    permissionsView `json:"permissions"`
	DecryptionKey  string          `json:"decryptionKey"`
	ContentAddress string          `json:"contentAddress"`
}

type permissionsView struct {
	Scope           string    `json:"scope"`
	SpecificRecords []string  `json:"specificRecords,omitempty"`
	Categories      []string  `json:"categories,omitempty"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// The relying hospital is the authenticated session; the credential's subject
// binding is checked against it, never against a caller-supplied DID.
func (s *Server) handleConsentVerify(e echo.Context) error {
	hospital := e.Get("hospital").(*models.Hospital)

	var request OrgMedbridgeConsentVerifyRequest

	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "org.medbridge.consent.verifyCredential", "error", err)
		return helpers.ServerError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		return helpers.InputError(e, to.StringPtr("MalformedCredential"))
	}

	result, err := s.verifier.Verify(e.Request().Context(), request.Credential, hospital.Did, request.RequestedRecordID)
	if err != nil {
		reason := verifyReason(err)
		metrics.VerificationOutcomes.WithLabelValues(reason).Inc()
		return helpers.InputError(e, to.StringPtr(reason))
	}

	metrics.VerificationOutcomes.WithLabelValues("granted").Inc()

	return e.JSON(200, OrgMedbridgeConsentVerifyResponse{
		Permissions: permissionsView{
			Scope:           string(result.Permissions.Scope),
			SpecificRecords: result.Permissions.SpecificRecords,
			Categories:      result.Permissions.Categories,
			ExpiresAt:       result.Permissions.ExpiresAt,
		},
		DecryptionKey:  result.DecryptionKey,
		ContentAddress: result.ContentAddress,
	})
}

// verifyReason collapses a verification error to the short reason string a
// relying party sees. No stack traces, no credential contents.
func verifyReason(err error) string {
	for _, sentinel := range []error{
		credential.ErrMalformedCredential,
		credential.ErrInvalidSignature,
		credential.ErrExpiredCredential,
		credential.ErrRevokedCredential,
		credential.ErrUnauthorizedHospital,
		credential.ErrInsufficientPermissions,
		credential.ErrIdentityResolution,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "VerificationFailed"
}
