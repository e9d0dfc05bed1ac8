package server

import (
	"errors"
	"time"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/labstack/echo/v4"
	"github.com/medbridge-health/medbridge/emergency"
	"github.com/medbridge-health/medbridge/internal/helpers"
	"github.com/medbridge-health/medbridge/internal/metrics"
	"github.com/medbridge-health/medbridge/models"
)

type OrgMedbridgeEmergencyRequestRequest struct {
	PatientDid              string               `json:"patientDid" validate:"required,medbridge-did"`
	EmergencyType           string               `json:"emergencyType" validate:"required"`
	MedicalJustification    string               `json:"medicalJustification" validate:"required"`
	PatientContactAttempted bool                 `json:"patientContactAttempted"`
	RequestedDurationHours  int                  `json:"requestedDurationHours" validate:"required"`
	RequesterStaffID        string               `json:"requesterStaffId" validate:"required"`
	PrimaryPhysician        emergency.Personnel  `json:"primaryPhysician"`
	SecondaryAuthorizer     emergency.Personnel  `json:"secondaryAuthorizer"`
	NextOfKin               *emergency.NextOfKin `json:"nextOfKin,omitempty"`
}

type OrgMedbridgeEmergencyRequestResponse struct {
	Success             bool            `json:"success"`
	ConsentID           string          `json:"consentId,omitempty"`
	TemporaryCredential string          `json:"temporaryCredential,omitempty"`
	ExpiresAt           string          `json:"expiresAt,omitempty"`
	Limitations         []string        `json:"limitations,omitempty"`
	Error               string          `json:"error,omitempty"`
	NextOfKin           map[string]bool `json:"nextOfKin,omitempty"`
}

func (s *Server) handleEmergencyRequest(e echo.Context) error {
	hospital := e.Get("hospital").(*models.Hospital)

	var body OrgMedbridgeEmergencyRequestRequest

	if err := e.Bind(&body); err != nil {
		s.logger.Error("error receiving request", "endpoint", "org.medbridge.emergency.requestAccess", "error", err)
		return helpers.ServerError(e, nil)
	}

	if err := e.Validate(body); err != nil {
		var verr ValidationError
		if errors.As(err, &verr) {
			return helpers.InputError(e, to.StringPtr("Invalid"+verr.Field))
		}
		return helpers.InputError(e, nil)
	}

	// The authenticated hospital is the grantee; a request cannot name a
	// different one.
	request := emergency.Request{
		PatientDid:              body.PatientDid,
		HospitalDid:             hospital.Did,
		EmergencyType:           body.EmergencyType,
		MedicalJustification:    body.MedicalJustification,
		PatientContactAttempted: body.PatientContactAttempted,
		RequestedDuration:       time.Duration(body.RequestedDurationHours) * time.Hour,
		RequesterStaffID:        body.RequesterStaffID,
		PrimaryPhysician:        body.PrimaryPhysician,
		SecondaryAuthorizer:     body.SecondaryAuthorizer,
		NextOfKin:               body.NextOfKin,
	}

	grant, err := s.authority.Grant(e.Request().Context(), &request)
	if err != nil {
		reason := emergencyReason(err)
		metrics.EmergencyGrants.WithLabelValues(reason).Inc()
		return e.JSON(403, OrgMedbridgeEmergencyRequestResponse{
			Success: false,
			Error:   reason,
		})
	}

	metrics.EmergencyGrants.WithLabelValues("granted").Inc()

	return e.JSON(200, OrgMedbridgeEmergencyRequestResponse{
		Success:             true,
		ConsentID:           grant.ConsentID,
		TemporaryCredential: grant.TemporaryCredential,
		ExpiresAt:           grant.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		Limitations:         grant.Limitations,
		NextOfKin: map[string]bool{
			"attempted": grant.NextOfKin.Attempted,
			"contacted": grant.NextOfKin.Contacted,
			"consented": grant.NextOfKin.ConsentObtained,
		},
	})
}

func emergencyReason(err error) string {
	for _, sentinel := range []error{
		emergency.ErrInvalidEmergencyType,
		emergency.ErrInsufficientJustification,
		emergency.ErrPatientContactNotAttempted,
		emergency.ErrDurationExceeded,
		emergency.ErrAuthorizerMismatch,
		emergency.ErrDuplicateAuthorizer,
		emergency.ErrUnqualifiedRole,
		emergency.ErrAuthorizerNotOnDuty,
		emergency.ErrPersistenceFailure,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "EmergencyRequestFailed"
}
