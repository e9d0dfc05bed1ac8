package server

import (
	"fmt"
	"time"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/labstack/echo/v4"
	"github.com/medbridge-health/medbridge/internal/helpers"
	"github.com/medbridge-health/medbridge/models"
	"gorm.io/gorm"
)

type OrgMedbridgeConsentRequestAuthorizationRequest struct {
	PatientDid string `json:"patientDid" validate:"required,medbridge-did"`
}

// A hospital asks the patient to approve issuance. The code goes to the
// patient's phone, never to the caller; the patient hands it to the clinician
// in person, which is what makes presenting it back meaningful.
func (s *Server) handleConsentRequestAuthorization(e echo.Context) error {
	hospital := e.Get("hospital").(*models.Hospital)

	var request OrgMedbridgeConsentRequestAuthorizationRequest

	if err := e.Bind(&request); err != nil {
		s.logger.Error("error receiving request", "endpoint", "org.medbridge.consent.requestAuthorization", "error", err)
		return helpers.ServerError(e, nil)
	}

	if err := e.Validate(request); err != nil {
		return helpers.InputError(e, to.StringPtr("InvalidPatientDid"))
	}

	var patient models.PatientIdentity
	if err := s.db.First(&patient, models.PatientIdentity{Did: request.PatientDid}).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return helpers.InputError(e, to.StringPtr("IdentityNotFound"))
		}
		s.logger.Error("error looking up patient", "error", err)
		return helpers.ServerError(e, nil)
	}

	code := fmt.Sprintf("%s-%s", helpers.RandomVarchar(5), helpers.RandomVarchar(5))
	now := time.Now().UTC()

	auth := models.ConsentAuthorization{
		Code:        code,
		PatientDid:  patient.Did,
		HospitalDid: hospital.Did,
		CreatedAt:   now,
		ExpiresAt:   now.Add(10 * time.Minute),
	}

	if err := s.db.Create(&auth).Error; err != nil {
		s.logger.Error("error storing consent authorization", "error", err)
		return helpers.ServerError(e, nil)
	}

	body := fmt.Sprintf(
		"%s is requesting your consent to access medical records. If you approve, give the clinician this code: %s. It expires in 10 minutes.",
		hospital.Name, code,
	)

	if err := s.notifier.SendSMS(patient.Phone, body); err != nil {
		s.logger.Error("error sending authorization code", "error", err)
		return helpers.ServerError(e, nil)
	}

	return e.NoContent(200)
}
