package server

import (
	"time"

	"github.com/medbridge-health/medbridge/models"
	"gorm.io/gorm"
)

func (s *Server) getHospitalByDid(did string) (*models.Hospital, error) {
	var hospital models.Hospital
	if err := s.db.First(&hospital, models.Hospital{Did: did}).Error; err != nil {
		return nil, err
	}
	return &hospital, nil
}

func (s *Server) getHospitalByEmail(email string) (*models.Hospital, error) {
	var hospital models.Hospital
	if err := s.db.First(&hospital, models.Hospital{Email: email}).Error; err != nil {
		return nil, err
	}
	return &hospital, nil
}

// claimConsentAuthorization burns a patient authorization code. The single
// UPDATE is the whole check: the code must exist for exactly this patient and
// hospital, be unexpired and unused. Two concurrent claims race on the
// used_at predicate and only one wins.
func claimConsentAuthorization(db *gorm.DB, code, patientDid, hospitalDid string) (bool, error) {
	now := time.Now().UTC()
	res := db.Exec(
		"UPDATE consent_authorizations SET used_at = ? WHERE code = ? AND patient_did = ? AND hospital_did = ? AND expires_at > ? AND used_at IS NULL",
		now, code, patientDid, hospitalDid, now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
