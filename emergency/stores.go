package emergency

import (
	"context"
	"time"

	"github.com/medbridge-health/medbridge/models"
	"gorm.io/gorm"
)

type GormRecords struct {
	db *gorm.DB
}

func NewGormRecords(db *gorm.DB) *GormRecords {
	return &GormRecords{db: db}
}

func (r *GormRecords) CreateEmergencyConsentRecord(ctx context.Context, record *models.EmergencyConsentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// RevokeEarly sets RevokedAt on an active record. Records are never deleted;
// compliance requires the row to outlive the grant.
func (r *GormRecords) RevokeEarly(ctx context.Context, consentID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.EmergencyConsentRecord{}).
		Where("id = ? AND revoked_at IS NULL", consentID).
		Update("revoked_at", &now).Error
}

type GormStaffDirectory struct {
	db *gorm.DB
}

func NewGormStaffDirectory(db *gorm.DB) *GormStaffDirectory {
	return &GormStaffDirectory{db: db}
}

func (d *GormStaffDirectory) GetHospitalStaffByStaffID(ctx context.Context, staffID string) (*models.HospitalStaff, error) {
	var staff models.HospitalStaff
	if err := d.db.WithContext(ctx).First(&staff, models.HospitalStaff{StaffID: staffID}).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &staff, nil
}

type GormContactBook struct {
	db *gorm.DB
}

func NewGormContactBook(db *gorm.DB) *GormContactBook {
	return &GormContactBook{db: db}
}

func (b *GormContactBook) GetVerifiedPatientEmergencyContacts(ctx context.Context, patientDid string) ([]models.EmergencyContact, error) {
	var contacts []models.EmergencyContact
	if err := b.db.WithContext(ctx).Where("patient_did = ? AND verified = ?", patientDid, true).Find(&contacts).Error; err != nil {
		return nil, err
	}
	return contacts, nil
}
