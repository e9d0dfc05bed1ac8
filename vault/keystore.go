package vault

import (
	"context"

	"github.com/medbridge-health/medbridge/models"
	"gorm.io/gorm"
)

type GormKeyStore struct {
	db *gorm.DB
}

func NewGormKeyStore(db *gorm.DB) *GormKeyStore {
	return &GormKeyStore{db: db}
}

func (s *GormKeyStore) CreateIdentity(ctx context.Context, identity *models.PatientIdentity) error {
	return s.db.WithContext(ctx).Create(identity).Error
}

func (s *GormKeyStore) GetIdentity(ctx context.Context, did string) (*models.PatientIdentity, error) {
	var identity models.PatientIdentity
	if err := s.db.WithContext(ctx).First(&identity, models.PatientIdentity{Did: did}).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &identity, nil
}
