package revocation

import (
	"context"

	"github.com/medbridge-health/medbridge/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Add(ctx context.Context, entry *models.RevocationEntry) error {
	// DoNothing keeps the first revocation's timestamp and actor.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "credential_id"}},
		DoNothing: true,
	}).Create(entry).Error
}

func (s *GormStore) Has(ctx context.Context, credentialID string) (bool, error) {
	type Result struct {
		Found bool
	}
	var result Result
	if err := s.db.WithContext(ctx).Raw("SELECT EXISTS(SELECT 1 FROM revocation_entries WHERE credential_id = ?) AS found", credentialID).Scan(&result).Error; err != nil {
		return false, err
	}
	return result.Found, nil
}
