package credential

import (
	"context"

	"github.com/medbridge-health/medbridge/models"
	"gorm.io/gorm"
)

// GormRecordDirectory resolves record ids to categories from the record
// metadata table.
type GormRecordDirectory struct {
	db *gorm.DB
}

func NewGormRecordDirectory(db *gorm.DB) *GormRecordDirectory {
	return &GormRecordDirectory{db: db}
}

func (d *GormRecordDirectory) Category(ctx context.Context, recordID string) (string, error) {
	var meta models.MedicalRecordMeta
	if err := d.db.WithContext(ctx).First(&meta, models.MedicalRecordMeta{RecordID: recordID}).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", err
	}
	return meta.Category, nil
}
