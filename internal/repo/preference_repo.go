package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-translingo-backend/internal/domain"
)

// GetPreference returns the entry stored under key, or ErrNotFound.
func GetPreference(ctx context.Context, db *gorm.DB, key string) (*domain.Preference, error) {
	var p domain.Preference
	if err := db.WithContext(ctx).Where("key = ?", key).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// SetPreference writes value under key, replacing any previous value.
func SetPreference(ctx context.Context, db *gorm.DB, key, value string) error {
	p := &domain.Preference{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(p).Error
}

// DeletePreference removes key. Deleting an absent key is not an error.
func DeletePreference(ctx context.Context, db *gorm.DB, key string) error {
	return db.WithContext(ctx).Where("key = ?", key).Delete(&domain.Preference{}).Error
}
