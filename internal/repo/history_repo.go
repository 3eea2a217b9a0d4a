package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-translingo-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// Newest day first, then latest write within the day.
const historyOrder = "date desc, updated_at desc"

// UpsertHistory inserts rec, or replaces the text, pair and date of the row
// that already carries rec.ID. The favorite flag of an existing row is kept,
// where a plain REPLACE would reset it.
func UpsertHistory(ctx context.Context, db *gorm.DB, rec *domain.HistoryRecord) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"original_text", "translated_text",
				"source_language_code", "target_language_code",
				"date", "updated_at",
			}),
		}).
		Create(rec).Error
}

// GetHistory fetches a single record by id, or ErrNotFound.
func GetHistory(ctx context.Context, db *gorm.DB, id int64) (*domain.HistoryRecord, error) {
	var rec domain.HistoryRecord
	if err := db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListHistory returns every record, newest date first.
func ListHistory(ctx context.Context, db *gorm.DB) ([]domain.HistoryRecord, error) {
	var out []domain.HistoryRecord
	err := db.WithContext(ctx).Order(historyOrder).Find(&out).Error
	return out, err
}

// CountHistory returns the number of stored records.
func CountHistory(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.HistoryRecord{}).Count(&total).Error
	return total, err
}

// ListHistoryPage returns a page of records, newest date first.
// The caller computes offset and limit (e.g., (page-1)*pageSize).
func ListHistoryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.HistoryRecord, error) {
	var out []domain.HistoryRecord
	err := db.WithContext(ctx).
		Order(historyOrder).
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListFavorites returns the records flagged as favorite, newest date first.
func ListFavorites(ctx context.Context, db *gorm.DB) ([]domain.HistoryRecord, error) {
	var out []domain.HistoryRecord
	err := db.WithContext(ctx).
		Where("is_favorite = ?", true).
		Order(historyOrder).
		Find(&out).Error
	return out, err
}

// ToggleFavorite flips is_favorite in place. It returns ErrNotFound when no
// row carries id.
func ToggleFavorite(ctx context.Context, db *gorm.DB, id int64) error {
	res := db.WithContext(ctx).
		Model(&domain.HistoryRecord{}).
		Where("id = ?", id).
		Update("is_favorite", gorm.Expr("NOT is_favorite"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteHistory removes the row matching every persisted column of rec.
// A stale copy (for example one whose favorite flag changed since it was
// read) matches nothing and yields ErrNotFound.
func DeleteHistory(ctx context.Context, db *gorm.DB, rec domain.HistoryRecord) error {
	res := db.WithContext(ctx).
		Where("id = ? AND original_text = ? AND translated_text = ?", rec.ID, rec.OriginalText, rec.TranslatedText).
		Where("source_language_code = ? AND target_language_code = ?", rec.SourceLanguageCode, rec.TargetLanguageCode).
		Where("is_favorite = ? AND date = ?", rec.IsFavorite, rec.Date).
		Delete(&domain.HistoryRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
