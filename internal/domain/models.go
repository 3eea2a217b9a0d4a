// Package domain defines the persistence models and shared value types of the
// translation service: translation history records, user preferences, and the
// Language value. The GORM-mapped types form the core data layer.
package domain

import (
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DateLayout is the calendar-day format stored in HistoryRecord.Date.
const DateLayout = "2006-01-02"

// Language is an immutable (code, display name) pair. Codes come from the
// language catalog; a code outside the catalog never becomes a Language.
type Language struct {
	Code string `json:"code" example:"es"`
	Name string `json:"name" example:"Spanish"`
}

// HistoryRecord is one persisted translation.
//
// Fields:
//   - ID: deterministic hash of the language pair and the lowercased texts
//     (see HistoryID); never derived from insertion order.
//   - OriginalText / TranslatedText: the input and the engine output.
//   - SourceLanguageCode / TargetLanguageCode: catalog codes of the pair.
//   - IsFavorite: toggled in place by the favorites flow.
//   - Date: calendar day of the save in DateLayout form.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type HistoryRecord struct {
	ID                 int64     `json:"id"                   gorm:"primaryKey;autoIncrement:false"`
	OriginalText       string    `json:"original_text"        gorm:"type:text;not null"`
	TranslatedText     string    `json:"translated_text"      gorm:"type:text;not null"`
	SourceLanguageCode string    `json:"source_language_code" gorm:"type:varchar(16);not null"`
	TargetLanguageCode string    `json:"target_language_code" gorm:"type:varchar(16);not null"`
	IsFavorite         bool      `json:"is_favorite"          gorm:"not null;default:false;index:idx_history_fav_date,priority:1"`
	Date               string    `json:"date"                 gorm:"type:char(10);not null;index;index:idx_history_fav_date,priority:2"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName returns the database table name for HistoryRecord.
func (HistoryRecord) TableName() string { return "history" }

// NewHistoryRecord builds a record for a finished translation, stamping the
// deterministic ID and the calendar day of now.
func NewHistoryRecord(src, tgt, original, translated string, now time.Time) *HistoryRecord {
	return &HistoryRecord{
		ID:                 HistoryID(src, tgt, original, translated),
		OriginalText:       original,
		TranslatedText:     translated,
		SourceLanguageCode: src,
		TargetLanguageCode: tgt,
		Date:               now.Format(DateLayout),
	}
}

// HistoryID derives the record identifier from the language pair and the
// lowercased texts, so re-saving the same translation overwrites the row.
func HistoryID(src, tgt, original, translated string) int64 {
	key := src + "-" + tgt + strings.ToLower(original) + strings.ToLower(translated)
	return int64(xxhash.Sum64String(key))
}

// Preference is a single durable key/value entry. An absent row means the
// key is unset.
type Preference struct {
	Key       string    `json:"key"   gorm:"type:varchar(64);primaryKey"`
	Value     string    `json:"value" gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Preference.
func (Preference) TableName() string { return "preferences" }
