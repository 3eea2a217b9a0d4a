package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-translingo-backend/internal/domain"
)

// HistoryStats returns the number of history rows and the greatest
// updated_at among them. With favoritesOnly it restricts both to favorites.
// When no rows match, count is 0 and maxUpdatedAt is nil.
//
// Favorite toggles bump updated_at, so the pair changes on every write that
// can alter a listing.
func HistoryStats(ctx context.Context, db *gorm.DB, favoritesOnly bool) (count int64, maxUpdatedAt *time.Time, err error) {
	scope := func() *gorm.DB {
		q := db.WithContext(ctx).Model(&domain.HistoryRecord{})
		if favoritesOnly {
			q = q.Where("is_favorite = ?", true)
		}
		return q
	}

	if err = scope().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = scope().Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
