// Package repo – shared photos.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

// groupScope narrows q to the rows of one grouping key.
func groupScope(q *gorm.DB, key domain.GroupingKey) *gorm.DB {
	q = q.Where("type = ?", string(key.Type))
	switch key.Type {
	case domain.ShareMeal:
		if key.EntryID == "" {
			return q.Where("(entry_id IS NULL OR entry_id = '')")
		}
		return q.Where("entry_id = ?", key.EntryID)
	case domain.ShareDaily:
		return q.Where("date = ?", key.Date)
	case domain.ShareBest:
		return q.Where("period_type = ? AND period_text = ?", key.PeriodType, key.PeriodText)
	case domain.ShareInsight:
		return q.Where("date_range_text = ?", key.DateRangeText)
	}
	return q
}

// ReplaceShares deletes every row of userID in key's group and inserts rows,
// in one transaction. It returns the number of rows deleted.
func ReplaceShares(ctx context.Context, db *gorm.DB, userID string, key domain.GroupingKey, rows []domain.SharedPhoto) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	var deleted int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := groupScope(tx.Where("user_id = ?", userID), key).Delete(&domain.SharedPhoto{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// ListUserShares returns every share owned by userID, newest first.
func ListUserShares(ctx context.Context, db *gorm.DB, userID string) ([]domain.SharedPhoto, error) {
	var out []domain.SharedPhoto
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Find(&out).Error
	return out, err
}

// DeleteShares deletes the listed rows owned by userID in one statement.
func DeleteShares(ctx context.Context, db *gorm.DB, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Delete(&domain.SharedPhoto{})
	return int(res.RowsAffected), res.Error
}

// ListFeed returns shares newest first. A non-zero before restricts the page
// to rows strictly older than it.
func ListFeed(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.SharedPhoto, error) {
	q := db.WithContext(ctx).Model(&domain.SharedPhoto{})
	if !before.IsZero() {
		q = q.Where("timestamp < ?", before)
	}
	var out []domain.SharedPhoto
	err := q.Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}
