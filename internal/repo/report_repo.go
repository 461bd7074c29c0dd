// Package repo – reports and the per-user report index.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

// CreateReport inserts r.
func CreateReport(ctx context.Context, db *gorm.DB, r *domain.Report) error {
	return db.WithContext(ctx).Create(r).Error
}

// LookupReport returns userID's index entry for targetGroupKey, or nil when
// the user has not reported it.
func LookupReport(ctx context.Context, db *gorm.DB, userID, targetGroupKey string) (*domain.ReportIndexEntry, error) {
	var e domain.ReportIndexEntry
	err := db.WithContext(ctx).
		Where("user_id = ? AND target_group_key = ?", userID, targetGroupKey).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PutReportIndex upserts an index entry.
func PutReportIndex(ctx context.Context, db *gorm.DB, e *domain.ReportIndexEntry) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "target_group_key"}},
			UpdateAll: true,
		}).
		Create(e).Error
}

// ListReports returns the newest reports against targetGroupKey.
func ListReports(ctx context.Context, db *gorm.DB, targetGroupKey string, limit int) ([]domain.Report, error) {
	var out []domain.Report
	err := db.WithContext(ctx).
		Where("target_group_key = ?", targetGroupKey).
		Order("reported_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
