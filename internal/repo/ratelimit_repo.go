// Package repo – rate-limit documents and error logs.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

// LoadActions returns the timestamps stored under field in userID's
// rate-limit document. A missing document or field yields nil.
func LoadActions(ctx context.Context, db *gorm.DB, userID, field string) ([]time.Time, error) {
	var rec domain.RateLimitRecord
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Actions.Data()[field], nil
}

// SaveActions replaces field in userID's document, leaving other fields
// untouched. The document is created on first write. It is a single upsert
// that sets the one JSON key in place.
func SaveActions(ctx context.Context, db *gorm.DB, userID, field string, ts []time.Time) error {
	if ts == nil {
		ts = []time.Time{}
	}
	now := time.Now().UTC()
	rec := domain.RateLimitRecord{
		UserID:    userID,
		Actions:   datatypes.NewJSONType(map[string][]time.Time{field: ts}),
		UpdatedAt: now,
	}
	set, err := setActionField(db, field, ts)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{"actions": set, "updated_at": now}),
	}).Create(&rec).Error
}

// setActionField builds the per-dialect expression writing ts under field.
func setActionField(db *gorm.DB, field string, ts []time.Time) (clause.Expression, error) {
	if db.Dialector.Name() != "postgres" {
		return datatypes.JSONSet("actions").Set(field, ts), nil
	}
	b, err := json.Marshal(ts)
	if err != nil {
		return nil, err
	}
	return gorm.Expr(
		"jsonb_set(COALESCE(rate_limits.actions::jsonb, '{}'::jsonb), ?::text[], ?::jsonb)::json",
		"{"+field+"}", string(b),
	), nil
}

// WriteErrorLog inserts e.
func WriteErrorLog(ctx context.Context, db *gorm.DB, e *domain.ErrorLog) error {
	return db.WithContext(ctx).Create(e).Error
}

// ListErrorLogs returns the newest error records.
func ListErrorLogs(ctx context.Context, db *gorm.DB, limit int) ([]domain.ErrorLog, error) {
	var out []domain.ErrorLog
	err := db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
