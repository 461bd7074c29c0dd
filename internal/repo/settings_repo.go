// Package repo – user settings and meals.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

// GetSettings loads userID's settings, upgrading and persisting older
// layouts. It returns nil, nil when the user has no settings.
func GetSettings(ctx context.Context, db *gorm.DB, userID string) (*domain.UserSettings, error) {
	var s domain.UserSettings
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if domain.MigrateSettings(&s) {
		if err := SaveSettings(ctx, db, &s); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// SaveSettings upserts s.
func SaveSettings(ctx context.Context, db *gorm.DB, s *domain.UserSettings) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(s).Error
}

// CreateMeal inserts m.
func CreateMeal(ctx context.Context, db *gorm.DB, m *domain.Meal) error {
	return db.WithContext(ctx).Create(m).Error
}

// GetMeal fetches a meal by ID.
func GetMeal(ctx context.Context, db *gorm.DB, id string) (*domain.Meal, error) {
	var m domain.Meal
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// HasMeals reports whether userID has logged at least one meal.
func HasMeals(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	var ids []string
	err := db.WithContext(ctx).Model(&domain.Meal{}).
		Where("user_id = ?", userID).
		Limit(1).
		Pluck("id", &ids).Error
	return len(ids) > 0, err
}

// SetMealSharedPhotos overwrites the meal's shared photo mirror.
func SetMealSharedPhotos(ctx context.Context, db *gorm.DB, mealID string, urls []string) error {
	if urls == nil {
		urls = []string{}
	}
	res := db.WithContext(ctx).Model(&domain.Meal{}).Where("id = ?", mealID).
		Updates(map[string]any{
			"shared_photos": datatypes.JSONSlice[string](urls),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
