package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/domain"
)

// MealService records meals. Meal records feed the existing-user check and
// the sharedPhotos mirror.
type MealService struct {
	Store   MealStore
	Limiter Limiter
	Now     func() time.Time
}

// MealInput is the payload of createMeal.
type MealInput struct {
	Date      string   `json:"date"`
	MealType  string   `json:"mealType,omitempty"`
	Content   string   `json:"content,omitempty"`
	PhotoURLs []string `json:"photoUrls,omitempty"`
}

// Create stores a meal for the caller.
func (s *MealService) Create(ctx context.Context, id *auth.Identity, in MealInput) (*domain.Meal, error) {
	if err := requireUser(id); err != nil {
		return nil, err
	}
	date, err := requireText("date", in.Date, 10)
	if err != nil {
		return nil, err
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, InvalidArgument("date must be formatted as YYYY-MM-DD")
	}
	if err := s.Limiter.CheckAndRecord(ctx, id.UID, "interaction"); err != nil {
		return nil, err
	}

	photos := make([]string, 0, len(in.PhotoURLs))
	for _, u := range in.PhotoURLs {
		if u = strings.TrimSpace(u); u != "" {
			photos = append(photos, u)
		}
	}
	now := nowUTC(s.Now)
	m := &domain.Meal{
		ID:           uuid.NewString(),
		UserID:       id.UID,
		Date:         date,
		MealType:     strings.TrimSpace(in.MealType),
		Content:      strings.TrimSpace(in.Content),
		PhotoURLs:    photos,
		SharedPhotos: []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.CreateMeal(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
