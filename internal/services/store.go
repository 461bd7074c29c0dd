package services

import (
	"context"
	"time"

	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/moderation"
	"github.com/tbourn/go-meal-backend/internal/ratelimit"
)

// The store ports below are implemented by the SQL backend (repo.Store) and
// the Firestore backend (fsstore.Store). Lookups of a missing record return
// domain.ErrNotFound.

// BoardStore persists posts and comments.
type BoardStore interface {
	CreatePost(ctx context.Context, p *domain.Post) error
	GetPost(ctx context.Context, id string) (*domain.Post, error)
	UpdatePostContent(ctx context.Context, id, content string, at time.Time) error
	// DeletePost removes the post and its comments.
	DeletePost(ctx context.Context, id string) error
	ListPosts(ctx context.Context, offset, limit int) ([]domain.Post, int64, error)

	// CreateComment inserts c and increments the parent's comment count.
	CreateComment(ctx context.Context, c *domain.Comment) error
	GetComment(ctx context.Context, id string) (*domain.Comment, error)
	UpdateCommentContent(ctx context.Context, id, content string, at time.Time) error
	// DeleteComment removes c and decrements the parent's comment count.
	DeleteComment(ctx context.Context, c *domain.Comment) error
	ListComments(ctx context.Context, postID string, offset, limit int) ([]domain.Comment, int64, error)
}

// ReportStore persists reports and the per-user report index.
type ReportStore interface {
	moderation.ReportIndex
	CreateReport(ctx context.Context, r *domain.Report) error
	PutReportIndex(ctx context.Context, e *domain.ReportIndexEntry) error
}

// ShareStore persists shared photos.
type ShareStore interface {
	// ReplaceShares atomically deletes every row of userID matching key and
	// inserts rows. It returns the number of rows deleted.
	ReplaceShares(ctx context.Context, userID string, key domain.GroupingKey, rows []domain.SharedPhoto) (int, error)
	ListUserShares(ctx context.Context, userID string) ([]domain.SharedPhoto, error)
	// DeleteShares atomically deletes the listed rows owned by userID.
	DeleteShares(ctx context.Context, userID string, ids []string) (int, error)
	// ListFeed returns shares newest first, strictly older than before when
	// before is non-zero.
	ListFeed(ctx context.Context, before time.Time, limit int) ([]domain.SharedPhoto, error)
}

// SettingsStore persists user settings. GetSettings returns nil, nil for a
// user without settings and always returns the current schema layout.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error)
	SaveSettings(ctx context.Context, s *domain.UserSettings) error
}

// MealStore persists meal records.
type MealStore interface {
	CreateMeal(ctx context.Context, m *domain.Meal) error
	GetMeal(ctx context.Context, id string) (*domain.Meal, error)
	HasMeals(ctx context.Context, userID string) (bool, error)
	SetMealSharedPhotos(ctx context.Context, mealID string, urls []string) error
}

// ErrorLogStore receives durable error records.
type ErrorLogStore interface {
	WriteErrorLog(ctx context.Context, e *domain.ErrorLog) error
}

// IdempotencyStore remembers the resource created by a keyed create call.
type IdempotencyStore interface {
	GetIdempotency(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, userID, scope, key, resourceID string, ttl time.Duration) (*domain.Idempotency, error)
}

// Store is the full document store.
type Store interface {
	BoardStore
	ReportStore
	ShareStore
	SettingsStore
	MealStore
	ErrorLogStore
	IdempotencyStore
	ratelimit.Store
}
