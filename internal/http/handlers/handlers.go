package handlers

import (
	"context"
	"io"
	"time"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/feed"
	"github.com/tbourn/go-meal-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// BoardService defines the post and comment operations.
type BoardService interface {
	CreatePost(ctx context.Context, id *auth.Identity, in services.PostInput) (*domain.Post, error)
	UpdatePost(ctx context.Context, id *auth.Identity, in services.PostInput) (*domain.Post, error)
	DeletePost(ctx context.Context, id *auth.Identity, postID string) error
	ListPosts(ctx context.Context, page, pageSize int) ([]domain.Post, int64, error)

	CreateComment(ctx context.Context, id *auth.Identity, in services.CommentInput) (*domain.Comment, error)
	UpdateComment(ctx context.Context, id *auth.Identity, in services.CommentInput) (*domain.Comment, error)
	DeleteComment(ctx context.Context, id *auth.Identity, commentID string) error
	ListComments(ctx context.Context, postID string, page, pageSize int) ([]domain.Comment, int64, error)
}

// ReportService files reports.
type ReportService interface {
	Submit(ctx context.Context, id *auth.Identity, in services.ReportInput) (*domain.Report, error)
}

// ShareService shares photos to the feed and takes them down.
type ShareService interface {
	ShareMealPhotos(ctx context.Context, id *auth.Identity, in services.ShareInput) (*services.ShareResult, error)
	ShareDaily(ctx context.Context, id *auth.Identity, in services.ShareInput) (*services.ShareResult, error)
	ShareBest(ctx context.Context, id *auth.Identity, in services.ShareInput) (*services.ShareResult, error)
	ShareInsight(ctx context.Context, id *auth.Identity, in services.ShareInput) (*services.ShareResult, error)
	Unshare(ctx context.Context, id *auth.Identity, in services.UnshareInput) (*services.UnshareResult, error)
}

// SettingsService covers terms consent, profile, and readiness.
type SettingsService interface {
	AgreeToTerms(ctx context.Context, id *auth.Identity) (*domain.UserSettings, error)
	UpdateProfile(ctx context.Context, id *auth.Identity, in services.ProfileInput) (*domain.UserSettings, error)
	GetReadiness(ctx context.Context, id *auth.Identity) (*services.Readiness, error)
}

// MealService records meals.
type MealService interface {
	Create(ctx context.Context, id *auth.Identity, in services.MealInput) (*domain.Meal, error)
}

// PhotoService uploads photos to the blob store.
type PhotoService interface {
	Upload(ctx context.Context, id *auth.Identity, filename, contentType string, size int64, r io.Reader) (string, error)
}

// FeedReader pages through the shared-photo feed.
type FeedReader interface {
	ListFeed(ctx context.Context, before time.Time, limit int) ([]domain.SharedPhoto, error)
}

// StatsReader feeds weak ETags. Backends without cheap aggregates leave it
// nil and list endpoints skip conditional responses.
type StatsReader interface {
	PostsStats(ctx context.Context) (int64, *time.Time, error)
	CommentsStats(ctx context.Context, postID string) (int64, *time.Time, error)
	FeedStats(ctx context.Context) (int64, *time.Time, error)
}

// ResourceLoader reloads the resource of a replayed create call.
type ResourceLoader interface {
	GetPost(ctx context.Context, id string) (*domain.Post, error)
	GetComment(ctx context.Context, id string) (*domain.Comment, error)
	GetMeal(ctx context.Context, id string) (*domain.Meal, error)
}

// IdempotencyRecorder remembers the resource created under an
// Idempotency-Key.
type IdempotencyRecorder interface {
	CreateIdempotency(ctx context.Context, userID, scope, key, resourceID string, ttl time.Duration) (*domain.Idempotency, error)
}

//
// Handler wiring
//

// Deps are the collaborators of Handlers. Photos, Source, Stats, Idem and
// Errors are optional.
type Deps struct {
	Board    BoardService
	Reports  ReportService
	Shares   ShareService
	Settings SettingsService
	Meals    MealService
	Photos   PhotoService

	Feed   FeedReader
	Source feed.Source
	Stats  StatsReader

	Resources      ResourceLoader
	Idem           IdempotencyRecorder
	IdempotencyTTL time.Duration

	Errors *services.ErrorRecorder

	// StreamKeepAlive is the SSE ping interval; defaults to 15s.
	StreamKeepAlive time.Duration
}

// Handlers groups the callable-function endpoint and the read endpoints.
type Handlers struct {
	board    BoardService
	reports  ReportService
	shares   ShareService
	settings SettingsService
	meals    MealService
	photos   PhotoService

	feed   FeedReader
	source feed.Source
	stats  StatsReader

	resources ResourceLoader
	idem      IdempotencyRecorder
	idemTTL   time.Duration

	errors    *services.ErrorRecorder
	keepAlive time.Duration

	functions map[string]callable
}

// New constructs Handlers from d.
func New(d Deps) *Handlers {
	h := &Handlers{
		board:     d.Board,
		reports:   d.Reports,
		shares:    d.Shares,
		settings:  d.Settings,
		meals:     d.Meals,
		photos:    d.Photos,
		feed:      d.Feed,
		source:    d.Source,
		stats:     d.Stats,
		resources: d.Resources,
		idem:      d.Idem,
		idemTTL:   d.IdempotencyTTL,
		errors:    d.Errors,
		keepAlive: d.StreamKeepAlive,
	}
	if h.idemTTL <= 0 {
		h.idemTTL = 24 * time.Hour
	}
	if h.keepAlive <= 0 {
		h.keepAlive = 15 * time.Second
	}
	h.functions = h.callables()
	return h
}

// HasPhotos reports whether uploads are wired.
func (h *Handlers) HasPhotos() bool { return h.photos != nil }

// HasStream reports whether the realtime feed is wired.
func (h *Handlers) HasStream() bool { return h.source != nil }
