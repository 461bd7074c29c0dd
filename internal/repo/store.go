package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

// Store adapts the package's free functions to the service ports. Missing
// rows surface as domain.ErrNotFound.
type Store struct {
	DB *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func (s *Store) CreatePost(ctx context.Context, p *domain.Post) error {
	return CreatePost(ctx, s.DB, p)
}

func (s *Store) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	p, err := GetPost(ctx, s.DB, id)
	return p, notFound(err)
}

func (s *Store) UpdatePostContent(ctx context.Context, id, content string, at time.Time) error {
	return notFound(UpdatePostContent(ctx, s.DB, id, content, at))
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	return notFound(DeletePost(ctx, s.DB, id))
}

func (s *Store) ListPosts(ctx context.Context, offset, limit int) ([]domain.Post, int64, error) {
	total, err := CountPosts(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	items, err := ListPostsPage(ctx, s.DB, offset, limit)
	return items, total, err
}

func (s *Store) CreateComment(ctx context.Context, c *domain.Comment) error {
	return notFound(CreateComment(ctx, s.DB, c))
}

func (s *Store) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	c, err := GetComment(ctx, s.DB, id)
	return c, notFound(err)
}

func (s *Store) UpdateCommentContent(ctx context.Context, id, content string, at time.Time) error {
	return notFound(UpdateCommentContent(ctx, s.DB, id, content, at))
}

func (s *Store) DeleteComment(ctx context.Context, c *domain.Comment) error {
	return notFound(DeleteComment(ctx, s.DB, c))
}

func (s *Store) ListComments(ctx context.Context, postID string, offset, limit int) ([]domain.Comment, int64, error) {
	total, err := CountComments(ctx, s.DB, postID)
	if err != nil {
		return nil, 0, err
	}
	items, err := ListCommentsPage(ctx, s.DB, postID, offset, limit)
	return items, total, err
}

func (s *Store) LookupReport(ctx context.Context, userID, targetGroupKey string) (*domain.ReportIndexEntry, error) {
	return LookupReport(ctx, s.DB, userID, targetGroupKey)
}

func (s *Store) CreateReport(ctx context.Context, r *domain.Report) error {
	return CreateReport(ctx, s.DB, r)
}

func (s *Store) PutReportIndex(ctx context.Context, e *domain.ReportIndexEntry) error {
	return PutReportIndex(ctx, s.DB, e)
}

func (s *Store) ReplaceShares(ctx context.Context, userID string, key domain.GroupingKey, rows []domain.SharedPhoto) (int, error) {
	return ReplaceShares(ctx, s.DB, userID, key, rows)
}

func (s *Store) ListUserShares(ctx context.Context, userID string) ([]domain.SharedPhoto, error) {
	return ListUserShares(ctx, s.DB, userID)
}

func (s *Store) DeleteShares(ctx context.Context, userID string, ids []string) (int, error) {
	return DeleteShares(ctx, s.DB, userID, ids)
}

func (s *Store) ListFeed(ctx context.Context, before time.Time, limit int) ([]domain.SharedPhoto, error) {
	return ListFeed(ctx, s.DB, before, limit)
}

func (s *Store) GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	return GetSettings(ctx, s.DB, userID)
}

func (s *Store) SaveSettings(ctx context.Context, st *domain.UserSettings) error {
	return SaveSettings(ctx, s.DB, st)
}

func (s *Store) CreateMeal(ctx context.Context, m *domain.Meal) error {
	return CreateMeal(ctx, s.DB, m)
}

func (s *Store) GetMeal(ctx context.Context, id string) (*domain.Meal, error) {
	m, err := GetMeal(ctx, s.DB, id)
	return m, notFound(err)
}

func (s *Store) HasMeals(ctx context.Context, userID string) (bool, error) {
	return HasMeals(ctx, s.DB, userID)
}

func (s *Store) SetMealSharedPhotos(ctx context.Context, mealID string, urls []string) error {
	return notFound(SetMealSharedPhotos(ctx, s.DB, mealID, urls))
}

func (s *Store) WriteErrorLog(ctx context.Context, e *domain.ErrorLog) error {
	return WriteErrorLog(ctx, s.DB, e)
}

func (s *Store) GetIdempotency(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	rec, err := GetIdempotency(ctx, s.DB, userID, scope, key, now)
	return rec, notFound(err)
}

func (s *Store) CreateIdempotency(ctx context.Context, userID, scope, key, resourceID string, ttl time.Duration) (*domain.Idempotency, error) {
	return CreateIdempotency(ctx, s.DB, userID, scope, key, resourceID, ttl)
}

func (s *Store) LoadActions(ctx context.Context, userID, field string) ([]time.Time, error) {
	return LoadActions(ctx, s.DB, userID, field)
}

func (s *Store) SaveActions(ctx context.Context, userID, field string, ts []time.Time) error {
	return SaveActions(ctx, s.DB, userID, field, ts)
}

func (s *Store) PostsStats(ctx context.Context) (int64, *time.Time, error) {
	return PostsStats(ctx, s.DB)
}

func (s *Store) CommentsStats(ctx context.Context, postID string) (int64, *time.Time, error) {
	return CommentsStats(ctx, s.DB, postID)
}

func (s *Store) FeedStats(ctx context.Context) (int64, *time.Time, error) {
	return FeedStats(ctx, s.DB)
}
