// Package repo – aggregate queries.
//
// Small count/max queries used for conditional responses (ETag generation)
// in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

// PostsStats returns a change counter for the board (posts plus their
// comment counts) and the greatest post UpdatedAt. maxUpdatedAt is nil when
// there are no posts.
func PostsStats(ctx context.Context, db *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Post{})
	count, maxUpdatedAt, err = latest(q, "updated_at")
	if err != nil || count == 0 {
		return count, maxUpdatedAt, err
	}
	var comments int64
	if err := q.Session(&gorm.Session{}).Select("COALESCE(SUM(comment_count), 0)").Scan(&comments).Error; err != nil {
		return 0, nil, err
	}
	return count + comments, maxUpdatedAt, nil
}

// CommentsStats is PostsStats for the comments of one post.
func CommentsStats(ctx context.Context, db *gorm.DB, postID string) (count int64, maxUpdatedAt *time.Time, err error) {
	return latest(db.WithContext(ctx).Model(&domain.Comment{}).Where("post_id = ?", postID), "updated_at")
}

// FeedStats returns the number of shared photos and the newest timestamp.
func FeedStats(ctx context.Context, db *gorm.DB) (count int64, newest *time.Time, err error) {
	return latest(db.WithContext(ctx).Model(&domain.SharedPhoto{}), "timestamp")
}

func latest(q *gorm.DB, col string) (int64, *time.Time, error) {
	var count int64
	if err := q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() -> TEXT in SQLite.
	var row struct {
		At time.Time
	}
	if err := q.Session(&gorm.Session{}).Select(col + " AS at").Order(col + " DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.At, nil
}
