// Package repo – posts and comments.
//
// Thin, context-aware persistence functions for the board. Missing rows
// yield ErrNotFound. Comment counts on posts are maintained in the same
// transaction as the comment insert or delete.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound.
var ErrNotFound = gorm.ErrRecordNotFound

// CreatePost inserts p.
func CreatePost(ctx context.Context, db *gorm.DB, p *domain.Post) error {
	return db.WithContext(ctx).Create(p).Error
}

// GetPost fetches a post by ID.
func GetPost(ctx context.Context, db *gorm.DB, id string) (*domain.Post, error) {
	var p domain.Post
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePostContent sets content and updated_at; ErrNotFound if missing.
func UpdatePostContent(ctx context.Context, db *gorm.DB, id, content string, at time.Time) error {
	res := db.WithContext(ctx).Model(&domain.Post{}).Where("id = ?", id).
		Updates(map[string]any{"content": content, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePost deletes a post and all of its comments in one transaction.
func DeletePost(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&domain.Comment{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CountPosts returns the total number of posts.
func CountPosts(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Post{}).Count(&n).Error
	return n, err
}

// ListPostsPage returns posts newest first.
func ListPostsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Post, error) {
	var out []domain.Post
	err := db.WithContext(ctx).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

// CreateComment inserts c and increments the parent's comment_count.
func CreateComment(ctx context.Context, db *gorm.DB, c *domain.Comment) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.Post{}).Where("id = ?", c.PostID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetComment fetches a comment by ID.
func GetComment(ctx context.Context, db *gorm.DB, id string) (*domain.Comment, error) {
	var c domain.Comment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateCommentContent sets content and updated_at; ErrNotFound if missing.
func UpdateCommentContent(ctx context.Context, db *gorm.DB, id, content string, at time.Time) error {
	res := db.WithContext(ctx).Model(&domain.Comment{}).Where("id = ?", id).
		Updates(map[string]any{"content": content, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteComment deletes c and decrements the parent's comment_count
// (never below zero).
func DeleteComment(ctx context.Context, db *gorm.DB, c *domain.Comment) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", c.ID).Delete(&domain.Comment{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&domain.Post{}).
			Where("id = ? AND comment_count > 0", c.PostID).
			UpdateColumn("comment_count", gorm.Expr("comment_count - 1")).Error
	})
}

// CountComments returns the number of comments on postID.
func CountComments(ctx context.Context, db *gorm.DB, postID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Comment{}).Where("post_id = ?", postID).Count(&n).Error
	return n, err
}

// ListCommentsPage returns a post's comments oldest first.
func ListCommentsPage(ctx context.Context, db *gorm.DB, postID string, offset, limit int) ([]domain.Comment, error) {
	var out []domain.Comment
	err := db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}
