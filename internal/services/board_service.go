// Package services – BoardService
//
// BoardService implements the discussion board: posts and their comments.
// Creates run identity, required-field, moderation, and rate-limit checks in
// that order before writing. Updates and deletes check existence and then
// ownership; deleting a post also removes its comments and best-effort
// deletes the attached photo from the blob store.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/blob"
	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/utils"
)

// BoardService provides post and comment use-cases.
type BoardService struct {
	Store    BoardStore
	Settings SettingsStore
	Limiter  Limiter
	// Blob is optional; without it post photos are left in place.
	Blob blob.Remover

	MaxPostRunes    int
	MaxCommentRunes int
	Now             func() time.Time
}

// NewBoardService returns a BoardService with default content limits.
func NewBoardService(st BoardStore, settings SettingsStore, lim Limiter) *BoardService {
	return &BoardService{
		Store:           st,
		Settings:        settings,
		Limiter:         lim,
		MaxPostRunes:    1000,
		MaxCommentRunes: 500,
	}
}

// PostInput is the payload of createPost and updatePost.
type PostInput struct {
	PostID   string `json:"postId,omitempty"`
	Content  string `json:"content"`
	PhotoURL string `json:"photoUrl,omitempty"`
}

// CommentInput is the payload of createComment and updateComment.
type CommentInput struct {
	PostID    string `json:"postId,omitempty"`
	CommentID string `json:"commentId,omitempty"`
	Content   string `json:"content"`
}

func (s *BoardService) span(ctx context.Context, name string, id *auth.Identity) (context.Context, trace.Span) {
	uid := ""
	if id != nil {
		uid = id.UID
	}
	return otel.Tracer("services/BoardService").Start(ctx, name,
		trace.WithAttributes(attribute.String("user.id", uid)))
}

// CreatePost publishes a new post by the caller.
func (s *BoardService) CreatePost(ctx context.Context, id *auth.Identity, in PostInput) (*domain.Post, error) {
	ctx, span := s.span(ctx, "CreatePost", id)
	defer span.End()

	if err := requireUser(id); err != nil {
		return nil, err
	}
	content, err := requireText("content", in.Content, s.MaxPostRunes)
	if err != nil {
		return nil, err
	}
	if err := screen("post", content); err != nil {
		return nil, err
	}
	if err := s.Limiter.CheckAndRecord(ctx, id.UID, "post"); err != nil {
		return nil, err
	}

	author := authorOf(ctx, s.Settings, id.UID)
	now := nowUTC(s.Now)
	p := &domain.Post{
		ID:           uuid.NewString(),
		UserID:       id.UID,
		UserNickname: author.Nickname,
		UserIcon:     author.Icon,
		Content:      content,
		PhotoURL:     strings.TrimSpace(in.PhotoURL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.CreatePost(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePost replaces the content of the caller's own post.
func (s *BoardService) UpdatePost(ctx context.Context, id *auth.Identity, in PostInput) (*domain.Post, error) {
	ctx, span := s.span(ctx, "UpdatePost", id)
	defer span.End()

	if err := requireUser(id); err != nil {
		return nil, err
	}
	if _, err := requireText("postId", in.PostID, 0); err != nil {
		return nil, err
	}
	content, err := requireText("content", in.Content, s.MaxPostRunes)
	if err != nil {
		return nil, err
	}
	p, err := s.ownPost(ctx, id, in.PostID)
	if err != nil {
		return nil, err
	}
	if err := screen("post", content); err != nil {
		return nil, err
	}

	now := nowUTC(s.Now)
	if err := s.Store.UpdatePostContent(ctx, p.ID, content, now); err != nil {
		return nil, err
	}
	p.Content, p.UpdatedAt = content, now
	return p, nil
}

// DeletePost removes the caller's own post with its comments.
func (s *BoardService) DeletePost(ctx context.Context, id *auth.Identity, postID string) error {
	ctx, span := s.span(ctx, "DeletePost", id)
	defer span.End()

	if err := requireUser(id); err != nil {
		return err
	}
	if _, err := requireText("postId", postID, 0); err != nil {
		return err
	}
	p, err := s.ownPost(ctx, id, postID)
	if err != nil {
		return err
	}
	if err := s.Store.DeletePost(ctx, p.ID); err != nil {
		return err
	}

	if s.Blob != nil && p.PhotoURL != "" {
		if err := blob.DeleteURLs(ctx, s.Blob, []string{p.PhotoURL}); err != nil {
			logFrom(ctx).Warn().Err(err).Str("post_id", p.ID).Msg("post photo cleanup failed")
		}
	}
	return nil
}

// ListPosts returns a page of posts, newest first.
func (s *BoardService) ListPosts(ctx context.Context, page, pageSize int) ([]domain.Post, int64, error) {
	offset, limit := pageBounds(page, pageSize)
	return s.Store.ListPosts(ctx, offset, limit)
}

// CreateComment adds a comment to an existing post.
func (s *BoardService) CreateComment(ctx context.Context, id *auth.Identity, in CommentInput) (*domain.Comment, error) {
	ctx, span := s.span(ctx, "CreateComment", id)
	defer span.End()

	if err := requireUser(id); err != nil {
		return nil, err
	}
	if _, err := requireText("postId", in.PostID, 0); err != nil {
		return nil, err
	}
	content, err := requireText("content", in.Content, s.MaxCommentRunes)
	if err != nil {
		return nil, err
	}
	if _, err := s.Store.GetPost(ctx, in.PostID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, NotFound("post not found")
		}
		return nil, err
	}
	if err := screen("comment", content); err != nil {
		return nil, err
	}
	if err := s.Limiter.CheckAndRecord(ctx, id.UID, "comment"); err != nil {
		return nil, err
	}

	author := authorOf(ctx, s.Settings, id.UID)
	now := nowUTC(s.Now)
	c := &domain.Comment{
		ID:           uuid.NewString(),
		PostID:       in.PostID,
		UserID:       id.UID,
		UserNickname: author.Nickname,
		Content:      content,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateComment replaces the content of the caller's own comment.
func (s *BoardService) UpdateComment(ctx context.Context, id *auth.Identity, in CommentInput) (*domain.Comment, error) {
	ctx, span := s.span(ctx, "UpdateComment", id)
	defer span.End()

	if err := requireUser(id); err != nil {
		return nil, err
	}
	if _, err := requireText("commentId", in.CommentID, 0); err != nil {
		return nil, err
	}
	content, err := requireText("content", in.Content, s.MaxCommentRunes)
	if err != nil {
		return nil, err
	}
	c, err := s.ownComment(ctx, id, in.CommentID)
	if err != nil {
		return nil, err
	}
	if err := screen("comment", content); err != nil {
		return nil, err
	}

	now := nowUTC(s.Now)
	if err := s.Store.UpdateCommentContent(ctx, c.ID, content, now); err != nil {
		return nil, err
	}
	c.Content, c.UpdatedAt = content, now
	return c, nil
}

// DeleteComment removes the caller's own comment.
func (s *BoardService) DeleteComment(ctx context.Context, id *auth.Identity, commentID string) error {
	ctx, span := s.span(ctx, "DeleteComment", id)
	defer span.End()

	if err := requireUser(id); err != nil {
		return err
	}
	if _, err := requireText("commentId", commentID, 0); err != nil {
		return err
	}
	c, err := s.ownComment(ctx, id, commentID)
	if err != nil {
		return err
	}
	return s.Store.DeleteComment(ctx, c)
}

// ListComments returns a page of a post's comments, oldest first.
func (s *BoardService) ListComments(ctx context.Context, postID string, page, pageSize int) ([]domain.Comment, int64, error) {
	if _, err := s.Store.GetPost(ctx, postID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, 0, NotFound("post not found")
		}
		return nil, 0, err
	}
	offset, limit := pageBounds(page, pageSize)
	return s.Store.ListComments(ctx, postID, offset, limit)
}

func (s *BoardService) ownPost(ctx context.Context, id *auth.Identity, postID string) (*domain.Post, error) {
	p, err := s.Store.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, NotFound("post not found")
		}
		return nil, err
	}
	if p.UserID != id.UID {
		return nil, ErrNotOwner
	}
	return p, nil
}

func (s *BoardService) ownComment(ctx context.Context, id *auth.Identity, commentID string) (*domain.Comment, error) {
	c, err := s.Store.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, NotFound("comment not found")
		}
		return nil, err
	}
	if c.UserID != id.UID {
		return nil, ErrNotOwner
	}
	return c, nil
}

// pageBounds converts 1-based page numbers to offset/limit with defaults.
func pageBounds(page, pageSize int) (offset, limit int) {
	p := utils.NewPage(page, pageSize)
	return p.Offset(), p.Size
}
