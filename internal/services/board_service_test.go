package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/ratelimit"
	"github.com/tbourn/go-meal-backend/internal/repo"
)

type fakeBlob struct {
	deleted []string
	err     error
}

func (b *fakeBlob) KeyFromURL(u string) (string, bool) {
	if !strings.HasPrefix(u, "/uploads/") {
		return "", false
	}
	return strings.TrimPrefix(u, "/uploads/"), true
}

func (b *fakeBlob) Delete(_ context.Context, key string) error {
	b.deleted = append(b.deleted, key)
	return b.err
}

type boardFixture struct {
	svc   *BoardService
	store *repo.Store
	lim   *fakeLimiter
	blob  *fakeBlob
}

func newBoard(t *testing.T) boardFixture {
	t.Helper()
	st := newStore(t)
	f := boardFixture{store: st, lim: &fakeLimiter{}, blob: &fakeBlob{}}
	f.svc = NewBoardService(st, st, f.lim)
	f.svc.Blob = f.blob
	f.svc.Now = clock
	return f
}

func TestCreatePost_DenormalizesAuthor(t *testing.T) {
	f := newBoard(t)
	seedProfile(t, f.store, "u1", "Hana")

	p, err := f.svc.CreatePost(context.Background(), user("u1"), PostInput{Content: "  today's lunch  ", PhotoURL: "/uploads/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "today's lunch", p.Content)
	assert.Equal(t, "Hana", p.UserNickname)
	assert.Equal(t, "🍙", p.UserIcon)
	assert.Equal(t, fixedNow, p.CreatedAt)
	assert.Equal(t, []string{"u1:post"}, f.lim.calls)

	got, err := f.store.GetPost(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "today's lunch", got.Content)
}

func TestCreatePost_GateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("guest rejected before validation", func(t *testing.T) {
		f := newBoard(t)
		_, err := f.svc.CreatePost(ctx, guest("g"), PostInput{})
		assert.Equal(t, ErrGuestDenied, err)
		assert.Empty(t, f.lim.calls)
	})

	t.Run("missing content", func(t *testing.T) {
		f := newBoard(t)
		_, err := f.svc.CreatePost(ctx, user("u1"), PostInput{Content: "  "})
		assert.Equal(t, CodeInvalidArgument, CodeOf(err))
		assert.Empty(t, f.lim.calls)
	})

	t.Run("spam is not counted against the limiter", func(t *testing.T) {
		f := newBoard(t)
		_, err := f.svc.CreatePost(ctx, user("u1"), PostInput{Content: "see https://a.example https://b.example https://c.example"})
		assert.Equal(t, CodeInvalidArgument, CodeOf(err))
		assert.Contains(t, err.Error(), "too_many_links")
		assert.Empty(t, f.lim.calls)
	})

	t.Run("rate limited", func(t *testing.T) {
		f := newBoard(t)
		f.lim.err = &ratelimit.ExceededError{Action: "post", Window: "minute", Limit: 3}
		_, err := f.svc.CreatePost(ctx, user("u1"), PostInput{Content: "hello"})
		assert.Equal(t, CodeResourceExhausted, CodeOf(err))
		items, total, lerr := f.store.ListPosts(ctx, 0, 10)
		require.NoError(t, lerr)
		assert.Zero(t, total)
		assert.Empty(t, items)
	})
}

func TestUpdatePost_Ownership(t *testing.T) {
	ctx := context.Background()
	f := newBoard(t)
	p, err := f.svc.CreatePost(ctx, user("u1"), PostInput{Content: "mine"})
	require.NoError(t, err)

	_, err = f.svc.UpdatePost(ctx, user("u2"), PostInput{PostID: p.ID, Content: "hijack"})
	assert.Equal(t, ErrNotOwner, err)

	_, err = f.svc.UpdatePost(ctx, user("u1"), PostInput{PostID: "missing", Content: "x"})
	assert.Equal(t, CodeNotFound, CodeOf(err))

	up, err := f.svc.UpdatePost(ctx, user("u1"), PostInput{PostID: p.ID, Content: "edited"})
	require.NoError(t, err)
	assert.Equal(t, "edited", up.Content)
}

func TestDeletePost_CascadesAndCleansPhoto(t *testing.T) {
	ctx := context.Background()
	f := newBoard(t)
	p, err := f.svc.CreatePost(ctx, user("u1"), PostInput{Content: "with photo", PhotoURL: "/uploads/photos/u1/a.jpg"})
	require.NoError(t, err)
	c, err := f.svc.CreateComment(ctx, user("u2"), CommentInput{PostID: p.ID, Content: "nice"})
	require.NoError(t, err)

	assert.Equal(t, ErrNotOwner, f.svc.DeletePost(ctx, user("u2"), p.ID))

	require.NoError(t, f.svc.DeletePost(ctx, user("u1"), p.ID))
	assert.Equal(t, []string{"photos/u1/a.jpg"}, f.blob.deleted)
	_, err = f.store.GetComment(ctx, c.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDeletePost_BlobFailureIsNotSurfaced(t *testing.T) {
	ctx := context.Background()
	f := newBoard(t)
	f.blob.err = errors.New("bucket unavailable")
	p, err := f.svc.CreatePost(ctx, user("u1"), PostInput{Content: "x", PhotoURL: "/uploads/a.jpg"})
	require.NoError(t, err)
	assert.NoError(t, f.svc.DeletePost(ctx, user("u1"), p.ID))
}

func TestComments_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newBoard(t)
	p, err := f.svc.CreatePost(ctx, user("u1"), PostInput{Content: "post"})
	require.NoError(t, err)

	_, err = f.svc.CreateComment(ctx, user("u2"), CommentInput{PostID: "ghost", Content: "hi"})
	assert.Equal(t, CodeNotFound, CodeOf(err))

	c, err := f.svc.CreateComment(ctx, user("u2"), CommentInput{PostID: p.ID, Content: "hi"})
	require.NoError(t, err)
	assert.Contains(t, f.lim.calls, "u2:comment")

	_, err = f.svc.UpdateComment(ctx, user("u1"), CommentInput{CommentID: c.ID, Content: "edit"})
	assert.Equal(t, ErrNotOwner, err)
	_, err = f.svc.UpdateComment(ctx, user("u2"), CommentInput{CommentID: c.ID, Content: "edited"})
	require.NoError(t, err)

	items, total, err := f.svc.ListComments(ctx, p.ID, 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, "edited", items[0].Content)

	require.NoError(t, f.svc.DeleteComment(ctx, user("u2"), c.ID))
	got, err := f.store.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CommentCount)

	_, _, err = f.svc.ListComments(ctx, "ghost", 1, 10)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestPageBounds(t *testing.T) {
	cases := []struct{ page, size, off, lim int }{
		{0, 0, 0, 20},
		{2, 10, 10, 10},
		{3, 500, 200, 100},
	}
	for _, tc := range cases {
		off, lim := pageBounds(tc.page, tc.size)
		if off != tc.off || lim != tc.lim {
			t.Fatalf("pageBounds(%d,%d) = (%d,%d); want (%d,%d)", tc.page, tc.size, off, lim, tc.off, tc.lim)
		}
	}
}
