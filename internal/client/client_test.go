package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/authflow"
	"github.com/tbourn/go-meal-backend/internal/config"
	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/feed"
	httpapi "github.com/tbourn/go-meal-backend/internal/http"
	"github.com/tbourn/go-meal-backend/internal/repo"
	"github.com/tbourn/go-meal-backend/internal/services"
)

const secret = "client-test-secret"

func init() { gin.SetMode(gin.TestMode) }

type scriptedSource struct {
	batches []feed.Batch
	err     error
}

func (s scriptedSource) Subscribe(_ context.Context, _ int, fn func(feed.Batch) error) error {
	for _, b := range s.batches {
		if err := fn(b); err != nil {
			return err
		}
	}
	return s.err
}

// newServer runs the full API over an in-memory store.
func newServer(t *testing.T, src feed.Source) *httptest.Server {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))

	cfg := config.Config{
		APIBasePath:    "/api/v1",
		EdgeRPS:        100,
		EdgeBurst:      100,
		TermsVersion:   "v1",
		IdempotencyTTL: time.Hour,
	}
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Backends{
		Store:    repo.NewStore(db),
		Verifier: auth.NewVerifier(secret, ""),
		Feed:     src,
	}, cfg)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server, uid string) *Client {
	t.Helper()
	tok := ""
	if uid != "" {
		var err error
		tok, err = auth.IssueToken(auth.Identity{UID: uid}, []byte(secret), "", time.Hour)
		require.NoError(t, err)
	}
	return New(srv.URL+"/api/v1/", tok)
}

func TestCall_ErrorEnvelope(t *testing.T) {
	srv := newServer(t, nil)
	ctx := context.Background()

	err := newClient(t, srv, "").Call(ctx, "createPost", map[string]string{"content": "hi"}, nil)
	var ce *CallError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, ce.Status)
	assert.Equal(t, "unauthenticated", ce.Code)
	assert.NotEmpty(t, ce.RequestID)

	err = newClient(t, srv, "u1").Call(ctx, "noSuchFunction", nil, nil)
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, http.StatusNotFound, ce.Status)
	assert.Equal(t, "not-found", ce.Code)
}

func TestCall_IdempotencyKeyReplays(t *testing.T) {
	srv := newServer(t, nil)
	c := newClient(t, srv, "u1")
	ctx := context.Background()

	var a, b domain.Post
	in := services.PostInput{Content: "tofu bowl"}
	require.NoError(t, c.Call(ctx, "createPost", in, &a, WithIdempotencyKey("k1")))
	require.NoError(t, c.Call(ctx, "createPost", in, &b, WithIdempotencyKey("k1")))
	assert.Equal(t, a.ID, b.ID)

	var other domain.Post
	require.NoError(t, c.Call(ctx, "createPost", in, &other, WithIdempotencyKey("k2")))
	assert.NotEqual(t, a.ID, other.ID)
}

func TestReadinessSource_CachedMayBeStale(t *testing.T) {
	srv := newServer(t, nil)
	c := newClient(t, srv, "u1")
	src := NewReadinessSource(c)
	ctx := context.Background()

	r, err := c.GetReadiness(ctx)
	require.NoError(t, err)
	assert.Equal(t, "NEEDS_TERMS", r.NextStep)
	assert.Equal(t, "v1", r.TermsVersion)

	f, err := src.Facts(ctx, "u1", false)
	require.NoError(t, err)
	assert.False(t, f.TermsAgreed)

	_, err = c.AgreeToTerms(ctx)
	require.NoError(t, err)

	f, err = src.Facts(ctx, "u1", false)
	require.NoError(t, err)
	assert.False(t, f.TermsAgreed, "cached read still holds the old snapshot")

	f, err = src.Facts(ctx, "u1", true)
	require.NoError(t, err)
	assert.True(t, f.TermsAgreed)

	f, err = src.Facts(ctx, "u1", false)
	require.NoError(t, err)
	assert.True(t, f.TermsAgreed, "fresh read refreshes the cache")

	src.Forget("u1")
	src.Remember("u2", domain.ReadinessFacts{HasProfile: true})
	f, err = src.Facts(ctx, "u2", false)
	require.NoError(t, err)
	assert.Equal(t, domain.ReadinessFacts{HasProfile: true}, f)
}

type recordingUI struct {
	mu     sync.Mutex
	events []string
}

func (u *recordingUI) add(s string) {
	u.mu.Lock()
	u.events = append(u.events, s)
	u.mu.Unlock()
}

func (u *recordingUI) ShowTerms(context.Context) { u.add("terms") }
func (u *recordingUI) ShowProfile(context.Context) { u.add("profile") }
func (u *recordingUI) CloseModals(context.Context) { u.add("close") }
func (u *recordingUI) RevealApp(context.Context) { u.add("reveal") }
func (u *recordingUI) Toast(_ context.Context, m string) { u.add("toast:" + m) }

func TestManager_StaleCacheRecheckedAgainstServer(t *testing.T) {
	srv := newServer(t, nil)
	c := newClient(t, srv, "u1")
	ctx := context.Background()

	_, err := c.AgreeToTerms(ctx)
	require.NoError(t, err)

	src := NewReadinessSource(c)
	// a snapshot taken before the agreement landed
	src.Remember("u1", domain.ReadinessFacts{})

	ui := &recordingUI{}
	m := authflow.NewManager(src, ui)
	m.RecheckDelay = 0

	require.NoError(t, m.HandleAuthChange(ctx, &auth.Identity{UID: "u1"}))
	assert.Equal(t, authflow.NeedsProfile, m.State())

	_, err = c.UpdateProfile(ctx, services.ProfileInput{Nickname: "Miso"})
	require.NoError(t, err)
	require.NoError(t, m.Resume(ctx))

	assert.Equal(t, authflow.Ready, m.State())
	assert.Equal(t, []string{"profile", "close", "reveal"}, ui.events)
}

func TestSubscribe_AppliesBatchesToView(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	src := scriptedSource{batches: []feed.Batch{
		{Initial: true, Changes: []feed.Change{
			{Kind: feed.Added, Photo: domain.SharedPhoto{ID: "s1", PhotoURL: "a.jpg", Timestamp: t0}},
			{Kind: feed.Added, Photo: domain.SharedPhoto{ID: "s2", PhotoURL: "b.jpg", Timestamp: t0.Add(time.Minute)}},
		}},
		{Changes: []feed.Change{
			{Kind: feed.Removed, Photo: domain.SharedPhoto{ID: "s1"}},
			{Kind: feed.Added, Photo: domain.SharedPhoto{ID: "s3", PhotoURL: "c.jpg", Timestamp: t0.Add(2 * time.Minute)}},
		}},
	}}
	srv := newServer(t, src)
	c := newClient(t, srv, "")

	v := feed.NewView(10)
	var initial []bool
	err := c.Subscribe(context.Background(), 10, func(b feed.Batch) error {
		initial = append(initial, b.Initial)
		v.Apply(b)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false}, initial)
	items := v.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "s3", items[0].ID)
	assert.Equal(t, "s2", items[1].ID)
}

func TestSubscribe_ServerErrorEvent(t *testing.T) {
	srv := newServer(t, scriptedSource{err: errors.New("listener lost")})
	c := newClient(t, srv, "")

	err := c.Subscribe(context.Background(), 0, func(feed.Batch) error { return nil })
	var ce *CallError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "internal", ce.Code)
	assert.NotContains(t, ce.Message, "listener lost")
}

func TestReadEvents(t *testing.T) {
	body := strings.Join([]string{
		": comment",
		"event:ping",
		"data:2025-05-01T09:00:00Z",
		"",
		"data: line one",
		"data: line two",
		"",
		"event:changes",
		"data:{}",
	}, "\n")

	type ev struct{ name, data string }
	var got []ev
	err := readEvents(strings.NewReader(body), func(name, data string) error {
		got = append(got, ev{name, data})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []ev{
		{"ping", "2025-05-01T09:00:00Z"},
		{"message", "line one\nline two"},
		{"changes", "{}"},
	}, got)

	stop := errors.New("stop")
	err = readEvents(strings.NewReader("data:x\n\ndata:y\n\n"), func(string, string) error { return stop })
	assert.ErrorIs(t, err, stop)
}
