package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/http/middleware"
	"github.com/tbourn/go-meal-backend/internal/repo"
	"github.com/tbourn/go-meal-backend/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

func newStore(t *testing.T) *repo.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return repo.NewStore(db)
}

// tokenVerifier treats the token as the uid; "guest-*" tokens are anonymous.
type tokenVerifier struct{}

func (tokenVerifier) Verify(tok string) (auth.Identity, error) {
	if tok == "" || tok == "bad" {
		return auth.Identity{}, errors.New("bad token")
	}
	return auth.Identity{UID: tok, Anonymous: len(tok) > 6 && tok[:6] == "guest-"}, nil
}

type stubLimiter struct{ err error }

func (l stubLimiter) CheckAndRecord(context.Context, string, string) error { return l.err }

type env struct {
	st *repo.Store
	h  *Handlers
	r  *gin.Engine
}

// newEnv wires real services over an in-memory store. mod may replace any
// dependency before the handlers are built.
func newEnv(t *testing.T, mod ...func(*Deps)) *env {
	t.Helper()
	st := newStore(t)
	lim := stubLimiter{}
	d := Deps{
		Board:     services.NewBoardService(st, st, lim),
		Reports:   &services.ReportService{Store: st, Limiter: lim},
		Shares:    &services.ShareService{Store: st, Meals: st, Settings: st, Limiter: lim},
		Settings:  &services.SettingsService{Store: st, Meals: st, TermsVersion: "v2"},
		Meals:     &services.MealService{Store: st, Limiter: lim},
		Feed:      st,
		Stats:     st,
		Resources: st,
		Idem:      st,
		Errors:    &services.ErrorRecorder{Store: st},
	}
	for _, m := range mod {
		m(&d)
	}
	h := New(d)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Authenticate(tokenVerifier{}))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{},
		func(ctx context.Context, uid, scope, key string, now time.Time) (string, error) {
			rec, err := st.GetIdempotency(ctx, uid, scope, key, now)
			if errors.Is(err, domain.ErrNotFound) {
				return "", nil
			}
			if err != nil {
				return "", err
			}
			return rec.ResourceID, nil
		}))
	r.POST("/functions/:name", h.Call)
	r.GET("/posts", h.ListPosts)
	r.GET("/posts/:id/comments", h.ListComments)
	r.GET("/feed", h.ListFeed)
	if h.HasStream() {
		r.GET("/feed/stream", h.StreamFeed)
	}
	if h.HasPhotos() {
		r.POST("/photos", h.UploadPhoto)
	}
	return &env{st: st, h: h, r: r}
}

// call invokes a callable function as uid ("" for no token).
func (e *env) call(uid, name string, data any, hdr map[string]string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]any{"data": data})
	req := httptest.NewRequest(http.MethodPost, "/functions/"+name, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer "+uid)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) get(path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// dataOf decodes the {"data": ...} envelope of w.
func dataOf[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode data: %v (body=%s)", err, w.Body.String())
	}
	return env.Data
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error: %v (body=%s)", err, w.Body.String())
	}
	return er
}
