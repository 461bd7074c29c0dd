package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-meal-backend/internal/auth"
)

func init() { gin.SetMode(gin.TestMode) }

func withCapturedLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// stubVerifier accepts "good" and "anon".
type stubVerifier struct{}

func (stubVerifier) Verify(tok string) (auth.Identity, error) {
	switch tok {
	case "good":
		return auth.Identity{UID: "u1"}, nil
	case "anon":
		return auth.Identity{UID: "g1", Anonymous: true}, nil
	}
	return auth.Identity{}, errors.New("bad token")
}

func do(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}
