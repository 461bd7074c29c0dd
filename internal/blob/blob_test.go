package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-meal-backend/internal/config"
)

func TestKeyFromURL(t *testing.T) {
	cases := []struct {
		base, url string
		key       string
		ok        bool
	}{
		{"/uploads", "/uploads/photos/u1/a.jpg", "photos/u1/a.jpg", true},
		{"/uploads/", "/uploads/photos/u1/a.jpg?v=2", "photos/u1/a.jpg", true},
		{"https://cdn.example.com", "https://cdn.example.com/photos/u%201/a.jpg", "photos/u 1/a.jpg", true},
		{"https://cdn.example.com", "https://other.example.com/photos/a.jpg", "", false},
		{"/uploads", "/uploads/../secret", "", false},
		{"", "/uploads/a.jpg", "", false},
		{"/uploads", "/uploads/", "", false},
	}
	for _, tc := range cases {
		key, ok := keyFromURL(tc.base, tc.url)
		assert.Equal(t, tc.ok, ok, tc.url)
		assert.Equal(t, tc.key, key, tc.url)
	}
}

func TestPublicURL_EscapesSegments(t *testing.T) {
	got := publicURL("https://cdn.example.com/", "photos/u 1/a.jpg")
	assert.Equal(t, "https://cdn.example.com/photos/u%201/a.jpg", got)
	key, ok := keyFromURL("https://cdn.example.com", got)
	require.True(t, ok)
	assert.Equal(t, "photos/u 1/a.jpg", key)
}

func TestDisk_PutDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir, "/uploads")
	require.NoError(t, err)

	u, err := d.Put(context.Background(), "photos/u1/a.jpg", "image/jpeg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/photos/u1/a.jpg", u)

	b, err := os.ReadFile(filepath.Join(dir, "photos", "u1", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(b))

	key, ok := d.KeyFromURL(u)
	require.True(t, ok)
	require.NoError(t, d.Delete(context.Background(), key))
	_, err = os.Stat(filepath.Join(dir, "photos", "u1", "a.jpg"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// Deleting again is not an error.
	assert.NoError(t, d.Delete(context.Background(), key))
}

func TestDisk_RejectsEscapingKeys(t *testing.T) {
	d, err := NewDisk(t.TempDir(), "/uploads")
	require.NoError(t, err)
	_, err = d.Put(context.Background(), "../evil.txt", "text/plain", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestOpen_SelectsBackend(t *testing.T) {
	s, err := Open(context.Background(), config.BlobConfig{Backend: config.BlobNone})
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "k", "image/png", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrDisabled)

	s, err = Open(context.Background(), config.BlobConfig{Backend: config.BlobDisk, Dir: t.TempDir(), PublicBaseURL: "/uploads"})
	require.NoError(t, err)
	assert.IsType(t, &Disk{}, s)

	_, err = Open(context.Background(), config.BlobConfig{Backend: "ftp"})
	assert.Error(t, err)
}

type recordingStore struct {
	Nop
	mu      sync.Mutex
	deleted []string
	fail    string
}

func (r *recordingStore) KeyFromURL(u string) (string, bool) { return keyFromURL("/b", u) }

func (r *recordingStore) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, key)
	if key == r.fail {
		return errors.New("boom")
	}
	return nil
}

func TestDeleteURLs(t *testing.T) {
	s := &recordingStore{fail: "c"}
	err := DeleteURLs(context.Background(), s, []string{"/b/a", "https://elsewhere/x", "/b/c", "/b/d"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete c")
	assert.Contains(t, s.deleted, "a")
	assert.Contains(t, s.deleted, "c")
	assert.NotContains(t, s.deleted, "x")
}
