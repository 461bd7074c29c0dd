// Package blob stores user photos. Backends: Amazon S3 (or any S3-compatible
// endpoint), Google Cloud Storage, and a local directory served by the API
// process. Every backend hands out public URLs of the form
// {PublicBaseURL}/{key} and can map such a URL back to its key, which is how
// photo cleanup finds the object behind a post's photoUrl.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-meal-backend/internal/config"
)

// ErrDisabled is returned by Put when uploads are turned off.
var ErrDisabled = errors.New("photo uploads are disabled")

// Remover deletes objects addressed by their public URL.
type Remover interface {
	Delete(ctx context.Context, key string) error
	KeyFromURL(u string) (string, bool)
}

// Store is a blob backend.
type Store interface {
	Remover
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// Open builds the backend selected by cfg.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Backend {
	case config.BlobNone:
		return Nop{}, nil
	case config.BlobDisk:
		return NewDisk(cfg.Dir, cfg.PublicBaseURL)
	case config.BlobS3:
		return NewS3(ctx, cfg.S3, cfg.PublicBaseURL)
	case config.BlobGCS:
		return NewGCS(ctx, cfg.GCSBucket, cfg.PublicBaseURL)
	}
	return nil, fmt.Errorf("unsupported BLOB_BACKEND %q", cfg.Backend)
}

// keyFromURL strips base from u and unescapes the remainder.
func keyFromURL(base, u string) (string, bool) {
	base = strings.TrimRight(base, "/")
	if base == "" || !strings.HasPrefix(u, base+"/") {
		return "", false
	}
	rest := strings.TrimPrefix(u, base+"/")
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	key, err := url.PathUnescape(rest)
	if err != nil || key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

// publicURL joins base and key, escaping each path segment.
func publicURL(base, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

// DeleteURLs removes the objects behind urls concurrently. URLs that do not
// belong to s are skipped. The first error is returned after all deletes
// finish.
func DeleteURLs(ctx context.Context, s Remover, urls []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, u := range urls {
		key, ok := s.KeyFromURL(u)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := s.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Nop rejects uploads and ignores deletes.
type Nop struct{}

func (Nop) Put(context.Context, string, string, io.Reader) (string, error) { return "", ErrDisabled }
func (Nop) Delete(context.Context, string) error                           { return nil }
func (Nop) KeyFromURL(string) (string, bool)                               { return "", false }
