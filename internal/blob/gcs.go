package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCS stores objects in one Cloud Storage bucket.
type GCS struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// NewGCS dials Cloud Storage with application default credentials.
func NewGCS(ctx context.Context, bucket, publicBaseURL string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("while creating storage client: %w", err)
	}
	base := publicBaseURL
	if base == "" || base[0] == '/' {
		base = "https://storage.googleapis.com/" + bucket
	}
	return &GCS{client: client, bucket: bucket, baseURL: base}, nil
}

func (g *GCS) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("while writing object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("while finalizing object %q: %w", key, err)
	}
	return publicURL(g.baseURL, key), nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (g *GCS) KeyFromURL(u string) (string, bool) { return keyFromURL(g.baseURL, u) }
