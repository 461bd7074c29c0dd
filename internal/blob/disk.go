package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Disk stores objects under Dir. The HTTP layer serves Dir at BaseURL.
type Disk struct {
	Dir     string
	BaseURL string
}

// NewDisk creates dir if needed.
func NewDisk(dir, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Disk{Dir: dir, BaseURL: baseURL}, nil
}

func (d *Disk) path(key string) (string, error) {
	p := filepath.Join(d.Dir, filepath.FromSlash(key))
	rel, err := filepath.Rel(d.Dir, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return p, nil
}

// Put writes r to a temp file and renames it into place.
func (d *Disk) Put(_ context.Context, key, _ string, r io.Reader) (string, error) {
	p, err := d.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return publicURL(d.BaseURL, key), nil
}

// Delete removes key; a missing file is not an error.
func (d *Disk) Delete(_ context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (d *Disk) KeyFromURL(u string) (string, bool) { return keyFromURL(d.BaseURL, u) }
