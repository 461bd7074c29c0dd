package services

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-meal-backend/internal/auth"
)

// BlobPutter stores an object and returns its public URL.
type BlobPutter interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// PhotoService uploads user photos to the blob store.
type PhotoService struct {
	Blob BlobPutter
	// MaxBytes caps a single upload.
	MaxBytes int64
}

var photoExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/heic": ".heic",
}

// Upload stores a photo under photos/{uid}/ and returns its URL.
func (s *PhotoService) Upload(ctx context.Context, id *auth.Identity, filename, contentType string, size int64, r io.Reader) (string, error) {
	tr := otel.Tracer("services/PhotoService")
	ctx, span := tr.Start(ctx, "Upload",
		trace.WithAttributes(
			attribute.String("photo.content_type", contentType),
			attribute.Int64("photo.size", size),
		),
	)
	defer span.End()

	if err := requireUser(id); err != nil {
		return "", err
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	ext, ok := photoExt[ct]
	if !ok {
		return "", Errorf(CodeInvalidArgument, "unsupported photo type %q", contentType)
	}
	if size <= 0 {
		return "", InvalidArgument("photo is empty")
	}
	if s.MaxBytes > 0 && size > s.MaxBytes {
		return "", Errorf(CodeInvalidArgument, "photo must be at most %d bytes", s.MaxBytes)
	}
	if e := strings.ToLower(path.Ext(filename)); e == ".jpeg" || e == ext {
		ext = e
	}

	key := "photos/" + id.UID + "/" + uuid.NewString() + ext
	return s.Blob.Put(ctx, key, ct, r)
}
