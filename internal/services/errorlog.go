package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

// ErrorRecorder writes internal failures to the durable error log. It never
// fails: a write error is logged and dropped so it cannot replace the
// original error.
type ErrorRecorder struct {
	Store ErrorLogStore
	Now   func() time.Time
}

// Record stores err for function on behalf of uid.
func (r *ErrorRecorder) Record(ctx context.Context, function, uid, requestID string, err error) {
	if r == nil || r.Store == nil || err == nil {
		return
	}
	entry := &domain.ErrorLog{
		ID:        uuid.NewString(),
		Function:  function,
		UserID:    uid,
		RequestID: requestID,
		Message:   err.Error(),
		CreatedAt: nowUTC(r.Now),
	}
	// Detach from request cancellation; the caller may already be gone.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if werr := r.Store.WriteErrorLog(wctx, entry); werr != nil {
		logFrom(ctx).Warn().Err(werr).Str("function", function).Msg("error log write failed")
	}
}
