package moderation

import (
	"context"
	"errors"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

// ErrAlreadyReported is returned when the reporter already filed a report
// against the same target group.
var ErrAlreadyReported = errors.New("you have already reported this content")

// ReportIndex is the per-user report index. LookupReport returns nil, nil
// when the user has no entry for targetGroupKey.
type ReportIndex interface {
	LookupReport(ctx context.Context, userID, targetGroupKey string) (*domain.ReportIndexEntry, error)
}

// CheckDuplicate rejects a second report by userID against targetGroupKey.
// It is a point lookup, not a query.
func CheckDuplicate(ctx context.Context, idx ReportIndex, userID, targetGroupKey string) error {
	e, err := idx.LookupReport(ctx, userID, targetGroupKey)
	if err != nil {
		return err
	}
	if e != nil && e.ReportID != "" {
		return ErrAlreadyReported
	}
	return nil
}
