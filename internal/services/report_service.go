// Package services – ReportService
//
// ReportService accepts user reports against shared content. A reporter may
// report a target group at most once: the per-user report index is checked
// with a point lookup before the rate limiter, and is written after the
// report itself. If that second write fails the report stands without an
// index entry; the failure is logged and not retried.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/moderation"
)

// ReportNotifier is told about every accepted report.
type ReportNotifier interface {
	NotifyReport(ctx context.Context, r *domain.Report) error
}

// ReportService provides the submitReport use-case.
type ReportService struct {
	Store   ReportStore
	Limiter Limiter
	// Notifier is optional.
	Notifier ReportNotifier
	Now      func() time.Time
}

// ReportInput is the payload of submitReport.
type ReportInput struct {
	TargetGroupKey string `json:"targetGroupKey"`
	Reason         string `json:"reason"`
	ReasonOther    string `json:"reasonOther,omitempty"`
}

// Submit files a report by the caller.
func (s *ReportService) Submit(ctx context.Context, id *auth.Identity, in ReportInput) (*domain.Report, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(attribute.String("report.target", in.TargetGroupKey)),
	)
	defer span.End()

	if err := requireUser(id); err != nil {
		return nil, err
	}
	target, err := requireText("targetGroupKey", in.TargetGroupKey, 255)
	if err != nil {
		return nil, err
	}
	reason, err := requireText("reason", in.Reason, 64)
	if err != nil {
		return nil, err
	}
	other := strings.TrimSpace(in.ReasonOther)
	if reason == domain.ReasonOther {
		if other, err = requireText("reasonOther", other, 500); err != nil {
			return nil, err
		}
	}

	if err := moderation.CheckDuplicate(ctx, s.Store, id.UID, target); err != nil {
		return nil, err
	}
	if err := s.Limiter.CheckAndRecord(ctx, id.UID, "report"); err != nil {
		return nil, err
	}

	r := &domain.Report{
		ID:             uuid.NewString(),
		TargetGroupKey: target,
		Reason:         reason,
		ReasonOther:    other,
		ReportedBy:     id.UID,
		ReportedAt:     nowUTC(s.Now),
	}
	if err := s.Store.CreateReport(ctx, r); err != nil {
		return nil, err
	}

	entry := &domain.ReportIndexEntry{
		UserID:         id.UID,
		TargetGroupKey: target,
		ReportID:       r.ID,
		Reason:         reason,
		ReasonOther:    other,
	}
	if err := s.Store.PutReportIndex(ctx, entry); err != nil {
		logFrom(ctx).Error().Err(err).Str("report_id", r.ID).Msg("report index write failed; duplicate guard not armed")
	}

	if s.Notifier != nil {
		if err := s.Notifier.NotifyReport(ctx, r); err != nil {
			logFrom(ctx).Warn().Err(err).Str("report_id", r.ID).Msg("moderator notification failed")
		}
	}
	return r, nil
}
