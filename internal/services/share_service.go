// Package services – ShareService
//
// ShareService publishes photos to the public feed with replace-on-share
// semantics. Every share names a grouping key (meal entry, day, best-of
// period, or insight range); sharing again under the same key atomically
// replaces the caller's previous rows for that key, and sharing an empty
// list removes them.
//
// After a meal share or unshare commits, the meal's sharedPhotos field is
// synced best-effort. It is a display convenience; failures are logged and
// never surfaced.
package services

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/domain"
)

// MaxSharePhotos caps the photos in one share call.
const MaxSharePhotos = 10

var sharesReplaced = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shares_replaced_total",
		Help: "Shared-photo rows superseded by a re-share, by share type.",
	},
	[]string{"type"},
)

func init() {
	prometheus.MustRegister(sharesReplaced)
}

// ShareService provides the share and unshare use-cases.
type ShareService struct {
	Store    ShareStore
	Meals    MealStore
	Settings SettingsStore
	Limiter  Limiter
	Now      func() time.Time
}

// ShareInput is the payload of the share functions. Which grouping fields
// are read depends on the function.
type ShareInput struct {
	EntryID       string   `json:"entryId,omitempty"`
	Date          string   `json:"date,omitempty"`
	MealType      string   `json:"mealType,omitempty"`
	PeriodType    string   `json:"periodType,omitempty"`
	PeriodText    string   `json:"periodText,omitempty"`
	DateRangeText string   `json:"dateRangeText,omitempty"`
	Comment       string   `json:"comment,omitempty"`
	PhotoURLs     []string `json:"photoUrls"`
}

// ShareResult reports what a share call changed.
type ShareResult struct {
	Replaced int      `json:"replaced"`
	Shared   int      `json:"shared"`
	IDs      []string `json:"ids"`
}

// ShareMealPhotos shares the photos of a meal entry (or, without an
// entryId, the caller's entry-less meal shares).
func (s *ShareService) ShareMealPhotos(ctx context.Context, id *auth.Identity, in ShareInput) (*ShareResult, error) {
	return s.share(ctx, id, domain.MealKey(in.EntryID), in)
}

// ShareDaily shares a daily summary for in.Date.
func (s *ShareService) ShareDaily(ctx context.Context, id *auth.Identity, in ShareInput) (*ShareResult, error) {
	return s.share(ctx, id, domain.DailyKey(in.Date), in)
}

// ShareBest shares a best-of selection for a period.
func (s *ShareService) ShareBest(ctx context.Context, id *auth.Identity, in ShareInput) (*ShareResult, error) {
	return s.share(ctx, id, domain.BestKey(in.PeriodType, in.PeriodText), in)
}

// ShareInsight shares an insight card for a date range.
func (s *ShareService) ShareInsight(ctx context.Context, id *auth.Identity, in ShareInput) (*ShareResult, error) {
	return s.share(ctx, id, domain.InsightKey(in.DateRangeText), in)
}

func (s *ShareService) share(ctx context.Context, id *auth.Identity, key domain.GroupingKey, in ShareInput) (*ShareResult, error) {
	tr := otel.Tracer("services/ShareService")
	ctx, span := tr.Start(ctx, "Share",
		trace.WithAttributes(
			attribute.String("share.key", key.String()),
			attribute.Int("share.photos", len(in.PhotoURLs)),
		),
	)
	defer span.End()

	if err := requireUser(id); err != nil {
		return nil, err
	}
	if err := key.Validate(); err != nil {
		return nil, InvalidArgument(err.Error())
	}
	if len(in.PhotoURLs) > MaxSharePhotos {
		return nil, Errorf(CodeInvalidArgument, "at most %d photos can be shared at once", MaxSharePhotos)
	}
	urls := make([]string, 0, len(in.PhotoURLs))
	for _, u := range in.PhotoURLs {
		u = strings.TrimSpace(u)
		if u == "" {
			return nil, InvalidArgument("photoUrls must not contain empty entries")
		}
		urls = append(urls, u)
	}
	comment := strings.TrimSpace(in.Comment)
	if comment != "" {
		if _, err := requireText("comment", comment, 200); err != nil {
			return nil, err
		}
		if err := screen("comment", comment); err != nil {
			return nil, err
		}
	}
	if err := s.Limiter.CheckAndRecord(ctx, id.UID, "share"); err != nil {
		return nil, err
	}

	author := authorOf(ctx, s.Settings, id.UID)
	now := nowUTC(s.Now)
	rows := make([]domain.SharedPhoto, 0, len(urls))
	ids := make([]string, 0, len(urls))
	for i, u := range urls {
		row := domain.SharedPhoto{
			ID:           uuid.NewString(),
			PhotoURL:     u,
			UserID:       id.UID,
			UserNickname: author.Nickname,
			UserIcon:     author.Icon,
			UserPhotoURL: author.PhotoURL,
			Date:         strings.TrimSpace(in.Date),
			MealType:     strings.TrimSpace(in.MealType),
			Comment:      comment,
			// Keep the submitted order stable under timestamp-desc feeds.
			Timestamp: now.Add(-time.Duration(i) * time.Microsecond),
		}
		key.Stamp(&row)
		rows = append(rows, row)
		ids = append(ids, row.ID)
	}

	replaced, err := s.Store.ReplaceShares(ctx, id.UID, key, rows)
	if err != nil {
		return nil, err
	}
	if replaced > 0 {
		sharesReplaced.WithLabelValues(string(key.Type)).Add(float64(replaced))
	}

	if key.Type == domain.ShareMeal && key.EntryID != "" {
		s.syncMealShares(ctx, id.UID, key.EntryID, urls)
	}
	return &ShareResult{Replaced: replaced, Shared: len(rows), IDs: ids}, nil
}

// UnshareInput is the payload of unsharePhoto.
type UnshareInput struct {
	PhotoURL string `json:"photoUrl"`
}

// UnshareResult reports how many rows were removed.
type UnshareResult struct {
	Deleted int `json:"deleted"`
}

// Unshare removes the caller's shared rows for a photo URL. URLs are
// matched exactly, then without their query string, then by file name.
func (s *ShareService) Unshare(ctx context.Context, id *auth.Identity, in UnshareInput) (*UnshareResult, error) {
	tr := otel.Tracer("services/ShareService")
	ctx, span := tr.Start(ctx, "Unshare")
	defer span.End()

	if err := requireUser(id); err != nil {
		return nil, err
	}
	target, err := requireText("photoUrl", in.PhotoURL, 0)
	if err != nil {
		return nil, err
	}

	rows, err := s.Store.ListUserShares(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	matched := MatchPhotoURL(rows, target)
	if len(matched) == 0 {
		return &UnshareResult{}, nil
	}

	ids := make([]string, 0, len(matched))
	gone := make(map[string]bool, len(matched))
	for _, r := range matched {
		ids = append(ids, r.ID)
		gone[r.ID] = true
	}
	deleted, err := s.Store.DeleteShares(ctx, id.UID, ids)
	if err != nil {
		return nil, err
	}

	// Resync every meal entry that lost a row.
	entries := map[string]bool{}
	for _, r := range matched {
		if r.Type == domain.ShareMeal && r.EntryID != nil && *r.EntryID != "" {
			entries[*r.EntryID] = true
		}
	}
	for entry := range entries {
		var remaining []string
		for _, r := range rows {
			if !gone[r.ID] && r.Type == domain.ShareMeal && r.EntryID != nil && *r.EntryID == entry {
				remaining = append(remaining, r.PhotoURL)
			}
		}
		s.syncMealShares(ctx, id.UID, entry, remaining)
	}
	return &UnshareResult{Deleted: deleted}, nil
}

// syncMealShares mirrors urls onto the caller's meal record. Best-effort.
func (s *ShareService) syncMealShares(ctx context.Context, uid, mealID string, urls []string) {
	if s.Meals == nil {
		return
	}
	lg := logFrom(ctx).With().Str("meal_id", mealID).Logger()

	m, err := s.Meals.GetMeal(ctx, mealID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			lg.Warn().Err(err).Msg("meal sharedPhotos sync: load failed")
		}
		return
	}
	if m.UserID != uid {
		lg.Warn().Msg("meal sharedPhotos sync: meal owned by another user, skipped")
		return
	}
	if urls == nil {
		urls = []string{}
	}
	if err := s.Meals.SetMealSharedPhotos(ctx, mealID, urls); err != nil {
		lg.Warn().Err(err).Msg("meal sharedPhotos sync failed")
	}
}

// MatchPhotoURL returns the rows whose photo URL matches target, trying
// exact equality, then equality without query strings, then equality of
// file names. The first stage with any match wins.
func MatchPhotoURL(rows []domain.SharedPhoto, target string) []domain.SharedPhoto {
	for _, norm := range []func(string) string{identityURL, stripQuery, fileName} {
		want := norm(target)
		if want == "" {
			continue
		}
		var out []domain.SharedPhoto
		for _, r := range rows {
			if norm(r.PhotoURL) == want {
				out = append(out, r)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func identityURL(u string) string { return u }

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// fileName returns the last path segment, decoding escaped separators so
// "o/photos%2Fu1%2Fa.jpg" and ".../photos/u1/a.jpg" agree.
func fileName(u string) string {
	p := stripQuery(u)
	if dec, err := url.PathUnescape(p); err == nil {
		p = dec
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return base
}
